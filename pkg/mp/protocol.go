package mp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "mp/v1"

// Reply error codes shared by gateways and clients.
const (
	CodeInvalid        = "INVALID"
	CodeNotFound       = "NOT_FOUND"
	CodeUnknownCommand = "unknown_command"
	CodeNotSupported   = "not_supported"
	CodeTransport      = "transport_error"
	CodeTimeout        = "timeout"
)

// CommandEnvelope is the common command envelope for MQTT.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	From    string          `json:"from"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// ReplyEnvelope is the response envelope for commands.
type ReplyEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	OK   bool            `json:"ok"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body,omitempty"`
	Err  *ReplyError     `json:"err,omitempty"`
}

// ReplyError describes an error response. It doubles as a Go error so remote
// codes survive the trip through transports unchanged.
type ReplyError struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Detail  json.RawMessage `json:"detail,omitempty"`
}

func (e *ReplyError) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsUnsupported reports whether err carries a remote "unsupported" signal.
func IsUnsupported(err error) bool {
	var replyErr *ReplyError
	if !errors.As(err, &replyErr) {
		return false
	}
	switch replyErr.Code {
	case CodeUnknownCommand, CodeNotSupported:
		return true
	default:
		return false
	}
}

// ErrorCode returns the remote error code carried by err, if any.
func ErrorCode(err error) string {
	var replyErr *ReplyError
	if errors.As(err, &replyErr) {
		return replyErr.Code
	}
	return ""
}

// Presence describes a node presence payload.
type Presence struct {
	NodeID string         `json:"nodeId"`
	Kind   string         `json:"kind"`
	Name   string         `json:"name"`
	Caps   map[string]any `json:"caps,omitempty"`
	TS     int64          `json:"ts"`
}

// NewCommand builds a command envelope with a JSON body.
func NewCommand(cmdType string, body any) (CommandEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("marshal body: %w", err)
	}

	return CommandEnvelope{
		Type: cmdType,
		Body: payload,
	}, nil
}

// ValidateCommandEnvelope validates required fields.
func ValidateCommandEnvelope(cmd CommandEnvelope) error {
	if strings.TrimSpace(cmd.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return errors.New("type is required")
	}
	if cmd.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if strings.TrimSpace(cmd.From) == "" {
		return errors.New("from is required")
	}
	if len(cmd.Body) == 0 {
		return errors.New("body is required")
	}
	if !KnownCommand(cmd.Type) {
		return fmt.Errorf("unknown command type %q", cmd.Type)
	}
	return nil
}

// KnownCommand reports whether cmdType is part of the protocol.
func KnownCommand(cmdType string) bool {
	switch cmdType {
	case CmdMediaBrowse, CmdMediaSearch, CmdMediaResolve, CmdMediaResolveMetadata:
		return true
	case CmdServiceCall, CmdStatesList, CmdConfigEntriesList:
		return true
	default:
		return false
	}
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicCommands builds the command topic for a node.
func TopicCommands(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/cmd", topicBase, nodeID)
}

// TopicReply builds the reply topic for a client instance.
func TopicReply(topicBase, clientID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, clientID)
}
