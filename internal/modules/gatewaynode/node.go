package gatewaynode

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Kind is the presence kind advertised by every gateway node.
const Kind = "gateway"

// Client is the subset of the daemon MQTT client a node needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// Handler answers one command type. Returning a *mp.ReplyError keeps its
// code on the wire; any other error is reported as a transport error.
type Handler func(ctx context.Context, cmd mp.CommandEnvelope) (any, error)

// Config identifies a node on the bus.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
	Caps      map[string]any
}

// Node publishes presence and routes commands to handlers.
type Node struct {
	log      *zap.Logger
	client   Client
	config   Config
	handlers map[string]Handler
	now      func() time.Time
}

// New creates a node. Handlers are registered with Handle before Run.
func New(log *zap.Logger, client Client, cfg Config) (*Node, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = mp.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = cfg.NodeID
	}
	return &Node{
		log:      log.With(zap.String("node_id", cfg.NodeID)),
		client:   client,
		config:   cfg,
		handlers: map[string]Handler{},
		now:      time.Now,
	}, nil
}

// NodeID returns the node id.
func (n *Node) NodeID() string {
	return n.config.NodeID
}

// Handle registers the handler for a command type.
func (n *Node) Handle(cmdType string, handler Handler) {
	n.handlers[cmdType] = handler
}

// Run publishes presence, serves commands until ctx is done, then clears
// the retained presence.
func (n *Node) Run(ctx context.Context) error {
	if n.client == nil {
		return errors.New("mqtt client required")
	}
	if err := n.publishPresence(); err != nil {
		return err
	}

	cmdTopic := mp.TopicCommands(n.config.TopicBase, n.config.NodeID)
	handler := func(_ string, payload []byte) {
		go n.handlePayload(ctx, payload)
	}
	if err := n.client.Subscribe(cmdTopic, 1, handler); err != nil {
		return err
	}
	n.log.Info("gateway node ready", zap.String("topic", cmdTopic))

	<-ctx.Done()
	_ = n.client.Unsubscribe(cmdTopic)
	if err := n.client.Publish(mp.TopicPresence(n.config.TopicBase, n.config.NodeID), 1, true, nil); err != nil {
		n.log.Debug("clear presence", zap.Error(err))
	}
	return nil
}

func (n *Node) publishPresence() error {
	presence := mp.Presence{
		NodeID: n.config.NodeID,
		Kind:   Kind,
		Name:   n.config.Name,
		Caps:   n.config.Caps,
		TS:     n.now().Unix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return n.client.Publish(mp.TopicPresence(n.config.TopicBase, n.config.NodeID), 1, true, payload)
}

func (n *Node) handlePayload(ctx context.Context, payload []byte) {
	var cmd mp.CommandEnvelope
	if err := json.Unmarshal(payload, &cmd); err != nil {
		n.log.Warn("invalid command", zap.Error(err))
		return
	}

	reply := n.Dispatch(ctx, cmd)
	if cmd.ReplyTo == "" {
		return
	}
	out, err := json.Marshal(reply)
	if err != nil {
		n.log.Error("marshal reply", zap.Error(err))
		return
	}
	if err := n.client.Publish(cmd.ReplyTo, 1, false, out); err != nil {
		n.log.Error("publish reply", zap.Error(err))
	}
}

// Dispatch validates a command and runs its handler.
func (n *Node) Dispatch(ctx context.Context, cmd mp.CommandEnvelope) mp.ReplyEnvelope {
	if err := mp.ValidateCommandEnvelope(cmd); err != nil {
		code := mp.CodeInvalid
		if strings.TrimSpace(cmd.Type) != "" && !mp.KnownCommand(cmd.Type) {
			code = mp.CodeUnknownCommand
		}
		return n.errorReply(cmd, &mp.ReplyError{Code: code, Message: err.Error()})
	}
	handler, ok := n.handlers[cmd.Type]
	if !ok {
		return n.errorReply(cmd, &mp.ReplyError{Code: mp.CodeUnknownCommand, Message: cmd.Type + " is not handled by this node"})
	}

	result, err := handler(ctx, cmd)
	if err != nil {
		n.log.Debug("command failed", zap.String("type", cmd.Type), zap.String("id", cmd.ID), zap.Error(err))
		var replyErr *mp.ReplyError
		if !errors.As(err, &replyErr) {
			replyErr = &mp.ReplyError{Code: mp.CodeTransport, Message: err.Error()}
		}
		return n.errorReply(cmd, replyErr)
	}

	reply := mp.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "ack",
		OK:   true,
		TS:   n.now().Unix(),
	}
	if result != nil {
		body, err := json.Marshal(result)
		if err != nil {
			return n.errorReply(cmd, &mp.ReplyError{Code: mp.CodeTransport, Message: "marshal reply: " + err.Error()})
		}
		reply.Body = body
	}
	return reply
}

func (n *Node) errorReply(cmd mp.CommandEnvelope, replyErr *mp.ReplyError) mp.ReplyEnvelope {
	return mp.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   n.now().Unix(),
		Err:  replyErr,
	}
}

// Decode reads a command body, reporting malformed bodies as INVALID.
func Decode(cmd mp.CommandEnvelope, out any) error {
	if err := json.Unmarshal(cmd.Body, out); err != nil {
		return &mp.ReplyError{Code: mp.CodeInvalid, Message: "invalid body: " + err.Error()}
	}
	return nil
}

// NotSupported answers commands the node understands but cannot serve.
func NotSupported(message string) error {
	return &mp.ReplyError{Code: mp.CodeNotSupported, Message: message}
}

// NotFound reports a missing item.
func NotFound(message string) error {
	return &mp.ReplyError{Code: mp.CodeNotFound, Message: message}
}
