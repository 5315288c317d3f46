package hass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Options configures the Home Assistant websocket client.
type Options struct {
	URL          string
	Token        string
	Timeout      time.Duration
	PingInterval time.Duration
	Logger       *zap.Logger
}

// Client talks to the Home Assistant websocket API. It implements the
// Remote and StateStore ports.
type Client struct {
	log     *zap.Logger
	timeout time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn

	reqID     atomic.Uint64
	pendingMu sync.Mutex
	pending   map[uint64]chan message
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type message struct {
	ID      uint64          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	HAVersion string `json:"ha_version,omitempty"`
}

// ErrAuth is returned when Home Assistant rejects the access token.
var ErrAuth = errors.New("home assistant rejected the access token")

// Dial connects and authenticates.
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	endpoint, err := WebsocketURL(opts.URL)
	if err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{HandshakeTimeout: opts.Timeout}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	if err := authenticate(conn, opts.Token, opts.Timeout); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		log:     opts.Logger,
		timeout: opts.Timeout,
		conn:    conn,
		pending: make(map[uint64]chan message),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	if opts.PingInterval > 0 {
		go c.pingLoop(opts.PingInterval)
	}
	return c, nil
}

// WebsocketURL turns a Home Assistant base URL into its websocket endpoint.
func WebsocketURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("home assistant url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid home assistant url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/api/websocket"
	}
	return u.String(), nil
}

func authenticate(conn *websocket.Conn, token string, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()

	var hello message
	if err := conn.ReadJSON(&hello); err != nil {
		return fmt.Errorf("read auth request: %w", err)
	}
	if hello.Type == "auth_ok" {
		return nil
	}
	if hello.Type != "auth_required" {
		return fmt.Errorf("unexpected handshake message %q", hello.Type)
	}
	if err := conn.WriteJSON(map[string]string{"type": "auth", "access_token": token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	var reply message
	if err := conn.ReadJSON(&reply); err != nil {
		return fmt.Errorf("read auth reply: %w", err)
	}
	switch reply.Type {
	case "auth_ok":
		return nil
	case "auth_invalid":
		return ErrAuth
	default:
		return fmt.Errorf("unexpected auth reply %q", reply.Type)
	}
}

// Close closes the connection and fails pending calls.
func (c *Client) Close() error {
	c.shutdown(errors.New("client closed"))
	return nil
}

func (c *Client) shutdown(reason error) {
	c.closeOnce.Do(func() {
		c.closeErr = reason
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.Close()
		c.writeMu.Unlock()
	})
}

func (c *Client) readLoop() {
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.log.Debug("websocket read error", zap.Error(err))
			c.shutdown(fmt.Errorf("connection lost: %w", err))
			return
		}
		if msg.ID == 0 {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[msg.ID]
		if ok {
			delete(c.pending, msg.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- msg
		}
	}
}

func (c *Client) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
			_, err := c.call(ctx, map[string]any{"type": "ping"})
			cancel()
			if err != nil {
				c.log.Warn("home assistant ping failed", zap.Error(err))
			}
		}
	}
}

// call sends one command and waits for its result. payload must carry the
// message type; the id is assigned here.
func (c *Client) call(ctx context.Context, payload map[string]any) (json.RawMessage, error) {
	id := c.reqID.Add(1)
	payload["id"] = id

	respCh := make(chan message, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()
	forget := func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}

	c.writeMu.Lock()
	err := c.conn.WriteJSON(payload)
	c.writeMu.Unlock()
	if err != nil {
		forget()
		return nil, &mp.ReplyError{Code: mp.CodeTransport, Message: err.Error()}
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		forget()
		return nil, ctx.Err()
	case <-c.closed:
		forget()
		return nil, &mp.ReplyError{Code: mp.CodeTransport, Message: c.closeErr.Error()}
	case <-timer.C:
		forget()
		return nil, &mp.ReplyError{Code: mp.CodeTimeout, Message: fmt.Sprintf("no reply to %v", payload["type"])}
	case msg := <-respCh:
		if msg.Type == "pong" {
			return nil, nil
		}
		if !msg.Success {
			return nil, replyError(msg)
		}
		return msg.Result, nil
	}
}

func replyError(msg message) error {
	if msg.Error == nil {
		return &mp.ReplyError{Code: mp.CodeTransport, Message: "request failed"}
	}
	code := msg.Error.Code
	switch code {
	case "not_found":
		code = mp.CodeNotFound
	case "invalid_format":
		code = mp.CodeInvalid
	}
	return &mp.ReplyError{Code: code, Message: msg.Error.Message}
}
