package hassgateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/adapters/hass"
	"github.com/mikey-austin/media_picker/internal/modules/gatewaynode"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Config configures the Home Assistant gateway.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
	URL       string
	Token     string
	Timeout   time.Duration
}

// Backend is everything the gateway forwards to.
type Backend interface {
	ports.Remote
	ports.StateStore
}

// Module relays mp commands to a Home Assistant instance.
type Module struct {
	log    *zap.Logger
	client gatewaynode.Client
	config Config
	dial   func(ctx context.Context) (Backend, func() error, error)
}

// NewModule creates a gateway module that dials Home Assistant on Run.
func NewModule(log *zap.Logger, client gatewaynode.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("url required")
	}
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("token required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Home Assistant"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	m := &Module{log: log, client: client, config: cfg}
	m.dial = func(ctx context.Context) (Backend, func() error, error) {
		conn, err := hass.Dial(ctx, hass.Options{
			URL:     cfg.URL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
			Logger:  log,
		})
		if err != nil {
			return nil, nil, err
		}
		return conn, conn.Close, nil
	}
	return m, nil
}

// Run connects to Home Assistant and serves commands until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	backend, closeFn, err := m.dial(ctx)
	if err != nil {
		return err
	}
	defer closeFn()

	node, err := m.node(backend)
	if err != nil {
		return err
	}
	return node.Run(ctx)
}

func (m *Module) node(backend Backend) (*gatewaynode.Node, error) {
	node, err := gatewaynode.New(m.log, m.client, gatewaynode.Config{
		NodeID:    m.config.NodeID,
		TopicBase: m.config.TopicBase,
		Name:      m.config.Name,
		Caps: map[string]any{
			"browse":   true,
			"search":   true,
			"resolve":  true,
			"services": true,
		},
	})
	if err != nil {
		return nil, err
	}
	register(node, backend)
	return node, nil
}

func register(node *gatewaynode.Node, backend Backend) {
	node.Handle(mp.CmdMediaBrowse, func(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.MediaBrowseBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		if body.Source || body.EntityID == "" {
			return backend.BrowseSource(ctx, body.MediaContentID)
		}
		return backend.BrowseMedia(ctx, body.EntityID, mp.Descriptor{ID: body.MediaContentID, Type: body.MediaContentType})
	})
	node.Handle(mp.CmdMediaSearch, func(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.MediaSearchBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		items, err := backend.SearchMedia(ctx, body)
		if err != nil {
			return nil, err
		}
		return mp.MediaSearchReply{Result: items}, nil
	})
	node.Handle(mp.CmdMediaResolve, func(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.MediaResolveBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		return backend.ResolveSource(ctx, body.MediaContentID)
	})
	node.Handle(mp.CmdMediaResolveMetadata, func(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.ResolveMetadataBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		return backend.ResolveMetadata(ctx, body)
	})
	node.Handle(mp.CmdServiceCall, func(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.ServiceCallBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		response, err := backend.CallService(ctx, body)
		if err != nil {
			return nil, err
		}
		return mp.ServiceCallReply{Response: response}, nil
	})
	node.Handle(mp.CmdStatesList, func(ctx context.Context, _ mp.CommandEnvelope) (any, error) {
		states, err := backend.Entities(ctx)
		if err != nil {
			return nil, err
		}
		return mp.StatesListReply{States: states}, nil
	})
	node.Handle(mp.CmdConfigEntriesList, func(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.ConfigEntriesBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		entries, err := backend.ConfigEntries(ctx, body.Domain)
		if err != nil {
			return nil, err
		}
		return mp.ConfigEntriesReply{Entries: entries}, nil
	})
}
