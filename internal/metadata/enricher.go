package metadata

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

type resolver interface {
	Name() string
	Resolve(ctx context.Context, f *form.Form, sel mp.Selection, item *mp.MediaItem) error
}

// Config wires an Enricher.
type Config struct {
	Form        *form.Form
	Remote      ports.Remote
	Players     players.Directory
	Player      string
	Preferences ports.Preferences
	Logger      *zap.Logger
}

// Enricher fans a new selection out to every metadata provider and merges
// what they find back into the form.
type Enricher struct {
	form      *form.Form
	logger    *zap.Logger
	resolvers []resolver

	mu       sync.Mutex
	ctx      context.Context
	inflight sync.WaitGroup
}

// NewEnricher builds the spotify, plex, jellyfin and dlna resolvers.
func NewEnricher(cfg Config) *Enricher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	debug := func(name string) bool {
		return cfg.Preferences != nil && cfg.Preferences.Debug(name)
	}
	spotify := SpotifyPlus{Remote: cfg.Remote, Players: cfg.Players, Player: cfg.Player}
	plex, jellyfin, dlna := Plex(cfg.Remote), Jellyfin(cfg.Remote), DLNA(cfg.Remote)
	return &Enricher{
		form:   cfg.Form,
		logger: logger,
		resolvers: []resolver{
			NewResolver[*SpotifyResult](spotify, logger, debug(spotify.Name())),
			NewResolver[*mp.Metadata](plex, logger, debug(plex.Name())),
			NewResolver[*mp.Metadata](jellyfin, logger, debug(jellyfin.Name())),
			NewResolver[*mp.Metadata](dlna, logger, debug(dlna.Name())),
		},
	}
}

// Attach subscribes to the form. Every user change with a selection starts
// a background enrichment bound to ctx; merges written back by resolvers do
// not trigger another round.
func (e *Enricher) Attach(ctx context.Context) {
	e.mu.Lock()
	e.ctx = ctx
	e.mu.Unlock()
	e.form.Subscribe(func(change form.Change) {
		if change.Origin != form.OriginUser {
			return
		}
		if strings.TrimSpace(change.Selection.MediaContentID) == "" {
			return
		}
		e.mu.Lock()
		ctx := e.ctx
		e.inflight.Add(1)
		e.mu.Unlock()
		sel := change.Selection.Clone()
		item := change.Item
		go func() {
			defer e.inflight.Done()
			if err := e.Enrich(ctx, sel, item); err != nil {
				e.logger.Warn("enrich selection", zap.String("id", sel.MediaContentID), zap.Error(err))
			}
		}()
	})
}

// Enrich runs every resolver for sel concurrently and waits for them.
func (e *Enricher) Enrich(ctx context.Context, sel mp.Selection, item *mp.MediaItem) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, r := range e.resolvers {
		r := r
		g.Go(func() error {
			return r.Resolve(gctx, e.form, sel, item)
		})
	}
	return g.Wait()
}

// Wait blocks until background enrichments started by Attach finish or ctx
// ends.
func (e *Enricher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
