package metadata

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Request is one detected lookup.
type Request struct {
	// Key identifies the lookup in the provider's cache.
	Key     string
	ID      string
	Type    string
	Player  string
	Service string
	Field   string
}

// Provider knows how to recognize, fetch and merge one kind of metadata.
type Provider[T any] interface {
	Name() string
	Detect(sel mp.Selection, item *mp.MediaItem) (Request, bool)
	// Fetch reports found=false for an empty answer. Empty answers and
	// errors are cached as misses.
	Fetch(ctx context.Context, req Request) (result T, found bool, err error)
	Merge(state form.State, item *mp.MediaItem, result T) (form.State, bool)
}

// Resolver caches a provider's answers, misses included, for as long as the
// resolver lives and shares in-flight lookups between callers. An Enricher
// builds one per provider, so the cache is scoped to one picker session.
type Resolver[T any] struct {
	provider Provider[T]
	logger   *zap.Logger
	debug    bool

	mu    sync.Mutex
	cache map[string]entry[T]
	group singleflight.Group
}

type entry[T any] struct {
	value T
	found bool
}

// NewResolver wraps provider. debug enables per-step logging.
func NewResolver[T any](provider Provider[T], logger *zap.Logger, debug bool) *Resolver[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver[T]{
		provider: provider,
		logger:   logger.With(zap.String("provider", provider.Name())),
		debug:    debug,
		cache:    map[string]entry[T]{},
	}
}

// Name returns the provider name.
func (r *Resolver[T]) Name() string {
	return r.provider.Name()
}

// Resolve looks up metadata for sel and merges it into f if the form still
// shows sel. Failed and stale lookups are logged, not returned.
func (r *Resolver[T]) Resolve(ctx context.Context, f *form.Form, sel mp.Selection, item *mp.MediaItem) error {
	req, ok := r.provider.Detect(sel, item)
	if !ok {
		r.trace("skip metadata: not recognized", zap.String("id", sel.MediaContentID))
		return nil
	}

	r.mu.Lock()
	cached, hit := r.cache[req.Key]
	r.mu.Unlock()
	if hit {
		if !cached.found {
			r.trace("skip metadata: cached miss", zap.String("key", req.Key))
			return nil
		}
		r.trace("using cached metadata", zap.String("key", req.Key))
		return r.apply(f, sel, item, cached.value)
	}

	value, err, shared := r.group.Do(req.Key, func() (any, error) {
		r.trace("fetching metadata", zap.String("key", req.Key), zap.String("service", req.Service))
		result, found, err := r.provider.Fetch(ctx, req)
		if err != nil {
			// A cancelled caller says nothing about the id.
			if ctx.Err() == nil {
				r.store(req.Key, entry[T]{})
			}
			return nil, err
		}
		if !found {
			r.store(req.Key, entry[T]{})
			return nil, nil
		}
		r.store(req.Key, entry[T]{value: result, found: true})
		return result, nil
	})
	if err != nil {
		r.logger.Warn("metadata lookup failed", zap.String("key", req.Key), zap.Error(err))
		return nil
	}
	if shared {
		r.trace("joined pending metadata lookup", zap.String("key", req.Key))
	}
	result, ok := value.(T)
	if !ok {
		r.trace("metadata response was empty", zap.String("key", req.Key))
		return nil
	}
	return r.apply(f, sel, item, result)
}

func (r *Resolver[T]) apply(f *form.Form, sel mp.Selection, item *mp.MediaItem, result T) error {
	err := f.Apply(sel.MediaContentID, form.OriginMerge, func(state form.State) (form.State, bool) {
		return r.provider.Merge(state, item, result)
	})
	if media.IsKind(err, media.KindStale) {
		r.trace("skip metadata apply: selection changed", zap.String("id", sel.MediaContentID))
		return nil
	}
	return err
}

func (r *Resolver[T]) store(key string, e entry[T]) {
	r.mu.Lock()
	r.cache[key] = e
	r.mu.Unlock()
}

// Cached reports whether key has a cached answer or miss.
func (r *Resolver[T]) Cached(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cache[key]
	return ok
}

func (r *Resolver[T]) trace(msg string, fields ...zap.Field) {
	if r.debug {
		r.logger.Debug(msg, fields...)
	}
}
