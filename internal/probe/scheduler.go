package probe

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const (
	// DefaultMaxDepth bounds probe recursion; a child is descended into only
	// while depth+1 stays below it.
	DefaultMaxDepth = 3
	// DefaultMaxBranches bounds the children examined per level.
	DefaultMaxBranches = 12
)

// Browser issues the remote browse call for the session's target player.
type Browser interface {
	Browse(ctx context.Context, d mp.Descriptor) (mp.MediaItem, error)
}

// Notifier is told about completed probes. Live reports whether a context is
// still on screen; Refresh re-renders it.
type Notifier interface {
	Live(contextKey string) bool
	Refresh(contextKey string)
}

// Entry is a cached probe verdict. Entries are never rewritten.
type Entry struct {
	Allow     bool
	Empty     bool
	Error     bool
	CheckedAt time.Time
}

type pendingProbe struct {
	contexts map[string]struct{}
}

// Result is the outcome of resolving one descriptor.
type Result struct {
	HasAudio bool
	Empty    bool
}

// Scheduler resolves ambiguous containers lazily and caches the verdicts for
// one picker session.
type Scheduler struct {
	browser     Browser
	notifier    Notifier
	logger      *zap.Logger
	now         func() time.Time
	maxDepth    int
	maxBranches int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	cache   map[string]Entry
	pending map[string]*pendingProbe
	closed  bool
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithLimits overrides the recursion depth and branch ceilings.
func WithLimits(maxDepth, maxBranches int) Option {
	return func(s *Scheduler) {
		if maxDepth > 0 {
			s.maxDepth = maxDepth
		}
		if maxBranches > 0 {
			s.maxBranches = maxBranches
		}
	}
}

// WithClock overrides the timestamp source for cache entries.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler builds a scheduler whose probes run under parent.
func NewScheduler(parent context.Context, browser Browser, notifier Notifier, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Scheduler{
		browser:     browser,
		notifier:    notifier,
		logger:      logger,
		now:         time.Now,
		maxDepth:    DefaultMaxDepth,
		maxBranches: DefaultMaxBranches,
		ctx:         ctx,
		cancel:      cancel,
		cache:       map[string]Entry{},
		pending:     map[string]*pendingProbe{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Decide returns the verdict for item as seen from contextKey. Ambiguous
// items answer from the cache when possible; otherwise contextKey is attached
// to any in-flight probe and Probe is returned.
func (s *Scheduler) Decide(item mp.MediaItem, contextKey string) media.Decision {
	verdict := media.Classify(item)
	if verdict != media.Probe {
		return verdict
	}
	key := media.ItemKey(item)
	if key == "" {
		return media.Exclude
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.cache[key]; ok {
		if entry.Allow {
			return media.Include
		}
		return media.Exclude
	}
	if pending, ok := s.pending[key]; ok && contextKey != "" {
		pending.contexts[contextKey] = struct{}{}
	}
	return media.Probe
}

// Filter returns the visible subset of items and schedules probes for the
// undecided ones.
func (s *Scheduler) Filter(items []mp.MediaItem, contextKey string) []mp.MediaItem {
	visible := make([]mp.MediaItem, 0, len(items))
	var undecided []mp.MediaItem
	for _, item := range items {
		media.NormalizeCapabilities(&item)
		switch s.Decide(item, contextKey) {
		case media.Include:
			visible = append(visible, item)
		case media.Probe:
			undecided = append(undecided, item)
		}
	}
	if len(undecided) > 0 {
		s.Schedule(undecided, contextKey)
	}
	return visible
}

// Schedule starts one probe per distinct uncached key. Keys already in
// flight gain contextKey as an interested context instead.
func (s *Scheduler) Schedule(items []mp.MediaItem, contextKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	seen := map[string]struct{}{}
	for _, item := range items {
		key := media.ItemKey(item)
		if key == "" {
			continue
		}
		if _, ok := s.cache[key]; ok {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if existing, ok := s.pending[key]; ok {
			if contextKey != "" {
				existing.contexts[contextKey] = struct{}{}
			}
			continue
		}
		pending := &pendingProbe{contexts: map[string]struct{}{}}
		if contextKey != "" {
			pending.contexts[contextKey] = struct{}{}
		}
		s.pending[key] = pending
		d := mp.Descriptor{ID: item.MediaContentID, Type: item.MediaContentType}
		s.wg.Add(1)
		go s.run(key, d)
	}
}

func (s *Scheduler) run(key string, d mp.Descriptor) {
	defer s.wg.Done()

	s.logger.Debug("probe start", zap.String("key", key))
	result, err := s.resolve(s.ctx, d, 0, map[string]struct{}{})
	entry := Entry{Allow: result.HasAudio, Empty: result.Empty, CheckedAt: s.now()}
	if err != nil {
		s.logger.Warn("media probe failed", zap.String("key", key), zap.Error(err))
		entry = Entry{Error: true, CheckedAt: s.now()}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.cache[key] = entry
	contexts := make([]string, 0)
	if pending, ok := s.pending[key]; ok {
		for ctxKey := range pending.contexts {
			contexts = append(contexts, ctxKey)
		}
	}
	delete(s.pending, key)
	s.mu.Unlock()

	s.logger.Debug("probe done", zap.String("key", key), zap.Bool("allow", entry.Allow), zap.Bool("error", entry.Error))
	if s.notifier == nil {
		return
	}
	for _, ctxKey := range contexts {
		if s.notifier.Live(ctxKey) {
			s.notifier.Refresh(ctxKey)
		}
	}
}

// resolve browses d depth-first until it finds audio or runs out of budget.
func (s *Scheduler) resolve(ctx context.Context, d mp.Descriptor, depth int, visited map[string]struct{}) (Result, error) {
	d = media.Normalize(d)
	if d.IsZero() {
		return Result{Empty: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	node, err := s.browser.Browse(ctx, d)
	if err != nil {
		return Result{}, err
	}

	sawChild := false
	processed := 0
	for _, child := range node.Children {
		sawChild = true
		if media.IsBlocked(child) {
			continue
		}
		if child.CanPlay && media.LooksAudio(child) {
			return Result{HasAudio: true}, nil
		}
		if child.CanExpand {
			if media.LooksAudioContainer(child) {
				return Result{HasAudio: true}, nil
			}
			if media.LooksEmpty(child) {
				continue
			}
			if depth+1 < s.maxDepth {
				key := media.ItemKey(child)
				if _, ok := visited[key]; ok && key != "" {
					continue
				}
				if key != "" {
					visited[key] = struct{}{}
				}
				nested, err := s.resolve(ctx, mp.Descriptor{ID: child.MediaContentID, Type: child.MediaContentType}, depth+1, visited)
				delete(visited, key)
				if err != nil {
					return Result{}, err
				}
				if nested.HasAudio {
					return Result{HasAudio: true}, nil
				}
			}
		}
		processed++
		if processed >= s.maxBranches {
			break
		}
	}
	return Result{Empty: !sawChild}, nil
}

// Lookup returns the cached verdict for d. An empty type matches any cached
// type for the same id.
func (s *Scheduler) Lookup(d mp.Descriptor) (Entry, bool) {
	d = media.Normalize(d)
	key := media.Key(d)
	if key == "" {
		return Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, ok := s.cache[key]; ok {
		return entry, true
	}
	if d.Type != "" {
		return Entry{}, false
	}
	suffix := key
	for cached, entry := range s.cache {
		if strings.HasSuffix(cached, suffix) && strings.Index(cached, "|") == len(cached)-len(suffix) {
			return entry, true
		}
	}
	return Entry{}, false
}

// Pending reports the number of probes in flight.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Wait blocks until every probe in flight has settled or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels probes in flight and discards every cached verdict.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.cache = map[string]Entry{}
	s.pending = map[string]*pendingProbe{}
	s.mu.Unlock()
}
