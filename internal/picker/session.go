package picker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/internal/probe"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// State is the picker mode.
type State int

const (
	Closed State = iota
	Browsing
	Searching
)

func (s State) String() string {
	switch s {
	case Browsing:
		return "browsing"
	case Searching:
		return "searching"
	default:
		return "closed"
	}
}

const rootTitle = "Library"

// Crumb is one breadcrumb of the browse stack.
type Crumb struct {
	mp.Descriptor
	Title string `json:"title"`
}

// View is a snapshot of what the picker shows.
type View struct {
	State       State                 `json:"-"`
	Target      string                `json:"target"`
	Crumbs      []Crumb               `json:"breadcrumbs"`
	Items       []mp.MediaItem        `json:"items"`
	Results     []mp.MediaItem        `json:"results,omitempty"`
	Telemetry   *Telemetry            `json:"telemetry,omitempty"`
	Support     players.SearchSupport `json:"searchSupport,omitempty"`
	ContextKey  string                `json:"contextKey"`
	PendingKeys int                   `json:"pendingProbes"`
}

// Config wires a session to its collaborators. Remote, Players and Form are
// required.
type Config struct {
	Target      string
	Remote      ports.Remote
	Players     players.Directory
	Form        *form.Form
	Paths       ports.PathStore
	Notifier    ports.Notifier
	Preferences ports.Preferences
	Clock       ports.Clock
	Logger      *zap.Logger
	// OnChange is called after the visible list changes, including probe
	// driven refreshes from background goroutines.
	OnChange func(View)
	// ProbeOptions tune the probe scheduler.
	ProbeOptions []probe.Option
}

// Session is one open picker dialog. All caches it owns die with it.
type Session struct {
	cfg    Config
	logger *zap.Logger
	probes *probe.Scheduler
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	crumbs       []Crumb
	contextKey   string
	lastChildren []mp.MediaItem
	items        []mp.MediaItem

	support       players.SearchSupport
	unavailable   map[players.SearchSupport]string
	options       Options
	results       []mp.MediaItem
	telemetry     *Telemetry
	searchNoticed map[players.SearchSupport]bool

	entryGroup singleflight.Group
	entryID    *string
}

// Open starts a session for cfg.Target, restoring the previous location of
// the current selection when one is known.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Remote == nil || cfg.Form == nil {
		return nil, errors.New("picker: remote and form are required")
	}
	if strings.TrimSpace(cfg.Target) == "" {
		return nil, rejectOpen(cfg, "Select a media player first")
	}
	if !cfg.Players.SupportsBrowser(cfg.Target) {
		return nil, rejectOpen(cfg, "Media browser isn't supported for this Spotify media player. Enter a Spotify URI manually.")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:           cfg,
		logger:        logger.With(zap.String("target", cfg.Target)),
		ctx:           sessionCtx,
		cancel:        cancel,
		state:         Browsing,
		unavailable:   map[players.SearchSupport]string{},
		searchNoticed: map[players.SearchSupport]bool{},
	}
	opts := cfg.ProbeOptions
	if cfg.Clock != nil {
		opts = append(opts, probe.WithClock(cfg.Clock.Now))
	}
	s.probes = probe.NewScheduler(sessionCtx, s, s, s.logger, opts...)
	s.resetSearch(cfg.Players.SearchSupport(cfg.Target))

	if err := s.restore(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func rejectOpen(cfg Config, msg string) error {
	if cfg.Notifier != nil {
		cfg.Notifier.Notify(msg, true)
	}
	return media.Errorf(media.KindValidation, "%s", msg)
}

// restore opens the root and walks down the remembered path of the current
// selection. A broken path falls back to the root with a notice.
func (s *Session) restore(ctx context.Context) error {
	path, keys, fromDescriptor := s.initialPath()
	if err := s.navigate(ctx, mp.Descriptor{}, 0, true); err != nil {
		return err
	}
	if len(path) == 0 {
		return nil
	}

	var restoreErr error
	for _, d := range path {
		if d.ID == "" {
			continue
		}
		target := media.CanonicalID(d.ID)
		if last, ok := s.lastCrumb(); ok && last.ID != "" && media.CanonicalID(last.ID) == target {
			continue
		}
		if restoreErr = s.navigate(ctx, d, -1, false); restoreErr != nil {
			break
		}
	}
	if restoreErr != nil {
		s.logger.Warn("restore media path failed", zap.Error(restoreErr))
		if s.cfg.Paths != nil {
			if err := s.cfg.Paths.Clear(keys); err != nil {
				s.logger.Warn("clear media path", zap.Error(err))
			}
		}
		if err := s.navigate(ctx, mp.Descriptor{}, 0, true); err != nil {
			return restoreErr
		}
		s.notify("Showing library root; previous media location unavailable", true)
		return nil
	}
	if fromDescriptor && s.cfg.Paths != nil {
		if err := s.cfg.Paths.Put(keys, path); err != nil {
			s.logger.Warn("remember media path", zap.Error(err))
		}
	}
	return nil
}

func (s *Session) initialPath() (path []mp.Descriptor, keys []string, fromDescriptor bool) {
	sel := s.cfg.Form.State().Selection
	d := media.Normalize(sel)
	if d.IsZero() {
		return nil, nil, false
	}
	keys = media.SelectionKeys(d)
	if s.cfg.Paths != nil {
		for _, key := range keys {
			stored, ok, err := s.cfg.Paths.Get(key)
			if err != nil {
				s.logger.Warn("read media path", zap.String("key", key), zap.Error(err))
				continue
			}
			if ok && len(stored) > 0 {
				return stored, keys, false
			}
		}
	}
	if persisted := media.SanitizePath(sel.MediaBrowserPath); len(persisted) > 0 {
		return persisted, keys, true
	}
	return nil, keys, false
}

// navigate browses d and updates the visible list and breadcrumbs. index -1
// pushes a crumb; otherwise the stack is cut to index and that crumb
// replaced. reset replaces the stack with a single root crumb.
func (s *Session) navigate(ctx context.Context, d mp.Descriptor, index int, reset bool) error {
	d = media.Normalize(d)
	node, err := s.Browse(ctx, d)
	if err != nil {
		return err
	}

	resolvedID := node.MediaContentID
	if resolvedID == "" {
		resolvedID = d.ID
	}
	resolvedType := node.MediaContentType
	if resolvedType == "" {
		resolvedType = d.Type
	}
	if resolvedID == "" {
		resolvedType = ""
	}
	title := node.Title
	if title == "" && resolvedID != "" {
		title = media.FormatName(resolvedID[strings.LastIndex(resolvedID, "/")+1:])
	}
	if title == "" {
		title = rootTitle
	}
	resolved := mp.Descriptor{ID: resolvedID, Type: resolvedType}

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return media.Errorf(media.KindStale, "picker closed")
	}
	s.contextKey = media.ContextKey(s.cfg.Target, resolved)
	s.lastChildren = node.Children
	s.items = s.probes.Filter(node.Children, s.contextKey)
	switch {
	case reset || len(s.crumbs) == 0:
		rootCrumbTitle := node.Title
		if rootCrumbTitle == "" {
			rootCrumbTitle = rootTitle
		}
		s.crumbs = []Crumb{{Descriptor: resolved, Title: rootCrumbTitle}}
	case index >= 0:
		if index >= len(s.crumbs) {
			index = len(s.crumbs) - 1
		}
		next := append([]Crumb(nil), s.crumbs[:index+1]...)
		next[index] = Crumb{Descriptor: resolved, Title: title}
		s.crumbs = next
	default:
		s.crumbs = append(s.crumbs, Crumb{Descriptor: resolved, Title: title})
	}
	view := s.viewLocked()
	s.mu.Unlock()

	s.emit(view)
	return nil
}

// Browse issues the remote browse call for the session's target, falling
// back to the media_source tree when the player cannot browse an id itself.
func (s *Session) Browse(ctx context.Context, d mp.Descriptor) (mp.MediaItem, error) {
	d = media.Normalize(d)
	debug := s.debug(d.ID)
	if d.ID != "" && d.Type == "" {
		direct := d.ID
		if !strings.HasPrefix(direct, "media-source://") {
			direct = media.ConvertProviderURI(direct)
		}
		if direct != "" {
			if debug {
				s.logger.Debug("browse via media_source, no type", zap.String("id", direct))
			}
			node, err := s.cfg.Remote.BrowseSource(ctx, direct)
			return node, media.Wrap(media.KindTransport, "browse media source", err)
		}
	}

	node, err := s.cfg.Remote.BrowseMedia(ctx, s.cfg.Target, d)
	if err == nil {
		if debug {
			s.logger.Debug("browse response", zap.String("id", d.ID), zap.Int("children", len(node.Children)))
		}
		return node, nil
	}
	if debug {
		s.logger.Debug("media_player browse failed", zap.String("id", d.ID), zap.Error(err))
	}
	if strings.HasPrefix(d.ID, "media-source://") {
		s.logger.Warn("media_player browse failed, trying media_source", zap.String("id", d.ID), zap.Error(err))
		node, srcErr := s.cfg.Remote.BrowseSource(ctx, d.ID)
		return node, media.Wrap(media.KindTransport, "browse media source", srcErr)
	}
	if converted := media.ConvertProviderURI(d.ID); converted != "" {
		node, srcErr := s.cfg.Remote.BrowseSource(ctx, converted)
		if srcErr == nil {
			return node, nil
		}
		s.logger.Warn("provider uri media_source fallback failed", zap.String("id", converted), zap.Error(srcErr))
	}
	return mp.MediaItem{}, media.Wrap(media.KindTransport, "browse media", err)
}

func (s *Session) debug(id string) bool {
	if s.cfg.Preferences == nil {
		return false
	}
	return strings.HasPrefix(id, "media-source://jellyfin/") && s.cfg.Preferences.Debug("jellyfin")
}

// Live reports whether contextKey is the list on screen.
func (s *Session) Live(contextKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state != Closed && contextKey != "" && contextKey == s.contextKey
}

// Refresh re-filters the visible list if contextKey is still on screen.
func (s *Session) Refresh(contextKey string) {
	s.mu.Lock()
	if s.state == Closed || contextKey == "" || contextKey != s.contextKey {
		s.mu.Unlock()
		return
	}
	s.items = s.probes.Filter(s.lastChildren, contextKey)
	view := s.viewLocked()
	s.mu.Unlock()

	s.emit(view)
}

// Navigate opens d below the current crumb.
func (s *Session) Navigate(ctx context.Context, d mp.Descriptor) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	if media.Normalize(d).IsZero() {
		return media.Errorf(media.KindValidation, "Unable to open this media source")
	}
	return s.navigate(ctx, d, -1, false)
}

// Breadcrumb jumps to crumb index, cutting the stack there.
func (s *Session) Breadcrumb(ctx context.Context, index int) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return media.Errorf(media.KindValidation, "picker is closed")
	}
	if index < 0 || index >= len(s.crumbs) {
		s.mu.Unlock()
		return media.Errorf(media.KindValidation, "breadcrumb %d out of range", index)
	}
	if index == len(s.crumbs)-1 {
		s.mu.Unlock()
		return nil
	}
	target := s.crumbs[index]
	s.mu.Unlock()

	return s.goTo(ctx, index, target)
}

// Back returns to the parent crumb.
func (s *Session) Back(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return media.Errorf(media.KindValidation, "picker is closed")
	}
	if len(s.crumbs) <= 1 {
		s.mu.Unlock()
		return nil
	}
	index := len(s.crumbs) - 2
	target := s.crumbs[index]
	s.mu.Unlock()

	return s.goTo(ctx, index, target)
}

func (s *Session) goTo(ctx context.Context, index int, target Crumb) error {
	if index == 0 || target.ID == "" {
		return s.navigate(ctx, mp.Descriptor{}, index, true)
	}
	return s.navigate(ctx, target.Descriptor, index, false)
}

// Activate opens expandable items and selects playable ones.
func (s *Session) Activate(ctx context.Context, item mp.MediaItem) error {
	if err := s.requireOpen(); err != nil {
		return err
	}
	switch {
	case item.CanExpand:
		d := media.Normalize(item)
		if d.IsZero() {
			return media.Errorf(media.KindValidation, "Unable to open this media source")
		}
		fromSearch := s.State() == Searching
		if err := s.navigate(ctx, d, -1, false); err != nil {
			return err
		}
		if fromSearch {
			s.mu.Lock()
			if s.state == Searching {
				s.state = Browsing
				s.results = nil
			}
			s.mu.Unlock()
		}
		return nil
	case item.CanPlay:
		_, err := s.Select(ctx, item)
		return err
	default:
		return nil
	}
}

// State returns the current mode.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a snapshot of the picker.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	var pending int
	if s.probes != nil {
		pending = s.probes.Pending()
	}
	view := View{
		State:       s.state,
		Target:      s.cfg.Target,
		Crumbs:      append([]Crumb(nil), s.crumbs...),
		Items:       append([]mp.MediaItem(nil), s.items...),
		Results:     append([]mp.MediaItem(nil), s.results...),
		Support:     s.support,
		ContextKey:  s.contextKey,
		PendingKeys: pending,
	}
	if s.telemetry != nil {
		t := *s.telemetry
		view.Telemetry = &t
	}
	return view
}

// Settle waits for probes in flight, so the visible list is final.
func (s *Session) Settle(ctx context.Context) error {
	return s.probes.Wait(ctx)
}

// Close discards every cache owned by the session and cancels its probes.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return
	}
	s.state = Closed
	probes := s.probes
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if probes != nil {
		probes.Close()
	}

	s.mu.Lock()
	s.crumbs = nil
	s.items = nil
	s.lastChildren = nil
	s.results = nil
	s.contextKey = ""
	s.telemetry = nil
	s.mu.Unlock()
}

func (s *Session) requireOpen() error {
	if s.State() == Closed {
		return media.Errorf(media.KindValidation, "picker is closed")
	}
	return nil
}

func (s *Session) lastCrumb() (Crumb, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.crumbs) == 0 {
		return Crumb{}, false
	}
	return s.crumbs[len(s.crumbs)-1], true
}

func (s *Session) emit(view View) {
	if s.cfg.OnChange != nil {
		s.cfg.OnChange(view)
	}
}

func (s *Session) notify(message string, isError bool) {
	if s.cfg.Notifier != nil {
		s.cfg.Notifier.Notify(message, isError)
	}
}

func (s *Session) now() time.Time {
	if s.cfg.Clock != nil {
		return s.cfg.Clock.Now()
	}
	return time.Now()
}
