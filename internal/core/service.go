package core

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/internal/metadata"
	"github.com/mikey-austin/media_picker/internal/picker"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Service orchestrates mpick CLI use cases. Every call runs one picker
// session and closes it before returning.
type Service struct {
	Remote   ports.Remote
	States   ports.StateStore
	Broker   ports.Broker
	Resolver Resolver
	Paths    ports.PathStore
	Notifier ports.Notifier
	Clock    ports.Clock
	Config   Config
	Logger   *zap.Logger
}

// BrowseRequest opens the picker for a player, optionally restoring the
// location of Current and then navigating into Target.
type BrowseRequest struct {
	Player  string
	Target  mp.Descriptor
	Current *mp.Selection
}

// SearchRequest runs one search. Zero option fields keep the defaults.
type SearchRequest struct {
	Player  string
	Query   string
	Options picker.Options
	Current *mp.Selection
}

// PickRequest selects one item. With Query the Index-th search hit is
// picked; otherwise the item with ID is looked up under Parent. Players
// without a media browser accept a Spotify URI in ID.
type PickRequest struct {
	Player  string
	Parent  mp.Descriptor
	ID      string
	Query   string
	Index   int
	Options picker.Options
	Current *mp.Selection
}

// ListNodes returns gateway presence records.
func (s Service) ListNodes(ctx context.Context) (NodesResult, error) {
	if s.Broker == nil {
		return NodesResult{}, &CLIError{Code: ExitUsage, Msg: "nodes require the mqtt backend"}
	}
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, WrapError(ExitRuntime, "list nodes", err)
	}
	return NodesResult{Nodes: nodes}, nil
}

// Players lists media players with their picker capabilities.
func (s Service) Players(ctx context.Context) (PlayersResult, error) {
	dir, err := s.directory(ctx)
	if err != nil {
		return PlayersResult{}, err
	}
	var out []PlayerInfo
	for _, state := range dir.Players() {
		id := state.EntityID
		out = append(out, PlayerInfo{
			EntityID: id,
			Name:     dir.Name(id),
			State:    state.State,
			Platform: dir.Platform(id),
			Family:   dir.Family(id),
			Browse:   dir.SupportsBrowser(id),
			Search:   dir.SearchSupport(id),
		})
	}
	return PlayersResult{Players: out}, nil
}

// Browse returns the settled view of one location.
func (s Service) Browse(ctx context.Context, req BrowseRequest) (BrowseResult, error) {
	run, err := s.open(ctx, req.Player, req.Current)
	if err != nil {
		return BrowseResult{}, err
	}
	defer run.session.Close()

	if !req.Target.IsZero() {
		if err := run.session.Navigate(ctx, req.Target); err != nil {
			return BrowseResult{}, FromError("browse", err)
		}
	}
	if err := run.session.Settle(ctx); err != nil {
		return BrowseResult{}, WrapError(ExitRuntime, "wait for probes", err)
	}
	return BrowseResult{View: run.session.View()}, nil
}

// Search runs a keyword search on a player.
func (s Service) Search(ctx context.Context, req SearchRequest) (SearchResult, error) {
	run, err := s.open(ctx, req.Player, req.Current)
	if err != nil {
		return SearchResult{}, err
	}
	defer run.session.Close()

	results, opts, telemetry, err := s.search(ctx, run.session, req.Query, req.Options)
	out := SearchResult{Query: req.Query, Options: opts, Results: results, Telemetry: telemetry}
	if err != nil {
		return out, FromError("search", err)
	}
	return out, nil
}

// Pick selects an item, writes it to the form and waits for metadata
// enrichment.
func (s Service) Pick(ctx context.Context, req PickRequest) (PickResult, error) {
	dir, err := s.directory(ctx)
	if err != nil {
		return PickResult{}, err
	}
	target, err := s.Resolver.ResolvePlayer(dir, req.Player)
	if err != nil {
		return PickResult{}, err
	}
	f := s.seedForm(req.Current)
	enricher := metadata.NewEnricher(metadata.Config{
		Form:        f,
		Remote:      s.Remote,
		Players:     dir,
		Player:      target,
		Preferences: Prefs(s.Config.Debug),
		Logger:      s.logger(),
	})
	enricher.Attach(ctx)

	if !dir.SupportsBrowser(target) {
		if err := s.pickManual(f, req.ID); err != nil {
			return PickResult{}, err
		}
	} else {
		session, err := s.openSession(ctx, target, dir, f)
		if err != nil {
			return PickResult{}, err
		}
		defer session.Close()
		item, err := s.findItem(ctx, session, req)
		if err != nil {
			return PickResult{}, err
		}
		if _, err := session.Select(ctx, item); err != nil {
			return PickResult{}, FromError("select", err)
		}
	}

	if err := enricher.Wait(ctx); err != nil {
		return PickResult{}, WrapError(ExitRuntime, "wait for metadata", err)
	}
	state := f.State()
	return PickResult{Selection: state.Selection, Title: state.Title}, nil
}

// Resolve turns a media_source id into a playable URL for previews.
func (s Service) Resolve(ctx context.Context, id string) (ResolveResult, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return ResolveResult{}, &CLIError{Code: ExitUsage, Msg: "media id required"}
	}
	source := id
	if !strings.HasPrefix(source, "media-source://") {
		source = media.CanonicalID(id)
	}
	reply, err := s.Remote.ResolveSource(ctx, source)
	if err != nil {
		return ResolveResult{}, FromError("resolve media", err)
	}
	return ResolveResult{ID: source, Reply: reply}, nil
}

// PathShow returns the remembered breadcrumb path of a selection.
func (s Service) PathShow(d mp.Descriptor) (PathResult, error) {
	keys := media.SelectionKeys(media.Normalize(d))
	if len(keys) == 0 {
		return PathResult{}, &CLIError{Code: ExitUsage, Msg: "media id required"}
	}
	if s.Paths == nil {
		return PathResult{Key: keys[0]}, nil
	}
	for _, key := range keys {
		path, ok, err := s.Paths.Get(key)
		if err != nil {
			return PathResult{}, WrapError(ExitRuntime, "read path", err)
		}
		if ok {
			return PathResult{Key: key, Found: true, Path: path}, nil
		}
	}
	return PathResult{Key: keys[0]}, nil
}

// PathForget drops the remembered path of a selection.
func (s Service) PathForget(d mp.Descriptor) error {
	keys := media.SelectionKeys(media.Normalize(d))
	if len(keys) == 0 {
		return &CLIError{Code: ExitUsage, Msg: "media id required"}
	}
	if s.Paths == nil {
		return nil
	}
	if err := s.Paths.Clear(keys); err != nil {
		return WrapError(ExitRuntime, "clear path", err)
	}
	return nil
}

type pickerRun struct {
	session *picker.Session
	form    *form.Form
	dir     players.Directory
	target  string
}

func (s Service) open(ctx context.Context, selector string, current *mp.Selection) (pickerRun, error) {
	dir, err := s.directory(ctx)
	if err != nil {
		return pickerRun{}, err
	}
	target, err := s.Resolver.ResolvePlayer(dir, selector)
	if err != nil {
		return pickerRun{}, err
	}
	f := s.seedForm(current)
	session, err := s.openSession(ctx, target, dir, f)
	if err != nil {
		return pickerRun{}, err
	}
	return pickerRun{session: session, form: f, dir: dir, target: target}, nil
}

func (s Service) openSession(ctx context.Context, target string, dir players.Directory, f *form.Form) (*picker.Session, error) {
	session, err := picker.Open(ctx, picker.Config{
		Target:      target,
		Remote:      s.Remote,
		Players:     dir,
		Form:        f,
		Paths:       s.Paths,
		Notifier:    s.Notifier,
		Preferences: Prefs(s.Config.Debug),
		Clock:       s.Clock,
		Logger:      s.logger(),
	})
	if err != nil {
		return nil, FromError("open picker", err)
	}
	return session, nil
}

func (s Service) directory(ctx context.Context) (players.Directory, error) {
	if s.States == nil {
		return players.Directory{}, &CLIError{Code: ExitRuntime, Msg: "no state store configured"}
	}
	states, err := s.States.Entities(ctx)
	if err != nil {
		return players.Directory{}, FromError("list entities", err)
	}
	return players.NewDirectory(states), nil
}

func (s Service) seedForm(current *mp.Selection) *form.Form {
	f := form.New()
	if current != nil && strings.TrimSpace(current.MediaContentID) != "" {
		f.Update(form.State{Selection: current.Clone(), Title: current.Title}, form.OriginUser, nil)
	}
	return f
}

// search applies config defaults and request overrides before searching.
func (s Service) search(ctx context.Context, session *picker.Session, query string, override picker.Options) ([]mp.MediaItem, picker.Options, *picker.Telemetry, error) {
	if err := session.EnterSearch(); err != nil {
		return nil, session.Options(), nil, err
	}
	opts := session.Options()
	if s.Config.Search.MediaType != "" {
		opts.MediaType = s.Config.Search.MediaType
	}
	if s.Config.Search.Limit > 0 {
		opts.Limit = s.Config.Search.Limit
	}
	opts.LibraryOnly = opts.LibraryOnly || s.Config.Search.LibraryOnly
	if override.MediaType != "" {
		opts.MediaType = override.MediaType
	}
	if override.Limit > 0 {
		opts.Limit = override.Limit
	}
	opts.LibraryOnly = opts.LibraryOnly || override.LibraryOnly
	if len(override.FilterClasses) > 0 {
		opts.FilterClasses = override.FilterClasses
	}
	session.SetOptions(opts)

	results, err := session.Search(ctx, query)
	var telemetry *picker.Telemetry
	if t, ok := session.Telemetry(); ok {
		telemetry = &t
	}
	return results, session.Options(), telemetry, err
}

func (s Service) findItem(ctx context.Context, session *picker.Session, req PickRequest) (mp.MediaItem, error) {
	if strings.TrimSpace(req.Query) != "" {
		results, _, _, err := s.search(ctx, session, req.Query, req.Options)
		if err != nil {
			return mp.MediaItem{}, FromError("search", err)
		}
		if req.Index < 0 || req.Index >= len(results) {
			return mp.MediaItem{}, &CLIError{Code: ExitNotFound, Msg: "no search result at that index"}
		}
		return results[req.Index], nil
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		return mp.MediaItem{}, &CLIError{Code: ExitUsage, Msg: "media id or search query required"}
	}
	if !req.Parent.IsZero() {
		if err := session.Navigate(ctx, req.Parent); err != nil {
			return mp.MediaItem{}, FromError("browse", err)
		}
	}
	if err := session.Settle(ctx); err != nil {
		return mp.MediaItem{}, WrapError(ExitRuntime, "wait for probes", err)
	}
	want := media.CanonicalID(id)
	var candidates []string
	for _, item := range session.View().Items {
		if media.CanonicalID(item.MediaContentID) == want {
			return item, nil
		}
		candidates = append(candidates, item.MediaContentID)
	}
	return mp.MediaItem{}, notFound(id, candidates)
}

// pickManual writes a Spotify URI typed by hand for players that cannot
// browse.
func (s Service) pickManual(f *form.Form, id string) error {
	ref, ok := media.ParseSpotify(id, "")
	if !ok {
		return &CLIError{Code: ExitUsage, Msg: "Media browser isn't supported for this Spotify media player. Enter a Spotify URI manually."}
	}
	uri := ref.URI
	if uri == "" {
		uri = strings.TrimSpace(id)
	}
	item := mp.MediaItem{
		CanPlay:          true,
		MediaContentID:   uri,
		MediaContentType: ref.Type,
		Provider:         "spotify",
	}
	sel := picker.SelectionFor(item)
	f.Update(form.State{Selection: sel, Title: media.BuildTitle(sel, &item)}, form.OriginUser, &item)
	return nil
}

func (s Service) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
