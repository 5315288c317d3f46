package picker

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const kitchen = "media_player.kitchen"

type fakeRemote struct {
	mu          sync.Mutex
	nodes       map[string]mp.MediaItem
	sources     map[string]mp.MediaItem
	browseErr   map[string]error
	browsed     []string
	sourced     []string
	searchItems []mp.MediaItem
	searchErr   error
	searches    []mp.MediaSearchBody
	serviceResp json.RawMessage
	serviceErr  error
	services    []mp.ServiceCallBody
	entries     []mp.ConfigEntry
	entryErr    error
	entryCalls  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nodes:     map[string]mp.MediaItem{},
		sources:   map[string]mp.MediaItem{},
		browseErr: map[string]error{},
	}
}

func (f *fakeRemote) BrowseMedia(ctx context.Context, entityID string, d mp.Descriptor) (mp.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.browsed = append(f.browsed, d.ID)
	if err := f.browseErr[d.ID]; err != nil {
		return mp.MediaItem{}, err
	}
	node, ok := f.nodes[d.ID]
	if !ok {
		return mp.MediaItem{}, &mp.ReplyError{Code: mp.CodeNotFound, Message: d.ID}
	}
	return node, nil
}

func (f *fakeRemote) BrowseSource(ctx context.Context, id string) (mp.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sourced = append(f.sourced, id)
	node, ok := f.sources[id]
	if !ok {
		return mp.MediaItem{}, &mp.ReplyError{Code: mp.CodeNotFound, Message: id}
	}
	return node, nil
}

func (f *fakeRemote) SearchMedia(ctx context.Context, body mp.MediaSearchBody) ([]mp.MediaItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, body)
	return f.searchItems, f.searchErr
}

func (f *fakeRemote) ResolveSource(ctx context.Context, id string) (mp.MediaResolveReply, error) {
	return mp.MediaResolveReply{}, errors.New("not implemented")
}

func (f *fakeRemote) ResolveMetadata(ctx context.Context, body mp.ResolveMetadataBody) (*mp.Metadata, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) CallService(ctx context.Context, body mp.ServiceCallBody) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = append(f.services, body)
	return f.serviceResp, f.serviceErr
}

func (f *fakeRemote) ConfigEntries(ctx context.Context, domain string) ([]mp.ConfigEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entryCalls++
	if f.entryErr != nil {
		return nil, f.entryErr
	}
	return f.entries, nil
}

func (f *fakeRemote) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searches)
}

type memoryPaths struct {
	mu      sync.Mutex
	paths   map[string][]mp.Descriptor
	cleared []string
}

func newMemoryPaths() *memoryPaths {
	return &memoryPaths{paths: map[string][]mp.Descriptor{}}
}

func (m *memoryPaths) Get(key string) ([]mp.Descriptor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	path, ok := m.paths[key]
	return path, ok, nil
}

func (m *memoryPaths) Put(keys []string, path []mp.Descriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.paths[key] = append([]mp.Descriptor(nil), path...)
	}
	return nil
}

func (m *memoryPaths) Clear(keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.paths, key)
		m.cleared = append(m.cleared, key)
	}
	return nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) Notify(message string, isError bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *recordingNotifier) has(message string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, m := range n.messages {
		if m == message {
			return true
		}
	}
	return false
}

func track(id, title string) mp.MediaItem {
	return mp.MediaItem{CanPlay: true, MediaClass: "music", MediaContentType: "music", MediaContentID: id, Title: title}
}

func folder(id, title string) mp.MediaItem {
	return mp.MediaItem{CanExpand: true, MediaClass: "directory", MediaContentType: "directory", MediaContentID: id, Title: title}
}

func libraryRemote() *fakeRemote {
	remote := newFakeRemote()
	remote.nodes[""] = mp.MediaItem{Title: "Media", Children: []mp.MediaItem{
		track("root-song", "Root Song"),
		{CanPlay: true, MediaClass: "image", MediaContentID: "photo-1", Title: "Photo"},
		folder("library", "Library"),
	}}
	remote.nodes["library"] = mp.MediaItem{MediaContentID: "library", MediaContentType: "directory", Title: "Library", Children: []mp.MediaItem{
		track("library/morning", "Morning Song"),
		track("library/evening", "Evening Tune"),
		folder("library/deep", "Deep"),
	}}
	remote.nodes["library/deep"] = mp.MediaItem{MediaContentID: "library/deep", MediaContentType: "directory", Title: "Deep", Children: []mp.MediaItem{
		track("library/deep/morning-two", "Morning Two"),
	}}
	return remote
}

type harness struct {
	remote   *fakeRemote
	paths    *memoryPaths
	notifier *recordingNotifier
	form     *form.Form
	states   []mp.EntityState
}

func newHarness(remote *fakeRemote) *harness {
	return &harness{
		remote:   remote,
		paths:    newMemoryPaths(),
		notifier: &recordingNotifier{},
		form:     form.New(),
		states:   []mp.EntityState{{EntityID: kitchen, State: "idle", Platform: "cast"}},
	}
}

func (h *harness) open(t *testing.T) *Session {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Target:   kitchen,
		Remote:   h.remote,
		Players:  players.NewDirectory(h.states),
		Form:     h.form,
		Paths:    h.paths,
		Notifier: h.notifier,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func settle(t *testing.T, s *Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Settle(ctx); err != nil {
		t.Fatalf("settle: %v", err)
	}
}

func ids(items []mp.MediaItem) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.MediaContentID)
	}
	return out
}

func TestOpenFiltersRootAndProbesDirectories(t *testing.T) {
	s := newHarness(libraryRemote()).open(t)
	settle(t, s)

	view := s.View()
	got := strings.Join(ids(view.Items), ",")
	if got != "root-song,library" {
		t.Fatalf("unexpected visible items %q", got)
	}
	if len(view.Crumbs) != 1 || view.Crumbs[0].Title != "Media" {
		t.Fatalf("unexpected crumbs %+v", view.Crumbs)
	}
}

func TestOpenRejectsPlayerWithoutBrowser(t *testing.T) {
	h := newHarness(libraryRemote())
	h.states = []mp.EntityState{{EntityID: "media_player.spotify_den", Platform: "spotify"}}
	_, err := Open(context.Background(), Config{
		Target:   "media_player.spotify_den",
		Remote:   h.remote,
		Players:  players.NewDirectory(h.states),
		Form:     h.form,
		Notifier: h.notifier,
	})
	if !media.IsKind(err, media.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.notifier.messages) != 1 {
		t.Fatalf("expected a notice, got %v", h.notifier.messages)
	}
}

func TestBreadcrumbCutsStack(t *testing.T) {
	s := newHarness(libraryRemote()).open(t)
	ctx := context.Background()
	if err := s.Navigate(ctx, mp.Descriptor{ID: "library", Type: "directory"}); err != nil {
		t.Fatalf("navigate library: %v", err)
	}
	if err := s.Navigate(ctx, mp.Descriptor{ID: "library/deep", Type: "directory"}); err != nil {
		t.Fatalf("navigate deep: %v", err)
	}
	if crumbs := s.View().Crumbs; len(crumbs) != 3 {
		t.Fatalf("expected 3 crumbs, got %+v", crumbs)
	}

	if err := s.Breadcrumb(ctx, 1); err != nil {
		t.Fatalf("breadcrumb: %v", err)
	}
	crumbs := s.View().Crumbs
	if len(crumbs) != 2 || crumbs[1].ID != "library" {
		t.Fatalf("expected stack cut at library, got %+v", crumbs)
	}
	if err := s.Back(ctx); err != nil {
		t.Fatalf("back: %v", err)
	}
	if crumbs := s.View().Crumbs; len(crumbs) != 1 {
		t.Fatalf("expected root only, got %+v", crumbs)
	}
	if err := s.Breadcrumb(ctx, 5); !media.IsKind(err, media.KindValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
}

func TestBrowseFallsBackToMediaSource(t *testing.T) {
	remote := libraryRemote()
	id := "media-source://media_source/local/music"
	remote.browseErr[id] = errors.New("player cannot browse")
	remote.sources[id] = mp.MediaItem{MediaContentID: id, Title: "Music", Children: []mp.MediaItem{
		track(id+"/a.mp3", "A"),
	}}
	s := newHarness(remote).open(t)

	if err := s.Navigate(context.Background(), mp.Descriptor{ID: id, Type: "directory"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if len(remote.sourced) != 1 || remote.sourced[0] != id {
		t.Fatalf("expected media_source fallback, got %v", remote.sourced)
	}
	if items := s.View().Items; len(items) != 1 {
		t.Fatalf("expected fallback children, got %+v", items)
	}
}

func TestRestoreWalksDescriptorPath(t *testing.T) {
	h := newHarness(libraryRemote())
	sel := mp.Selection{
		MediaContentID:   "library/morning",
		MediaContentType: "music",
		MediaBrowserPath: []mp.Descriptor{{ID: "library", Type: "directory"}},
	}
	h.form.Update(form.State{Selection: sel}, form.OriginUser, nil)

	s := h.open(t)
	crumbs := s.View().Crumbs
	if len(crumbs) != 2 || crumbs[1].ID != "library" {
		t.Fatalf("expected restored crumbs, got %+v", crumbs)
	}
	keys := media.SelectionKeys(media.Normalize(sel))
	if path, ok, _ := h.paths.Get(keys[0]); !ok || len(path) != 1 {
		t.Fatalf("expected restored path to be remembered, got %v %v", path, ok)
	}
}

func TestRestoreSpotifyPlaylistPath(t *testing.T) {
	const playlist = "spotify:playlist:37i9dQZF1DXcBWIGoYBM5M"
	remote := libraryRemote()
	remote.nodes[playlist] = mp.MediaItem{MediaContentID: playlist, MediaContentType: "playlist", Title: "Morning Mix", Children: []mp.MediaItem{
		track("spotify:track:6rqhFgbbKwnb9MLmUQDhG6", "Wake Up"),
	}}
	h := newHarness(remote)
	s := h.open(t)
	ctx := context.Background()
	if err := s.Navigate(ctx, mp.Descriptor{ID: playlist, Type: "playlist"}); err != nil {
		t.Fatalf("navigate playlist: %v", err)
	}
	if err := s.Activate(ctx, track("spotify:track:6rqhFgbbKwnb9MLmUQDhG6", "Wake Up")); err != nil {
		t.Fatalf("activate: %v", err)
	}
	path := h.form.State().Selection.MediaBrowserPath
	if len(path) != 1 || path[0].ID != playlist {
		t.Fatalf("expected provider uri in browser path, got %+v", path)
	}

	reopened := h.open(t)
	settle(t, reopened)
	crumbs := reopened.View().Crumbs
	if len(crumbs) != 2 || crumbs[1].ID != playlist {
		t.Fatalf("expected playlist crumb restored, got %+v", crumbs)
	}
	if h.notifier.has("Showing library root; previous media location unavailable") {
		t.Fatalf("unexpected restore notice")
	}
	remote.mu.Lock()
	defer remote.mu.Unlock()
	for _, id := range remote.browsed {
		if strings.HasPrefix(id, "media-source://spotify/") {
			t.Fatalf("expected provider uri sent to remote, got %q", id)
		}
	}
}

func TestRestoreFailureShowsRoot(t *testing.T) {
	h := newHarness(libraryRemote())
	sel := mp.Selection{MediaContentID: "library/morning", MediaContentType: "music"}
	h.form.Update(form.State{Selection: sel}, form.OriginUser, nil)
	keys := media.SelectionKeys(media.Normalize(sel))
	if err := h.paths.Put(keys, []mp.Descriptor{{ID: "gone", Type: "directory"}}); err != nil {
		t.Fatalf("put: %v", err)
	}

	s := h.open(t)
	if crumbs := s.View().Crumbs; len(crumbs) != 1 {
		t.Fatalf("expected root crumb, got %+v", crumbs)
	}
	if !h.notifier.has("Showing library root; previous media location unavailable") {
		t.Fatalf("expected restore notice, got %v", h.notifier.messages)
	}
	if _, ok, _ := h.paths.Get(keys[0]); ok {
		t.Fatalf("expected broken path to be cleared")
	}
}

func TestSearchCrawlsWhenNativeSearchUnsupported(t *testing.T) {
	remote := libraryRemote()
	remote.searchErr = &mp.ReplyError{Code: mp.CodeNotSupported, Message: "search_media not supported"}
	s := newHarness(remote).open(t)
	settle(t, s)

	items, err := s.Search(context.Background(), "MORNING")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := strings.Join(ids(items), ",")
	if got != "library/morning,library/deep/morning-two" {
		t.Fatalf("unexpected crawl results %q", got)
	}
	telemetry, ok := s.Telemetry()
	if !ok {
		t.Fatalf("expected telemetry")
	}
	if telemetry.Transport != TransportFallback || telemetry.Status != "fallback" ||
		telemetry.BaseTransport != TransportNative || telemetry.Reason != mp.CodeNotSupported {
		t.Fatalf("unexpected telemetry %+v", telemetry)
	}
	if s.State() != Searching {
		t.Fatalf("expected search mode, got %s", s.State())
	}

	if _, err := s.Search(context.Background(), "evening"); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if n := remote.searchCount(); n != 1 {
		t.Fatalf("expected native search to be skipped once unsupported, got %d calls", n)
	}
}

func TestNativeSearchMapsAndLimits(t *testing.T) {
	remote := libraryRemote()
	remote.searchItems = []mp.MediaItem{
		{CanPlay: true, MediaContentID: "a", MediaClass: "track", Artist: "Band", Album: "Record"},
		{CanPlay: true, MediaContentID: "b", MediaContentType: "podcast"},
		{CanPlay: true, MediaContentID: "c", MediaClass: "video"},
		{CanPlay: true, MediaContentID: "d", MediaClass: "music"},
	}
	s := newHarness(remote).open(t)
	s.SetOptions(Options{Limit: 2})

	items, err := s.Search(context.Background(), "x")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected limit of 2, got %+v", items)
	}
	if items[0].Subtitle != "Band · Record" || items[0].Title != "A" {
		t.Fatalf("unexpected first item %+v", items[0])
	}
	if items[1].Subtitle != "Podcast" || items[1].MediaClass != "podcast" {
		t.Fatalf("unexpected second item %+v", items[1])
	}
	if body := remote.searches[0]; body.MediaContentID != "" || len(body.MediaFilterClasses) == 0 {
		t.Fatalf("unexpected request %+v", body)
	}
	if telemetry, _ := s.Telemetry(); telemetry.Status != "success" || telemetry.Transport != TransportNative {
		t.Fatalf("unexpected telemetry %+v", telemetry)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s := newHarness(libraryRemote()).open(t)
	if _, err := s.Search(context.Background(), "   "); !media.IsKind(err, media.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestEnterSearchWithoutSupport(t *testing.T) {
	h := newHarness(libraryRemote())
	h.states = nil
	s := h.open(t)
	if err := s.EnterSearch(); !media.IsKind(err, media.KindUnsupportedSearch) {
		t.Fatalf("expected unsupported search, got %v", err)
	}
	if !h.notifier.has("Search is not available for this player") {
		t.Fatalf("expected notice, got %v", h.notifier.messages)
	}
}

func musicAssistantHarness() *harness {
	remote := libraryRemote()
	remote.entries = []mp.ConfigEntry{{EntryID: "entry-1", Domain: "music_assistant"}}
	remote.serviceResp = json.RawMessage(`{"response": {
		"tracks": [{"uri": "library://track/1", "name": "Song", "artists": [{"name": "Band"}], "album": {"name": "Record"}, "duration": 180}],
		"albums": [{"uri": "library://album/2", "name": "Band Live", "artists": ["Band"]}],
		"artists": [{"uri": "library://artist/3", "name": "Band"}]
	}}`)
	h := newHarness(remote)
	h.states = []mp.EntityState{{EntityID: kitchen, Attributes: map[string]any{"mass_player_type": "player"}}}
	return h
}

func TestMusicAssistantSearchOrdersRequestedType(t *testing.T) {
	h := musicAssistantHarness()
	s := h.open(t)
	s.SetOptions(Options{MediaType: "album"})

	items, err := s.Search(context.Background(), "band")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	got := strings.Join(ids(items), ",")
	if got != "library://album/2,library://track/1,library://artist/3" {
		t.Fatalf("unexpected order %q", got)
	}
	if items[0].Title != "Band Live" || items[0].Subtitle != "" || !items[0].CanExpand {
		t.Fatalf("unexpected album %+v", items[0])
	}
	if items[1].Title != "Band - Song" || items[1].Subtitle != "Record" || items[1].CanExpand {
		t.Fatalf("unexpected track %+v", items[1])
	}
	if items[2].Subtitle != "" || items[2].MediaContentType != "artist" {
		t.Fatalf("unexpected artist %+v", items[2])
	}

	call := h.remote.services[0]
	if call.Domain != "music_assistant" || call.Service != "search" || !call.ReturnResponse {
		t.Fatalf("unexpected call %+v", call)
	}
	if call.ServiceData["config_entry_id"] != "entry-1" || call.ServiceData["media_type"] != "album" {
		t.Fatalf("unexpected service data %+v", call.ServiceData)
	}

	if _, err := s.Search(context.Background(), "song"); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if h.remote.entryCalls != 1 {
		t.Fatalf("expected config entry lookup once, got %d", h.remote.entryCalls)
	}
}

func TestMusicAssistantRetriesFailedEntryLookup(t *testing.T) {
	h := musicAssistantHarness()
	h.remote.entryErr = context.DeadlineExceeded
	s := h.open(t)

	if _, err := s.Search(context.Background(), "band"); err != nil {
		t.Fatalf("first search: %v", err)
	}
	if _, ok := h.remote.services[0].ServiceData["config_entry_id"]; ok {
		t.Fatalf("expected no entry id after failed lookup, got %+v", h.remote.services[0].ServiceData)
	}

	h.remote.mu.Lock()
	h.remote.entryErr = nil
	h.remote.mu.Unlock()
	if _, err := s.Search(context.Background(), "band"); err != nil {
		t.Fatalf("second search: %v", err)
	}
	if got := h.remote.services[1].ServiceData["config_entry_id"]; got != "entry-1" {
		t.Fatalf("expected entry id after retry, got %v", got)
	}
	if h.remote.entryCalls != 2 {
		t.Fatalf("expected two entry lookups, got %d", h.remote.entryCalls)
	}
}

func TestMusicAssistantUnsupportedDisablesSearch(t *testing.T) {
	h := musicAssistantHarness()
	h.remote.serviceErr = &mp.ReplyError{Code: mp.CodeUnknownCommand, Message: "music_assistant.search"}
	s := h.open(t)

	_, err := s.Search(context.Background(), "band")
	if !media.IsKind(err, media.KindUnsupportedSearch) {
		t.Fatalf("expected unsupported search, got %v", err)
	}
	if s.State() != Browsing {
		t.Fatalf("expected browsing after downgrade, got %s", s.State())
	}
	if err := s.EnterSearch(); !media.IsKind(err, media.KindUnsupportedSearch) {
		t.Fatalf("expected search to stay disabled, got %v", err)
	}
	if telemetry, _ := s.Telemetry(); telemetry.Status != "error" || telemetry.ErrorCode != mp.CodeUnknownCommand {
		t.Fatalf("unexpected telemetry %+v", telemetry)
	}
}

func TestSelectWritesFormAndPath(t *testing.T) {
	h := newHarness(libraryRemote())
	var changes []form.Change
	h.form.Subscribe(func(c form.Change) { changes = append(changes, c) })
	s := h.open(t)
	ctx := context.Background()
	if err := s.Navigate(ctx, mp.Descriptor{ID: "library", Type: "directory"}); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	item := track("library/morning", "Morning Song")
	if err := s.Activate(ctx, item); err != nil {
		t.Fatalf("activate: %v", err)
	}
	state := h.form.State()
	if state.Selection.MediaContentID != "library/morning" || state.Title != "Morning Song" {
		t.Fatalf("unexpected form state %+v", state)
	}
	if path := state.Selection.MediaBrowserPath; len(path) != 1 || path[0].ID != "library" {
		t.Fatalf("unexpected browser path %+v", path)
	}
	if len(changes) != 1 || changes[0].Origin != form.OriginUser || changes[0].Item == nil {
		t.Fatalf("unexpected changes %+v", changes)
	}
	keys := media.SelectionKeys(media.Normalize(state.Selection))
	if _, ok, _ := h.paths.Get(keys[0]); !ok {
		t.Fatalf("expected path to be remembered under %v", keys)
	}
	if !h.notifier.has("Media set to Morning Song") {
		t.Fatalf("expected notice, got %v", h.notifier.messages)
	}
	if s.State() != Closed {
		t.Fatalf("expected session closed after select")
	}
}

func TestSelectionForSpotifyProvider(t *testing.T) {
	sel := SelectionFor(mp.MediaItem{MediaContentID: "spotify:track:6rqhFgbbKwnb9MLmUQDhG6", MediaClass: "track", Title: "Song"})
	if sel.MediaContentProvider != "spotify" || sel.MediaContentType != "track" {
		t.Fatalf("unexpected selection %+v", sel)
	}
}
