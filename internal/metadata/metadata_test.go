package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

type fakeRemote struct {
	mu        sync.Mutex
	metadata  *mp.Metadata
	err       error
	resolved  []mp.ResolveMetadataBody
	onResolve func()
	response  json.RawMessage
	services  []mp.ServiceCallBody
}

func (f *fakeRemote) BrowseMedia(ctx context.Context, entityID string, d mp.Descriptor) (mp.MediaItem, error) {
	return mp.MediaItem{}, errors.New("not implemented")
}

func (f *fakeRemote) BrowseSource(ctx context.Context, id string) (mp.MediaItem, error) {
	return mp.MediaItem{}, errors.New("not implemented")
}

func (f *fakeRemote) SearchMedia(ctx context.Context, body mp.MediaSearchBody) ([]mp.MediaItem, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeRemote) ResolveSource(ctx context.Context, id string) (mp.MediaResolveReply, error) {
	return mp.MediaResolveReply{}, errors.New("not implemented")
}

func (f *fakeRemote) ResolveMetadata(ctx context.Context, body mp.ResolveMetadataBody) (*mp.Metadata, error) {
	f.mu.Lock()
	f.resolved = append(f.resolved, body)
	hook := f.onResolve
	md := f.metadata
	err := f.err
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	if md == nil {
		return nil, nil
	}
	copied := *md
	return &copied, nil
}

func (f *fakeRemote) CallService(ctx context.Context, body mp.ServiceCallBody) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = append(f.services, body)
	return f.response, nil
}

func (f *fakeRemote) ConfigEntries(ctx context.Context, domain string) ([]mp.ConfigEntry, error) {
	return nil, nil
}

func (f *fakeRemote) resolveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resolved)
}

type debugAll struct{}

func (debugAll) Debug(string) bool { return true }

func plexSelection() form.State {
	return form.State{
		Selection: mp.Selection{
			MediaContentID:    "media-source://plex/library/1",
			MediaContentType:  "track",
			MediaContentTitle: "Keep Me",
			Title:             "Keep Me",
		},
		Title: "Keep Me",
	}
}

func TestPlexMergeIsAdditive(t *testing.T) {
	remote := &fakeRemote{metadata: &mp.Metadata{
		MediaContentType: "music",
		Title:            "Other",
		DisplayTitle:     "Other Display",
		Thumb:            "thumb.png",
		Artist:           "Band",
		Album:            "Record",
		Duration:         200.0,
	}}
	f := form.New()
	state := plexSelection()
	f.Update(state, form.OriginUser, nil)

	e := NewEnricher(Config{Form: f, Remote: remote, Preferences: debugAll{}})
	if err := e.Enrich(context.Background(), state.Selection, nil); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	got := f.State()
	sel := got.Selection
	if got.Title != "Keep Me" || sel.MediaContentTitle != "Keep Me" || sel.Title != "Keep Me" {
		t.Fatalf("expected titles to be kept, got %+v", got)
	}
	if sel.MediaContentType != "track" {
		t.Fatalf("expected type to be kept, got %q", sel.MediaContentType)
	}
	if sel.Thumbnail != "thumb.png" || sel.MediaContentProvider != "plex" {
		t.Fatalf("expected gaps filled, got %+v", sel)
	}
	if sel.Metadata["artist"] != "Band" || sel.Metadata["album_name"] != "Record" || sel.Metadata["duration"] != 200.0 {
		t.Fatalf("unexpected metadata %+v", sel.Metadata)
	}
	if body := remote.resolved[0]; body.Provider != "" || body.MediaContentType != "track" {
		t.Fatalf("unexpected plex request %+v", body)
	}
}

func TestFailedLookupIsCachedAsMiss(t *testing.T) {
	for name, remote := range map[string]*fakeRemote{
		"error": {err: errors.New("resolve_media unavailable")},
		"empty": {},
	} {
		t.Run(name, func(t *testing.T) {
			f := form.New()
			state := plexSelection()
			f.Update(state, form.OriginUser, nil)

			e := NewEnricher(Config{Form: f, Remote: remote})
			for i := 0; i < 3; i++ {
				if err := e.Enrich(context.Background(), state.Selection, nil); err != nil {
					t.Fatalf("enrich %d: %v", i, err)
				}
			}
			if got := remote.resolveCount(); got != 1 {
				t.Fatalf("expected one resolve call, got %d", got)
			}
			if f.State().Selection.Thumbnail != "" {
				t.Fatalf("unexpected merge %+v", f.State().Selection)
			}
		})
	}
}

func TestCancelledLookupIsNotCached(t *testing.T) {
	remote := &fakeRemote{err: context.Canceled}
	plex := NewResolver[*mp.Metadata](Plex(remote), nil, false)
	f := form.New()
	state := plexSelection()
	f.Update(state, form.OriginUser, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := plex.Resolve(ctx, f, state.Selection, nil); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	req, ok := plex.provider.Detect(state.Selection, nil)
	if !ok {
		t.Fatalf("expected plex selection to be detected")
	}
	if plex.Cached(req.Key) {
		t.Fatalf("cancelled lookup should not be cached")
	}
}

func TestStaleMergeIsDropped(t *testing.T) {
	f := form.New()
	state := plexSelection()
	f.Update(state, form.OriginUser, nil)
	remote := &fakeRemote{metadata: &mp.Metadata{Thumb: "thumb.png"}}
	remote.onResolve = func() {
		f.Update(form.State{Selection: mp.Selection{MediaContentID: "media-source://plex/library/2"}}, form.OriginUser, nil)
	}

	e := NewEnricher(Config{Form: f, Remote: remote})
	if err := e.Enrich(context.Background(), state.Selection, nil); err != nil {
		t.Fatalf("expected stale merge to be dropped silently, got %v", err)
	}
	got := f.State().Selection
	if got.MediaContentID != "media-source://plex/library/2" || got.Thumbnail != "" {
		t.Fatalf("stale metadata leaked into %+v", got)
	}
}

func TestAttachIgnoresMergeChanges(t *testing.T) {
	remote := &fakeRemote{metadata: &mp.Metadata{Thumb: "thumb.png"}}
	f := form.New()
	var origins []form.Origin
	var mu sync.Mutex
	f.Subscribe(func(c form.Change) {
		mu.Lock()
		origins = append(origins, c.Origin)
		mu.Unlock()
	})
	e := NewEnricher(Config{Form: f, Remote: remote})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	e.Attach(ctx)

	f.Update(plexSelection(), form.OriginUser, nil)
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := f.State().Selection.Thumbnail; got != "thumb.png" {
		t.Fatalf("expected merge, got %q", got)
	}

	f.Update(plexSelection(), form.OriginUser, nil)
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if n := remote.resolveCount(); n != 1 {
		t.Fatalf("expected one lookup thanks to the cache, got %d", n)
	}
	mu.Lock()
	defer mu.Unlock()
	merges := 0
	for _, origin := range origins {
		if origin == form.OriginMerge {
			merges++
		}
	}
	if merges != 2 {
		t.Fatalf("expected one merge per user change, got %v", origins)
	}
}

func TestJellyfinDetection(t *testing.T) {
	p := Jellyfin(nil)
	req, ok := p.Detect(mp.Selection{MediaContentID: "media-source://jellyfin/abc"}, nil)
	if !ok || req.Type != "audio" || req.Key != "media-source://jellyfin/abc" {
		t.Fatalf("unexpected detection %+v %v", req, ok)
	}
	if _, ok := p.Detect(mp.Selection{MediaContentID: "media-source://jellyfin/abc", MediaContentProvider: "plex"}, nil); ok {
		t.Fatalf("expected foreign provider to be skipped")
	}
	if _, ok := DLNA(nil).Detect(mp.Selection{MediaContentID: "dlna://server/item"}, nil); !ok {
		t.Fatalf("expected dlna detection")
	}
}

func TestSpotifyPlusMerge(t *testing.T) {
	remote := &fakeRemote{response: json.RawMessage(`{"result": {"response": {
		"name": "Song",
		"artists": [{"name": "Band"}, {"name": "Band"}],
		"album": {"name": "Record", "images": [{"url": "cover.png"}]}
	}}}`)}
	directory := players.NewDirectory([]mp.EntityState{
		{EntityID: "media_player.spotify_kitchen", Platform: "spotify"},
		{EntityID: "media_player.spotifyplus_kitchen", Platform: "spotifyplus"},
	})
	f := form.New()
	sel := mp.Selection{MediaContentID: "spotify:track:6rqhFgbbKwnb9MLmUQDhG6", MediaContentType: "track"}
	f.Update(form.State{Selection: sel}, form.OriginUser, nil)

	e := NewEnricher(Config{Form: f, Remote: remote, Players: directory, Player: "media_player.spotify_kitchen"})
	if err := e.Enrich(context.Background(), sel, nil); err != nil {
		t.Fatalf("enrich: %v", err)
	}

	call := remote.services[0]
	if call.Domain != "spotifyplus" || call.Service != "get_track" ||
		call.ServiceData["track_id"] != "6rqhFgbbKwnb9MLmUQDhG6" ||
		call.ServiceData["entity_id"] != "media_player.spotifyplus_kitchen" {
		t.Fatalf("unexpected service call %+v", call)
	}
	got := f.State()
	if got.Title != "Band - Song" {
		t.Fatalf("expected recombined title, got %q", got.Title)
	}
	if got.Selection.Thumbnail != "cover.png" || got.Selection.MediaContentProvider != "spotify" {
		t.Fatalf("unexpected selection %+v", got.Selection)
	}
	artists, _ := got.Selection.Metadata["artists"].([]string)
	if len(artists) != 1 || got.Selection.Metadata["album"] != "Record" {
		t.Fatalf("unexpected metadata %+v", got.Selection.Metadata)
	}
}

func TestSpotifyPlusRequiresSpotifyTarget(t *testing.T) {
	directory := players.NewDirectory([]mp.EntityState{
		{EntityID: "media_player.kitchen", Platform: "cast"},
		{EntityID: "media_player.spotifyplus_kitchen", Platform: "spotifyplus"},
	})
	p := SpotifyPlus{Players: directory, Player: "media_player.kitchen"}
	if _, ok := p.Detect(mp.Selection{MediaContentID: "spotify:track:6rqhFgbbKwnb9MLmUQDhG6"}, nil); ok {
		t.Fatalf("expected non spotify target to be skipped")
	}
}

func TestUnwrapResponse(t *testing.T) {
	var payload any
	if err := json.Unmarshal([]byte(`{"response": {"result": {"name": "x"}}}`), &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got, ok := unwrapResponse(payload).(map[string]any)
	if !ok || got["name"] != "x" {
		t.Fatalf("unexpected unwrap %+v", got)
	}
}
