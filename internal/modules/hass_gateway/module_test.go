package hassgateway

import (
	"context"
	"encoding/json"
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

type fakeBackend struct {
	browsed []string
}

func (f *fakeBackend) BrowseMedia(_ context.Context, entityID string, d mp.Descriptor) (mp.MediaItem, error) {
	f.browsed = append(f.browsed, "player:"+entityID+":"+d.ID)
	return mp.MediaItem{Title: "Player root", CanExpand: true}, nil
}

func (f *fakeBackend) BrowseSource(_ context.Context, id string) (mp.MediaItem, error) {
	f.browsed = append(f.browsed, "source:"+id)
	return mp.MediaItem{Title: "Media", CanExpand: true}, nil
}

func (f *fakeBackend) SearchMedia(context.Context, mp.MediaSearchBody) ([]mp.MediaItem, error) {
	return []mp.MediaItem{{MediaContentID: "a", Title: "Alarm", CanPlay: true}}, nil
}

func (f *fakeBackend) ResolveSource(_ context.Context, id string) (mp.MediaResolveReply, error) {
	return mp.MediaResolveReply{}, &mp.ReplyError{Code: mp.CodeNotFound, Message: id}
}

func (f *fakeBackend) ResolveMetadata(context.Context, mp.ResolveMetadataBody) (*mp.Metadata, error) {
	return &mp.Metadata{Title: "Song"}, nil
}

func (f *fakeBackend) CallService(context.Context, mp.ServiceCallBody) (json.RawMessage, error) {
	return json.RawMessage(`{"ok":1}`), nil
}

func (f *fakeBackend) ConfigEntries(_ context.Context, domain string) ([]mp.ConfigEntry, error) {
	return []mp.ConfigEntry{{EntryID: "e1", Domain: domain}}, nil
}

func (f *fakeBackend) Entities(context.Context) ([]mp.EntityState, error) {
	return []mp.EntityState{{EntityID: "media_player.kitchen", State: "idle"}}, nil
}

func newTestModule(t *testing.T) *Module {
	t.Helper()
	m, err := NewModule(zap.NewNop(), nil, Config{NodeID: "mp:gateway:ha", URL: "http://ha", Token: "t"})
	if err != nil {
		t.Fatalf("new module: %v", err)
	}
	return m
}

func dispatch(t *testing.T, m *Module, backend Backend, cmdType string, body any) mp.ReplyEnvelope {
	t.Helper()
	node, err := m.node(backend)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	cmd, err := mp.NewCommand(cmdType, body)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	cmd.ID = "c1"
	cmd.TS = 1
	cmd.From = "tester"
	return node.Dispatch(context.Background(), cmd)
}

func TestNewModuleRequiresToken(t *testing.T) {
	if _, err := NewModule(zap.NewNop(), nil, Config{NodeID: "n", URL: "http://ha"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBrowseRoutesBySource(t *testing.T) {
	m := newTestModule(t)
	backend := &fakeBackend{}

	dispatch(t, m, backend, mp.CmdMediaBrowse, mp.MediaBrowseBody{EntityID: "media_player.kitchen", MediaContentID: "x"})
	dispatch(t, m, backend, mp.CmdMediaBrowse, mp.MediaBrowseBody{EntityID: "media_player.kitchen", MediaContentID: "media-source://media_source", Source: true})

	if len(backend.browsed) != 2 || backend.browsed[0] != "player:media_player.kitchen:x" || backend.browsed[1] != "source:media-source://media_source" {
		t.Fatalf("unexpected browse calls %v", backend.browsed)
	}
}

func TestSearchAndServiceReplyShapes(t *testing.T) {
	m := newTestModule(t)
	backend := &fakeBackend{}

	reply := dispatch(t, m, backend, mp.CmdMediaSearch, mp.MediaSearchBody{EntityID: "media_player.kitchen", SearchQuery: "alarm"})
	items, err := mp.DecodeSearchResults(reply.Body)
	if err != nil || len(items) != 1 || items[0].Title != "Alarm" {
		t.Fatalf("unexpected search reply %s (%v)", reply.Body, err)
	}

	reply = dispatch(t, m, backend, mp.CmdServiceCall, mp.ServiceCallBody{Domain: "spotifyplus", Service: "get_track"})
	var service mp.ServiceCallReply
	if err := json.Unmarshal(reply.Body, &service); err != nil || string(service.Response) != `{"ok":1}` {
		t.Fatalf("unexpected service reply %s (%v)", reply.Body, err)
	}

	reply = dispatch(t, m, backend, mp.CmdConfigEntriesList, mp.ConfigEntriesBody{Domain: "music_assistant"})
	var entries mp.ConfigEntriesReply
	if err := json.Unmarshal(reply.Body, &entries); err != nil || len(entries.Entries) != 1 || entries.Entries[0].Domain != "music_assistant" {
		t.Fatalf("unexpected entries reply %s (%v)", reply.Body, err)
	}
}

func TestRemoteErrorCodeSurvives(t *testing.T) {
	m := newTestModule(t)
	reply := dispatch(t, m, &fakeBackend{}, mp.CmdMediaResolve, mp.MediaResolveBody{MediaContentID: "missing"})
	if reply.OK || reply.Err == nil || reply.Err.Code != mp.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %+v", reply)
	}
}
