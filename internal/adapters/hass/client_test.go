package hass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

type fakeHA struct {
	token    string
	handlers map[string]func(req map[string]any) (any, *replyErr)
}

type replyErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (f *fakeHA) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	_ = conn.WriteJSON(map[string]string{"type": "auth_required", "ha_version": "2025.1.0"})
	var auth map[string]any
	if err := conn.ReadJSON(&auth); err != nil {
		return
	}
	if auth["access_token"] != f.token {
		_ = conn.WriteJSON(map[string]string{"type": "auth_invalid"})
		return
	}
	_ = conn.WriteJSON(map[string]string{"type": "auth_ok"})

	for {
		var req map[string]any
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		id := req["id"]
		typ, _ := req["type"].(string)
		if typ == "ping" {
			_ = conn.WriteJSON(map[string]any{"id": id, "type": "pong"})
			continue
		}
		handler := f.handlers[typ]
		if handler == nil {
			_ = conn.WriteJSON(map[string]any{"id": id, "type": "result", "success": false,
				"error": replyErr{Code: "unknown_command", Message: "Unknown command."}})
			continue
		}
		result, failure := handler(req)
		if failure != nil {
			_ = conn.WriteJSON(map[string]any{"id": id, "type": "result", "success": false, "error": failure})
			continue
		}
		_ = conn.WriteJSON(map[string]any{"id": id, "type": "result", "success": true, "result": result})
	}
}

func dialFake(t *testing.T, ha *fakeHA, token string) (*Client, error) {
	t.Helper()
	server := httptest.NewServer(ha)
	t.Cleanup(server.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return Dial(ctx, Options{URL: server.URL, Token: token, Timeout: 2 * time.Second})
}

func TestDialRejectsBadToken(t *testing.T) {
	_, err := dialFake(t, &fakeHA{token: "good"}, "bad")
	if err != ErrAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestBrowseAndSearch(t *testing.T) {
	ha := &fakeHA{token: "good", handlers: map[string]func(req map[string]any) (any, *replyErr){
		"media_player/browse_media": func(req map[string]any) (any, *replyErr) {
			if req["entity_id"] != "media_player.kitchen" {
				return nil, &replyErr{Code: "not_found", Message: "no entity"}
			}
			return mp.MediaItem{
				MediaContentID: "library://root",
				Title:          "Library",
				CanExpand:      true,
				Children:       []mp.MediaItem{{MediaContentID: "song", CanPlay: true, MediaClass: "music"}},
			}, nil
		},
		"media_player/search_media": func(req map[string]any) (any, *replyErr) {
			return nil, &replyErr{Code: "not_supported", Message: "Entity does not support searching media"}
		},
	}}
	client, err := dialFake(t, ha, "good")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	ctx := context.Background()
	node, err := client.BrowseMedia(ctx, "media_player.kitchen", mp.Descriptor{})
	if err != nil {
		t.Fatalf("browse: %v", err)
	}
	if node.Title != "Library" || len(node.Children) != 1 {
		t.Fatalf("unexpected node %+v", node)
	}

	_, err = client.BrowseMedia(ctx, "media_player.garage", mp.Descriptor{})
	if mp.ErrorCode(err) != mp.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = client.SearchMedia(ctx, mp.MediaSearchBody{EntityID: "media_player.kitchen", SearchQuery: "x"})
	if !mp.IsUnsupported(err) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestEntitiesJoinsRegistryPlatform(t *testing.T) {
	ha := &fakeHA{token: "good", handlers: map[string]func(req map[string]any) (any, *replyErr){
		"get_states": func(req map[string]any) (any, *replyErr) {
			return []mp.EntityState{{EntityID: "media_player.spotify_me", State: "idle"}}, nil
		},
		"config/entity_registry/list": func(req map[string]any) (any, *replyErr) {
			return []map[string]string{{"entity_id": "media_player.spotify_me", "platform": "spotify"}}, nil
		},
	}}
	client, err := dialFake(t, ha, "good")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	states, err := client.Entities(context.Background())
	if err != nil {
		t.Fatalf("entities: %v", err)
	}
	if len(states) != 1 || states[0].Platform != "spotify" {
		t.Fatalf("unexpected states %+v", states)
	}
}

func TestCallServiceKeepsResponse(t *testing.T) {
	ha := &fakeHA{token: "good", handlers: map[string]func(req map[string]any) (any, *replyErr){
		"call_service": func(req map[string]any) (any, *replyErr) {
			if req["return_response"] != true {
				return nil, &replyErr{Code: "invalid_format", Message: "response required"}
			}
			return map[string]any{"response": map[string]any{"tracks": []any{}}}, nil
		},
	}}
	client, err := dialFake(t, ha, "good")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	raw, err := client.CallService(context.Background(), mp.ServiceCallBody{Domain: "music_assistant", Service: "search", ReturnResponse: true})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded["response"] == nil {
		t.Fatalf("unexpected response %s", raw)
	}

	_, err = client.CallService(context.Background(), mp.ServiceCallBody{Domain: "x", Service: "y"})
	if mp.ErrorCode(err) != mp.CodeInvalid {
		t.Fatalf("expected invalid, got %v", err)
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"http://ha.local:8123", "ws://ha.local:8123/api/websocket"},
		{"https://ha.example.com/", "wss://ha.example.com/api/websocket"},
		{"ws://ha.local:8123/api/websocket", "ws://ha.local:8123/api/websocket"},
	}
	for _, test := range tests {
		got, err := WebsocketURL(test.in)
		if err != nil || got != test.expected {
			t.Fatalf("%s: got %q %v", test.in, got, err)
		}
	}
	if _, err := WebsocketURL("ftp://x"); err == nil || !strings.Contains(err.Error(), "scheme") {
		t.Fatalf("expected scheme error, got %v", err)
	}
}
