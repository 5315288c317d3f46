package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const spotifyPlusDomain = "spotifyplus"

type spotifyService struct {
	service string
	field   string
}

var spotifyServices = map[string]spotifyService{
	"track":    {service: "get_track", field: "track_id"},
	"album":    {service: "get_album", field: "album_id"},
	"artist":   {service: "get_artist", field: "artist_id"},
	"playlist": {service: "get_playlist", field: "playlist_id"},
}

// SpotifyPlus looks up track, album, artist and playlist details through a
// SpotifyPlus player when the target is a Spotify player.
type SpotifyPlus struct {
	Remote  ports.Remote
	Players players.Directory
	// Player is the alarm's target player.
	Player string
}

func (p SpotifyPlus) Name() string { return "spotify" }

func (p SpotifyPlus) Detect(sel mp.Selection, item *mp.MediaItem) (Request, bool) {
	player := strings.TrimSpace(p.Player)
	if player == "" || p.Players.Family(player) != players.FamilySpotify {
		return Request{}, false
	}
	metadataPlayer := p.Players.MetadataPlayer(player)
	if metadataPlayer == "" {
		return Request{}, false
	}

	typeHint := sel.MediaContentType
	id := sel.MediaContentID
	if item != nil {
		if typeHint == "" {
			typeHint = firstNonEmpty(item.MediaContentType, item.MediaClass)
		}
		if id == "" {
			id = item.MediaContentID
		}
	}
	parsed, ok := media.ParseSpotify(id, typeHint)
	if !ok || parsed.ID == "" {
		return Request{}, false
	}
	lookupType := parsed.Type
	if lookupType == "" {
		lookupType = typeHint
	}
	lookupType = media.MapSpotifyLookupType(lookupType)
	service, ok := spotifyServices[lookupType]
	if !ok {
		return Request{}, false
	}
	return Request{
		Key:     lookupType + "|" + parsed.ID,
		ID:      parsed.ID,
		Type:    lookupType,
		Player:  metadataPlayer,
		Service: service.service,
		Field:   service.field,
	}, true
}

// SpotifyResult is an unwrapped SpotifyPlus answer and the lookup type it
// answers.
type SpotifyResult struct {
	Type   string
	Fields map[string]any
}

func (p SpotifyPlus) Fetch(ctx context.Context, req Request) (*SpotifyResult, bool, error) {
	raw, err := p.Remote.CallService(ctx, mp.ServiceCallBody{
		Domain:         spotifyPlusDomain,
		Service:        req.Service,
		ServiceData:    map[string]any{"entity_id": req.Player, req.Field: req.ID},
		ReturnResponse: true,
	})
	if err != nil {
		return nil, false, err
	}
	if len(raw) == 0 {
		return nil, false, nil
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, false, fmt.Errorf("decode %s response: %w", req.Service, err)
	}
	fields, ok := unwrapResponse(decoded).(map[string]any)
	if !ok || len(fields) == 0 {
		return nil, false, nil
	}
	return &SpotifyResult{Type: req.Type, Fields: fields}, true, nil
}

// unwrapResponse strips up to five levels of result/response envelopes.
func unwrapResponse(payload any) any {
	current := payload
	for depth := 0; depth < 5; depth++ {
		m, ok := current.(map[string]any)
		if !ok {
			return current
		}
		if next, ok := m["result"]; ok && next != nil {
			current = next
			continue
		}
		if next, ok := m["response"]; ok && next != nil {
			current = next
			continue
		}
		break
	}
	return current
}

func (p SpotifyPlus) Merge(state form.State, item *mp.MediaItem, found *SpotifyResult) (form.State, bool) {
	lookupType, result := found.Type, found.Fields
	sel := state.Selection
	if sel.MediaContentProvider == "" {
		sel.MediaContentProvider = firstNonEmpty(stringAt(result, "media_content_provider"), "spotify")
	}
	meta := copyMetadata(sel.Metadata)

	title := firstNonEmpty(stringAt(result, "name"), stringAt(result, "title"), stringAt(meta, "title"))
	if title != "" {
		sel.MediaContentTitle = firstNonEmpty(sel.MediaContentTitle, title)
		sel.Title = firstNonEmpty(sel.Title, title)
		setDefault(meta, "title", title)
		setDefault(meta, "name", title)
	}
	if artists := spotifyArtists(result, lookupType); len(artists) > 0 {
		setDefault(meta, "artist", artists[0])
		setDefault(meta, "artist_name", artists[0])
		if len(media.StringList(meta["artists"])) == 0 {
			meta["artists"] = artists
		}
	}
	album, _ := result["album"].(map[string]any)
	if lookupType == "track" {
		if name := stringAt(album, "name"); name != "" {
			setDefault(meta, "album", name)
			setDefault(meta, "album_name", name)
		}
	}
	thumb := firstNonEmpty(stringAt(result, "image_url"), firstImage(result), stringAt(album, "image_url"), firstImage(album))
	if thumb != "" && sel.Thumbnail == "" {
		sel.Thumbnail = thumb
	}
	if len(meta) > 0 {
		sel.Metadata = meta
	}

	next := form.State{Selection: sel, Title: state.Title}
	if title := media.BuildTitle(sel, item); title != "" {
		next.Title = title
	}
	return next, !equalState(state, next)
}

func spotifyArtists(result map[string]any, lookupType string) []string {
	var names []string
	add := func(list any) {
		entries, _ := list.([]any)
		for _, entry := range entries {
			var name string
			switch v := entry.(type) {
			case string:
				name = v
			case map[string]any:
				name = stringAt(v, "name")
			}
			name = strings.TrimSpace(name)
			if name != "" && !contains(names, name) {
				names = append(names, name)
			}
		}
	}
	add(result["artists"])
	if len(names) == 0 && lookupType == "track" {
		if album, ok := result["album"].(map[string]any); ok {
			add(album["artists"])
		}
	}
	return names
}

func firstImage(m map[string]any) string {
	images, _ := m["images"].([]any)
	if len(images) == 0 {
		return ""
	}
	first, _ := images[0].(map[string]any)
	return stringAt(first, "url")
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
