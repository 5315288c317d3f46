package picker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const musicAssistantDomain = "music_assistant"

var musicAssistantKeys = []string{"tracks", "albums", "playlists", "radio", "artists"}

func (s *Session) searchMusicAssistant(ctx context.Context, query string, opts Options) ([]mp.MediaItem, error) {
	mediaType := strings.TrimSpace(opts.MediaType)
	if mediaType == "" {
		mediaType = "track"
	}
	data := map[string]any{
		"name":         query,
		"media_type":   mediaType,
		"limit":        clampLimit(opts.Limit),
		"library_only": opts.LibraryOnly,
	}
	if entryID := s.musicAssistantEntryID(ctx); entryID != "" {
		data["config_entry_id"] = entryID
	}
	raw, err := s.cfg.Remote.CallService(ctx, mp.ServiceCallBody{
		Domain:         musicAssistantDomain,
		Service:        "search",
		ServiceData:    data,
		ReturnResponse: true,
	})
	if err != nil {
		return nil, err
	}
	return MapMusicAssistant(raw, mediaType)
}

// musicAssistantEntryID looks up the Music Assistant config entry once per
// session. Concurrent searches share one lookup. A failed lookup is retried
// by the next search; a successful one, even with no entry, is remembered.
func (s *Session) musicAssistantEntryID(ctx context.Context) string {
	s.mu.Lock()
	if s.entryID != nil {
		id := *s.entryID
		s.mu.Unlock()
		return id
	}
	s.mu.Unlock()

	value, err, _ := s.entryGroup.Do("entry", func() (any, error) {
		entries, err := s.cfg.Remote.ConfigEntries(ctx, musicAssistantDomain)
		if err != nil {
			return "", err
		}
		var id string
		for _, entry := range entries {
			if entry.Domain == musicAssistantDomain && entry.EntryID != "" {
				id = entry.EntryID
				break
			}
		}
		s.mu.Lock()
		s.entryID = &id
		s.mu.Unlock()
		return id, nil
	})
	if err != nil {
		s.logger.Warn("load music assistant config entry", zap.Error(err))
		return ""
	}
	id, _ := value.(string)
	return id
}

// MapMusicAssistant turns a music_assistant.search response into media
// items. The requested media type's bucket comes first, then the rest in a
// fixed order.
func MapMusicAssistant(raw json.RawMessage, mediaType string) ([]mp.MediaItem, error) {
	var outer map[string]any
	if err := json.Unmarshal(raw, &outer); err != nil {
		return nil, fmt.Errorf("decode music assistant response: %w", err)
	}
	payload := outer
	if inner, ok := outer["response"].(map[string]any); ok {
		payload = inner
	}

	order := []string{musicAssistantKey(mediaType)}
	for _, key := range musicAssistantKeys {
		if key != order[0] {
			order = append(order, key)
		}
	}
	var items []mp.MediaItem
	for _, key := range order {
		entries, _ := payload[key].([]any)
		typ := musicAssistantType(key)
		for _, entry := range entries {
			fields, ok := entry.(map[string]any)
			if !ok {
				continue
			}
			if item, ok := mapMusicAssistantItem(fields, typ); ok {
				items = append(items, item)
			}
		}
	}
	return items, nil
}

func mapMusicAssistantItem(entry map[string]any, fallbackType string) (mp.MediaItem, bool) {
	id := stringField(entry, "uri", "media_id", "media_item_id", "media_content_id", "id")
	if id == "" {
		return mp.MediaItem{}, false
	}
	typ := strings.ToLower(strings.TrimSpace(stringField(entry, "media_type")))
	if typ == "" {
		typ = strings.ToLower(strings.TrimSpace(fallbackType))
	}
	if typ == "" {
		typ = "music"
	}

	artists := musicAssistantArtists(entry)
	albumName := ""
	if album, ok := entry["album"].(map[string]any); ok {
		albumName = stringField(album, "name")
	}
	if albumName == "" {
		albumName = stringField(entry, "album_name", "album")
	}
	nested, _ := entry["metadata"].(map[string]any)
	baseTitle := strings.TrimSpace(stringField(entry, "name", "title"))
	if baseTitle == "" && nested != nil {
		baseTitle = strings.TrimSpace(stringField(nested, "title", "name"))
	}
	if baseTitle == "" {
		baseTitle = media.FormatName(id)
	}

	trackOrAlbum := typ == "track" || typ == "album"
	artistLabel := strings.Join(artists, ", ")
	title := baseTitle
	if title != "" && artistLabel != "" && trackOrAlbum &&
		!strings.Contains(strings.ToLower(title), strings.ToLower(artistLabel)) {
		title = artistLabel + " - " + title
	}
	var subtitle []string
	if artistLabel != "" {
		if !strings.Contains(strings.ToLower(title), strings.ToLower(artistLabel)) || !trackOrAlbum {
			subtitle = append(subtitle, artistLabel)
		}
	}
	if albumName != "" && typ == "track" {
		subtitle = append(subtitle, albumName)
	}

	item := mp.MediaItem{
		CanPlay:          true,
		CanExpand:        typ == "album" || typ == "artist" || typ == "playlist",
		MediaContentID:   id,
		MediaContentType: typ,
		MediaClass:       typ,
		Title:            title,
		Subtitle:         strings.Join(subtitle, media.SubtitleSeparator),
		Thumbnail:        stringField(entry, "image", "thumbnail"),
		Provider:         stringField(entry, "provider", "provider_name", "media_provider"),
	}
	metadata := map[string]any{"media_type": typ}
	if baseTitle != "" {
		metadata["title"] = baseTitle
		metadata["name"] = baseTitle
	}
	if len(artists) > 0 {
		metadata["artist"] = artists[0]
		metadata["artist_name"] = artistLabel
		metadata["artists"] = artists
	}
	if albumName != "" {
		metadata["album"] = albumName
		metadata["album_name"] = albumName
	}
	if duration, ok := entry["duration"].(float64); ok && !math.IsInf(duration, 0) && !math.IsNaN(duration) {
		metadata["duration"] = duration
	}
	item.Metadata = metadata
	if !media.LooksAudio(item) {
		return mp.MediaItem{}, false
	}
	return item, true
}

func musicAssistantArtists(entry map[string]any) []string {
	var out []string
	if list, ok := entry["artists"].([]any); ok {
		for _, artist := range list {
			switch v := artist.(type) {
			case string:
				if name := strings.TrimSpace(v); name != "" {
					out = append(out, name)
				}
			case map[string]any:
				if name := strings.TrimSpace(stringField(v, "name", "title", "label")); name != "" {
					out = append(out, name)
				}
			}
		}
	}
	if len(out) == 0 {
		if name := strings.TrimSpace(stringField(entry, "artist", "artist_name")); name != "" {
			out = append(out, name)
		}
	}
	return out
}

func musicAssistantKey(mediaType string) string {
	switch mediaType {
	case "track":
		return "tracks"
	case "album":
		return "albums"
	case "artist":
		return "artists"
	case "playlist":
		return "playlists"
	case "radio":
		return "radio"
	default:
		return "tracks"
	}
}

func musicAssistantType(key string) string {
	switch key {
	case "tracks":
		return "track"
	case "albums":
		return "album"
	case "artists":
		return "artist"
	case "playlists":
		return "playlist"
	case "radio":
		return "radio"
	default:
		return "music"
	}
}

func stringField(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
