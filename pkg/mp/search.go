package mp

import (
	"encoding/json"
	"fmt"
)

type searchCandidate struct {
	MediaContentID   string         `json:"media_content_id"`
	ID               string         `json:"id"`
	MediaID          string         `json:"mediaId"`
	MediaContentType string         `json:"media_content_type"`
	MediaClass       string         `json:"media_class"`
	Title            string         `json:"title"`
	Thumbnail        string         `json:"thumbnail"`
	Image            string         `json:"image"`
	Provider         string         `json:"media_content_provider"`
	ProviderAlt      string         `json:"provider"`
	Artist           string         `json:"artist"`
	ArtistName       string         `json:"artist_name"`
	Album            string         `json:"album"`
	AlbumName        string         `json:"album_name"`
	CanPlay          *bool          `json:"can_play"`
	CanExpand        *bool          `json:"can_expand"`
	Metadata         map[string]any `json:"metadata"`
}

type searchEnvelope struct {
	Result   []json.RawMessage `json:"result"`
	Media    []json.RawMessage `json:"media"`
	Items    []json.RawMessage `json:"items"`
	Children []json.RawMessage `json:"children"`
}

// DecodeSearchResults reads a native search response. Backends answer with a
// bare list or wrap it in result, media, items or children; every list found
// is used. Items without an id are dropped and ids are deduplicated.
// can_play defaults to true and can_expand to false.
func DecodeSearchResults(raw json.RawMessage) ([]MediaItem, error) {
	var lists [][]json.RawMessage
	var bare []json.RawMessage
	if err := json.Unmarshal(raw, &bare); err == nil {
		lists = append(lists, bare)
	} else {
		var envelope searchEnvelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return nil, fmt.Errorf("decode search response: %w", err)
		}
		lists = append(lists, envelope.Result, envelope.Media, envelope.Items, envelope.Children)
	}

	seen := map[string]struct{}{}
	var out []MediaItem
	for _, list := range lists {
		for _, entry := range list {
			var c searchCandidate
			if err := json.Unmarshal(entry, &c); err != nil {
				continue
			}
			id := c.MediaContentID
			if id == "" {
				id = c.ID
			}
			if id == "" {
				id = c.MediaID
			}
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			item := MediaItem{
				CanPlay:          c.CanPlay == nil || *c.CanPlay,
				CanExpand:        c.CanExpand != nil && *c.CanExpand,
				MediaContentID:   id,
				MediaContentType: c.MediaContentType,
				MediaClass:       c.MediaClass,
				Title:            c.Title,
				Thumbnail:        c.Thumbnail,
				Provider:         c.Provider,
				Artist:           c.Artist,
				ArtistName:       c.ArtistName,
				Album:            c.Album,
				AlbumName:        c.AlbumName,
				Metadata:         c.Metadata,
			}
			if item.Thumbnail == "" {
				item.Thumbnail = c.Image
			}
			if item.Provider == "" {
				item.Provider = c.ProviderAlt
			}
			out = append(out, item)
		}
	}
	return out, nil
}
