package media

import (
	"strings"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// SubtitleSeparator joins subtitle parts.
const SubtitleSeparator = " · "

// BuildTitle returns the display title for a selection. Spotify tracks and
// albums get "Artist - Title" unless the title already names the artist.
func BuildTitle(sel mp.Selection, item *mp.MediaItem) string {
	var itemTitle, itemID, itemProvider, itemType string
	if item != nil {
		itemTitle, itemID, itemProvider, itemType = item.Title, item.MediaContentID, item.Provider, item.MediaContentType
	}
	fallback := firstNonEmpty(sel.MediaContentTitle, sel.Title, itemTitle)
	if fallback == "" {
		fallback = FormatName(itemID)
	}

	provider := strings.ToLower(firstNonEmpty(sel.MediaContentProvider, itemProvider))
	parsed, isParsed := ParseSpotify(firstNonEmpty(sel.MediaContentID, itemID), "")
	if !strings.Contains(provider, "spotify") && !isParsed {
		return fallback
	}
	typ := lower(firstNonEmpty(sel.MediaContentType, itemType, parsed.Type))
	if typ != "track" && typ != "album" {
		return fallback
	}

	artist := metadataArtist(sel.Metadata)
	if artist == "" && item != nil {
		artist = metadataArtist(item.Metadata)
	}
	if artist == "" && item != nil {
		artist = firstNonEmpty(item.Artist, item.ArtistName)
	}
	if artist == "" && item != nil && strings.Contains(item.Subtitle, SubtitleSeparator) {
		artist = strings.SplitN(item.Subtitle, SubtitleSeparator, 2)[0]
	}
	artist = strings.TrimSpace(artist)
	title := strings.TrimSpace(fallback)
	if artist == "" || title == "" {
		return fallback
	}
	if strings.Contains(strings.ToLower(title), strings.ToLower(artist)) {
		return title
	}
	return artist + " - " + title
}

func metadataArtist(metadata map[string]any) string {
	if metadata == nil {
		return ""
	}
	if artists := StringList(metadata["artists"]); len(artists) > 0 {
		return artists[0]
	}
	for _, key := range []string{"artist", "artist_name", "artistLabel"} {
		if value, ok := metadata[key].(string); ok && value != "" {
			return value
		}
	}
	return ""
}

// StringList reads a []string or []any of strings from a loosely typed value.
func StringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, entry := range v {
			if s, ok := entry.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
		return out
	default:
		return nil
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
