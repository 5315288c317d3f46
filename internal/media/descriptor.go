package media

import (
	"regexp"
	"strings"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

const mediaSourceScheme = "media-source://"

// TypeIDFallbacks maps a bare content type to the tree address it stands for
// when an item carries no id of its own.
var TypeIDFallbacks = map[string]string{
	"plex": "media-source://plex",
}

// Normalize turns any descriptor-like value into a trimmed Descriptor. The
// type is kept only when an id is present. Provider URIs are preserved as-is;
// use Key for lookups.
func Normalize(value any) mp.Descriptor {
	var id, typ string
	switch v := value.(type) {
	case nil:
		return mp.Descriptor{}
	case string:
		id = v
	case mp.Descriptor:
		id, typ = v.ID, v.Type
	case *mp.Descriptor:
		if v == nil {
			return mp.Descriptor{}
		}
		id, typ = v.ID, v.Type
	case mp.MediaItem:
		id, typ = ItemID(v), v.MediaContentType
	case *mp.MediaItem:
		if v == nil {
			return mp.Descriptor{}
		}
		id, typ = ItemID(*v), v.MediaContentType
	case mp.Selection:
		id, typ = v.MediaContentID, v.MediaContentType
	case *mp.Selection:
		if v == nil {
			return mp.Descriptor{}
		}
		id, typ = v.MediaContentID, v.MediaContentType
	case map[string]any:
		id = firstString(v, "id", "media_content_id")
		typ = firstString(v, "type", "media_content_type")
	default:
		return mp.Descriptor{}
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return mp.Descriptor{}
	}
	return mp.Descriptor{ID: id, Type: strings.TrimSpace(typ)}
}

// ItemID returns the address an item should be browsed or selected by.
func ItemID(item mp.MediaItem) string {
	if id := strings.TrimSpace(item.MediaContentID); id != "" {
		return id
	}
	if src := strings.TrimSpace(item.MediaSource); src != "" {
		return src
	}
	if fallback, ok := TypeIDFallbacks[lower(item.MediaContentType)]; ok {
		return fallback
	}
	return ""
}

// CanonicalID maps an id onto the media-source address space where possible.
func CanonicalID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if strings.HasPrefix(id, mediaSourceScheme) {
		return id
	}
	if converted := ConvertProviderURI(id); converted != "" {
		return converted
	}
	if strings.HasPrefix(strings.ToLower(id), "https://open.spotify.com/") {
		if parsed, ok := ParseSpotify(id, ""); ok && parsed.Type != "" {
			return mediaSourceScheme + "spotify/" + parsed.Type + "/" + parsed.ID
		}
	}
	if converted := MediaSourceIDFromPath(id); converted != "" {
		return converted
	}
	return id
}

// Key is the case-insensitive cache key for a descriptor: lower(type)|canonical id.
func Key(d mp.Descriptor) string {
	canonical := CanonicalID(d.ID)
	if canonical == "" {
		return ""
	}
	return lower(d.Type) + "|" + canonical
}

// ItemKey is Key for a browse item.
func ItemKey(item mp.MediaItem) string {
	return Key(mp.Descriptor{ID: item.MediaContentID, Type: item.MediaContentType})
}

// SelectionKeys returns the typed key followed by the wildcard key.
func SelectionKeys(d mp.Descriptor) []string {
	typed := Key(d)
	if typed == "" {
		return nil
	}
	wildcard := Key(mp.Descriptor{ID: d.ID})
	if typed == wildcard {
		return []string{typed}
	}
	return []string{typed, wildcard}
}

// ContextKey identifies a visible browse location for a target player.
func ContextKey(target string, d mp.Descriptor) string {
	scope := CanonicalID(d.ID)
	if scope == "" {
		scope = "root"
	}
	return target + "|" + scope + "|" + lower(d.Type)
}

// SanitizePath drops empty and repeated breadcrumbs. Local media paths are
// rewritten to media_source addresses; every other id, provider URIs
// included, is kept as the remote knows it. Repeats are matched on the
// canonical id.
func SanitizePath(path []mp.Descriptor) []mp.Descriptor {
	out := make([]mp.Descriptor, 0, len(path))
	seen := make(map[string]struct{}, len(path))
	for _, entry := range path {
		id := strings.TrimSpace(entry.ID)
		if local := MediaSourceIDFromPath(id); local != "" {
			id = local
		}
		if id == "" {
			continue
		}
		key := CanonicalID(id)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, mp.Descriptor{ID: id, Type: strings.TrimSpace(entry.Type)})
	}
	return out
}

var httpPathPattern = regexp.MustCompile(`(?i)^https?://[^/]+(/.*)$`)

// MediaSourceIDFromPath converts a local media path or URL into a
// media_source address. It returns "" when the value is not local media.
func MediaSourceIDFromPath(candidate string) string {
	value := strings.TrimSpace(candidate)
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, mediaSourceScheme) {
		return value
	}
	if match := httpPathPattern.FindStringSubmatch(value); match != nil {
		value = match[1]
	}
	relative := strings.TrimLeft(value, "/")
	switch {
	case strings.HasPrefix(relative, "media/"):
		relative = strings.TrimPrefix(relative, "media/")
		if !strings.HasPrefix(relative, "local/") {
			relative = "local/" + relative
		}
	case strings.HasPrefix(relative, "local/"):
	case strings.HasPrefix(relative, "media_source/"):
		relative = strings.TrimPrefix(relative, "media_source/")
	default:
		return ""
	}
	if relative == "" {
		return ""
	}
	return mediaSourceScheme + "media_source/" + relative
}

// ConvertProviderURI turns spotify: and spotify:// ids into media-source
// addresses. Other values yield "".
func ConvertProviderURI(identifier string) string {
	payload := strings.TrimSpace(identifier)
	if payload == "" {
		return ""
	}
	lowered := strings.ToLower(payload)
	switch {
	case strings.HasPrefix(lowered, "spotify://"):
		payload = payload[len("spotify://"):]
	case strings.HasPrefix(lowered, "spotify:"):
		payload = payload[len("spotify:"):]
	default:
		return ""
	}
	normalized := colonRuns.ReplaceAllString(payload, "/")
	if normalized == "" {
		return ""
	}
	return mediaSourceScheme + "spotify/" + normalized
}

var colonRuns = regexp.MustCompile(`:+`)

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := m[key].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func lower(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
