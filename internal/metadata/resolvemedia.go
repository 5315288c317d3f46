package metadata

import (
	"context"
	"reflect"
	"strings"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// ResolveMedia asks the alarm integration's resolve_media command for
// details of Plex, Jellyfin and DLNA selections.
type ResolveMedia struct {
	Remote ports.Remote
	kind   string
	// defaultProvider fills an empty provider after a merge.
	defaultProvider string
	// replyProvider lets the reply's provider win over defaultProvider.
	replyProvider bool
	// sendProvider adds the provider to the request.
	sendProvider bool
	// defaultType is sent when the selection has no type.
	defaultType string
	matches     func(provider, id string) bool
}

// Plex resolves media-source://plex/ and plex:// selections.
func Plex(remote ports.Remote) ResolveMedia {
	return ResolveMedia{
		Remote:          remote,
		kind:            "plex",
		defaultProvider: "plex",
		matches: func(provider, id string) bool {
			return strings.Contains(provider, "plex") ||
				strings.HasPrefix(id, "media-source://plex/") ||
				strings.HasPrefix(id, "plex://")
		},
	}
}

// Jellyfin resolves media-source://jellyfin/ selections. A selection tagged
// with another provider is left alone.
func Jellyfin(remote ports.Remote) ResolveMedia {
	return ResolveMedia{
		Remote:          remote,
		kind:            "jellyfin",
		defaultProvider: "jellyfin",
		replyProvider:   true,
		sendProvider:    true,
		defaultType:     "audio",
		matches: func(provider, id string) bool {
			if provider != "" && provider != "jellyfin" {
				return false
			}
			return provider == "jellyfin" || strings.HasPrefix(id, "media-source://jellyfin/")
		},
	}
}

// DLNA resolves media-source://dlna_dms/ and dlna:// selections.
func DLNA(remote ports.Remote) ResolveMedia {
	return ResolveMedia{
		Remote:          remote,
		kind:            "dlna",
		defaultProvider: "dlna_dms",
		replyProvider:   true,
		sendProvider:    true,
		matches: func(provider, id string) bool {
			return strings.Contains(provider, "dlna") ||
				strings.HasPrefix(id, "media-source://dlna_dms/") ||
				strings.HasPrefix(id, "dlna://")
		},
	}
}

func (p ResolveMedia) Name() string { return p.kind }

func (p ResolveMedia) Detect(sel mp.Selection, item *mp.MediaItem) (Request, bool) {
	id, typ, provider := sel.MediaContentID, sel.MediaContentType, sel.MediaContentProvider
	if item != nil {
		id = firstNonEmpty(id, item.MediaContentID)
		typ = firstNonEmpty(typ, item.MediaContentType)
		provider = firstNonEmpty(provider, item.Provider)
	}
	id = strings.TrimSpace(id)
	if id == "" || p.matches == nil {
		return Request{}, false
	}
	if !p.matches(strings.ToLower(strings.TrimSpace(provider)), strings.ToLower(id)) {
		return Request{}, false
	}
	return Request{Key: id, ID: id, Type: firstNonEmpty(typ, p.defaultType)}, true
}

func (p ResolveMedia) Fetch(ctx context.Context, req Request) (*mp.Metadata, bool, error) {
	body := mp.ResolveMetadataBody{MediaContentID: req.ID, MediaContentType: req.Type}
	if p.sendProvider {
		body.Provider = p.defaultProvider
	}
	md, err := p.Remote.ResolveMetadata(ctx, body)
	if err != nil {
		return nil, false, err
	}
	if emptyMetadata(md) {
		return nil, false, nil
	}
	return md, true, nil
}

// Merge fills gaps in the selection from md. Existing values always win.
func (p ResolveMedia) Merge(state form.State, item *mp.MediaItem, md *mp.Metadata) (form.State, bool) {
	sel := state.Selection
	if sel.MediaContentProvider == "" {
		if p.replyProvider && md.Provider != "" {
			sel.MediaContentProvider = md.Provider
		} else {
			sel.MediaContentProvider = p.defaultProvider
		}
	}
	meta := copyMetadata(sel.Metadata)

	if md.MediaContentType != "" && sel.MediaContentType == "" {
		sel.MediaContentType = md.MediaContentType
	}
	if md.Title != "" && sel.Title == "" {
		sel.Title = md.Title
	}
	if sel.MediaContentTitle == "" {
		sel.MediaContentTitle = firstNonEmpty(md.DisplayTitle, md.Title)
	}
	if md.Thumb != "" && sel.Thumbnail == "" {
		sel.Thumbnail = md.Thumb
	}
	if md.Artist != "" {
		setDefault(meta, "artist", md.Artist)
		setDefault(meta, "artist_name", md.Artist)
		if len(media.StringList(meta["artists"])) == 0 {
			meta["artists"] = []string{md.Artist}
		}
	}
	if md.Album != "" {
		setDefault(meta, "album", md.Album)
		setDefault(meta, "album_name", md.Album)
	}
	if !isZero(md.Duration) && isZero(meta["duration"]) {
		meta["duration"] = md.Duration
	}
	if len(meta) > 0 {
		sel.Metadata = meta
	}

	next := form.State{Selection: sel, Title: state.Title}
	if next.Title == "" {
		next.Title = firstNonEmpty(sel.MediaContentTitle, md.DisplayTitle, md.Title)
	}
	return next, !equalState(state, next)
}

func emptyMetadata(md *mp.Metadata) bool {
	if md == nil {
		return true
	}
	return md.MediaContentType == "" && md.Title == "" && md.DisplayTitle == "" && md.Thumb == "" &&
		md.Artist == "" && md.Album == "" && md.Provider == "" && isZero(md.Duration)
}

func isZero(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case float64:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	default:
		return false
	}
}

func copyMetadata(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func setDefault(meta map[string]any, key, value string) {
	if existing, ok := meta[key].(string); ok && existing != "" {
		return
	}
	meta[key] = value
}

func stringAt(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	value, _ := m[key].(string)
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func equalState(a, b form.State) bool {
	return reflect.DeepEqual(a, b)
}
