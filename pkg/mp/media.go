package mp

// Descriptor is the canonical address of a node in the remote media tree.
type Descriptor struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type,omitempty"`
}

// IsZero reports whether the descriptor addresses nothing.
func (d Descriptor) IsZero() bool {
	return d.ID == ""
}

// MediaItem is a tree node as returned by a browse or search call.
//
// Children is nil when the backend did not send any, and an empty non-nil
// slice when it explicitly reported none.
type MediaItem struct {
	CanPlay            bool           `json:"can_play"`
	CanExpand          bool           `json:"can_expand"`
	MediaContentID     string         `json:"media_content_id,omitempty"`
	MediaContentType   string         `json:"media_content_type,omitempty"`
	MediaClass         string         `json:"media_class,omitempty"`
	Title              string         `json:"title,omitempty"`
	Subtitle           string         `json:"subtitle,omitempty"`
	Thumbnail          string         `json:"thumbnail,omitempty"`
	ChildrenMediaClass string         `json:"children_media_class,omitempty"`
	Provider           string         `json:"media_content_provider,omitempty"`
	MediaSource        string         `json:"media_source,omitempty"`
	Artist             string         `json:"artist,omitempty"`
	ArtistName         string         `json:"artist_name,omitempty"`
	Album              string         `json:"album,omitempty"`
	AlbumName          string         `json:"album_name,omitempty"`
	Children           []MediaItem    `json:"children,omitempty"`
	Metadata           map[string]any `json:"metadata,omitempty"`
}

// Selection is the descriptor handed to the form layer once an item is picked.
type Selection struct {
	MediaContentID       string         `json:"media_content_id"`
	MediaContentType     string         `json:"media_content_type,omitempty"`
	MediaContentTitle    string         `json:"media_content_title,omitempty"`
	Title                string         `json:"title,omitempty"`
	Thumbnail            string         `json:"thumbnail,omitempty"`
	MediaContentProvider string         `json:"media_content_provider,omitempty"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	MediaBrowserPath     []Descriptor   `json:"media_browser_path,omitempty"`
}

// Clone returns a copy that shares no maps or slices with s.
func (s Selection) Clone() Selection {
	out := s
	if s.Metadata != nil {
		out.Metadata = make(map[string]any, len(s.Metadata))
		for k, v := range s.Metadata {
			out.Metadata[k] = v
		}
	}
	if s.MediaBrowserPath != nil {
		out.MediaBrowserPath = append([]Descriptor(nil), s.MediaBrowserPath...)
	}
	return out
}

// Metadata is the reply of the integration's resolve_media call.
type Metadata struct {
	MediaContentType string `json:"media_content_type,omitempty"`
	Title            string `json:"title,omitempty"`
	DisplayTitle     string `json:"display_title,omitempty"`
	Thumb            string `json:"thumb,omitempty"`
	Artist           string `json:"artist,omitempty"`
	Album            string `json:"album,omitempty"`
	Duration         any    `json:"duration,omitempty"`
	Provider         string `json:"provider,omitempty"`
}

// EntityState is one row of the live entity table.
type EntityState struct {
	EntityID   string         `json:"entity_id"`
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Platform   string         `json:"platform,omitempty"`
}

// StringAttr returns a string attribute or "".
func (e EntityState) StringAttr(name string) string {
	if e.Attributes == nil {
		return ""
	}
	if value, ok := e.Attributes[name].(string); ok {
		return value
	}
	return ""
}

// ConfigEntry is an integration config entry.
type ConfigEntry struct {
	EntryID string `json:"entry_id"`
	Domain  string `json:"domain"`
	Title   string `json:"title,omitempty"`
	State   string `json:"state,omitempty"`
}
