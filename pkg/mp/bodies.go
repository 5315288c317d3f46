package mp

import "encoding/json"

// Command types understood by gateway nodes.
const (
	CmdMediaBrowse          = "media.browse"
	CmdMediaSearch          = "media.search"
	CmdMediaResolve         = "media.resolve"
	CmdMediaResolveMetadata = "media.resolveMetadata"
	CmdServiceCall          = "service.call"
	CmdStatesList           = "states.list"
	CmdConfigEntriesList    = "configEntries.list"
)

// MediaBrowseBody is the payload for media.browse. Source selects the
// media_source tree instead of a player's own browse tree.
type MediaBrowseBody struct {
	EntityID         string `json:"entity_id,omitempty"`
	MediaContentID   string `json:"media_content_id,omitempty"`
	MediaContentType string `json:"media_content_type,omitempty"`
	Source           bool   `json:"source,omitempty"`
}

// MediaSearchBody is the payload for media.search.
type MediaSearchBody struct {
	EntityID           string   `json:"entity_id"`
	SearchQuery        string   `json:"search_query"`
	MediaFilterClasses []string `json:"media_filter_classes,omitempty"`
	MediaContentID     string   `json:"media_content_id,omitempty"`
	MediaContentType   string   `json:"media_content_type,omitempty"`
}

// MediaSearchReply is the reply body for media.search.
type MediaSearchReply struct {
	Result []MediaItem `json:"result"`
}

// MediaResolveBody is the payload for media.resolve.
type MediaResolveBody struct {
	MediaContentID string `json:"media_content_id"`
}

// MediaResolveReply is the reply body for media.resolve.
type MediaResolveReply struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type,omitempty"`
}

// ResolveMetadataBody is the payload for media.resolveMetadata.
type ResolveMetadataBody struct {
	MediaContentID   string `json:"media_content_id"`
	MediaContentType string `json:"media_content_type,omitempty"`
	Provider         string `json:"provider,omitempty"`
}

// ServiceCallBody is the payload for service.call.
type ServiceCallBody struct {
	Domain         string         `json:"domain"`
	Service        string         `json:"service"`
	ServiceData    map[string]any `json:"service_data,omitempty"`
	ReturnResponse bool           `json:"return_response,omitempty"`
}

// ServiceCallReply is the reply body for service.call.
type ServiceCallReply struct {
	Response json.RawMessage `json:"response,omitempty"`
}

// StatesListReply is the reply body for states.list.
type StatesListReply struct {
	States []EntityState `json:"states"`
}

// ConfigEntriesBody is the payload for configEntries.list.
type ConfigEntriesBody struct {
	Domain string `json:"domain"`
}

// ConfigEntriesReply is the reply body for configEntries.list.
type ConfigEntriesReply struct {
	Entries []ConfigEntry `json:"entries"`
}
