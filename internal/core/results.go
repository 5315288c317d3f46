package core

import (
	"github.com/mikey-austin/media_picker/internal/picker"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// PlayerInfo describes one media player and what the picker can do with it.
type PlayerInfo struct {
	EntityID string                `json:"entity_id"`
	Name     string                `json:"name"`
	State    string                `json:"state"`
	Platform string                `json:"platform,omitempty"`
	Family   players.Family        `json:"family"`
	Browse   bool                  `json:"browse"`
	Search   players.SearchSupport `json:"search,omitempty"`
}

// PlayersResult holds the player listing.
type PlayersResult struct {
	Players []PlayerInfo `json:"players"`
}

// NodesResult holds a list of presence records.
type NodesResult struct {
	Nodes []mp.Presence `json:"nodes"`
}

// BrowseResult holds the settled view of one browse location.
type BrowseResult struct {
	View picker.View `json:"view"`
}

// SearchResult holds search hits and how they were found.
type SearchResult struct {
	Query     string            `json:"query"`
	Options   picker.Options    `json:"options"`
	Results   []mp.MediaItem    `json:"results"`
	Telemetry *picker.Telemetry `json:"telemetry,omitempty"`
}

// PickResult holds the selection after metadata enrichment.
type PickResult struct {
	Selection mp.Selection `json:"selection"`
	Title     string       `json:"title"`
}

// ResolveResult holds a playable URL for a media source id.
type ResolveResult struct {
	ID    string               `json:"media_content_id"`
	Reply mp.MediaResolveReply `json:"resolved"`
}

// PathResult holds a remembered breadcrumb path.
type PathResult struct {
	Key   string          `json:"key"`
	Found bool            `json:"found"`
	Path  []mp.Descriptor `json:"path,omitempty"`
}
