package gatewaynode

import (
	"strings"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Platform tags the players served by local gateway nodes.
const Platform = "mpickd"

// supportBrowseMedia is the media player feature bit for browse_media.
const supportBrowseMedia = 131072

// PlayerEntityID derives a stable media_player entity id from a node id.
func PlayerEntityID(nodeID string) string {
	return "media_player." + Slug(nodeID)
}

// Slug lowercases a node id and folds every other character run into "_".
func Slug(nodeID string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(nodeID) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastUnderscore = false
			continue
		}
		if !lastUnderscore && b.Len() > 0 {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	slug := strings.TrimRight(b.String(), "_")
	if slug == "" {
		slug = "gateway"
	}
	return slug
}

// Player is the single browsable player a source node exposes so that
// pickers can target its tree.
func Player(nodeID, name string) mp.EntityState {
	return mp.EntityState{
		EntityID: PlayerEntityID(nodeID),
		State:    "idle",
		Platform: Platform,
		Attributes: map[string]any{
			"friendly_name":      name,
			"supported_features": supportBrowseMedia,
		},
	}
}
