package players

import (
	"sort"
	"strings"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Family groups players by the integration that backs them.
type Family string

const (
	FamilyUnknown        Family = "unknown"
	FamilySpotify        Family = "spotify"
	FamilyMusicAssistant Family = "music_assistant"
	FamilyHomeAssistant  Family = "home_assistant"
)

// SearchSupport names the search mechanism a player offers.
type SearchSupport string

const (
	SearchNone           SearchSupport = ""
	SearchMusicAssistant SearchSupport = "music_assistant"
	SearchMediaSource    SearchSupport = "media_source"
)

const playerPrefix = "media_player."

var (
	spotifyPlatforms       = map[string]struct{}{"spotify": {}, "spotifyplus": {}}
	browseBlockedPlatforms = map[string]struct{}{"spotify": {}}
)

// Directory answers capability questions from a snapshot of entity states.
type Directory struct {
	states map[string]mp.EntityState
}

// NewDirectory indexes states by entity id.
func NewDirectory(states []mp.EntityState) Directory {
	index := make(map[string]mp.EntityState, len(states))
	for _, state := range states {
		index[state.EntityID] = state
	}
	return Directory{states: index}
}

// Player returns the state of one entity.
func (d Directory) Player(entityID string) (mp.EntityState, bool) {
	state, ok := d.states[entityID]
	return state, ok
}

// Players returns every media player sorted by entity id.
func (d Directory) Players() []mp.EntityState {
	out := make([]mp.EntityState, 0, len(d.states))
	for id, state := range d.states {
		if strings.HasPrefix(id, playerPrefix) {
			out = append(out, state)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Name returns the friendly name of a player, or its entity id.
func (d Directory) Name(entityID string) string {
	if state, ok := d.states[entityID]; ok {
		if name := strings.TrimSpace(state.StringAttr("friendly_name")); name != "" {
			return name
		}
	}
	return entityID
}

// Platform returns the lowercased integration platform of an entity.
func (d Directory) Platform(entityID string) string {
	return strings.ToLower(strings.TrimSpace(d.states[entityID].Platform))
}

// Family classifies a player by platform and Music Assistant attributes.
func (d Directory) Family(entityID string) Family {
	if entityID == "" {
		return FamilyUnknown
	}
	state := d.states[entityID]
	platform := d.Platform(entityID)
	if _, ok := spotifyPlatforms[platform]; ok && platform != "" {
		return FamilySpotify
	}
	if platform == string(FamilyMusicAssistant) || hasAttr(state, "mass_player_type") || hasAttr(state, "mass_provider") || hasAttr(state, "ma_source") {
		return FamilyMusicAssistant
	}
	if platform != "" && strings.Contains(platform, "spotify") {
		return FamilySpotify
	}
	if strings.HasPrefix(entityID, playerPrefix+"spotify") {
		return FamilySpotify
	}
	return FamilyHomeAssistant
}

// SupportsBrowser reports whether the player exposes a browse tree. The
// plain Spotify integration does not.
func (d Directory) SupportsBrowser(entityID string) bool {
	if entityID == "" {
		return false
	}
	platform := d.Platform(entityID)
	if _, ok := browseBlockedPlatforms[platform]; ok {
		return false
	}
	if platform == "" && strings.HasPrefix(entityID, playerPrefix+"spotify") {
		return false
	}
	return true
}

// SearchSupport reports which search mechanism the player offers.
func (d Directory) SearchSupport(entityID string) SearchSupport {
	if !d.SupportsBrowser(entityID) {
		return SearchNone
	}
	state, ok := d.states[entityID]
	if !ok {
		return SearchNone
	}
	if hasAttr(state, "mass_player_type") {
		return SearchMusicAssistant
	}
	return SearchMediaSource
}

// IsSpotifyPlus reports players backed by the SpotifyPlus integration.
func (d Directory) IsSpotifyPlus(entityID string) bool {
	return entityID != "" && d.Platform(entityID) == "spotifyplus"
}

// SpotifyPlusPlayers lists SpotifyPlus players sorted by entity id.
func (d Directory) SpotifyPlusPlayers() []string {
	var out []string
	for id := range d.states {
		if strings.HasPrefix(id, playerPrefix) && d.IsSpotifyPlus(id) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// MetadataPlayer picks the SpotifyPlus player used for metadata lookups,
// preferring the given player or one sharing its object id.
func (d Directory) MetadataPlayer(preferred string) string {
	preferred = strings.TrimSpace(preferred)
	if preferred != "" && d.IsSpotifyPlus(preferred) {
		return preferred
	}
	candidates := d.SpotifyPlusPlayers()
	if len(candidates) == 0 {
		return ""
	}
	if preferred != "" {
		suffix := strings.TrimPrefix(preferred, playerPrefix)
		for _, candidate := range candidates {
			if strings.HasSuffix(candidate, suffix) {
				return candidate
			}
		}
	}
	return candidates[0]
}

func hasAttr(state mp.EntityState, name string) bool {
	if state.Attributes == nil {
		return false
	}
	value, ok := state.Attributes[name]
	if !ok || value == nil {
		return false
	}
	switch v := value.(type) {
	case string:
		return v != ""
	case bool:
		return v
	default:
		return true
	}
}
