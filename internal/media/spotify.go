package media

import (
	"net/url"
	"regexp"
	"strings"
)

// SpotifyRef is a parsed Spotify identifier.
type SpotifyRef struct {
	ID   string
	Type string
	URI  string
}

var (
	spotifyKnownTypes = map[string]struct{}{
		"track": {}, "album": {}, "artist": {}, "playlist": {}, "show": {}, "episode": {},
	}
	spotifyBareID = regexp.MustCompile(`(?i)^[a-z0-9]{22}$`)
	queryFragment = regexp.MustCompile(`[?#].*$`)
)

// ParseSpotify recognizes spotify:, spotify://, media-source://spotify/,
// open.spotify.com links and bare 22 character ids.
func ParseSpotify(value, fallbackType string) (SpotifyRef, bool) {
	working := strings.TrimSpace(value)
	if working == "" {
		return SpotifyRef{}, false
	}
	var ref SpotifyRef
	assign := func(parts []string) {
		for i := 0; i < len(parts); i++ {
			segment := strings.ToLower(parts[i])
			if segment == "" {
				continue
			}
			if segment == "user" {
				i++
				continue
			}
			if _, ok := spotifyKnownTypes[segment]; ok {
				if i+1 < len(parts) && parts[i+1] != "" {
					ref.Type, ref.ID = segment, parts[i+1]
				}
				return
			}
		}
	}

	lowered := strings.ToLower(working)
	switch {
	case strings.HasPrefix(lowered, "media-source://spotify/"):
		assign(splitNonEmpty(queryFragment.ReplaceAllString(working[len("media-source://spotify/"):], ""), "/"))
	case strings.HasPrefix(lowered, "spotify://"):
		assign(splitNonEmpty(queryFragment.ReplaceAllString(working[len("spotify://"):], ""), "/"))
	case strings.HasPrefix(lowered, "spotify:"):
		parts := splitNonEmpty(working, ":")
		if len(parts) > 0 {
			assign(parts[1:])
		}
	case strings.HasPrefix(lowered, "https://open.spotify.com/"):
		parsed, err := url.Parse(working)
		if err != nil {
			break
		}
		segments := splitNonEmpty(parsed.Path, "/")
		assign(segments)
		if ref.ID == "" && len(segments) >= 2 {
			ref.Type, ref.ID = segments[0], segments[1]
		}
	case spotifyBareID.MatchString(working):
		ref.ID = working
		ref.Type = fallbackType
	}

	if ref.ID == "" {
		return SpotifyRef{}, false
	}
	if ref.Type == "" {
		ref.Type = lower(fallbackType)
	}
	if ref.Type != "" {
		ref.URI = "spotify:" + ref.Type + ":" + ref.ID
	} else {
		ref.URI = working
	}
	return ref, true
}

// IsSpotifyID reports whether value parses as any Spotify identifier form
// other than a bare id.
func IsSpotifyID(value string) bool {
	if spotifyBareID.MatchString(strings.TrimSpace(value)) {
		return false
	}
	_, ok := ParseSpotify(value, "")
	return ok
}

// MapSpotifyLookupType folds plural and alias type names onto the lookup
// types the Spotify companion integration understands.
func MapSpotifyLookupType(value string) string {
	normalized := lower(value)
	switch normalized {
	case "songs", "song":
		return "track"
	case "albums":
		return "album"
	case "artists":
		return "artist"
	case "playlists":
		return "playlist"
	case "episodes":
		return "episode"
	case "shows", "podcast", "podcasts":
		return "show"
	default:
		return normalized
	}
}

func splitNonEmpty(value, sep string) []string {
	raw := strings.Split(value, sep)
	out := raw[:0]
	for _, part := range raw {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
