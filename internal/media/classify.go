package media

import (
	"regexp"
	"strings"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Decision is the classifier verdict for one browse item.
type Decision string

const (
	Include Decision = "include"
	Exclude Decision = "exclude"
	Probe   Decision = "probe"
)

// AudioClasses are media classes treated as audio. Plain directories are not
// listed; they are probed.
var AudioClasses = setOf(
	"music", "audio", "album", "artist", "track", "playlist", "podcast",
	"genre", "radio", "collection", "library", "channel", "app",
)

// AudioContentTypes are content types treated as audio.
var AudioContentTypes = setOf(
	"music", "audio", "album", "artist", "track", "playlist", "podcast",
	"radio", "genre", "library",
)

// BlockedClasses are never shown, whatever else the item claims.
var BlockedClasses = setOf(
	"image", "photo", "picture", "camera", "video", "movie", "episode",
	"tv_show", "app_camera",
)

// AudioSourcePrefixes are tree addresses known to hold audio.
var AudioSourcePrefixes = []string{
	"media-source://media_source/local",
	"media-source://media_source/reminders",
	"media-source://media_source/alarms",
	"media-source://radio_browser",
	"media-source://spotify",
	"media-source://soundcloud",
	"media-source://pandora",
	"media-source://ma",
	"media-source://music_assistant",
	"media-source://youtube_music",
	"media-source://plex",
	"media-source://jellyfin",
}

// BlockedSourcePrefixes are tree addresses known to hold no audio.
var BlockedSourcePrefixes = []string{
	"media-source://ai_task",
	"media-source://camera",
	"media-source://frigate",
	"media-source://image",
	"media-source://image_upload",
	"media-source://nest",
	"media-source://reolink",
	"media-source://tts",
	"media-source://text_to_speech",
}

// BlockedKeywords exclude non-playable items whose id or title mention them.
var BlockedKeywords = []string{
	"camera", "image", "images", "photo", "photos", "snapshot",
	"ai_generated", "ai generated", "generated images", "generated_image",
	"security", "text-to-speech", "text_to_speech", "text to speech",
}

// SearchFilterClasses is the default class filter for native search.
var SearchFilterClasses = []string{"music", "track", "album", "artist", "playlist", "genre", "podcast"}

var audioExtension = regexp.MustCompile(`(?i)\.(mp3|wav|ogg|oga|opus|flac|aac|m4a|m4b)$`)

// Classify decides whether an item is shown, hidden, or needs a probe.
// The first matching rule wins.
func Classify(item mp.MediaItem) Decision {
	switch {
	case !item.CanPlay && !item.CanExpand:
		return Exclude
	case IsBlocked(item):
		return Exclude
	case item.CanPlay && LooksAudio(item):
		return Include
	case item.CanExpand && LooksAudioContainer(item):
		return Include
	case item.CanPlay:
		return Exclude
	case LooksEmpty(item):
		return Exclude
	default:
		return Probe
	}
}

// IsBlocked reports items that must never be shown.
func IsBlocked(item mp.MediaItem) bool {
	class := lower(item.MediaClass)
	contentType := lower(item.MediaContentType)
	childrenClass := lower(item.ChildrenMediaClass)
	if has(BlockedClasses, class) || has(BlockedClasses, contentType) || (childrenClass != "" && has(BlockedClasses, childrenClass)) {
		return true
	}
	id := strings.ToLower(item.MediaContentID)
	if id != "" && hasAnyPrefix(id, BlockedSourcePrefixes) {
		return true
	}
	if item.CanPlay {
		return false
	}
	title := strings.ToLower(item.Title)
	for _, keyword := range BlockedKeywords {
		if id != "" && strings.Contains(id, keyword) {
			return true
		}
		if title != "" && strings.Contains(title, keyword) {
			return true
		}
	}
	return false
}

// LooksAudio reports items whose class, type, file extension or address
// marks them as audio.
func LooksAudio(item mp.MediaItem) bool {
	if has(AudioClasses, lower(item.MediaClass)) || has(AudioContentTypes, lower(item.MediaContentType)) {
		return true
	}
	id := item.MediaContentID
	if id == "" {
		id = item.MediaSource
	}
	id = strings.ToLower(id)
	if id == "" {
		return false
	}
	return audioExtension.MatchString(id) || hasAnyPrefix(id, AudioSourcePrefixes)
}

// LooksAudioContainer reports expandable items expected to hold audio.
func LooksAudioContainer(item mp.MediaItem) bool {
	if childrenClass := lower(item.ChildrenMediaClass); childrenClass != "" && has(AudioClasses, childrenClass) {
		return true
	}
	if LooksAudio(item) {
		return true
	}
	id := strings.ToLower(item.MediaContentID)
	return id != "" && hasAnyPrefix(id, AudioSourcePrefixes)
}

// LooksEmpty reports containers that are known to hold nothing useful.
func LooksEmpty(item mp.MediaItem) bool {
	if item.Children != nil && len(item.Children) == 0 {
		return true
	}
	if item.CanExpand && !item.CanPlay {
		if childrenClass := lower(item.ChildrenMediaClass); childrenClass != "" && has(BlockedClasses, childrenClass) {
			return true
		}
		if class := lower(item.MediaClass); class != "" && has(BlockedClasses, class) {
			return true
		}
	}
	return false
}

// NormalizeCapabilities marks Spotify playlists as expandable; some
// providers report them as leaf items.
func NormalizeCapabilities(item *mp.MediaItem) {
	if item == nil || item.CanExpand {
		return
	}
	typ := item.MediaContentType
	if typ == "" {
		typ = item.MediaClass
	}
	if lower(typ) != "playlist" {
		return
	}
	if strings.EqualFold(item.Provider, "spotify") || strings.HasPrefix(strings.ToLower(item.MediaContentID), "spotify") {
		item.CanExpand = true
	}
}

func setOf(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func has(set map[string]struct{}, value string) bool {
	if value == "" {
		return false
	}
	_, ok := set[value]
	return ok
}

func hasAnyPrefix(value string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
