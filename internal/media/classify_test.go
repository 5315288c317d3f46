package media

import (
	"testing"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

func TestClassifyScenarios(t *testing.T) {
	tests := []struct {
		name     string
		item     mp.MediaItem
		expected Decision
	}{
		{"track", mp.MediaItem{CanPlay: true, MediaClass: "track"}, Include},
		{"camera folder", mp.MediaItem{CanExpand: true, MediaClass: "camera"}, Exclude},
		{"directory", mp.MediaItem{CanExpand: true, MediaClass: "directory"}, Probe},
		{"inert", mp.MediaItem{MediaClass: "music"}, Exclude},
		{"audio file", mp.MediaItem{CanPlay: true, MediaClass: "url", MediaContentID: "local/ring.OGG"}, Include},
		{"audio prefix", mp.MediaItem{CanPlay: true, MediaContentID: "media-source://radio_browser/x"}, Include},
		{"audio children", mp.MediaItem{CanExpand: true, MediaClass: "directory", ChildrenMediaClass: "track"}, Include},
		{"playable unknown", mp.MediaItem{CanPlay: true, MediaClass: "url", MediaContentID: "local/doc.pdf"}, Exclude},
		{"explicit empty", mp.MediaItem{CanExpand: true, MediaClass: "directory", Children: []mp.MediaItem{}}, Exclude},
		{"tts prefix", mp.MediaItem{CanPlay: true, MediaClass: "music", MediaContentID: "media-source://tts/google"}, Exclude},
		{"keyword title", mp.MediaItem{CanExpand: true, MediaClass: "directory", Title: "Security footage"}, Exclude},
		{"blocked children", mp.MediaItem{CanExpand: true, MediaClass: "directory", ChildrenMediaClass: "image"}, Exclude},
	}
	for _, test := range tests {
		if got := Classify(test.item); got != test.expected {
			t.Fatalf("%s: expected %s got %s", test.name, test.expected, got)
		}
	}
}

func TestClassifyNeitherFlagExcluded(t *testing.T) {
	classes := []string{"", "music", "track", "directory", "camera", "album", "podcast"}
	for _, class := range classes {
		item := mp.MediaItem{MediaClass: class, MediaContentID: "media-source://media_source/local/a.mp3"}
		if got := Classify(item); got != Exclude {
			t.Fatalf("class %q without flags expected exclude, got %s", class, got)
		}
	}
}

func TestClassifyBlockedClassExcluded(t *testing.T) {
	for class := range BlockedClasses {
		for _, flags := range [][2]bool{{true, false}, {false, true}, {true, true}} {
			item := mp.MediaItem{CanPlay: flags[0], CanExpand: flags[1], MediaClass: class, ChildrenMediaClass: "track"}
			if got := Classify(item); got != Exclude {
				t.Fatalf("blocked class %q (%v) expected exclude, got %s", class, flags, got)
			}
		}
	}
}

func TestKeywordsOnlyBlockNonPlayable(t *testing.T) {
	item := mp.MediaItem{CanPlay: true, MediaClass: "music", Title: "Photo Finish"}
	if IsBlocked(item) {
		t.Fatalf("playable item should not be blocked by keyword")
	}
	item.CanPlay = false
	item.CanExpand = true
	if !IsBlocked(item) {
		t.Fatalf("non-playable item should be blocked by keyword")
	}
}

func TestNormalizeCapabilitiesSpotifyPlaylist(t *testing.T) {
	item := mp.MediaItem{CanPlay: true, MediaContentType: "playlist", MediaContentID: "spotify:playlist:abc"}
	NormalizeCapabilities(&item)
	if !item.CanExpand {
		t.Fatalf("expected spotify playlist to be expandable")
	}
	other := mp.MediaItem{CanPlay: true, MediaContentType: "playlist", MediaContentID: "media-source://plex/1"}
	NormalizeCapabilities(&other)
	if other.CanExpand {
		t.Fatalf("non-spotify playlist should stay a leaf")
	}
}

func TestFormatName(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"media-source://media_source/local/alarms/gentle_wake-up.mp3", "Gentle wake up"},
		{"C:\\sounds\\rooster.wav", "Rooster"},
		{"local/morning - birds.flac?token=1", "Morning - birds"},
		{"archive.tar.gzipped", "Archive.tar.gzipped"},
		{"", ""},
		{"___", ""},
	}
	for _, test := range tests {
		if got := FormatName(test.in); got != test.expected {
			t.Fatalf("format %q expected %q got %q", test.in, test.expected, got)
		}
	}
}
