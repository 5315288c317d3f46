package podcastsource

import (
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// show carries the feed-level values episodes inherit when they have none.
type show struct {
	author string
	image  string
}

func showOf(feed *gofeed.Feed) show {
	var s show
	if feed.Author != nil {
		s.author = feed.Author.Name
	}
	if feed.Image != nil {
		s.image = feed.Image.URL
	}
	if it := feed.ITunesExt; it != nil {
		s.author = orElse(s.author, it.Author)
		s.image = orElse(s.image, it.Image)
	}
	s.author = strings.TrimSpace(s.author)
	return s
}

// episodeOf flattens a feed item into a cached episode. Items with nothing
// to key them by are dropped.
func episodeOf(feedID string, parent show, item *gofeed.Item) (cachedEpisode, bool) {
	if item == nil {
		return cachedEpisode{}, false
	}
	audioURL, audioType := pickEnclosure(item)
	key := orElse(item.GUID, audioURL, item.Link, item.Title)
	if key == "" {
		return cachedEpisode{}, false
	}

	var author, image, length string
	if item.Author != nil {
		author = item.Author.Name
	}
	if item.Image != nil {
		image = item.Image.URL
	}
	if it := item.ITunesExt; it != nil {
		author = orElse(author, it.Author)
		image = orElse(image, it.Image)
		length = it.Duration
	}

	return cachedEpisode{
		ID:          hashID("episode", feedID+":"+key),
		Title:       orElse(item.Title, key),
		Description: strings.TrimSpace(item.Description),
		Published:   unixOrZero(item.PublishedParsed),
		DurationMS:  episodeLength(length).Milliseconds(),
		AudioURL:    audioURL,
		AudioType:   audioType,
		ImageURL:    orElse(image, parent.image),
		Author:      orElse(author, parent.author),
	}, true
}

// pickEnclosure prefers audio enclosures; video-only episodes are useless
// as alarm sounds.
func pickEnclosure(item *gofeed.Item) (string, string) {
	var fallbackURL, fallbackType string
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "audio/") {
			return enc.URL, enc.Type
		}
		if fallbackURL == "" && !strings.HasPrefix(strings.ToLower(enc.Type), "video/") {
			fallbackURL, fallbackType = enc.URL, enc.Type
		}
	}
	return fallbackURL, fallbackType
}

var lengthUnits = []time.Duration{time.Second, time.Minute, time.Hour}

// episodeLength reads itunes:duration written as "90", "1:30" or "1:01:30".
func episodeLength(raw string) time.Duration {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) > len(lengthUnits) {
		return 0
	}
	var total time.Duration
	for i, unit := range lengthUnits[:len(parts)] {
		n, err := strconv.Atoi(strings.TrimSpace(parts[len(parts)-1-i]))
		if err != nil || n < 0 {
			return 0
		}
		total += time.Duration(n) * unit
	}
	return total
}

func unixOrZero(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.Unix()
}

func orElse(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
