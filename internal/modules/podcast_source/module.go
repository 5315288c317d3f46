package podcastsource

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/modules/gatewaynode"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const (
	rootID        = "podcast://"
	feedPrefix    = "podcast://feed/"
	episodePrefix = "podcast://episode/"
	provider      = "podcast"
)

// Config configures the podcast source module.
type Config struct {
	NodeID            string
	TopicBase         string
	Name              string
	Feeds             []string
	RefreshInterval   time.Duration
	CacheDir          string
	Timeout           time.Duration
	ReverseSortByDate bool
}

// Module exposes podcast feeds as a browsable media tree.
type Module struct {
	log     *zap.Logger
	client  gatewaynode.Client
	http    *retryablehttp.Client
	config  Config
	cacheMu sync.Mutex
	feeds   map[string]*feedCache
	now     func() time.Time
}

type feedCache struct {
	Feed cachedFeed
	ByID map[string]cachedEpisode
}

type cachedFeed struct {
	FeedURL     string          `json:"feedUrl"`
	FeedID      string          `json:"feedId"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Author      string          `json:"author"`
	ImageURL    string          `json:"imageUrl"`
	FetchedAt   int64           `json:"fetchedAt"`
	Episodes    []cachedEpisode `json:"episodes"`
}

type cachedEpisode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Published   int64  `json:"published"`
	DurationMS  int64  `json:"durationMs"`
	AudioURL    string `json:"audioUrl"`
	AudioType   string `json:"audioType"`
	ImageURL    string `json:"imageUrl"`
	Author      string `json:"author"`
}

// NewModule initializes a podcast source module.
func NewModule(log *zap.Logger, client gatewaynode.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if len(cfg.Feeds) == 0 {
		return nil, errors.New("feeds required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Podcasts"
	}
	if cfg.RefreshInterval == 0 {
		cfg.RefreshInterval = 24 * time.Hour
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if strings.TrimSpace(cfg.CacheDir) == "" {
		cfg.CacheDir = defaultCacheDir()
	}
	if err := os.MkdirAll(cfg.CacheDir, 0o750); err != nil {
		return nil, err
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 2
	httpClient.RetryWaitMin = 200 * time.Millisecond
	httpClient.RetryWaitMax = 2 * time.Second
	httpClient.HTTPClient.Timeout = cfg.Timeout
	httpClient.Logger = retryLogger{log: log.Sugar()}

	return &Module{
		log:    log,
		client: client,
		http:   httpClient,
		config: cfg,
		feeds:  make(map[string]*feedCache),
		now:    time.Now,
	}, nil
}

// Run serves the podcast tree until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	node, err := m.node()
	if err != nil {
		return err
	}
	return node.Run(ctx)
}

func (m *Module) node() (*gatewaynode.Node, error) {
	node, err := gatewaynode.New(m.log, m.client, gatewaynode.Config{
		NodeID:    m.config.NodeID,
		TopicBase: m.config.TopicBase,
		Name:      m.config.Name,
		Caps: map[string]any{
			"browse":  true,
			"search":  false,
			"resolve": true,
		},
	})
	if err != nil {
		return nil, err
	}
	node.Handle(mp.CmdMediaBrowse, m.mediaBrowse)
	node.Handle(mp.CmdMediaSearch, func(context.Context, mp.CommandEnvelope) (any, error) {
		return nil, gatewaynode.NotSupported("podcast source has no native search")
	})
	node.Handle(mp.CmdMediaResolve, m.mediaResolve)
	node.Handle(mp.CmdMediaResolveMetadata, m.mediaResolveMetadata)
	node.Handle(mp.CmdStatesList, func(context.Context, mp.CommandEnvelope) (any, error) {
		return mp.StatesListReply{States: []mp.EntityState{gatewaynode.Player(m.config.NodeID, m.config.Name)}}, nil
	})
	node.Handle(mp.CmdConfigEntriesList, func(context.Context, mp.CommandEnvelope) (any, error) {
		return mp.ConfigEntriesReply{Entries: []mp.ConfigEntry{}}, nil
	})
	return node, nil
}

func (m *Module) mediaBrowse(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
	var body mp.MediaBrowseBody
	if err := gatewaynode.Decode(cmd, &body); err != nil {
		return nil, err
	}
	return m.browse(ctx, body.MediaContentID)
}

func (m *Module) mediaResolve(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
	var body mp.MediaResolveBody
	if err := gatewaynode.Decode(cmd, &body); err != nil {
		return nil, err
	}
	episode, _, err := m.findEpisode(ctx, body.MediaContentID)
	if err != nil {
		return nil, err
	}
	if episode.AudioURL == "" {
		return nil, gatewaynode.NotFound("episode has no audio url")
	}
	return mp.MediaResolveReply{URL: episode.AudioURL, MimeType: episode.AudioType}, nil
}

func (m *Module) mediaResolveMetadata(ctx context.Context, cmd mp.CommandEnvelope) (any, error) {
	var body mp.ResolveMetadataBody
	if err := gatewaynode.Decode(cmd, &body); err != nil {
		return nil, err
	}
	episode, feed, err := m.findEpisode(ctx, body.MediaContentID)
	if err != nil {
		return nil, err
	}
	meta := mp.Metadata{
		MediaContentType: "music",
		Title:            episode.Title,
		Thumb:            episode.ImageURL,
		Artist:           episode.Author,
		Album:            feed.Title,
		Provider:         provider,
	}
	if episode.DurationMS > 0 {
		meta.Duration = episode.DurationMS / 1000
	}
	return meta, nil
}

func (m *Module) browse(ctx context.Context, id string) (mp.MediaItem, error) {
	id = strings.TrimSpace(id)
	switch {
	case id == "" || id == rootID:
		return m.browseRoot(ctx), nil
	case strings.HasPrefix(id, feedPrefix):
		feed, err := m.loadFeedByID(ctx, strings.TrimPrefix(id, feedPrefix))
		if err != nil {
			return mp.MediaItem{}, err
		}
		item := feedItem(feed.Feed)
		item.Children = m.episodeItems(feed.Feed)
		return item, nil
	case strings.HasPrefix(id, episodePrefix):
		episode, feed, err := m.findEpisode(ctx, id)
		if err != nil {
			return mp.MediaItem{}, err
		}
		return episodeItem(*feed, *episode), nil
	default:
		return mp.MediaItem{}, gatewaynode.NotFound("unknown podcast id " + id)
	}
}

func (m *Module) browseRoot(ctx context.Context) mp.MediaItem {
	children := make([]mp.MediaItem, 0, len(m.config.Feeds))
	for _, feedURL := range m.config.Feeds {
		feed, err := m.loadFeed(ctx, feedURL)
		if err != nil {
			m.log.Warn("load feed", zap.String("feed", feedURL), zap.Error(err))
			continue
		}
		children = append(children, feedItem(feed.Feed))
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Title < children[j].Title })
	return mp.MediaItem{
		MediaContentID:     rootID,
		MediaContentType:   "podcast",
		MediaClass:         "directory",
		ChildrenMediaClass: "podcast",
		Title:              m.config.Name,
		CanExpand:          true,
		Children:           children,
	}
}

func (m *Module) episodeItems(feed cachedFeed) []mp.MediaItem {
	episodes := make([]cachedEpisode, 0, len(feed.Episodes))
	for _, episode := range feed.Episodes {
		if episode.AudioURL == "" {
			continue
		}
		episodes = append(episodes, episode)
	}
	if m.config.ReverseSortByDate {
		sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Published > episodes[j].Published })
	} else {
		sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Title < episodes[j].Title })
	}
	items := make([]mp.MediaItem, 0, len(episodes))
	for _, episode := range episodes {
		items = append(items, episodeItem(feed, episode))
	}
	return items
}

func feedItem(feed cachedFeed) mp.MediaItem {
	return mp.MediaItem{
		MediaContentID:     feedPrefix + feed.FeedID,
		MediaContentType:   "podcast",
		MediaClass:         "podcast",
		ChildrenMediaClass: "track",
		Title:              feed.Title,
		Subtitle:           feed.Author,
		Thumbnail:          feed.ImageURL,
		Provider:           provider,
		CanExpand:          true,
	}
}

func episodeItem(feed cachedFeed, episode cachedEpisode) mp.MediaItem {
	return mp.MediaItem{
		MediaContentID:   episodePrefix + episode.ID,
		MediaContentType: "music",
		MediaClass:       "track",
		Title:            episode.Title,
		Subtitle:         feed.Title,
		Thumbnail:        episode.ImageURL,
		Provider:         provider,
		Artist:           episode.Author,
		Album:            feed.Title,
		CanPlay:          true,
	}
}

func (m *Module) findEpisode(ctx context.Context, id string) (*cachedEpisode, *cachedFeed, error) {
	episodeID := strings.TrimPrefix(strings.TrimSpace(id), episodePrefix)
	if episodeID == "" || episodeID == id {
		return nil, nil, &mp.ReplyError{Code: mp.CodeInvalid, Message: "not a podcast episode id: " + id}
	}
	for _, feedURL := range m.config.Feeds {
		feed, err := m.loadFeed(ctx, feedURL)
		if err != nil {
			continue
		}
		if episode, ok := feed.ByID[episodeID]; ok {
			found := feed.Feed
			return &episode, &found, nil
		}
	}
	return nil, nil, gatewaynode.NotFound("episode not found")
}

func (m *Module) loadFeedByID(ctx context.Context, feedID string) (*feedCache, error) {
	for _, feedURL := range m.config.Feeds {
		if hashID("feed", feedURL) != feedID {
			continue
		}
		return m.loadFeed(ctx, feedURL)
	}
	return nil, gatewaynode.NotFound("feed not found")
}

func (m *Module) loadFeed(ctx context.Context, feedURL string) (*feedCache, error) {
	feedID := hashID("feed", feedURL)

	m.cacheMu.Lock()
	if feed, ok := m.feeds[feedID]; ok && !m.isStale(feed.Feed.FetchedAt) {
		m.cacheMu.Unlock()
		return feed, nil
	}
	m.cacheMu.Unlock()

	cachePath := filepath.Join(m.config.CacheDir, fmt.Sprintf("podcast_%s.json", feedID))
	cached, err := readCache(cachePath)
	if err == nil && cached != nil && !m.isStale(cached.FetchedAt) {
		return m.remember(feedID, cached), nil
	}

	fetched, fetchErr := m.fetchFeed(ctx, feedURL)
	if fetchErr != nil {
		if cached != nil {
			m.log.Warn("serving stale feed", zap.String("feed", feedURL), zap.Error(fetchErr))
			return m.remember(feedID, cached), nil
		}
		return nil, fetchErr
	}
	if err := writeCache(cachePath, fetched); err != nil {
		m.log.Warn("write cache", zap.Error(err))
	}
	return m.remember(feedID, fetched), nil
}

func (m *Module) remember(feedID string, feed *cachedFeed) *feedCache {
	entry := &feedCache{Feed: *feed, ByID: indexEpisodes(feed.Episodes)}
	m.cacheMu.Lock()
	m.feeds[feedID] = entry
	m.cacheMu.Unlock()
	return entry
}

func (m *Module) isStale(fetchedAt int64) bool {
	if fetchedAt == 0 {
		return true
	}
	return m.now().Sub(time.Unix(fetchedAt, 0)) > m.config.RefreshInterval
}

func (m *Module) fetchFeed(ctx context.Context, feedURL string) (*cachedFeed, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "media_picker/1.0")

	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("feed fetch failed: %s", resp.Status)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, err
	}

	feedID := hashID("feed", feedURL)
	feedTitle := strings.TrimSpace(feed.Title)
	if feedTitle == "" {
		feedTitle = feedURL
	}
	parent := showOf(feed)

	episodes := make([]cachedEpisode, 0, len(feed.Items))
	for _, item := range feed.Items {
		if episode, ok := episodeOf(feedID, parent, item); ok {
			episodes = append(episodes, episode)
		}
	}

	return &cachedFeed{
		FeedURL:     feedURL,
		FeedID:      feedID,
		Title:       feedTitle,
		Description: strings.TrimSpace(feed.Description),
		Author:      parent.author,
		ImageURL:    parent.image,
		FetchedAt:   m.now().Unix(),
		Episodes:    episodes,
	}, nil
}

func hashID(prefix string, input string) string {
	sum := sha1.Sum([]byte(input))
	return fmt.Sprintf("%s_%x", prefix, sum[:])
}

func indexEpisodes(episodes []cachedEpisode) map[string]cachedEpisode {
	out := make(map[string]cachedEpisode, len(episodes))
	for _, episode := range episodes {
		if episode.ID != "" {
			out[episode.ID] = episode
		}
	}
	return out
}

func readCache(path string) (*cachedFeed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var cached cachedFeed
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &cached, nil
}

func writeCache(path string, cached *cachedFeed) error {
	data, err := json.MarshalIndent(cached, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil || strings.TrimSpace(dir) == "" {
		return filepath.Join(os.TempDir(), "mpickd-podcasts")
	}
	return filepath.Join(dir, "mpickd", "podcasts")
}

// retryLogger routes retryablehttp's leveled logging into zap.
type retryLogger struct {
	log *zap.SugaredLogger
}

func (l retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Errorw(msg, keysAndValues...)
}

func (l retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warnw(msg, keysAndValues...)
}

func (l retryLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}

func (l retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.log.Debugw(msg, keysAndValues...)
}
