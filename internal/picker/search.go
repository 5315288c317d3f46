package picker

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/internal/players"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Telemetry transports.
const (
	TransportNative         = "media_player/search_media"
	TransportMusicAssistant = "music_assistant.search"
	TransportFallback       = "fallback"
)

const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
	crawlMaxDepth      = 4
	crawlMaxVisits     = 80
)

// Options tune one search.
type Options struct {
	MediaType     string   `json:"mediaType"`
	Limit         int      `json:"limit"`
	LibraryOnly   bool     `json:"libraryOnly,omitempty"`
	FilterClasses []string `json:"filterClasses,omitempty"`
}

// DefaultOptions returns the options a fresh search of kind starts with.
func DefaultOptions(kind players.SearchSupport) Options {
	if kind == players.SearchMusicAssistant {
		return Options{MediaType: "track", Limit: defaultSearchLimit}
	}
	return Options{MediaType: "audio", Limit: defaultSearchLimit}
}

// Telemetry describes how the last search was served.
type Telemetry struct {
	Transport     string `json:"transport"`
	BaseTransport string `json:"baseTransport,omitempty"`
	Reason        string `json:"reason,omitempty"`
	ResultCount   int    `json:"resultCount"`
	DurationMS    int64  `json:"durationMs"`
	Status        string `json:"status"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// TransportLabel names a telemetry transport for people.
func TransportLabel(transport string) string {
	switch transport {
	case TransportNative:
		return "Home Assistant search"
	case TransportMusicAssistant:
		return "Music Assistant search"
	case TransportFallback:
		return "Fallback crawler"
	default:
		return transport
	}
}

// EnterSearch switches to search mode if the target can search.
func (s *Session) EnterSearch() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return media.Errorf(media.KindValidation, "picker is closed")
	}
	if s.state == Searching {
		s.mu.Unlock()
		return nil
	}
	support := s.support
	if support == players.SearchNone {
		s.mu.Unlock()
		msg := "Search is not available for this player"
		s.notify(msg, true)
		return &media.Error{Kind: media.KindUnsupportedSearch, Msg: msg}
	}
	if _, blocked := s.unavailable[support]; blocked && support != players.SearchMediaSource {
		s.mu.Unlock()
		msg := "Search is not supported for this player in your Home Assistant version"
		s.notify(msg, true)
		return &media.Error{Kind: media.KindUnsupportedSearch, Support: string(support), Msg: msg}
	}
	s.state = Searching
	s.mu.Unlock()
	return nil
}

// ExitSearch returns to browsing and drops the search results.
func (s *Session) ExitSearch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Searching {
		s.state = Browsing
		s.results = nil
		s.telemetry = nil
	}
}

// SetOptions replaces the search options. The limit is clamped to 1..100.
func (s *Session) SetOptions(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base := DefaultOptions(s.support)
	if strings.TrimSpace(opts.MediaType) != "" {
		base.MediaType = opts.MediaType
	}
	if opts.Limit != 0 {
		base.Limit = clampLimit(opts.Limit)
	}
	base.LibraryOnly = opts.LibraryOnly
	base.FilterClasses = opts.FilterClasses
	s.options = base
}

// Options returns the current search options.
func (s *Session) Options() Options {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

// Search runs query through the target's search mechanism, entering search
// mode first if needed.
func (s *Session) Search(ctx context.Context, query string) ([]mp.MediaItem, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return nil, media.Errorf(media.KindValidation, "Enter a search term.")
	}
	if err := s.EnterSearch(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	support := s.support
	opts := s.options
	s.telemetry = nil
	s.mu.Unlock()

	started := s.now()
	var (
		items     []mp.MediaItem
		telemetry Telemetry
		err       error
	)
	switch support {
	case players.SearchMusicAssistant:
		items, err = s.searchMusicAssistant(ctx, trimmed, opts)
		telemetry = Telemetry{Transport: TransportMusicAssistant, ResultCount: len(items)}
		if err != nil {
			telemetry = Telemetry{Transport: TransportMusicAssistant, ErrorCode: mp.ErrorCode(err), ErrorMessage: err.Error()}
			if mp.IsUnsupported(err) {
				err = &media.Error{Kind: media.KindUnsupportedSearch, Support: string(support), Msg: "Music Assistant search is not supported by this Home Assistant version.", Err: err}
			} else {
				err = media.Wrap(media.KindTransport, "music assistant search", err)
			}
		}
	default:
		items, telemetry, err = s.searchMediaSource(ctx, trimmed, opts)
	}
	telemetry.DurationMS = durationMS(started, s.now())
	s.recordTelemetry(telemetry)

	if err != nil {
		s.logger.Warn("media search failed", zap.String("support", string(support)), zap.Error(err))
		var mediaErr *media.Error
		if errors.As(err, &mediaErr) && mediaErr.Kind == media.KindUnsupportedSearch {
			s.downgrade(support, mp.ErrorCode(err), mediaErr.Msg)
		}
		return nil, err
	}

	s.mu.Lock()
	if s.state == Searching {
		s.results = items
	}
	view := s.viewLocked()
	s.mu.Unlock()
	s.emit(view)
	return items, nil
}

// downgrade marks support unavailable for the rest of the session, drops
// back to browsing and tells the user once.
func (s *Session) downgrade(support players.SearchSupport, reason, msg string) {
	s.mu.Lock()
	s.unavailable[support] = reason
	noticed := s.searchNoticed[support]
	s.searchNoticed[support] = true
	s.mu.Unlock()

	s.resetSearch(support)
	if !noticed {
		s.notify(msg, true)
	}
}

func (s *Session) resetSearch(kind players.SearchSupport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Searching {
		s.state = Browsing
	}
	s.results = nil
	s.support = kind
	s.options = DefaultOptions(kind)
}

func (s *Session) searchMediaSource(ctx context.Context, query string, opts Options) ([]mp.MediaItem, Telemetry, error) {
	limit := clampLimit(opts.Limit)
	filter := nonEmpty(opts.FilterClasses)
	if len(filter) == 0 {
		filter = media.SearchFilterClasses
	}

	s.mu.Lock()
	var root Crumb
	if len(s.crumbs) > 0 {
		root = s.crumbs[0]
	}
	reason, nativeUnavailable := s.unavailable[players.SearchMediaSource]
	s.mu.Unlock()

	if !nativeUnavailable {
		body := mp.MediaSearchBody{
			EntityID:           s.cfg.Target,
			SearchQuery:        query,
			MediaFilterClasses: filter,
		}
		if root.ID != "" && root.Type != "" {
			body.MediaContentID = root.ID
			body.MediaContentType = root.Type
		}
		found, err := s.cfg.Remote.SearchMedia(ctx, body)
		if err == nil {
			items := s.mapSearchItems(found)
			if len(items) > limit {
				items = items[:limit]
			}
			return items, Telemetry{Transport: TransportNative, ResultCount: len(items)}, nil
		}
		if !mp.IsUnsupported(err) {
			return nil, Telemetry{Transport: TransportNative, ErrorCode: mp.ErrorCode(err), ErrorMessage: err.Error()},
				media.Wrap(media.KindTransport, "media search", err)
		}
		reason = mp.ErrorCode(err)
		s.logger.Info("native media search unsupported, crawling", zap.String("reason", reason))
		s.mu.Lock()
		s.unavailable[players.SearchMediaSource] = reason
		s.mu.Unlock()
	}

	items := s.crawl(ctx, query, limit, root.ID, filter)
	return items, Telemetry{
		Transport:     TransportFallback,
		BaseTransport: TransportNative,
		Reason:        reason,
		ResultCount:   len(items),
		Status:        "fallback",
	}, nil
}

// mapSearchItems fills display defaults on native search results and keeps
// those the classifier accepts.
func (s *Session) mapSearchItems(found []mp.MediaItem) []mp.MediaItem {
	out := make([]mp.MediaItem, 0, len(found))
	for _, item := range found {
		typ := item.MediaContentType
		if typ == "" {
			typ = item.MediaClass
		}
		item.MediaContentType = typ
		artist := firstNonEmpty(item.Artist, item.ArtistName)
		album := firstNonEmpty(item.Album, item.AlbumName)
		var parts []string
		if strings.TrimSpace(artist) != "" {
			parts = append(parts, strings.TrimSpace(artist))
		}
		if strings.TrimSpace(album) != "" {
			parts = append(parts, strings.TrimSpace(album))
		}
		if len(parts) == 0 && typ != "" {
			parts = append(parts, typeLabel(typ))
		}
		if len(parts) > 0 {
			item.Subtitle = strings.Join(parts, media.SubtitleSeparator)
		}
		if artist != "" {
			item.Artist, item.ArtistName = artist, artist
		}
		if album != "" {
			item.Album, item.AlbumName = album, album
		}
		if item.MediaClass == "" {
			item.MediaClass = firstNonEmpty(typ, "music")
		}
		if item.Title == "" {
			item.Title = media.FormatName(item.MediaContentID)
		}
		if s.probes.Decide(item, "") == media.Include || (!item.CanExpand && media.LooksAudio(item)) {
			out = append(out, item)
		}
	}
	return out
}

type crawlNode struct {
	d     mp.Descriptor
	depth int
}

// crawl walks the tree breadth first from the root and current crumbs,
// collecting playable audio whose text contains query.
func (s *Session) crawl(ctx context.Context, query string, limit int, rootID string, filter []string) []mp.MediaItem {
	folder := cases.Fold()
	needle := folder.String(query)
	filterSet := map[string]struct{}{}
	for _, class := range filter {
		if class = strings.ToLower(strings.TrimSpace(class)); class != "" {
			filterSet[class] = struct{}{}
		}
	}

	s.mu.Lock()
	var seeds []mp.Descriptor
	if rootID != "" {
		seeds = append(seeds, mp.Descriptor{ID: rootID})
	}
	if len(s.crumbs) > 0 {
		seeds = append(seeds, s.crumbs[0].Descriptor, s.crumbs[len(s.crumbs)-1].Descriptor)
	}
	visible := append([]mp.MediaItem(nil), s.items...)
	s.mu.Unlock()
	if len(seeds) == 0 {
		seeds = append(seeds, mp.Descriptor{})
	}

	var (
		results []mp.MediaItem
		queue   []crawlNode
		queued  = map[string]struct{}{}
		visited = map[string]struct{}{}
		dedupe  = map[string]struct{}{}
	)
	nodeKey := func(d mp.Descriptor) string {
		id := d.ID
		if id == "" {
			id = "__root__"
		}
		return id + "|" + d.Type
	}
	enqueue := func(d mp.Descriptor, depth int) {
		d = media.Normalize(d)
		key := nodeKey(d)
		if _, ok := queued[key]; ok {
			return
		}
		if _, ok := visited[key]; ok {
			return
		}
		queued[key] = struct{}{}
		queue = append(queue, crawlNode{d: d, depth: depth})
	}
	add := func(item mp.MediaItem) {
		if !item.CanPlay || !media.LooksAudio(item) {
			return
		}
		if len(filterSet) > 0 {
			class := strings.ToLower(item.MediaClass)
			typ := strings.ToLower(item.MediaContentType)
			_, classOK := filterSet[class]
			_, typeOK := filterSet[typ]
			if !(class != "" && classOK) && !(typ != "" && typeOK) && !(class == "" && typ == "") {
				return
			}
		}
		key := strings.ToLower(item.MediaContentID)
		if key != "" {
			if _, ok := dedupe[key]; ok {
				return
			}
		}
		if !matchesQuery(folder, item, needle) {
			return
		}
		if key != "" {
			dedupe[key] = struct{}{}
		}
		results = append(results, item)
	}
	process := func(children []mp.MediaItem, depth int) {
		for _, child := range children {
			if child.CanExpand && depth < crawlMaxDepth && !media.LooksEmpty(child) {
				enqueue(mp.Descriptor{ID: child.MediaContentID, Type: child.MediaContentType}, depth+1)
			}
			add(child)
			if len(results) >= limit {
				return
			}
		}
	}

	for _, seed := range seeds {
		enqueue(seed, 0)
	}
	process(visible, 0)
	for len(queue) > 0 && len(results) < limit && len(visited) < crawlMaxVisits {
		if ctx.Err() != nil {
			break
		}
		next := queue[0]
		queue = queue[1:]
		key := nodeKey(next.d)
		if _, ok := visited[key]; ok {
			continue
		}
		visited[key] = struct{}{}
		node, err := s.Browse(ctx, next.d)
		if err != nil {
			s.logger.Debug("crawl browse failed", zap.String("id", next.d.ID), zap.Error(err))
			continue
		}
		process(node.Children, next.depth)
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

// matchesQuery reports whether any text field of item contains needle after
// case folding.
func matchesQuery(folder cases.Caser, item mp.MediaItem, needle string) bool {
	if needle == "" {
		return false
	}
	haystacks := []string{
		item.Title, item.Subtitle, item.Artist, item.ArtistName,
		item.Album, item.AlbumName, item.MediaContentID,
	}
	for _, value := range item.Metadata {
		if text, ok := value.(string); ok {
			haystacks = append(haystacks, text)
		}
	}
	haystacks = append(haystacks, media.FormatName(item.MediaContentID))
	for _, value := range haystacks {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if strings.Contains(folder.String(value), needle) {
			return true
		}
	}
	return false
}

func (s *Session) recordTelemetry(t Telemetry) {
	if t.DurationMS < 0 {
		t.DurationMS = 0
	}
	if t.Status == "" {
		switch {
		case t.Transport == TransportFallback:
			t.Status = "fallback"
		case t.ErrorCode != "" || t.ErrorMessage != "":
			t.Status = "error"
		default:
			t.Status = "success"
		}
	}
	s.mu.Lock()
	s.telemetry = &t
	s.mu.Unlock()
	s.logger.Debug("media search telemetry",
		zap.String("transport", t.Transport),
		zap.String("status", t.Status),
		zap.Int("results", t.ResultCount),
		zap.Int64("durationMs", t.DurationMS),
		zap.String("reason", t.Reason),
	)
}

// Telemetry returns how the last search was served, if any.
func (s *Session) Telemetry() (Telemetry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.telemetry == nil {
		return Telemetry{}, false
	}
	return *s.telemetry, true
}

func durationMS(start, end time.Time) int64 {
	elapsed := end.Sub(start).Round(time.Millisecond).Milliseconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultSearchLimit
	case limit > maxSearchLimit:
		return maxSearchLimit
	default:
		return limit
	}
}

func typeLabel(value string) string {
	words := strings.Fields(strings.ReplaceAll(value, "_", " "))
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
