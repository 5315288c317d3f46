package fssource

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/modules/gatewaynode"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

const (
	rootID   = "media-source://media_source/local"
	provider = "local"
)

// Config configures the local folder source.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string
	Roots     []string
	Listen    string
	// BaseURL overrides the address embedded in resolved URLs, for players
	// that reach this host by another name.
	BaseURL string
}

// Module exposes local folders of sound files as a media tree and serves
// the files over HTTP.
type Module struct {
	log    *zap.Logger
	client gatewaynode.Client
	config Config
	roots  map[string]string
	names  []string

	mu      sync.RWMutex
	baseURL string
	server  *http.Server
}

// NewModule creates a local folder source.
func NewModule(log *zap.Logger, client gatewaynode.Client, cfg Config) (*Module, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if len(cfg.Roots) == 0 {
		return nil, errors.New("roots required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "Local sounds"
	}
	if strings.TrimSpace(cfg.Listen) == "" {
		cfg.Listen = "127.0.0.1:0"
	}

	roots := make(map[string]string, len(cfg.Roots))
	names := make([]string, 0, len(cfg.Roots))
	for _, root := range cfg.Roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		name := filepath.Base(abs)
		if _, dup := roots[name]; dup {
			return nil, fmt.Errorf("duplicate root name %q", name)
		}
		roots[name] = abs
		names = append(names, name)
	}
	sort.Strings(names)

	return &Module{
		log:     log,
		client:  client,
		config:  cfg,
		roots:   roots,
		names:   names,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}, nil
}

// Run serves files and commands until ctx is done.
func (m *Module) Run(ctx context.Context) error {
	if err := m.startHTTPServer(); err != nil {
		return err
	}
	defer m.shutdownHTTPServer()

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
	node.Handle(mp.CmdMediaBrowse, func(_ context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.MediaBrowseBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		return m.browse(body.MediaContentID)
	})
	node.Handle(mp.CmdMediaSearch, func(context.Context, mp.CommandEnvelope) (any, error) {
		return nil, gatewaynode.NotSupported("local folders have no native search")
	})
	node.Handle(mp.CmdMediaResolve, func(_ context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.MediaResolveBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		return m.resolve(body.MediaContentID)
	})
	node.Handle(mp.CmdMediaResolveMetadata, func(_ context.Context, cmd mp.CommandEnvelope) (any, error) {
		var body mp.ResolveMetadataBody
		if err := gatewaynode.Decode(cmd, &body); err != nil {
			return nil, err
		}
		return m.metadata(body.MediaContentID)
	})
	node.Handle(mp.CmdStatesList, func(context.Context, mp.CommandEnvelope) (any, error) {
		return mp.StatesListReply{States: []mp.EntityState{gatewaynode.Player(m.config.NodeID, m.config.Name)}}, nil
	})
	node.Handle(mp.CmdConfigEntriesList, func(context.Context, mp.CommandEnvelope) (any, error) {
		return mp.ConfigEntriesReply{Entries: []mp.ConfigEntry{}}, nil
	})
	return node, nil
}

func (m *Module) browse(id string) (mp.MediaItem, error) {
	id = strings.TrimRight(strings.TrimSpace(id), "/")
	if id == "" || id == rootID {
		children := make([]mp.MediaItem, 0, len(m.names))
		for _, name := range m.names {
			children = append(children, directoryItem(name, name))
		}
		root := directoryItem("", m.config.Name)
		root.MediaContentID = rootID
		root.Children = children
		return root, nil
	}

	rel, abs, err := m.locate(id)
	if err != nil {
		return mp.MediaItem{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return mp.MediaItem{}, gatewaynode.NotFound(id)
	}
	if !info.IsDir() {
		if !isAudio(abs) {
			return mp.MediaItem{}, gatewaynode.NotFound(id)
		}
		return fileItem(rel), nil
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return mp.MediaItem{}, err
	}
	item := directoryItem(rel, path.Base(rel))
	item.Children = []mp.MediaItem{}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		child := path.Join(rel, name)
		switch {
		case entry.IsDir():
			item.Children = append(item.Children, directoryItem(child, name))
		case isAudio(name):
			item.Children = append(item.Children, fileItem(child))
		}
	}
	return item, nil
}

func (m *Module) resolve(id string) (mp.MediaResolveReply, error) {
	rel, abs, err := m.locate(id)
	if err != nil {
		return mp.MediaResolveReply{}, err
	}
	info, err := os.Stat(abs)
	if err != nil || info.IsDir() || !isAudio(abs) {
		return mp.MediaResolveReply{}, gatewaynode.NotFound(id)
	}

	m.mu.RLock()
	baseURL := m.baseURL
	m.mu.RUnlock()
	if baseURL == "" {
		return mp.MediaResolveReply{}, errors.New("http server not ready")
	}
	return mp.MediaResolveReply{URL: baseURL + "/media/" + escapePath(rel), MimeType: mimeType(abs)}, nil
}

// locate maps a media-source id onto a root-relative path and an absolute
// file path, refusing anything that escapes its root.
func (m *Module) locate(id string) (string, string, error) {
	id = strings.TrimSpace(id)
	if !strings.HasPrefix(id, rootID+"/") {
		return "", "", &mp.ReplyError{Code: mp.CodeInvalid, Message: "not a local media id: " + id}
	}
	rel := strings.TrimPrefix(id, rootID+"/")
	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	return m.rootPath(rel)
}

func (m *Module) rootPath(rel string) (string, string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", "", gatewaynode.NotFound(rel)
	}
	clean = strings.TrimPrefix(clean, "/")
	name, sub, _ := strings.Cut(clean, "/")
	root, ok := m.roots[name]
	if !ok {
		return "", "", gatewaynode.NotFound(rel)
	}
	return clean, filepath.Join(root, filepath.FromSlash(sub)), nil
}

func directoryItem(rel, title string) mp.MediaItem {
	return mp.MediaItem{
		MediaContentID: rootID + "/" + rel,
		MediaClass:     "directory",
		Title:          title,
		Provider:       provider,
		CanExpand:      true,
	}
}

func fileItem(rel string) mp.MediaItem {
	name := path.Base(rel)
	return mp.MediaItem{
		MediaContentID:   rootID + "/" + rel,
		MediaContentType: mimeType(name),
		MediaClass:       "music",
		Title:            name,
		Provider:         provider,
		CanPlay:          true,
	}
}

var audioExts = map[string]string{
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/opus",
	".m4a":  "audio/mp4",
	".m4b":  "audio/mp4",
	".aac":  "audio/aac",
	".wav":  "audio/wav",
}

func isAudio(name string) bool {
	_, ok := audioExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

func mimeType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if known, ok := audioExts[ext]; ok {
		return known
	}
	return mime.TypeByExtension(ext)
}

func escapePath(rel string) string {
	parts := strings.Split(rel, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}

func (m *Module) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/media/*", m.serveFile)
	r.Head("/media/*", m.serveFile)
	return r
}

func (m *Module) serveFile(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(rel); err == nil {
		rel = unescaped
	}
	_, abs, err := m.rootPath(rel)
	if err != nil || !isAudio(abs) {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(abs)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", mimeType(abs))
	http.ServeContent(w, r, filepath.Base(abs), info.ModTime(), f)
}

func (m *Module) startHTTPServer() error {
	ln, err := net.Listen("tcp", m.config.Listen)
	if err != nil {
		return err
	}
	host, port, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		_ = ln.Close()
		return err
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	server := &http.Server{Handler: m.router(), ReadHeaderTimeout: 10 * time.Second}

	m.mu.Lock()
	if m.baseURL == "" {
		m.baseURL = fmt.Sprintf("http://%s", net.JoinHostPort(host, port))
	}
	m.server = server
	baseURL := m.baseURL
	m.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Warn("http server stopped", zap.Error(err))
		}
	}()
	m.log.Info("http server started", zap.String("base_url", baseURL))
	return nil
}

func (m *Module) shutdownHTTPServer() {
	m.mu.Lock()
	server := m.server
	m.server = nil
	m.mu.Unlock()
	if server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
