package fssource

import (
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/modules/gatewaynode"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

func (m *Module) metadata(id string) (mp.Metadata, error) {
	rel, abs, err := m.locate(id)
	if err != nil {
		return mp.Metadata{}, err
	}
	if !isAudio(abs) {
		return mp.Metadata{}, gatewaynode.NotFound(id)
	}
	if _, err := os.Stat(abs); err != nil {
		return mp.Metadata{}, gatewaynode.NotFound(id)
	}

	meta, err := readTags(abs)
	if err != nil {
		m.log.Debug("read tags failed, using file name", zap.String("path", rel), zap.Error(err))
		meta = fallbackMetadata(rel)
	}
	meta.MediaContentType = "music"
	meta.Provider = provider
	return meta, nil
}

func readTags(file string) (mp.Metadata, error) {
	f, err := os.Open(file)
	if err != nil {
		return mp.Metadata{}, err
	}
	defer f.Close()

	tags, err := tag.ReadFrom(f)
	if err != nil {
		return mp.Metadata{}, err
	}
	meta := mp.Metadata{
		Title:  strings.TrimSpace(tags.Title()),
		Artist: strings.TrimSpace(tags.Artist()),
		Album:  strings.TrimSpace(tags.Album()),
	}
	if meta.Title == "" {
		fallback := fallbackMetadata(file)
		meta.Title = fallback.Title
	}
	return meta, nil
}

// fallbackMetadata reads "Artist - Title" file names inside album folders.
func fallbackMetadata(rel string) mp.Metadata {
	rel = filepath.ToSlash(rel)
	name := strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	meta := mp.Metadata{}
	if artist, title, ok := strings.Cut(name, " - "); ok {
		meta.Artist = strings.TrimSpace(artist)
		meta.Title = strings.TrimSpace(title)
	} else {
		meta.Title = name
	}
	if dir := path.Dir(rel); dir != "" && dir != "." && dir != "/" {
		meta.Album = path.Base(dir)
	}
	return meta
}
