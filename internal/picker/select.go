package picker

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/form"
	"github.com/mikey-austin/media_picker/internal/media"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Select hands item to the form as the new selection, remembers the
// breadcrumb path that led to it and closes the session.
func (s *Session) Select(ctx context.Context, item mp.MediaItem) (mp.Selection, error) {
	if err := s.requireOpen(); err != nil {
		return mp.Selection{}, err
	}
	if ctx.Err() != nil {
		return mp.Selection{}, ctx.Err()
	}
	id := strings.TrimSpace(item.MediaContentID)
	if id == "" {
		return mp.Selection{}, media.Errorf(media.KindValidation, "Unable to select this media item")
	}

	sel := SelectionFor(item)

	s.mu.Lock()
	crumbs := append([]Crumb(nil), s.crumbs...)
	s.mu.Unlock()
	path := make([]mp.Descriptor, 0, len(crumbs))
	for _, crumb := range crumbs {
		path = append(path, crumb.Descriptor)
	}
	path = media.SanitizePath(path)
	if len(path) > 0 {
		sel.MediaBrowserPath = path
		if s.cfg.Paths != nil {
			if err := s.cfg.Paths.Put(media.SelectionKeys(media.Normalize(sel)), path); err != nil {
				s.logger.Warn("remember media path", zap.String("id", id), zap.Error(err))
			}
		}
	}

	s.cfg.Form.Update(form.State{Selection: sel, Title: media.BuildTitle(sel, &item)}, form.OriginUser, &item)

	label := item.Title
	if strings.TrimSpace(label) == "" {
		label = media.FormatName(id)
	}
	s.notify("Media set to "+label, false)
	s.Close()
	return sel, nil
}

// SelectionFor builds the selection descriptor for a picked item.
func SelectionFor(item mp.MediaItem) mp.Selection {
	typ := item.MediaContentType
	if typ == "" {
		typ = item.MediaClass
	}
	sel := mp.Selection{
		MediaContentID:       strings.TrimSpace(item.MediaContentID),
		MediaContentType:     typ,
		MediaContentTitle:    item.Title,
		Title:                item.Title,
		Thumbnail:            item.Thumbnail,
		MediaContentProvider: item.Provider,
	}
	if sel.MediaContentProvider == "" {
		if _, ok := media.ParseSpotify(sel.MediaContentID, typ); ok {
			sel.MediaContentProvider = "spotify"
		}
	}
	if len(item.Metadata) > 0 {
		sel.Metadata = make(map[string]any, len(item.Metadata))
		for k, v := range item.Metadata {
			sel.Metadata[k] = v
		}
	}
	return sel
}
