package hass

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// BrowseMedia browses a player's media tree.
func (c *Client) BrowseMedia(ctx context.Context, entityID string, d mp.Descriptor) (mp.MediaItem, error) {
	payload := map[string]any{
		"type":      "media_player/browse_media",
		"entity_id": entityID,
	}
	if d.ID != "" {
		payload["media_content_id"] = d.ID
		payload["media_content_type"] = d.Type
	}
	var item mp.MediaItem
	err := c.decode(ctx, payload, &item)
	return item, err
}

// BrowseSource browses the media_source tree.
func (c *Client) BrowseSource(ctx context.Context, id string) (mp.MediaItem, error) {
	payload := map[string]any{"type": "media_source/browse_media"}
	if id != "" {
		payload["media_content_id"] = id
	}
	var item mp.MediaItem
	err := c.decode(ctx, payload, &item)
	return item, err
}

// SearchMedia runs the native player search.
func (c *Client) SearchMedia(ctx context.Context, body mp.MediaSearchBody) ([]mp.MediaItem, error) {
	payload := map[string]any{
		"type":         "media_player/search_media",
		"entity_id":    body.EntityID,
		"search_query": body.SearchQuery,
	}
	if len(body.MediaFilterClasses) > 0 {
		payload["media_filter_classes"] = body.MediaFilterClasses
	}
	if body.MediaContentID != "" {
		payload["media_content_id"] = body.MediaContentID
		payload["media_content_type"] = body.MediaContentType
	}
	raw, err := c.call(ctx, payload)
	if err != nil {
		return nil, err
	}
	return mp.DecodeSearchResults(raw)
}

// ResolveSource resolves a media_source id to a URL.
func (c *Client) ResolveSource(ctx context.Context, id string) (mp.MediaResolveReply, error) {
	var reply mp.MediaResolveReply
	err := c.decode(ctx, map[string]any{
		"type":             "media_source/resolve_media",
		"media_content_id": id,
	}, &reply)
	return reply, err
}

// ResolveMetadata asks the alarm clock integration for provider metadata.
func (c *Client) ResolveMetadata(ctx context.Context, body mp.ResolveMetadataBody) (*mp.Metadata, error) {
	payload := map[string]any{
		"type":             "ha_alarm_clock/resolve_media",
		"media_content_id": body.MediaContentID,
	}
	if body.MediaContentType != "" {
		payload["media_content_type"] = body.MediaContentType
	}
	if body.Provider != "" {
		payload["provider"] = body.Provider
	}
	var meta mp.Metadata
	if err := c.decode(ctx, payload, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// CallService calls a service. The raw result keeps the "response" key
// when the service returns one.
func (c *Client) CallService(ctx context.Context, body mp.ServiceCallBody) (json.RawMessage, error) {
	payload := map[string]any{
		"type":    "call_service",
		"domain":  body.Domain,
		"service": body.Service,
	}
	if len(body.ServiceData) > 0 {
		payload["service_data"] = body.ServiceData
	}
	if body.ReturnResponse {
		payload["return_response"] = true
	}
	return c.call(ctx, payload)
}

// ConfigEntries lists config entries for a domain.
func (c *Client) ConfigEntries(ctx context.Context, domain string) ([]mp.ConfigEntry, error) {
	payload := map[string]any{"type": "config_entries/get"}
	if domain != "" {
		payload["domain"] = domain
	}
	var entries []mp.ConfigEntry
	err := c.decode(ctx, payload, &entries)
	return entries, err
}

type registryEntry struct {
	EntityID string `json:"entity_id"`
	Platform string `json:"platform"`
}

// Entities lists entity states joined with their registry platform.
func (c *Client) Entities(ctx context.Context) ([]mp.EntityState, error) {
	var states []mp.EntityState
	if err := c.decode(ctx, map[string]any{"type": "get_states"}, &states); err != nil {
		return nil, err
	}
	var registry []registryEntry
	if err := c.decode(ctx, map[string]any{"type": "config/entity_registry/list"}, &registry); err != nil {
		c.log.Debug("entity registry unavailable")
		return states, nil
	}
	platforms := make(map[string]string, len(registry))
	for _, entry := range registry {
		platforms[entry.EntityID] = entry.Platform
	}
	for i := range states {
		if states[i].Platform == "" {
			states[i].Platform = platforms[states[i].EntityID]
		}
	}
	return states, nil
}

func (c *Client) decode(ctx context.Context, payload map[string]any, out any) error {
	raw, err := c.call(ctx, payload)
	if err != nil {
		return err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %v result: %w", payload["type"], err)
	}
	return nil
}
