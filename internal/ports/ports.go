package ports

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Broker publishes commands to gateway nodes and reads retained presence.
type Broker interface {
	ReplyTopic() string
	PublishCommand(ctx context.Context, nodeID string, cmd mp.CommandEnvelope) (mp.ReplyEnvelope, error)
	ListPresence(ctx context.Context) ([]mp.Presence, error)
}

// Remote is the media boundary of the home automation server.
type Remote interface {
	// BrowseMedia browses a player's own tree (media_player/browse_media).
	BrowseMedia(ctx context.Context, entityID string, d mp.Descriptor) (mp.MediaItem, error)
	// BrowseSource browses the media_source tree directly.
	BrowseSource(ctx context.Context, id string) (mp.MediaItem, error)
	SearchMedia(ctx context.Context, body mp.MediaSearchBody) ([]mp.MediaItem, error)
	ResolveSource(ctx context.Context, id string) (mp.MediaResolveReply, error)
	// ResolveMetadata calls the alarm integration's resolve_media command.
	ResolveMetadata(ctx context.Context, body mp.ResolveMetadataBody) (*mp.Metadata, error)
	CallService(ctx context.Context, body mp.ServiceCallBody) (json.RawMessage, error)
	ConfigEntries(ctx context.Context, domain string) ([]mp.ConfigEntry, error)
}

// StateStore exposes the live entity table.
type StateStore interface {
	Entities(ctx context.Context) ([]mp.EntityState, error)
}

// Preferences reads user preference flags.
type Preferences interface {
	Debug(provider string) bool
}

// PathStore memoizes breadcrumb paths of past selections.
type PathStore interface {
	Get(key string) ([]mp.Descriptor, bool, error)
	Put(keys []string, path []mp.Descriptor) error
	Clear(keys []string) error
}

// Notifier shows short notices to the user.
type Notifier interface {
	Notify(message string, isError bool)
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}
