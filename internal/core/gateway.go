package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikey-austin/media_picker/internal/ports"
	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Gateway is a remote media boundary reached through an mpickd gateway
// node. Reply errors come back as *mp.ReplyError so callers can inspect
// their codes.
type Gateway struct {
	Broker   ports.Broker
	NodeID   string
	Clock    ports.Clock
	IDGen    ports.IDGen
	Identity string
}

// BrowseMedia browses a player's media tree.
func (g Gateway) BrowseMedia(ctx context.Context, entityID string, d mp.Descriptor) (mp.MediaItem, error) {
	var item mp.MediaItem
	err := g.call(ctx, mp.CmdMediaBrowse, mp.MediaBrowseBody{
		EntityID:         entityID,
		MediaContentID:   d.ID,
		MediaContentType: d.Type,
	}, &item)
	return item, err
}

// BrowseSource browses the media_source tree directly.
func (g Gateway) BrowseSource(ctx context.Context, id string) (mp.MediaItem, error) {
	var item mp.MediaItem
	err := g.call(ctx, mp.CmdMediaBrowse, mp.MediaBrowseBody{MediaContentID: id, Source: true}, &item)
	return item, err
}

// SearchMedia runs a native player search.
func (g Gateway) SearchMedia(ctx context.Context, body mp.MediaSearchBody) ([]mp.MediaItem, error) {
	var raw json.RawMessage
	if err := g.call(ctx, mp.CmdMediaSearch, body, &raw); err != nil {
		return nil, err
	}
	return mp.DecodeSearchResults(raw)
}

// ResolveSource resolves a media_source id to a playable URL.
func (g Gateway) ResolveSource(ctx context.Context, id string) (mp.MediaResolveReply, error) {
	var reply mp.MediaResolveReply
	err := g.call(ctx, mp.CmdMediaResolve, mp.MediaResolveBody{MediaContentID: id}, &reply)
	return reply, err
}

// ResolveMetadata asks the gateway for provider metadata of one item.
func (g Gateway) ResolveMetadata(ctx context.Context, body mp.ResolveMetadataBody) (*mp.Metadata, error) {
	var meta mp.Metadata
	if err := g.call(ctx, mp.CmdMediaResolveMetadata, body, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// CallService invokes a service and returns its raw response.
func (g Gateway) CallService(ctx context.Context, body mp.ServiceCallBody) (json.RawMessage, error) {
	var reply mp.ServiceCallReply
	if err := g.call(ctx, mp.CmdServiceCall, body, &reply); err != nil {
		return nil, err
	}
	return reply.Response, nil
}

// ConfigEntries lists integration config entries for a domain.
func (g Gateway) ConfigEntries(ctx context.Context, domain string) ([]mp.ConfigEntry, error) {
	var reply mp.ConfigEntriesReply
	if err := g.call(ctx, mp.CmdConfigEntriesList, mp.ConfigEntriesBody{Domain: domain}, &reply); err != nil {
		return nil, err
	}
	return reply.Entries, nil
}

// Entities lists entity states known to the gateway.
func (g Gateway) Entities(ctx context.Context) ([]mp.EntityState, error) {
	var reply mp.StatesListReply
	if err := g.call(ctx, mp.CmdStatesList, struct{}{}, &reply); err != nil {
		return nil, err
	}
	return reply.States, nil
}

func (g Gateway) call(ctx context.Context, cmdType string, body any, out any) error {
	cmd, err := mp.NewCommand(cmdType, body)
	if err != nil {
		return fmt.Errorf("build %s: %w", cmdType, err)
	}
	cmd = g.decorateCommand(cmd)
	reply, err := g.Broker.PublishCommand(ctx, g.NodeID, cmd)
	if err != nil {
		return fmt.Errorf("publish %s: %w", cmdType, err)
	}
	if reply.Err != nil {
		return reply.Err
	}
	if !reply.OK {
		return &mp.ReplyError{Code: mp.CodeTransport, Message: cmdType + " failed"}
	}
	if out == nil || len(reply.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Body, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", cmdType, err)
	}
	return nil
}

func (g Gateway) decorateCommand(cmd mp.CommandEnvelope) mp.CommandEnvelope {
	cmd.ID = g.IDGen.NewID()
	cmd.TS = g.Clock.NowUnix()
	cmd.From = g.Identity
	cmd.ReplyTo = g.Broker.ReplyTopic()
	return cmd
}
