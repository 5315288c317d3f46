package main

import (
	"testing"

	"go.uber.org/zap"

	"github.com/mikey-austin/media_picker/internal/modules/gatewaynode"
	"github.com/mikey-austin/media_picker/internal/pickd"
)

func TestBuildModulesModuleOnlyFilter(t *testing.T) {
	cfg := pickd.Config{}
	cfg.Server.Identity = "den"
	cfg.Modules.FSSource.Enabled = true
	cfg.Modules.FSSource.Roots = []string{t.TempDir()}
	cfg.Modules.PodcastSource.Enabled = true
	cfg.Modules.PodcastSource.Feeds = []string{"https://example.com/feed.xml"}
	cfg.Modules.PodcastSource.CacheDir = t.TempDir()

	var connected []string
	connect := func(nodeID string) (gatewaynode.Client, error) {
		connected = append(connected, nodeID)
		return nil, nil
	}

	modules, err := buildModules(cfg, connect, zap.NewNop(), "fs_source", false)
	if err != nil {
		t.Fatalf("buildModules: %v", err)
	}
	if len(modules) != 1 || modules[0].Name != "fs_source" {
		t.Fatalf("expected only fs_source, got %+v", modules)
	}
	if len(connected) != 1 || connected[0] != "mp:source:den:files" {
		t.Fatalf("unexpected connections %v", connected)
	}

	if _, err := buildModules(cfg, connect, zap.NewNop(), "hass_gateway", false); err == nil {
		t.Fatalf("expected error for filtered module")
	}
}

func TestBuildModulesRejectsBadRefreshInterval(t *testing.T) {
	cfg := pickd.Config{}
	cfg.Modules.PodcastSource.Enabled = true
	cfg.Modules.PodcastSource.Feeds = []string{"https://example.com/feed.xml"}
	cfg.Modules.PodcastSource.RefreshInterval = "daily"

	connect := func(string) (gatewaynode.Client, error) { return nil, nil }
	if _, err := buildModules(cfg, connect, zap.NewNop(), "", false); err == nil {
		t.Fatalf("expected refresh interval error")
	}
}

func TestApplyOverridesEmbeddedBroker(t *testing.T) {
	cfg := pickd.Config{}
	cfg.Modules.EmbeddedMQTT.Enabled = true
	applyOverrides(&cfg, "", "", "", "", "", "", false, false)
	if cfg.Server.Broker != "mqtt://127.0.0.1:1883" {
		t.Fatalf("unexpected broker %q", cfg.Server.Broker)
	}
	if cfg.Server.TopicBase != "mp/v1" || cfg.Server.Identity != "mpickd" {
		t.Fatalf("unexpected defaults %+v", cfg.Server)
	}
}
