package pickd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	tmp := t.TempDir()
	tokenPath := filepath.Join(tmp, "token")
	if err := os.WriteFile(tokenPath, []byte("abc\n"), 0o600); err != nil {
		t.Fatalf("write token: %v", err)
	}
	path := filepath.Join(tmp, "config.toml")
	data := []byte("" +
		"[server]\n" +
		"broker = \"mqtt://localhost\"\n" +
		"identity = \"mpickd-test\"\n" +
		"\n" +
		"[modules.hass_gateway]\n" +
		"enabled = true\n" +
		"url = \"http://ha.local:8123\"\n" +
		"token_file = \"" + tokenPath + "\"\n" +
		"\n" +
		"[modules.podcast_source]\n" +
		"feeds = [\"https://example.com/feed.xml\"]\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Server.Broker != "mqtt://localhost" {
		t.Fatalf("expected broker")
	}
	if !cfg.Modules.HassGateway.Enabled || cfg.Modules.HassGateway.Token != "abc" {
		t.Fatalf("unexpected hass gateway config %+v", cfg.Modules.HassGateway)
	}
	if len(cfg.Modules.PodcastSource.Feeds) != 1 {
		t.Fatalf("expected one feed")
	}
}

func TestLoadConfigRequiresPath(t *testing.T) {
	if _, err := LoadConfig(""); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/cfg")
	path, err := DefaultConfigPath()
	if err != nil {
		t.Fatalf("default config path: %v", err)
	}
	if path != filepath.Join("/cfg", "mpickd", "config.toml") {
		t.Fatalf("unexpected path %q", path)
	}
}

func TestNewLoggerDefaults(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "bogus", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	if logger.Core().Enabled(-1) {
		t.Fatalf("expected debug disabled at default level")
	}
}
