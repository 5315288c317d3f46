package pickd

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the top-level configuration for mpickd.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Modules ModulesConfig `toml:"modules"`
}

// ServerConfig defines shared server settings.
type ServerConfig struct {
	Broker    string     `toml:"broker"`
	Identity  string     `toml:"identity"`
	TopicBase string     `toml:"topic_base"`
	LogLevel  string     `toml:"log_level"`
	LogFormat string     `toml:"log_format"`
	LogOutput string     `toml:"log_output"`
	LogSource bool       `toml:"log_source"`
	LogUTC    bool       `toml:"log_utc"`
	TLS       TLSConfig  `toml:"tls"`
	Auth      AuthConfig `toml:"auth"`
}

// TLSConfig holds TLS paths for MQTT.
type TLSConfig struct {
	CA   string `toml:"ca"`
	Cert string `toml:"cert"`
	Key  string `toml:"key"`
}

// AuthConfig holds MQTT auth credentials.
type AuthConfig struct {
	User string `toml:"user"`
	Pass string `toml:"pass"`
}

// ModulesConfig holds module configurations.
type ModulesConfig struct {
	EmbeddedMQTT  EmbeddedMQTTConfig  `toml:"embedded_mqtt"`
	HassGateway   HassGatewayConfig   `toml:"hass_gateway"`
	PodcastSource PodcastSourceConfig `toml:"podcast_source"`
	FSSource      FSSourceConfig      `toml:"fs_source"`
}

// EmbeddedMQTTConfig configures the embedded MQTT broker.
type EmbeddedMQTTConfig struct {
	Enabled        bool   `toml:"enabled"`
	Listen         string `toml:"listen"`
	AllowAnonymous bool   `toml:"allow_anonymous"`
	Username       string `toml:"username"`
	Password       string `toml:"password"`
	TLSCA          string `toml:"tls_ca"`
	TLSCert        string `toml:"tls_cert"`
	TLSKey         string `toml:"tls_key"`
}

// HassGatewayConfig configures the Home Assistant gateway node.
type HassGatewayConfig struct {
	Enabled   bool   `toml:"enabled"`
	NodeID    string `toml:"node_id"`
	Name      string `toml:"name"`
	URL       string `toml:"url"`
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
	TimeoutMS int64  `toml:"timeout_ms"`
}

// PodcastSourceConfig configures the podcast gateway node.
type PodcastSourceConfig struct {
	Enabled           bool     `toml:"enabled"`
	NodeID            string   `toml:"node_id"`
	Name              string   `toml:"name"`
	Feeds             []string `toml:"feeds"`
	CacheDir          string   `toml:"cache_dir"`
	RefreshInterval   string   `toml:"refresh_interval"`
	TimeoutMS         int64    `toml:"timeout_ms"`
	ReverseSortByDate bool     `toml:"reverse_sort_by_date"`
}

// FSSourceConfig configures the local folder gateway node.
type FSSourceConfig struct {
	Enabled bool     `toml:"enabled"`
	NodeID  string   `toml:"node_id"`
	Name    string   `toml:"name"`
	Roots   []string `toml:"roots"`
	Listen  string   `toml:"listen"`
	BaseURL string   `toml:"base_url"`
}

// LoadConfig loads a config file from path.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path required")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	hass := &cfg.Modules.HassGateway
	if hass.Token == "" && hass.TokenFile != "" {
		data, err := os.ReadFile(hass.TokenFile)
		if err != nil {
			return Config{}, err
		}
		hass.Token = strings.TrimSpace(string(data))
	}
	return cfg, nil
}

// DefaultConfigPath returns the default config location.
func DefaultConfigPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mpickd", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mpickd", "config.toml"), nil
}
