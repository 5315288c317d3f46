package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/mikey-austin/media_picker/internal/core"
)

// Config holds CLI configuration from config.toml.
type Config struct {
	Backend   string            `toml:"backend"`
	Identity  string            `toml:"identity"`
	TopicBase string            `toml:"topic_base"`
	Hass      Hass              `toml:"hass"`
	MQTT      MQTT              `toml:"mqtt"`
	Aliases   map[string]string `toml:"aliases"`
	Defaults  Defaults          `toml:"defaults"`
	Search    Search            `toml:"search"`
	Debug     map[string]bool   `toml:"debug"`
	StateFile string            `toml:"state_file"`
}

// Hass configures the direct Home Assistant websocket backend.
type Hass struct {
	URL       string `toml:"url"`
	Token     string `toml:"token"`
	TokenFile string `toml:"token_file"`
}

// MQTT configures the gateway backend.
type MQTT struct {
	Broker   string `toml:"broker"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	TLSCA    string `toml:"tls_ca"`
	TLSCert  string `toml:"tls_cert"`
	TLSKey   string `toml:"tls_key"`
	Timeout  string `toml:"timeout"`
}

// Defaults defines default selector values.
type Defaults struct {
	Player  string `toml:"player"`
	Gateway string `toml:"gateway"`
}

// Search seeds search options.
type Search struct {
	MediaType   string `toml:"media_type"`
	Limit       int    `toml:"limit"`
	LibraryOnly bool   `toml:"library_only"`
}

// Load loads config.toml if present. Missing file returns an empty config.
func Load() (Config, error) {
	path, err := configPath()
	if err != nil {
		return Config{}, err
	}
	return LoadFile(path)
}

// LoadFile loads a config file. A missing file returns an empty config.
func LoadFile(path string) (Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return normalize(Config{}), nil
		}
		return Config{}, err
	}
	if info.IsDir() {
		return Config{}, errors.New("config path is a directory")
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Hass.Token == "" && cfg.Hass.TokenFile != "" {
		data, err := os.ReadFile(cfg.Hass.TokenFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Hass.Token = strings.TrimSpace(string(data))
	}
	return normalize(cfg), nil
}

func normalize(cfg Config) Config {
	if cfg.Aliases == nil {
		cfg.Aliases = map[string]string{}
	}
	if cfg.Debug == nil {
		cfg.Debug = map[string]bool{}
	}
	debug := make(map[string]bool, len(cfg.Debug))
	for name, on := range cfg.Debug {
		debug[strings.ToLower(strings.TrimSpace(name))] = on
	}
	cfg.Debug = debug
	return cfg
}

// Core converts the file config into the use-case config.
func (c Config) Core() core.Config {
	return core.Config{
		Backend:   c.Backend,
		Identity:  c.Identity,
		TopicBase: c.TopicBase,
		Aliases:   c.Aliases,
		Defaults: core.Defaults{
			Player:  c.Defaults.Player,
			Gateway: c.Defaults.Gateway,
		},
		Search: core.SearchDefaults{
			MediaType:   c.Search.MediaType,
			Limit:       c.Search.Limit,
			LibraryOnly: c.Search.LibraryOnly,
		},
		Debug: c.Debug,
	}
}

func configPath() (string, error) {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "mpick", "config.toml"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "mpick", "config.toml"), nil
}
