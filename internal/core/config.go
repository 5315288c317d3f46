package core

import "strings"

// Config is runtime configuration for the CLI.
type Config struct {
	Backend   string
	Identity  string
	TopicBase string
	Aliases   map[string]string
	Defaults  Defaults
	Search    SearchDefaults
	Debug     map[string]bool
}

// Defaults defines default selector values.
type Defaults struct {
	Player  string
	Gateway string
}

// SearchDefaults seed the search options of every session.
type SearchDefaults struct {
	MediaType   string
	Limit       int
	LibraryOnly bool
}

// Prefs reads per-provider debug flags from config.
type Prefs map[string]bool

// Debug reports whether verbose logging is on for provider.
func (p Prefs) Debug(provider string) bool {
	return p[strings.ToLower(strings.TrimSpace(provider))]
}
