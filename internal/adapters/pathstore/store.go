package pathstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/mikey-austin/media_picker/pkg/mp"
)

// Store remembers breadcrumb paths of selections under XDG_STATE_HOME or
// ~/.local/state. A sidecar lock file serialises concurrent CLI runs.
type Store struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

// NewStore creates a path store at the default location.
func NewStore() (*Store, error) {
	path, err := statePath()
	if err != nil {
		return nil, err
	}
	return Open(path), nil
}

// Open creates a path store backed by path.
func Open(path string) *Store {
	return &Store{path: path, lock: flock.New(path + ".lock")}
}

// Get returns the path stored under key.
func (s *Store) Get(key string) ([]mp.Descriptor, bool, error) {
	var (
		path []mp.Descriptor
		ok   bool
	)
	err := s.locked(func() error {
		data, err := s.readAll()
		if err != nil {
			return err
		}
		path, ok = data[key]
		return nil
	})
	return path, ok, err
}

// Put stores path under every key.
func (s *Store) Put(keys []string, path []mp.Descriptor) error {
	if len(keys) == 0 {
		return nil
	}
	return s.locked(func() error {
		data, err := s.readAll()
		if err != nil {
			return err
		}
		for _, key := range keys {
			if key == "" {
				continue
			}
			data[key] = append([]mp.Descriptor(nil), path...)
		}
		return s.writeAll(data)
	})
}

// Clear removes every key.
func (s *Store) Clear(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.locked(func() error {
		data, err := s.readAll()
		if err != nil {
			return err
		}
		for _, key := range keys {
			delete(data, key)
		}
		return s.writeAll(data)
	})
}

func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock path store: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}

func (s *Store) readAll() (map[string][]mp.Descriptor, error) {
	data := map[string][]mp.Descriptor{}
	file, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return data, nil
		}
		return nil, err
	}
	if len(file) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) writeAll(data map[string][]mp.Descriptor) error {
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func statePath() (string, error) {
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "mpick", "paths.json"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "mpick", "paths.json"), nil
}
