// Package store provides crash-safe record persistence using JSON files.
//
// The registry lives in registry.json; each pocket is stored as a separate
// file, pocket_<address>.json. Writes use atomic file replacement (write to
// .tmp, then rename) to prevent corruption from partial writes or crashes
// mid-save. The services call Save* after each state transition, and Load*/
// List* on startup to restore state.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"pocket-keeper/internal/pocket"
	"pocket-keeper/internal/registry"
	"pocket-keeper/pkg/types"
)

const (
	registryFile = "registry.json"
	pocketPrefix = "pocket_"
)

// Store persists registry and pocket records to JSON files in a designated
// directory. All operations are mutex-protected to prevent concurrent file
// corruption.
type Store struct {
	dir string     // directory containing registry.json and pocket_*.json
	mu  sync.Mutex // serializes all file operations
}

// Open creates a store backed by the given directory.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Close is a no-op for file-based storage.
func (s *Store) Close() error {
	return nil
}

// SaveRegistry atomically persists the registry record.
func (s *Store) SaveRegistry(r *registry.Registry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(registryFile, r)
}

// LoadRegistry restores the registry from disk.
// Returns nil, nil if no saved registry exists (fresh deployment).
func (s *Store) LoadRegistry() (*registry.Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r registry.Registry
	ok, err := s.readFile(registryFile, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// SavePocket atomically persists one pocket record.
// It writes to a .tmp file first, then renames over the target to ensure
// the file is never left in a partial state (crash-safe).
func (s *Store) SavePocket(p *pocket.Pocket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAtomic(pocketFile(p.Address), p)
}

// LoadPocket restores one pocket record from disk.
// Returns nil, nil if no record exists for the address.
func (s *Store) LoadPocket(addr types.Address) (*pocket.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var p pocket.Pocket
	ok, err := s.readFile(pocketFile(addr), &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}

// ListPockets restores every pocket record in the directory.
func (s *Store) ListPockets() ([]*pocket.Pocket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read store dir: %w", err)
	}

	var pockets []*pocket.Pocket
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, pocketPrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		var p pocket.Pocket
		if _, err := s.readFile(name, &p); err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		pockets = append(pockets, &p)
	}
	return pockets, nil
}

// DeletePocket removes a pocket record. Deleting an absent record is not an
// error.
func (s *Store) DeletePocket(addr types.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(filepath.Join(s.dir, pocketFile(addr)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete pocket: %w", err)
	}
	return nil
}

func pocketFile(addr types.Address) string {
	return pocketPrefix + addr.Hex() + ".json"
}

func (s *Store) writeAtomic(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return os.Rename(tmp, path)
}

// readFile unmarshals one record; ok is false when the file does not exist.
func (s *Store) readFile(name string, v interface{}) (ok bool, err error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return true, nil
}
