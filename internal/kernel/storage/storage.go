// Package storage implements per-plugin key/value storage (C6) described
// in spec.md §4.6: atomic JSON persistence and typed value coercion,
// ported from original_source's storage_api.rs.
package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/opskernel/pluginhost/internal/kernel/kernelerr"
)

type pluginData struct {
	Data map[string]json.RawMessage `json:"data"`
}

// Store holds a lazily-loaded, atomically-persisted KV namespace per
// plugin ID.
type Store struct {
	mu        sync.RWMutex
	storeDir  string
	data      map[string]*pluginData
	loadedIDs map[string]bool
}

// New returns a Store rooted at storeDir, one subdirectory per plugin.
func New(storeDir string) *Store {
	return &Store{
		storeDir:  storeDir,
		data:      make(map[string]*pluginData),
		loadedIDs: make(map[string]bool),
	}
}

func (s *Store) storagePath(pluginID string) string {
	return filepath.Join(s.storeDir, pluginID, "storage.json")
}

// ensureLoaded lazily reads <storeDir>/<pluginID>/storage.json into
// memory. Caller must hold s.mu for writing.
func (s *Store) ensureLoadedLocked(pluginID string) {
	if s.loadedIDs[pluginID] {
		return
	}
	s.loadedIDs[pluginID] = true

	pd := &pluginData{Data: make(map[string]json.RawMessage)}
	if raw, err := os.ReadFile(s.storagePath(pluginID)); err == nil {
		var onDisk pluginData
		if json.Unmarshal(raw, &onDisk) == nil && onDisk.Data != nil {
			pd.Data = onDisk.Data
		}
	}
	s.data[pluginID] = pd
}

// saveLocked atomically persists pluginID's namespace via a "<path>.tmp"
// staging file plus rename, matching spec.md's literal append-suffix
// convention (original_source instead replaces the extension, which the
// spec deliberately departs from).
func (s *Store) saveLocked(pluginID string) error {
	path := s.storagePath(pluginID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return &kernelerr.FileSystem{Detail: err.Error()}
	}

	encoded, err := json.MarshalIndent(s.data[pluginID], "", "  ")
	if err != nil {
		return &kernelerr.FileSystem{Detail: err.Error()}
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, encoded, 0o644); err != nil {
		return &kernelerr.FileSystem{Detail: err.Error()}
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return &kernelerr.FileSystem{Detail: err.Error()}
	}
	return nil
}

// Set stores value (a JSON-encodable string, number, bool, or object,
// falling back to a raw string on parse failure) under key for pluginID.
// It drops the lock before the save I/O and reacquires a read lock for the
// snapshot write, matching spec.md §5's "drop lock before I/O" discipline.
func (s *Store) Set(pluginID, key, value string) error {
	if key == "" {
		return &kernelerr.FileSystem{Detail: "storage key must not be empty"}
	}

	encoded := coerce(value)

	s.mu.Lock()
	s.ensureLoadedLocked(pluginID)
	s.data[pluginID].Data[key] = encoded
	s.mu.Unlock()

	s.mu.RLock()
	err := s.saveLocked(pluginID)
	s.mu.RUnlock()
	return err
}

// coerce attempts to interpret value as JSON (string/number/bool/object);
// on failure it falls back to encoding the raw text as a JSON string,
// mirroring storage_api.rs's set().
func coerce(value string) json.RawMessage {
	var probe interface{}
	if err := json.Unmarshal([]byte(value), &probe); err == nil {
		return json.RawMessage(value)
	}
	fallback, _ := json.Marshal(value)
	return json.RawMessage(fallback)
}

// Get returns the JSON-encoded value for key, or ("", false) if absent.
func (s *Store) Get(pluginID, key string) (string, bool) {
	s.mu.Lock()
	s.ensureLoadedLocked(pluginID)
	raw, ok := s.data[pluginID].Data[key]
	s.mu.Unlock()
	if !ok {
		return "", false
	}
	return string(raw), true
}

// Delete removes key, reporting whether it existed.
func (s *Store) Delete(pluginID, key string) (bool, error) {
	s.mu.Lock()
	s.ensureLoadedLocked(pluginID)
	_, existed := s.data[pluginID].Data[key]
	delete(s.data[pluginID].Data, key)
	s.mu.Unlock()

	if !existed {
		return false, nil
	}

	s.mu.RLock()
	err := s.saveLocked(pluginID)
	s.mu.RUnlock()
	return true, err
}

// Clear removes every key for pluginID.
func (s *Store) Clear(pluginID string) error {
	s.mu.Lock()
	s.ensureLoadedLocked(pluginID)
	s.data[pluginID].Data = make(map[string]json.RawMessage)
	s.mu.Unlock()

	s.mu.RLock()
	err := s.saveLocked(pluginID)
	s.mu.RUnlock()
	return err
}

// Keys returns every key currently stored for pluginID.
func (s *Store) Keys(pluginID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(pluginID)

	keys := make([]string, 0, len(s.data[pluginID].Data))
	for k := range s.data[pluginID].Data {
		keys = append(keys, k)
	}
	return keys
}

// Has reports whether key exists for pluginID.
func (s *Store) Has(pluginID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(pluginID)
	_, ok := s.data[pluginID].Data[key]
	return ok
}

// Size returns the number of keys stored for pluginID.
func (s *Store) Size(pluginID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(pluginID)
	return len(s.data[pluginID].Data)
}
