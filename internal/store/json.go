package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore implements the Store interface using a single JSON file.
// The retained list is kept in memory and the whole file is rewritten on each write.
type JSONStore struct {
	path     string
	capacity int
	list     recentList
	mu       sync.RWMutex
}

// jsonSlot is the on-disk format: one named slot holding the ordered list.
type jsonSlot struct {
	RecentTests []*TestRecord `json:"recentTests"`
}

// NewJSONStore creates a new JSON file-backed store at the given path.
func NewJSONStore(path string, capacity int) (*JSONStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	s := &JSONStore{
		path:     path,
		capacity: capacity,
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, fmt.Errorf("load existing data: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	return s, nil
}

func (s *JSONStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	var slot jsonSlot
	if err := json.Unmarshal(data, &slot); err != nil {
		return fmt.Errorf("unmarshal json: %w", err)
	}

	s.list = recentList(slot.RecentTests).trim(s.capacity)
	return nil
}

// save writes list to disk through a temp file and rename.
func (s *JSONStore) save(list recentList) error {
	data, err := json.MarshalIndent(jsonSlot{RecentTests: list}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load returns all retained records, most-recent-first.
func (s *JSONStore) Load() ([]*TestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.clone(), nil
}

// Append inserts rec at the head, evicts the oldest records and rewrites the file.
func (s *JSONStore) Append(rec *TestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.list.prepend(rec, s.capacity)
	if err != nil {
		return err
	}
	if err := s.save(next); err != nil {
		return err
	}
	s.list = next
	return nil
}

// UpdateByID applies mutate to the record with the given id and rewrites the file.
func (s *JSONStore) UpdateByID(id string, mutate func(*TestRecord) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, found, err := s.list.update(id, mutate)
	if err != nil || !found {
		return found, err
	}
	if err := s.save(next); err != nil {
		return true, err
	}
	s.list = next
	return true, nil
}

// Get returns a copy of the record with the given id.
func (s *JSONStore) Get(id string) (*TestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.get(id)
}

// Capacity returns the retention bound.
func (s *JSONStore) Capacity() int {
	return s.capacity
}

// Close is a no-op since no file handle is held open.
func (s *JSONStore) Close() error {
	return nil
}
