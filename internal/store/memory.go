package store

import "sync"

// MemoryStore keeps the recent-tests list in process memory only.
// It is used by tests and by ephemeral runs that do not need durability.
type MemoryStore struct {
	capacity int
	list     recentList
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory store bounded to capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Load returns all retained records, most-recent-first.
func (s *MemoryStore) Load() ([]*TestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.clone(), nil
}

// Append inserts rec at the head and evicts the oldest records.
func (s *MemoryStore) Append(rec *TestRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.list.prepend(rec, s.capacity)
	if err != nil {
		return err
	}
	s.list = next
	return nil
}

// UpdateByID applies mutate to the record with the given id.
func (s *MemoryStore) UpdateByID(id string, mutate func(*TestRecord) error) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, found, err := s.list.update(id, mutate)
	if err != nil || !found {
		return found, err
	}
	s.list = next
	return true, nil
}

// Get returns a copy of the record with the given id.
func (s *MemoryStore) Get(id string) (*TestRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.list.get(id)
}

// Capacity returns the retention bound.
func (s *MemoryStore) Capacity() int {
	return s.capacity
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}
