package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// slotsBucket holds named slots, each a JSON-encoded list.
	slotsBucket = "slots"
	// recentTestsKey is the slot holding the ordered recent-tests list.
	recentTestsKey = "recentTests"
)

// BoltStore implements the Store interface using BoltDB.
// The whole list lives under one key and every write is a single transaction.
type BoltStore struct {
	db       *bolt.DB
	capacity int
}

// NewBoltStore creates a new BoltDB-backed store at the given path.
func NewBoltStore(path string, capacity int) (*BoltStore, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb at %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(slotsBucket)); err != nil {
			return fmt.Errorf("create slots bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, capacity: capacity}, nil
}

func (s *BoltStore) readList(tx *bolt.Tx) (recentList, error) {
	data := tx.Bucket([]byte(slotsBucket)).Get([]byte(recentTestsKey))
	if data == nil {
		return nil, nil
	}

	var list recentList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", recentTestsKey, err)
	}
	return list.trim(s.capacity), nil
}

func (s *BoltStore) writeList(tx *bolt.Tx, list recentList) error {
	data, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", recentTestsKey, err)
	}
	if err := tx.Bucket([]byte(slotsBucket)).Put([]byte(recentTestsKey), data); err != nil {
		return fmt.Errorf("put %s: %w", recentTestsKey, err)
	}
	return nil
}

// Load returns all retained records, most-recent-first.
func (s *BoltStore) Load() ([]*TestRecord, error) {
	var out []*TestRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		list, err := s.readList(tx)
		if err != nil {
			return err
		}
		out = list.clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Append inserts rec at the head and evicts the oldest records.
func (s *BoltStore) Append(rec *TestRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		list, err := s.readList(tx)
		if err != nil {
			return err
		}
		next, err := list.prepend(rec, s.capacity)
		if err != nil {
			return err
		}
		return s.writeList(tx, next)
	})
}

// UpdateByID applies mutate to the record with the given id.
func (s *BoltStore) UpdateByID(id string, mutate func(*TestRecord) error) (bool, error) {
	var found bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		list, err := s.readList(tx)
		if err != nil {
			return err
		}
		next, ok, err := list.update(id, mutate)
		found = ok
		if err != nil || !ok {
			return err
		}
		return s.writeList(tx, next)
	})
	return found, err
}

// Get returns a copy of the record with the given id.
func (s *BoltStore) Get(id string) (*TestRecord, error) {
	var rec *TestRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		list, err := s.readList(tx)
		if err != nil {
			return err
		}
		rec, err = list.get(id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Capacity returns the retention bound.
func (s *BoltStore) Capacity() int {
	return s.capacity
}

// Close releases resources held by the store.
func (s *BoltStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
