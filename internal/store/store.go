// Package store provides bounded persistence for test run records.
package store

import (
	"errors"
	"time"
)

// DefaultCapacity is the number of records retained when no capacity is configured.
const DefaultCapacity = 10

var (
	// ErrNotFound is returned by Get when no record has the requested id.
	ErrNotFound = errors.New("test record not found")

	// ErrDuplicateID is returned by Append when the id is already retained.
	ErrDuplicateID = errors.New("duplicate test record id")
)

// Store defines the interface for the recent-tests slot.
//
// Every write replaces the whole retained list in one step, so a reader never
// observes a partially-updated list.
type Store interface {
	// Load returns all retained records, most-recent-first.
	// An empty store yields an empty slice, not an error.
	Load() ([]*TestRecord, error)

	// Append inserts rec at the head and evicts the oldest records beyond Capacity.
	Append(rec *TestRecord) error

	// UpdateByID applies mutate to the record with the given id and persists the list.
	// It reports false (and no error) when the id is not retained.
	// If mutate returns an error nothing is written and that error is returned.
	UpdateByID(id string, mutate func(*TestRecord) error) (bool, error)

	// Get returns a copy of a single record.
	Get(id string) (*TestRecord, error)

	// Capacity returns the retention bound N.
	Capacity() int

	// Close releases any resources held by the store.
	Close() error
}

// Status is the lifecycle state of a test run.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusPassed, StatusFailed:
		return true
	}
	return false
}

// Scenario tags the kind of flow under test.
type Scenario string

const (
	ScenarioSignup   Scenario = "signup"
	ScenarioLogin    Scenario = "login"
	ScenarioUpload   Scenario = "upload"
	ScenarioCheckout Scenario = "checkout"
	ScenarioCustom   Scenario = "custom"
)

// Scenarios lists every supported scenario in display order.
var Scenarios = []Scenario{ScenarioSignup, ScenarioLogin, ScenarioUpload, ScenarioCheckout, ScenarioCustom}

// Valid reports whether sc is a known scenario.
func (sc Scenario) Valid() bool {
	for _, known := range Scenarios {
		if sc == known {
			return true
		}
	}
	return false
}

// TestRecord is a single tracked test run.
type TestRecord struct {
	// ID is assigned at creation and never changes.
	ID string `json:"id"`

	Scenario  Scenario `json:"scenario"`
	Name      string   `json:"name"`
	TargetURL string   `json:"targetUrl"`
	Title     string   `json:"title,omitempty"`
	Device    string   `json:"device"`
	Browser   string   `json:"browser"`

	// Status is only ever written by the tracker.
	Status Status `json:"status"`

	CreatedAt time.Time `json:"createdAt"`

	// CompletedAt is non-nil exactly when Status is terminal.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the record.
func (r *TestRecord) Clone() *TestRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Duration returns how long the run took, or zero while it is still in flight.
func (r *TestRecord) Duration() time.Duration {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.CreatedAt)
}

// IsRunning returns true if the run has started but not completed.
func (r *TestRecord) IsRunning() bool {
	return r.Status == StatusRunning
}
