package tracker

import (
	"time"

	"github.com/caevv/autotest/internal/store"
)

// successor maps each non-terminal state to the states it may move to.
var successor = map[store.Status][]store.Status{
	store.StatusQueued:  {store.StatusRunning},
	store.StatusRunning: {store.StatusPassed, store.StatusFailed},
}

// CanTransition reports whether a record may move from one state to another.
func CanTransition(from, to store.Status) bool {
	for _, next := range successor[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves rec to the target state, stamping CompletedAt on entry to a
// terminal state. The record is left untouched when the move is illegal.
func transition(rec *store.TestRecord, to store.Status, now time.Time) error {
	if !CanTransition(rec.Status, to) {
		return &transitionError{id: rec.ID, from: string(rec.Status), to: string(to)}
	}

	rec.Status = to
	if to.Terminal() {
		// completedAt must sort after createdAt even on a coarse clock.
		if !now.After(rec.CreatedAt) {
			now = rec.CreatedAt.Add(time.Millisecond)
		}
		rec.CompletedAt = &now
	}
	return nil
}
