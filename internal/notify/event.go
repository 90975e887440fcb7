// Package notify fans lifecycle events out to registered observers.
package notify

import (
	"context"
	"time"

	"github.com/caevv/autotest/internal/store"
)

// Action names a lifecycle event. The values match the message actions the
// popup and content overlay listen for.
type Action string

const (
	TestStarted   Action = "testStarted"
	TestCompleted Action = "testCompleted"
)

// Event is a single lifecycle notification.
type Event struct {
	Action Action           `json:"action"`
	Record store.TestRecord `json:"record"`
	Status store.Status     `json:"status,omitempty"`
	Time   time.Time        `json:"time"`
}

// Started builds a testStarted event for rec.
func Started(rec *store.TestRecord) Event {
	return Event{Action: TestStarted, Record: *rec.Clone(), Status: rec.Status, Time: time.Now()}
}

// Completed builds a testCompleted event for rec.
func Completed(rec *store.TestRecord) Event {
	return Event{Action: TestCompleted, Record: *rec.Clone(), Status: rec.Status, Time: time.Now()}
}

// Observer receives lifecycle events. Notify runs on the observer's own
// delivery goroutine; a returned error is logged and otherwise ignored.
type Observer interface {
	Name() string
	Notify(ctx context.Context, ev Event) error
}

// Func adapts a plain function to the Observer interface.
type Func struct {
	ObserverName string
	Fn           func(ctx context.Context, ev Event) error
}

// Name returns the observer name used in logs.
func (f Func) Name() string { return f.ObserverName }

// Notify calls the wrapped function.
func (f Func) Notify(ctx context.Context, ev Event) error { return f.Fn(ctx, ev) }
