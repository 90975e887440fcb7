// Package tracker owns the lifecycle of test runs: it creates records, applies
// status transitions and announces them to observers.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/caevv/autotest/internal/logging"
	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/store"
)

// Publisher receives lifecycle events. *notify.Dispatcher implements it.
type Publisher interface {
	Publish(ev notify.Event)
}

// Tracker is the only writer of a record's status and completion time.
// All transitions are serialized, so out-of-order or duplicate completion
// reports cannot interleave.
type Tracker struct {
	store     store.Store
	publisher Publisher
	logger    *slog.Logger
	sim       Simulation

	now     func() time.Time
	newID   func() string
	device  string
	browser string

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithSimulation arms a completion timer for every started test.
func WithSimulation(sim Simulation) Option {
	return func(t *Tracker) { t.sim = sim }
}

// WithDefaults sets the device and browser recorded when a config omits them.
// Empty values keep DefaultDevice and DefaultBrowser.
func WithDefaults(device, browser string) Option {
	return func(t *Tracker) {
		if device != "" {
			t.device = device
		}
		if browser != "" {
			t.browser = browser
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(newID func() string) Option {
	return func(t *Tracker) { t.newID = newID }
}

// New creates a Tracker writing to st and publishing to pub. pub may be nil.
func New(st store.Store, pub Publisher, logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Tracker{
		store:     st,
		publisher: pub,
		logger:    logger,
		now:       time.Now,
		newID:     GenerateTestID,
		device:    DefaultDevice,
		browser:   DefaultBrowser,
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.sim.Enabled {
		if t.sim.Delay <= 0 {
			t.sim.Delay = 5 * time.Second
		}
		if !t.sim.Outcome.Terminal() {
			t.sim.Outcome = store.StatusPassed
		}
	}
	return t
}

// GenerateTestID returns a new unique test id.
func GenerateTestID() string {
	return "test-" + uuid.New().String()
}

// StartTest validates cfg, records a new run and announces it.
// The record is created queued and immediately advanced to running, since
// nothing sits between acceptance and execution.
func (t *Tracker) StartTest(ctx context.Context, cfg TestConfig) (*store.TestRecord, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrClosed
	}

	now := t.now()
	rec := cfg.newRecord(t.newID(), now, t.device, t.browser)
	if err := transition(rec, store.StatusRunning, now); err != nil {
		return nil, err
	}

	if err := t.store.Append(rec); err != nil {
		return nil, fmt.Errorf("persist test %s: %w", rec.ID, err)
	}

	logging.ForTest(t.logger, rec).InfoContext(ctx, "test started",
		slog.String("target_url", rec.TargetURL))

	t.publish(notify.Started(rec))

	if t.sim.Enabled {
		t.armLocked(rec.ID, t.sim.Outcome, t.sim.Delay)
	}

	return rec.Clone(), nil
}

// CompleteTest applies the terminal transition matching outcome.
//
// An unknown id returns (nil, nil). A transition that is not legal from the
// record's current state is logged and ignored, and the current record is
// returned unchanged, so a repeated completion is harmless.
func (t *Tracker) CompleteTest(ctx context.Context, id string, outcome store.Status) (*store.TestRecord, error) {
	if id == "" {
		return nil, invalid("testId", "is required")
	}
	if !outcome.Terminal() {
		return nil, invalid("status", "must be %q or %q, got %q", store.StatusPassed, store.StatusFailed, outcome)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	return t.completeLocked(ctx, id, outcome)
}

func (t *Tracker) completeLocked(ctx context.Context, id string, outcome store.Status) (*store.TestRecord, error) {
	t.disarmLocked(id)

	var updated *store.TestRecord
	now := t.now()
	found, err := t.store.UpdateByID(id, func(rec *store.TestRecord) error {
		if err := transition(rec, outcome, now); err != nil {
			return err
		}
		updated = rec.Clone()
		return nil
	})

	var rejected *transitionError
	switch {
	case errors.As(err, &rejected):
		current, getErr := t.store.Get(id)
		if getErr != nil {
			t.logger.WarnContext(ctx, "transition rejected",
				slog.String("test_id", id),
				slog.String("from", rejected.from),
				slog.String("to", rejected.to))
			return nil, nil
		}
		logging.ForTest(t.logger, current).WarnContext(ctx, "transition rejected",
			slog.String("from", rejected.from),
			slog.String("to", rejected.to))
		return current, nil
	case err != nil:
		return nil, fmt.Errorf("persist completion of %s: %w", id, err)
	case !found:
		t.logger.DebugContext(ctx, "completion for unknown test ignored", slog.String("test_id", id))
		return nil, nil
	}

	logging.ForTest(t.logger, updated).InfoContext(ctx, "test completed",
		slog.String("status", string(updated.Status)),
		slog.Duration("duration", updated.Duration()))

	t.publish(notify.Completed(updated))
	return updated, nil
}

// RecentTests returns the retained records, most-recent-first.
func (t *Tracker) RecentTests() ([]*store.TestRecord, error) {
	return t.store.Load()
}

// Get returns a single record. It wraps store.ErrNotFound for unknown ids.
func (t *Tracker) Get(id string) (*store.TestRecord, error) {
	return t.store.Get(id)
}

// Pending reports whether a simulated completion is armed for id.
func (t *Tracker) Pending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[id]
	return ok
}

// CancelCompletion disarms the simulated completion of id.
// It reports whether a timer was pending.
func (t *Tracker) CancelCompletion(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disarmLocked(id)
}

// Stats counts retained records per status.
type Stats struct {
	Total   int `json:"total"`
	Queued  int `json:"queued"`
	Running int `json:"running"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
}

// PassRate returns the share of completed runs that passed, in percent.
func (s Stats) PassRate() float64 {
	done := s.Passed + s.Failed
	if done == 0 {
		return 0
	}
	return float64(s.Passed) / float64(done) * 100
}

// Stats summarizes the retained records.
func (t *Tracker) Stats() (Stats, error) {
	recs, err := t.store.Load()
	if err != nil {
		return Stats{}, err
	}

	s := Stats{Total: len(recs)}
	for _, r := range recs {
		switch r.Status {
		case store.StatusQueued:
			s.Queued++
		case store.StatusRunning:
			s.Running++
		case store.StatusPassed:
			s.Passed++
		case store.StatusFailed:
			s.Failed++
		}
	}
	return s, nil
}

// Close stops every pending simulated completion. Later StartTest calls fail.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	for id := range t.timers {
		t.disarmLocked(id)
	}
}

// armLocked schedules a completion of id after delay.
func (t *Tracker) armLocked(id string, outcome store.Status, delay time.Duration) {
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()

		// A newer timer or an explicit completion may have replaced this one.
		if t.timers[id] != timer {
			return
		}
		delete(t.timers, id)

		ctx := context.Background()
		t.logger.DebugContext(ctx, "simulated completion fired", slog.String("test_id", id))
		if _, err := t.completeLocked(ctx, id, outcome); err != nil {
			t.logger.ErrorContext(ctx, "simulated completion failed",
				slog.String("test_id", id),
				slog.String("error", err.Error()))
		}
	})
	t.timers[id] = timer
}

func (t *Tracker) disarmLocked(id string) bool {
	timer, ok := t.timers[id]
	if !ok {
		return false
	}
	timer.Stop()
	delete(t.timers, id)
	return true
}

func (t *Tracker) publish(ev notify.Event) {
	if t.publisher != nil {
		t.publisher.Publish(ev)
	}
}
