package tracker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/store"
)

// fakeClock advances one second on every read.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

// eventLog is a synchronous Publisher.
type eventLog struct {
	mu     sync.Mutex
	events []notify.Event
}

func (l *eventLog) Publish(ev notify.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []notify.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]notify.Event(nil), l.events...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *eventLog) {
	t.Helper()
	events := &eventLog{}
	seq := 0
	opts = append([]Option{
		WithClock(newFakeClock().Now),
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("test-%d", seq)
		}),
	}, opts...)
	tr := New(store.NewMemoryStore(10), events, quietLogger(), opts...)
	t.Cleanup(tr.Close)
	return tr, events
}

var loginConfig = TestConfig{Scenario: store.ScenarioLogin, TargetURL: "https://x.test"}

func TestStartTest_HeadIsRunning(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)
	require.Equal(t, store.StatusRunning, rec.Status)
	require.Nil(t, rec.CompletedAt)

	recent, err := tr.RecentTests()
	require.NoError(t, err)
	require.NotEmpty(t, recent)
	require.Equal(t, store.StatusRunning, recent[0].Status)
	require.Equal(t, store.ScenarioLogin, recent[0].Scenario)
	require.Equal(t, rec.ID, recent[0].ID)
}

func TestStartTest_Defaults(t *testing.T) {
	tr, _ := newTestTracker(t)

	rec, err := tr.StartTest(context.Background(), TestConfig{Scenario: store.ScenarioSignup, TargetURL: "https://x.test/signup"})
	require.NoError(t, err)
	require.Equal(t, "Desktop", rec.Device)
	require.Equal(t, "Chrome", rec.Browser)
	require.Equal(t, "Signup Flow Test", rec.Name)
	require.False(t, rec.CreatedAt.IsZero())
}

func TestStartTest_ConfiguredDefaults(t *testing.T) {
	tr, _ := newTestTracker(t, WithDefaults("Mobile", ""))

	rec, err := tr.StartTest(context.Background(), loginConfig)
	require.NoError(t, err)
	require.Equal(t, "Mobile", rec.Device)
	require.Equal(t, DefaultBrowser, rec.Browser)

	explicit := loginConfig
	explicit.Device = "Tablet"
	rec, err = tr.StartTest(context.Background(), explicit)
	require.NoError(t, err)
	require.Equal(t, "Tablet", rec.Device)
}

func TestLifecycleLogsCarryTestIdentity(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	tr := New(store.NewMemoryStore(10), nil, logger, WithIDGenerator(func() string { return "test-42" }))
	t.Cleanup(tr.Close)
	ctx := context.Background()

	_, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)
	_, err = tr.CompleteTest(ctx, "test-42", store.StatusPassed)
	require.NoError(t, err)
	_, err = tr.CompleteTest(ctx, "test-42", store.StatusFailed)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	for _, msg := range []string{"test started", "test completed", "transition rejected"} {
		var found bool
		for _, line := range lines {
			if strings.Contains(line, `"msg":"`+msg+`"`) {
				found = true
				assert.Contains(t, line, `"test_id":"test-42"`, msg)
				assert.Contains(t, line, `"scenario":"login"`, msg)
			}
		}
		assert.True(t, found, "missing log line %q", msg)
	}
}

func TestStartTest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		cfg   TestConfig
		field string
	}{
		{"missing scenario", TestConfig{TargetURL: "https://x.test"}, "scenario"},
		{"unknown scenario", TestConfig{Scenario: "smoke", TargetURL: "https://x.test"}, "scenario"},
		{"missing url", TestConfig{Scenario: store.ScenarioLogin}, "targetUrl"},
		{"blank url", TestConfig{Scenario: store.ScenarioLogin, TargetURL: "  "}, "targetUrl"},
		{"relative url", TestConfig{Scenario: store.ScenarioLogin, TargetURL: "/login"}, "targetUrl"},
		{"non-http url", TestConfig{Scenario: store.ScenarioLogin, TargetURL: "chrome://extensions"}, "targetUrl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, events := newTestTracker(t)

			rec, err := tr.StartTest(context.Background(), tt.cfg)
			require.Nil(t, rec)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "want ValidationError, got %v", err)
			require.Equal(t, tt.field, verr.Field)

			recent, _ := tr.RecentTests()
			require.Empty(t, recent, "no record may be created on validation failure")
			require.Empty(t, events.all())
		})
	}
}

func TestStartTest_BoundedHistory(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 11; i++ {
		rec, err := tr.StartTest(ctx, loginConfig)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	recent, err := tr.RecentTests()
	require.NoError(t, err)
	require.Len(t, recent, 10)

	for i, rec := range recent {
		require.Equal(t, ids[10-i], rec.ID, "records must be most-recent-first")
		require.NotEqual(t, ids[0], rec.ID, "first-created record must be evicted")
	}
}

func TestCompleteTest_Failed(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)

	done, err := tr.CompleteTest(ctx, rec.ID, store.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.True(t, done.CompletedAt.After(done.CreatedAt))

	stored, err := tr.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, stored.Status)
}

func TestCompleteTest_Idempotent(t *testing.T) {
	tr, events := newTestTracker(t)
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)

	first, err := tr.CompleteTest(ctx, rec.ID, store.StatusPassed)
	require.NoError(t, err)

	second, err := tr.CompleteTest(ctx, rec.ID, store.StatusPassed)
	require.NoError(t, err)
	require.Equal(t, first, second)

	third, err := tr.CompleteTest(ctx, rec.ID, store.StatusFailed)
	require.NoError(t, err)
	require.Equal(t, store.StatusPassed, third.Status, "terminal state must not change")

	require.Len(t, events.all(), 2, "only started and one completed event")
}

func TestCompleteTest_UnknownID(t *testing.T) {
	tr, events := newTestTracker(t)

	rec, err := tr.CompleteTest(context.Background(), "test-missing", store.StatusPassed)
	require.NoError(t, err)
	require.Nil(t, rec)
	require.Empty(t, events.all())
}

func TestCompleteTest_InvalidOutcome(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)

	for _, outcome := range []store.Status{store.StatusRunning, store.StatusQueued, "done", ""} {
		_, err := tr.CompleteTest(ctx, rec.ID, outcome)
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), "outcome %q", outcome)
	}

	_, err = tr.CompleteTest(ctx, "", store.StatusPassed)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "testId", verr.Field)
}

func TestCompleteTest_QueuedRecordRejected(t *testing.T) {
	st := store.NewMemoryStore(10)
	require.NoError(t, st.Append(&store.TestRecord{ID: "q1", Status: store.StatusQueued, CreatedAt: time.Now()}))
	tr := New(st, nil, quietLogger())

	rec, err := tr.CompleteTest(context.Background(), "q1", store.StatusPassed)
	require.NoError(t, err)
	require.Equal(t, store.StatusQueued, rec.Status)
	require.Nil(t, rec.CompletedAt)
}

func TestLifecycleEvents(t *testing.T) {
	tr, events := newTestTracker(t)
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)
	_, err = tr.CompleteTest(ctx, rec.ID, store.StatusPassed)
	require.NoError(t, err)

	got := events.all()
	require.Len(t, got, 2)
	require.Equal(t, notify.TestStarted, got[0].Action)
	require.Equal(t, store.StatusRunning, got[0].Record.Status)
	require.Equal(t, notify.TestCompleted, got[1].Action)
	require.Equal(t, store.StatusPassed, got[1].Status)
	require.NotNil(t, got[1].Record.CompletedAt)
}

// Observed statuses over time must be a prefix of queued, running, terminal,
// and completedAt must be set exactly when the status is terminal.
func TestInvariants_UnderConcurrentCompletion(t *testing.T) {
	tr, events := newTestTracker(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		rec, err := tr.StartTest(ctx, loginConfig)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for _, outcome := range []store.Status{store.StatusPassed, store.StatusFailed, store.StatusPassed} {
			wg.Add(1)
			go func(id string, outcome store.Status) {
				defer wg.Done()
				_, err := tr.CompleteTest(ctx, id, outcome)
				assert.NoError(t, err)
			}(id, outcome)
		}
	}
	wg.Wait()

	recent, err := tr.RecentTests()
	require.NoError(t, err)
	for _, rec := range recent {
		require.True(t, rec.Status.Terminal())
		require.NotNil(t, rec.CompletedAt)
	}

	rank := map[store.Status]int{store.StatusQueued: 0, store.StatusRunning: 1, store.StatusPassed: 2, store.StatusFailed: 2}
	last := map[string]int{}
	completions := map[string]int{}
	for _, ev := range events.all() {
		r := rank[ev.Record.Status]
		require.GreaterOrEqual(t, r, last[ev.Record.ID], "status regressed for %s", ev.Record.ID)
		last[ev.Record.ID] = r
		require.Equal(t, ev.Record.Status.Terminal(), ev.Record.CompletedAt != nil)
		if ev.Action == notify.TestCompleted {
			completions[ev.Record.ID]++
		}
	}
	for _, id := range ids {
		require.Equal(t, 1, completions[id], "exactly one completion for %s", id)
	}
}

func TestSimulation_CompletesAfterDelay(t *testing.T) {
	tr, events := newTestTracker(t, WithSimulation(Simulation{Enabled: true, Delay: 20 * time.Millisecond, Outcome: store.StatusPassed}))
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)
	require.True(t, tr.Pending(rec.ID))

	require.Eventually(t, func() bool {
		got, err := tr.Get(rec.ID)
		return err == nil && got.Status == store.StatusPassed
	}, time.Second, 5*time.Millisecond)

	require.False(t, tr.Pending(rec.ID))
	require.Eventually(t, func() bool { return len(events.all()) == 2 }, time.Second, 5*time.Millisecond)
}

func TestSimulation_Cancel(t *testing.T) {
	tr, _ := newTestTracker(t, WithSimulation(Simulation{Enabled: true, Delay: 30 * time.Millisecond}))
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)
	require.True(t, tr.CancelCompletion(rec.ID))
	require.False(t, tr.CancelCompletion(rec.ID))

	time.Sleep(80 * time.Millisecond)
	got, err := tr.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusRunning, got.Status)
}

func TestSimulation_SupersededByRealCompletion(t *testing.T) {
	tr, events := newTestTracker(t, WithSimulation(Simulation{Enabled: true, Delay: 30 * time.Millisecond, Outcome: store.StatusPassed}))
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)

	_, err = tr.CompleteTest(ctx, rec.ID, store.StatusFailed)
	require.NoError(t, err)
	require.False(t, tr.Pending(rec.ID))

	time.Sleep(80 * time.Millisecond)
	got, _ := tr.Get(rec.ID)
	require.Equal(t, store.StatusFailed, got.Status)
	require.Len(t, events.all(), 2)
}

func TestSimulation_Defaults(t *testing.T) {
	tr := New(store.NewMemoryStore(10), nil, quietLogger(), WithSimulation(Simulation{Enabled: true}))
	defer tr.Close()

	require.Equal(t, 5*time.Second, tr.sim.Delay)
	require.Equal(t, store.StatusPassed, tr.sim.Outcome)
}

func TestClose_StopsTimersAndRejectsStarts(t *testing.T) {
	tr, _ := newTestTracker(t, WithSimulation(Simulation{Enabled: true, Delay: 20 * time.Millisecond}))
	ctx := context.Background()

	rec, err := tr.StartTest(ctx, loginConfig)
	require.NoError(t, err)
	tr.Close()
	require.False(t, tr.Pending(rec.ID))

	_, err = tr.StartTest(ctx, loginConfig)
	require.ErrorIs(t, err, ErrClosed)
}

func TestStats(t *testing.T) {
	tr, _ := newTestTracker(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		rec, err := tr.StartTest(ctx, loginConfig)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	_, _ = tr.CompleteTest(ctx, ids[0], store.StatusPassed)
	_, _ = tr.CompleteTest(ctx, ids[1], store.StatusPassed)
	_, _ = tr.CompleteTest(ctx, ids[2], store.StatusFailed)

	stats, err := tr.Stats()
	require.NoError(t, err)
	require.Equal(t, Stats{Total: 4, Running: 1, Passed: 2, Failed: 1}, stats)
	require.InDelta(t, 66.67, stats.PassRate(), 0.01)
	require.Zero(t, Stats{}.PassRate())
}

func TestTracker_WithPersistentStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "tracker.db")
	st, err := store.NewStore("bbolt", dbPath, 10)
	require.NoError(t, err)

	tr := New(st, nil, quietLogger())
	rec, err := tr.StartTest(context.Background(), loginConfig)
	require.NoError(t, err)
	_, err = tr.CompleteTest(context.Background(), rec.ID, store.StatusFailed)
	require.NoError(t, err)
	tr.Close()
	require.NoError(t, st.Close())

	reopened, err := store.NewStore("bbolt", dbPath, 10)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(rec.ID)
	require.NoError(t, err)
	require.Equal(t, store.StatusFailed, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestCanTransition(t *testing.T) {
	all := []store.Status{store.StatusQueued, store.StatusRunning, store.StatusPassed, store.StatusFailed}
	legal := map[[2]store.Status]bool{
		{store.StatusQueued, store.StatusRunning}:  true,
		{store.StatusRunning, store.StatusPassed}:  true,
		{store.StatusRunning, store.StatusFailed}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			require.Equal(t, legal[[2]store.Status{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTransition_CompletedAtAfterCreatedAt(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := &store.TestRecord{ID: "t", Status: store.StatusRunning, CreatedAt: created}

	require.NoError(t, transition(rec, store.StatusPassed, created))
	require.True(t, rec.CompletedAt.After(created))
}

func TestDefaultName(t *testing.T) {
	require.Equal(t, "Login Flow Test", DefaultName(store.ScenarioLogin))
	require.Equal(t, "Checkout Flow Test", DefaultName(store.ScenarioCheckout))
	require.Equal(t, "Document Upload Test", DefaultName(store.ScenarioUpload))
	require.Equal(t, "Custom Test", DefaultName(store.ScenarioCustom))
}

func TestGenerateTestID(t *testing.T) {
	a, b := GenerateTestID(), GenerateTestID()
	require.NotEqual(t, a, b)
	require.Regexp(t, `^test-[0-9a-f-]{36}$`, a)
}
