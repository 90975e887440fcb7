// Package scheduler starts test runs on recurring schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/caevv/autotest/internal/config"
)

// ErrNotFound is returned for an unknown schedule ID.
var ErrNotFound = errors.New("schedule not found")

// Scheduler wraps robfig/cron and issues a startTest command per firing.
type Scheduler struct {
	cron      *cron.Cron
	commander Commander
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	wg      sync.WaitGroup
}

type entry struct {
	schedule config.Schedule
	entryID  cron.EntryID
	stats    Stats
}

// Stats describes the activity of one schedule.
type Stats struct {
	ScheduleID string    `json:"schedule_id"`
	LastRun    time.Time `json:"last_run"`
	NextRun    time.Time `json:"next_run"`
	RunCount   int64     `json:"run_count"`
	LastTestID string    `json:"last_test_id,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
}

// New creates a Scheduler. Commands are issued with a context derived from ctx.
func New(ctx context.Context, commander Commander, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	schedCtx, cancel := context.WithCancel(ctx)
	cronLogger := &cronSlogAdapter{logger: logger}

	return &Scheduler{
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		commander: commander,
		ctx:       schedCtx,
		cancel:    cancel,
		logger:    logger,
		entries:   make(map[string]*entry),
	}
}

// AddSchedule registers s. Duplicate IDs and unparseable expressions are rejected.
func (s *Scheduler) AddSchedule(sc config.Schedule) error {
	if sc.ID == "" {
		return errors.New("schedule ID cannot be empty")
	}

	schedule, err := ParseSchedule(sc.Schedule)
	if err != nil {
		return fmt.Errorf("schedule %q: %w", sc.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[sc.ID]; exists {
		return fmt.Errorf("schedule with ID %q already exists", sc.ID)
	}

	id := sc.ID
	e := &entry{schedule: sc, stats: Stats{ScheduleID: id, NextRun: schedule.Next(time.Now())}}
	e.entryID = s.cron.Schedule(schedule, cron.FuncJob(func() { s.fire(id) }))
	s.entries[id] = e

	s.logger.Info("schedule added",
		slog.String("schedule_id", id),
		slog.String("schedule", sc.Schedule),
		slog.String("scenario", sc.Scenario),
		slog.Time("next_run", e.stats.NextRun))
	return nil
}

// RemoveSchedule stops future firings of id.
func (s *Scheduler) RemoveSchedule(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	s.cron.Remove(e.entryID)
	delete(s.entries, id)
	return true
}

// Trigger fires id immediately, outside its schedule.
func (s *Scheduler) Trigger(id string) error {
	s.mu.RLock()
	_, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.fire(id)
	return nil
}

func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	sc := e.schedule
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	logger := s.logger.With(slog.String("schedule_id", id))
	logger.Info("scheduled test firing", slog.String("scenario", sc.Scenario))

	resp := s.commander.Do(s.ctx, startRequest(&sc))

	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok = s.entries[id]
	if !ok {
		return
	}
	e.stats.LastRun = time.Now()
	e.stats.RunCount++
	if next := s.cron.Entry(e.entryID); next.ID != 0 {
		e.stats.NextRun = next.Next
	}

	if !resp.Success {
		msg := "no response"
		if resp.Error != nil {
			msg = resp.Error.Error()
		}
		e.stats.LastError = msg
		logger.Error("scheduled test failed to start", slog.String("error", msg))
		return
	}
	e.stats.LastError = ""
	if resp.Record != nil {
		e.stats.LastTestID = resp.Record.ID
		logger.Info("scheduled test started", slog.String("test_id", resp.Record.ID))
	}
}

// Start begins firing schedules.
func (s *Scheduler) Start() {
	s.mu.RLock()
	n := len(s.entries)
	s.mu.RUnlock()

	s.logger.Info("starting scheduler", slog.Int("schedule_count", n))
	s.cron.Start()
}

// Stop halts the cron loop and waits for in-flight firings, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("stopping scheduler")

	// Cancelling under mu orders it against wg.Add in fire.
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	stopped := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// List returns the registered schedules ordered by ID.
func (s *Scheduler) List() []config.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]config.Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.schedule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns the activity of id.
func (s *Scheduler) Stats(id string) (Stats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Stats{}, false
	}
	st := e.stats
	if next := s.cron.Entry(e.entryID); next.ID != 0 && !next.Next.IsZero() {
		st.NextRun = next.Next
	}
	return st, true
}

// cronSlogAdapter adapts slog.Logger to cron.Logger.
type cronSlogAdapter struct {
	logger *slog.Logger
}

func (a *cronSlogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug(msg, keysAndValues...)
}

func (a *cronSlogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	attrs := make([]any, 0, len(keysAndValues)+1)
	attrs = append(attrs, slog.String("error", err.Error()))
	attrs = append(attrs, keysAndValues...)
	a.logger.Error(msg, attrs...)
}
