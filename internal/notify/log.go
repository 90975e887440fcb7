package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/caevv/autotest/internal/logging"
	"github.com/caevv/autotest/internal/store"
)

var errObserverPanic = errors.New("observer panicked")

// LogObserver turns lifecycle events into the short user-facing notices
// ("Test Started", "Test Passed", "Test Failed") as structured log lines.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver creates a LogObserver writing to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{logger: logger}
}

// Name implements Observer.
func (o *LogObserver) Name() string { return "log" }

// Notify implements Observer.
func (o *LogObserver) Notify(ctx context.Context, ev Event) error {
	attrs := []any{slog.String("target_url", ev.Record.TargetURL)}

	level := slog.LevelInfo
	if ev.Action == TestCompleted {
		attrs = append(attrs, slog.Duration("duration", ev.Record.Duration()))
		if ev.Status != store.StatusPassed {
			level = slog.LevelWarn
		}
	}
	logging.ForTest(o.logger, &ev.Record).Log(ctx, level, Title(ev), attrs...)
	return nil
}

// Title returns the notice title for an event.
func Title(ev Event) string {
	if ev.Action == TestStarted {
		return "Test Started"
	}
	if ev.Status == store.StatusPassed {
		return "Test Passed"
	}
	return "Test Failed"
}
