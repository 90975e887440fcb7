package plugins

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caevv/autotest/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeAgent creates an executable shell script in dir.
func writeAgent(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func passedRecord() store.TestRecord {
	created := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	completed := created.Add(1500 * time.Millisecond)
	return store.TestRecord{
		ID:          "test-1",
		Scenario:    store.ScenarioLogin,
		Name:        "Login Flow Test",
		TargetURL:   "https://x.test",
		Device:      "Desktop",
		Browser:     "Chrome",
		Status:      store.StatusPassed,
		CreatedAt:   created,
		CompletedAt: &completed,
	}
}
