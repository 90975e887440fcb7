package plugins

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/store"
)

func TestHooksFor(t *testing.T) {
	rec := passedRecord()
	failed := rec
	failed.Status = store.StatusFailed
	running := rec
	running.Status = store.StatusRunning
	running.CompletedAt = nil

	tests := []struct {
		name string
		ev   notify.Event
		want []HookType
	}{
		{"started", notify.Started(&running), []HookType{OnStarted}},
		{"passed", notify.Completed(&rec), []HookType{OnCompleted, OnPassed}},
		{"failed", notify.Completed(&failed), []HookType{OnCompleted, OnFailed}},
		{"unknown action", notify.Event{Action: "other"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HooksFor(tt.ev)
			if len(got) != len(tt.want) {
				t.Fatalf("HooksFor() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("HooksFor()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExecuteHooks(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "ran")
	writeAgent(t, dir, "fail.sh", "exit 1\n")
	writeAgent(t, dir, "touch.sh", "echo \"$AUTOTEST_CONFIG_JSON\" >> "+marker+"\n")

	executor := New(quietLogger())
	executor.Discover([]string{dir})
	agents := []config.Agent{
		{Agent: "fail.sh"},
		{Agent: "touch.sh", With: map[string]any{"n": 1}},
	}
	params := AgentParams{Hook: OnCompleted, Record: passedRecord()}

	err := ExecuteHooks(context.Background(), executor, agents, params, false)
	if err == nil || !strings.Contains(err.Error(), "exited with code 1") {
		t.Fatalf("expected first failure to be returned, got %v", err)
	}
	data, readErr := os.ReadFile(marker)
	if readErr != nil {
		t.Fatalf("expected later agent to run: %v", readErr)
	}
	if !strings.Contains(string(data), `{"n":1}`) {
		t.Errorf("expected agent config in env, got %q", data)
	}

	os.Remove(marker)
	if err := ExecuteHooks(context.Background(), executor, agents, params, true); err == nil {
		t.Fatal("expected error with failOnError")
	}
	if _, err := os.Stat(marker); !os.IsNotExist(err) {
		t.Error("expected failOnError to stop before the second agent")
	}
}

func TestValidateHooks(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "notify.sh", "exit 0\n")
	executor := New(quietLogger())
	executor.Discover([]string{dir})

	ok := config.Hooks{OnFailed: []config.Agent{{Agent: "notify.sh"}}}
	if err := ValidateHooks(executor, ok, nil); err != nil {
		t.Errorf("ValidateHooks() error = %v", err)
	}

	missing := config.Hooks{OnPassed: []config.Agent{{Agent: "nope.sh"}}}
	err := ValidateHooks(executor, missing, nil)
	if err == nil || !strings.Contains(err.Error(), "on_passed") {
		t.Errorf("expected on_passed validation error, got %v", err)
	}
}

func TestHookObserver(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "events.log")
	writeAgent(t, dir, "log.sh", "echo \"$AUTOTEST_HOOK $AUTOTEST_TEST_ID\" >> "+out+"\n")

	executor := New(quietLogger())
	executor.Discover([]string{dir})
	hooks := config.Hooks{
		OnStarted:   []config.Agent{{Agent: "log.sh"}},
		OnCompleted: []config.Agent{{Agent: "log.sh"}},
		OnPassed:    []config.Agent{{Agent: "log.sh"}},
		OnFailed:    []config.Agent{{Agent: "log.sh"}},
	}
	obs := NewHookObserver(executor, hooks, 0, false)
	if obs.Name() != "hooks" {
		t.Errorf("unexpected observer name %q", obs.Name())
	}

	rec := passedRecord()
	started := rec
	started.Status = store.StatusRunning
	started.CompletedAt = nil

	ctx := context.Background()
	if err := obs.Notify(ctx, notify.Started(&started)); err != nil {
		t.Fatalf("Notify(started) error = %v", err)
	}
	if err := obs.Notify(ctx, notify.Completed(&rec)); err != nil {
		t.Fatalf("Notify(completed) error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want := "on_started test-1\non_completed test-1\non_passed test-1\n"
	if string(data) != want {
		t.Errorf("hook order:\n%s\nwant:\n%s", data, want)
	}
}

func TestHookObserverReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeAgent(t, dir, "fail.sh", "exit 2\n")
	executor := New(quietLogger())
	executor.Discover([]string{dir})

	obs := NewHookObserver(executor, config.Hooks{OnStarted: []config.Agent{{Agent: "fail.sh"}}}, 0, false)
	rec := passedRecord()
	rec.Status = store.StatusRunning
	rec.CompletedAt = nil

	if err := obs.Notify(context.Background(), notify.Started(&rec)); err == nil {
		t.Error("expected agent failure to be returned to the dispatcher")
	}
}
