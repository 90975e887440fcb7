package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/caevv/autotest/internal/client"
	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/plugins"
	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

func TestMain(m *testing.M) {
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	os.Exit(m.Run())
}

func loadTestConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Failed to parse config: %v", err)
	}
	return cfg
}

// startApp wires a full app and serves its handler from an httptest server.
func startApp(t *testing.T, ctx context.Context, cfg *config.Config) (*app, *client.Client) {
	t.Helper()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	ts := httptest.NewServer(a.server.Handler())
	t.Cleanup(func() {
		a.hub.Close()
		ts.Close()
		a.close()
	})
	return a, client.New(ts.URL)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func TestIntegration_SimulatedCompletion(t *testing.T) {
	cfg := loadTestConfig(t, `
store:
  driver: memory
simulation:
  enabled: true
  delay_sec: 1
  outcome: failed
`)
	ctx := context.Background()
	_, c := startApp(t, ctx, cfg)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events, err := c.Watch(watchCtx)
	if err != nil {
		t.Fatalf("Failed to watch: %v", err)
	}

	rec, err := c.StartTest(ctx, tracker.TestConfig{Scenario: store.ScenarioCheckout, TargetURL: "https://shop.test/cart"})
	if err != nil {
		t.Fatalf("Failed to start test: %v", err)
	}
	if rec.Status != store.StatusRunning {
		t.Errorf("Status = %v, want running", rec.Status)
	}

	var actions []notify.Action
	timeout := time.After(5 * time.Second)
	for len(actions) < 2 {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("event stream closed early")
			}
			if ev.Record.ID == rec.ID {
				actions = append(actions, ev.Action)
			}
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %v", actions)
		}
	}
	if actions[0] != notify.TestStarted || actions[1] != notify.TestCompleted {
		t.Errorf("actions = %v, want [testStarted testCompleted]", actions)
	}

	got, err := c.GetTest(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Failed to get test: %v", err)
	}
	if got.Status != store.StatusFailed {
		t.Errorf("Status = %v, want failed", got.Status)
	}
	if got.CompletedAt == nil || !got.CompletedAt.After(got.CreatedAt) {
		t.Errorf("CompletedAt = %v, want after %v", got.CompletedAt, got.CreatedAt)
	}
}

func TestIntegration_ConfiguredDefaultsAndRetention(t *testing.T) {
	cfg := loadTestConfig(t, `
defaults:
  max_recent_tests: 3
  device: Mobile
  browser: Firefox
store:
  driver: memory
server:
  dashboard_url: http://dash.example.com/
`)
	ctx := context.Background()
	_, c := startApp(t, ctx, cfg)

	var last *store.TestRecord
	for i := 0; i < 5; i++ {
		rec, err := c.StartTest(ctx, tracker.TestConfig{Scenario: store.ScenarioLogin, TargetURL: fmt.Sprintf("https://x.test/%d", i)})
		if err != nil {
			t.Fatalf("Failed to start test %d: %v", i, err)
		}
		last = rec
	}

	tests, err := c.RecentTests(ctx)
	if err != nil {
		t.Fatalf("Failed to list tests: %v", err)
	}
	if len(tests) != 3 {
		t.Fatalf("len(tests) = %d, want 3", len(tests))
	}
	if tests[0].ID != last.ID {
		t.Errorf("head = %s, want %s", tests[0].ID, last.ID)
	}
	if tests[0].Device != "Mobile" || tests[0].Browser != "Firefox" {
		t.Errorf("device/browser = %s/%s, want Mobile/Firefox", tests[0].Device, tests[0].Browser)
	}

	url, err := c.OpenDashboard(ctx, last.ID)
	if err != nil {
		t.Fatalf("Failed to open dashboard: %v", err)
	}
	if want := "http://dash.example.com/tests/" + last.ID; url != want {
		t.Errorf("url = %s, want %s", url, want)
	}
}

func TestIntegration_JSONStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tests.json")
	cfg := loadTestConfig(t, fmt.Sprintf(`
store:
  driver: json
  path: %s
`, path))
	ctx := context.Background()

	first, err := newApp(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	rec, err := first.tracker.StartTest(ctx, tracker.TestConfig{Scenario: store.ScenarioUpload, TargetURL: "https://x.test/upload"})
	if err != nil {
		t.Fatalf("Failed to start test: %v", err)
	}
	first.close()

	_, c := startApp(t, ctx, cfg)

	got, err := c.GetTest(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Failed to get test: %v", err)
	}
	if got == nil || got.Status != store.StatusRunning {
		t.Fatalf("record after restart = %+v, want running", got)
	}

	done, err := c.CompleteTest(ctx, rec.ID, store.StatusPassed)
	if err != nil {
		t.Fatalf("Failed to complete test: %v", err)
	}
	if done.Status != store.StatusPassed {
		t.Errorf("Status = %v, want passed", done.Status)
	}
}

func TestIntegration_ScheduledRun(t *testing.T) {
	cfg := loadTestConfig(t, `
store:
  driver: memory
server:
  addr: 127.0.0.1:0
schedules:
  - id: every-second
    schedule: "* * * * * *"
    scenario: signup
    target_url: https://x.test/signup
    name: Scheduled Signup
`)
	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		t.Fatalf("Failed to create app: %v", err)
	}
	defer a.close()

	done := make(chan error, 1)
	go func() { done <- a.run(ctx) }()

	ok := waitFor(t, 5*time.Second, func() bool {
		recs, err := a.tracker.RecentTests()
		return err == nil && len(recs) > 0
	})
	cancel()

	if !ok {
		t.Fatal("scheduled run never started a test")
	}
	recs, _ := a.tracker.RecentTests()
	if recs[0].Name != "Scheduled Signup" || recs[0].Scenario != store.ScenarioSignup {
		t.Errorf("record = %+v, want Scheduled Signup", recs[0])
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}

	stats, ok := a.scheduler.Stats("every-second")
	if !ok || stats.RunCount == 0 {
		t.Errorf("schedule stats = %+v, want at least one run", stats)
	}
}

func TestCLI_ScheduleRun(t *testing.T) {
	cfg := loadTestConfig(t, `
store:
  driver: memory
schedules:
  - id: yearly-checkout
    schedule: "@yearly"
    scenario: checkout
    target_url: https://shop.test/cart
    name: Yearly Checkout
`)
	a, c := startApp(t, context.Background(), cfg)

	stats, err := c.RunSchedule(context.Background(), "yearly-checkout")
	if err != nil {
		t.Fatalf("RunSchedule: %v", err)
	}
	if stats.RunCount != 1 || stats.LastTestID == "" {
		t.Errorf("stats = %+v, want one run with a test id", stats)
	}

	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	out, err := execute(t, "schedule", "run", "yearly-checkout", "--server", ts.URL)
	if err != nil {
		t.Fatalf("schedule run: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Schedule 'yearly-checkout' fired") || !strings.Contains(out, "Runs:  2") {
		t.Errorf("output = %q, want second firing confirmation", out)
	}

	recs, _ := a.tracker.RecentTests()
	if len(recs) != 2 {
		t.Fatalf("len(recs) = %d, want 2", len(recs))
	}
	for _, rec := range recs {
		if rec.Name != "Yearly Checkout" || rec.Scenario != store.ScenarioCheckout {
			t.Errorf("record = %+v, want Yearly Checkout", rec)
		}
	}

	if _, err := execute(t, "schedule", "run", "missing", "--server", ts.URL); err == nil || !strings.Contains(err.Error(), "404") {
		t.Errorf("schedule run missing error = %v, want HTTP 404", err)
	}
}

func TestIntegration_HookAgents(t *testing.T) {
	home := t.TempDir()
	t.Setenv(plugins.HomeEnv, home)

	agentDir := filepath.Join(home, "agents")
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	outFile := filepath.Join(home, "hooks.log")
	script := fmt.Sprintf("#!/bin/sh\necho \"$AUTOTEST_HOOK $AUTOTEST_TEST_ID $AUTOTEST_STATUS\" >> %s\n", outFile)
	if err := os.WriteFile(filepath.Join(agentDir, "record-hook"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := loadTestConfig(t, `
store:
  driver: memory
security:
  allowed_agents: [record-hook]
hooks:
  on_started:
    - agent: record-hook
  on_passed:
    - agent: record-hook
`)
	ctx := context.Background()
	_, c := startApp(t, ctx, cfg)

	rec, err := c.StartTest(ctx, tracker.TestConfig{Scenario: store.ScenarioLogin, TargetURL: "https://x.test"})
	if err != nil {
		t.Fatalf("Failed to start test: %v", err)
	}
	if _, err := c.CompleteTest(ctx, rec.ID, store.StatusPassed); err != nil {
		t.Fatalf("Failed to complete test: %v", err)
	}

	want := []string{
		"on_started " + rec.ID + " running",
		"on_passed " + rec.ID + " passed",
	}
	var lines []string
	ok := waitFor(t, 5*time.Second, func() bool {
		data, err := os.ReadFile(outFile)
		if err != nil {
			return false
		}
		lines = strings.Split(strings.TrimSpace(string(data)), "\n")
		return len(lines) >= len(want)
	})
	if !ok {
		t.Fatalf("hook output = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

// slackReportAgent posts nothing; it writes the report payload it would send
// to the configured webhook, one JSON line per completed test.
const slackReportAgent = `#!/bin/sh
record=$(cat)
printf '{"hook":"%s","status":"%s","duration_ms":%s,"with":%s,"record":%s}\n' \
  "$AUTOTEST_HOOK" "$AUTOTEST_STATUS" "${AUTOTEST_DURATION_MS:-0}" "$AUTOTEST_CONFIG_JSON" "$record" >> "$REPORT_FILE"
`

func TestIntegration_CompletionReportAgent(t *testing.T) {
	home := t.TempDir()
	t.Setenv(plugins.HomeEnv, home)
	reportFile := filepath.Join(home, "reports.jsonl")
	t.Setenv("REPORT_FILE", reportFile)

	agentDir := filepath.Join(home, "agents")
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(agentDir, "slack-report"), []byte(slackReportAgent), 0o755); err != nil {
		t.Fatal(err)
	}

	cfg := loadTestConfig(t, `
store:
  driver: memory
security:
  allowed_agents: [slack-report]
hooks:
  on_completed:
    - agent: slack-report
      with:
        webhook_url: https://hooks.slack.test/services/T000/B000
        channel: "#qa-reports"
`)
	ctx := context.Background()
	_, c := startApp(t, ctx, cfg)

	login, err := c.StartTest(ctx, tracker.TestConfig{Scenario: store.ScenarioLogin, TargetURL: "https://shop.test/login"})
	if err != nil {
		t.Fatalf("Failed to start test: %v", err)
	}
	checkout, err := c.StartTest(ctx, tracker.TestConfig{Scenario: store.ScenarioCheckout, TargetURL: "https://shop.test/cart"})
	if err != nil {
		t.Fatalf("Failed to start test: %v", err)
	}
	if _, err := c.CompleteTest(ctx, login.ID, store.StatusPassed); err != nil {
		t.Fatalf("Failed to complete test: %v", err)
	}
	if _, err := c.CompleteTest(ctx, checkout.ID, store.StatusFailed); err != nil {
		t.Fatalf("Failed to complete test: %v", err)
	}

	var lines []string
	ok := waitFor(t, 5*time.Second, func() bool {
		data, err := os.ReadFile(reportFile)
		if err != nil {
			return false
		}
		lines = strings.Split(strings.TrimSpace(string(data)), "\n")
		return len(lines) >= 2
	})
	if !ok {
		t.Fatalf("report lines = %v, want one per completed test", lines)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d, want 2 (started events must not report)", len(lines))
	}

	type report struct {
		Hook       string            `json:"hook"`
		Status     store.Status      `json:"status"`
		DurationMS int64             `json:"duration_ms"`
		With       map[string]string `json:"with"`
		Record     store.TestRecord  `json:"record"`
	}
	want := []struct {
		id     string
		status store.Status
	}{
		{login.ID, store.StatusPassed},
		{checkout.ID, store.StatusFailed},
	}
	for i, line := range lines {
		var r report
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			t.Fatalf("line %d is not JSON: %v\n%s", i, err, line)
		}
		if r.Hook != "on_completed" || r.Status != want[i].status || r.Record.ID != want[i].id {
			t.Errorf("line %d = %+v, want on_completed %s %s", i, r, want[i].id, want[i].status)
		}
		if r.Record.CompletedAt == nil || r.DurationMS < 0 {
			t.Errorf("line %d has no completion timing: %+v", i, r)
		}
		if r.With["channel"] != "#qa-reports" || r.With["webhook_url"] != "https://hooks.slack.test/services/T000/B000" {
			t.Errorf("line %d with = %v, want the configured webhook", i, r.With)
		}
	}
}

func TestIntegration_UnknownHookAgent(t *testing.T) {
	t.Setenv(plugins.HomeEnv, t.TempDir())
	cfg := loadTestConfig(t, `
store:
  driver: memory
hooks:
  on_failed:
    - agent: missing-agent
`)
	if _, err := newApp(context.Background(), cfg, logger); err == nil {
		t.Fatal("expected an error for an undiscovered agent")
	}
}

// execute runs the CLI with args and returns its output.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_Tests(t *testing.T) {
	cfg := loadTestConfig(t, `
store:
  driver: memory
simulation:
  enabled: true
  delay_sec: 60
`)
	a, _ := startApp(t, context.Background(), cfg)
	ts := httptest.NewServer(a.server.Handler())
	defer ts.Close()

	out, err := execute(t, "tests", "start", "--server", ts.URL, "--scenario", "login", "--url", "https://shop.test/login", "--name", "CLI Login")
	if err != nil {
		t.Fatalf("tests start: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Started CLI Login") {
		t.Errorf("output = %q, want start confirmation", out)
	}

	recs, _ := a.tracker.RecentTests()
	if len(recs) != 1 {
		t.Fatalf("len(recs) = %d, want 1", len(recs))
	}
	id := recs[0].ID

	out, err = execute(t, "tests", "list", "--server", ts.URL)
	if err != nil {
		t.Fatalf("tests list: %v", err)
	}
	if !strings.Contains(out, id) || !strings.Contains(out, "running") {
		t.Errorf("list output = %q, want %s running", out, id)
	}

	out, err = execute(t, "tests", "cancel", id, "--server", ts.URL)
	if err != nil {
		t.Fatalf("tests cancel: %v", err)
	}
	if !strings.Contains(out, "cancelled") {
		t.Errorf("cancel output = %q", out)
	}

	out, err = execute(t, "tests", "complete", id, "--server", ts.URL, "--status", "failed")
	if err != nil {
		t.Fatalf("tests complete: %v", err)
	}
	if !strings.Contains(out, "is failed") {
		t.Errorf("complete output = %q", out)
	}

	out, err = execute(t, "open", id, "--server", ts.URL, "--print")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if strings.TrimSpace(out) != "http://localhost:8001/tests/"+id {
		t.Errorf("open output = %q", out)
	}

	if _, err := execute(t, "tests", "start", "--server", ts.URL, "--scenario", "login", "--url", "not-a-url"); err == nil {
		t.Error("expected a validation error for a relative URL")
	}
}

func TestCLI_ScheduleAndValidate(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "autotest.yaml")

	out, err := execute(t, "schedule", "add", "nightly", "--config", configPath,
		"--schedule", "@daily", "--scenario", "checkout", "--url", "https://shop.test/cart")
	if err != nil {
		t.Fatalf("schedule add: %v\n%s", err, out)
	}

	if _, err := execute(t, "schedule", "add", "too-fast", "--config", configPath,
		"--schedule", "every 1s", "--scenario", "checkout", "--url", "https://shop.test/cart"); err == nil {
		t.Error("expected an interval below the minimum to be rejected")
	}

	out, err = execute(t, "schedule", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("schedule list: %v", err)
	}
	if !strings.Contains(out, "nightly") || !strings.Contains(out, "Total schedules: 1") {
		t.Errorf("list output = %q", out)
	}

	out, err = execute(t, "validate", "--config", configPath)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Schedules: 1") {
		t.Errorf("validate output = %q", out)
	}

	if _, err := execute(t, "schedule", "remove", "nightly", "--config", configPath); err != nil {
		t.Fatalf("schedule remove: %v", err)
	}
	if _, err := execute(t, "schedule", "remove", "nightly", "--config", configPath); err == nil {
		t.Error("expected removing a missing schedule to fail")
	}
}
