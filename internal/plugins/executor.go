// Package plugins runs external agents on test lifecycle events.
package plugins

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/caevv/autotest/internal/store"
)

// EnvPrefix is prepended to every variable passed to an agent.
const EnvPrefix = "AUTOTEST_"

// AgentExecutor discovers and runs agents.
type AgentExecutor struct {
	logger *slog.Logger
	agents map[string]string
}

// AgentParams carries the event an agent is run for.
type AgentParams struct {
	Hook   HookType
	Record store.TestRecord

	// ConfigJSON is the agent's "with" block.
	ConfigJSON string

	ExtraEnv map[string]string
	Timeout  time.Duration
}

// AgentResult holds the outcome of one agent run.
type AgentResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration

	// JSONOutput is the first JSON object printed on stdout, if any.
	JSONOutput map[string]any
}

// New creates an AgentExecutor with no agents.
func New(logger *slog.Logger) *AgentExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &AgentExecutor{logger: logger, agents: make(map[string]string)}
}

// Discover loads agents from paths, or from DefaultAgentPaths when empty.
func (e *AgentExecutor) Discover(paths []string) {
	e.agents = DiscoverAgents(paths)
	e.logger.Info("discovered agents",
		slog.Int("count", len(e.agents)),
		slog.Any("agents", agentNames(e.agents)))
}

// Agents returns the discovered agent names, sorted.
func (e *AgentExecutor) Agents() []string {
	return agentNames(e.agents)
}

// ValidateAgent checks that name was discovered and, when allowed is not
// empty, that it is listed there.
func (e *AgentExecutor) ValidateAgent(name string, allowed []string) error {
	if _, err := FindAgent(e.agents, name); err != nil {
		return err
	}
	if len(allowed) == 0 {
		return nil
	}
	for _, a := range allowed {
		if a == name {
			return nil
		}
	}
	return fmt.Errorf("agent not allowed: %s", name)
}

// Execute runs one agent. The event record is also written to its stdin as JSON.
// A non-zero exit code is reported in the result, not as an error.
func (e *AgentExecutor) Execute(ctx context.Context, name string, params AgentParams) (*AgentResult, error) {
	path, err := FindAgent(e.agents, name)
	if err != nil {
		return nil, err
	}

	if params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, params.Timeout)
		defer cancel()
	}

	input, err := json.Marshal(params.Record)
	if err != nil {
		return nil, fmt.Errorf("encode record for agent %s: %w", name, err)
	}

	cmd := exec.CommandContext(ctx, path)
	cmd.Env = buildEnvironment(params)
	cmd.Stdin = bytes.NewReader(input)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger := e.logger.With(
		slog.String("agent", name),
		slog.String("hook", string(params.Hook)),
		slog.String("test_id", params.Record.ID))
	logger.Debug("executing agent", slog.String("path", path))

	start := time.Now()
	runErr := cmd.Run()
	result := &AgentResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		return nil, fmt.Errorf("agent %s: %w", name, ctx.Err())
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return nil, fmt.Errorf("agent %s: %w", name, runErr)
	}

	result.JSONOutput = parseJSONOutput(result.Stdout)

	level := slog.LevelInfo
	if result.ExitCode != 0 {
		level = slog.LevelWarn
	}
	logger.Log(ctx, level, "agent finished",
		slog.Int("exit_code", result.ExitCode),
		slog.Duration("duration", result.Duration))
	if result.Stderr != "" {
		logger.Debug("agent stderr", slog.String("stderr", result.Stderr))
	}

	return result, nil
}

func buildEnvironment(params AgentParams) []string {
	rec := params.Record
	vars := map[string]string{
		"HOOK":        string(params.Hook),
		"TEST_ID":     rec.ID,
		"SCENARIO":    string(rec.Scenario),
		"TEST_NAME":   rec.Name,
		"TARGET_URL":  rec.TargetURL,
		"TITLE":       rec.Title,
		"DEVICE":      rec.Device,
		"BROWSER":     rec.Browser,
		"STATUS":      string(rec.Status),
		"CREATED_AT":  formatTimestamp(rec.CreatedAt),
		"CONFIG_JSON": params.ConfigJSON,
	}
	if rec.CompletedAt != nil {
		vars["COMPLETED_AT"] = formatTimestamp(*rec.CompletedAt)
		vars["DURATION_MS"] = strconv.FormatInt(rec.Duration().Milliseconds(), 10)
	}
	for k, v := range params.ExtraEnv {
		vars[k] = v
	}

	env := os.Environ()
	for k, v := range vars {
		env = append(env, EnvPrefix+k+"="+v)
	}
	return env
}

func parseJSONOutput(stdout string) map[string]any {
	if stdout == "" {
		return nil
	}

	var out map[string]any
	if err := json.Unmarshal([]byte(stdout), &out); err == nil {
		return out
	}
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "{") {
			continue
		}
		if err := json.Unmarshal([]byte(line), &out); err == nil {
			return out
		}
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
