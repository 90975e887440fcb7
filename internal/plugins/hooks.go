package plugins

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/store"
)

// HookType is a point in the test lifecycle at which agents run.
type HookType string

const (
	OnStarted   HookType = "on_started"
	OnCompleted HookType = "on_completed"
	OnPassed    HookType = "on_passed"
	OnFailed    HookType = "on_failed"
)

// HookTypes lists every hook in firing order for a single test.
var HookTypes = []HookType{OnStarted, OnCompleted, OnPassed, OnFailed}

// Agents returns the agents configured for h.
func (h HookType) Agents(hooks config.Hooks) []config.Agent {
	switch h {
	case OnStarted:
		return hooks.OnStarted
	case OnCompleted:
		return hooks.OnCompleted
	case OnPassed:
		return hooks.OnPassed
	case OnFailed:
		return hooks.OnFailed
	}
	return nil
}

// HooksFor returns the hooks an event triggers, in order.
// A completion fires on_completed, then on_passed or on_failed.
func HooksFor(ev notify.Event) []HookType {
	switch ev.Action {
	case notify.TestStarted:
		return []HookType{OnStarted}
	case notify.TestCompleted:
		switch ev.Status {
		case store.StatusPassed:
			return []HookType{OnCompleted, OnPassed}
		case store.StatusFailed:
			return []HookType{OnCompleted, OnFailed}
		}
		return []HookType{OnCompleted}
	}
	return nil
}

// ExecuteHooks runs agents one after another. With failOnError the first
// failure stops the sequence; otherwise every agent runs and the first
// failure is returned.
func ExecuteHooks(ctx context.Context, executor *AgentExecutor, agents []config.Agent, params AgentParams, failOnError bool) error {
	var firstErr error
	for i, agent := range agents {
		err := runHook(ctx, executor, agent, params)
		if err == nil {
			continue
		}
		executor.logger.Warn("hook failed",
			slog.String("agent", agent.Agent),
			slog.String("hook", string(params.Hook)),
			slog.Int("hook_index", i),
			slog.String("test_id", params.Record.ID),
			slog.String("error", err.Error()))
		if failOnError {
			return err
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func runHook(ctx context.Context, executor *AgentExecutor, agent config.Agent, params AgentParams) error {
	cfg, err := json.Marshal(agent.With)
	if err != nil {
		return fmt.Errorf("encode config for agent %s: %w", agent.Agent, err)
	}
	params.ConfigJSON = string(cfg)

	result, err := executor.Execute(ctx, agent.Agent, params)
	if err != nil {
		return fmt.Errorf("hook %s (agent: %s): %w", params.Hook, agent.Agent, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("hook %s (agent: %s) exited with code %d", params.Hook, agent.Agent, result.ExitCode)
	}
	if result.JSONOutput != nil {
		executor.logger.Debug("hook output",
			slog.String("agent", agent.Agent),
			slog.Any("output", result.JSONOutput))
	}
	return nil
}

// ValidateHooks checks every configured agent against the discovered set
// and the allow list.
func ValidateHooks(executor *AgentExecutor, hooks config.Hooks, allowed []string) error {
	for _, h := range HookTypes {
		for i, agent := range h.Agents(hooks) {
			if err := executor.ValidateAgent(agent.Agent, allowed); err != nil {
				return fmt.Errorf("invalid agent in %s hook #%d: %w", h, i, err)
			}
		}
	}
	return nil
}

// HookObserver runs the configured agents for every lifecycle event it is notified of.
type HookObserver struct {
	executor    *AgentExecutor
	hooks       config.Hooks
	timeout     time.Duration
	failOnError bool
}

// NewHookObserver creates an observer for hooks. A zero timeout disables the limit.
func NewHookObserver(executor *AgentExecutor, hooks config.Hooks, timeout time.Duration, failOnError bool) *HookObserver {
	return &HookObserver{executor: executor, hooks: hooks, timeout: timeout, failOnError: failOnError}
}

// Name implements notify.Observer.
func (o *HookObserver) Name() string { return "hooks" }

// Notify implements notify.Observer. Errors are returned to the dispatcher,
// which logs and counts them.
func (o *HookObserver) Notify(ctx context.Context, ev notify.Event) error {
	var errs []error
	for _, h := range HooksFor(ev) {
		agents := h.Agents(o.hooks)
		if len(agents) == 0 {
			continue
		}
		params := AgentParams{Hook: h, Record: ev.Record, Timeout: o.timeout}
		if err := ExecuteHooks(ctx, o.executor, agents, params, o.failOnError); err != nil {
			errs = append(errs, err)
			if o.failOnError {
				break
			}
		}
	}
	return errors.Join(errs...)
}
