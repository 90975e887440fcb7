package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/caevv/autotest/internal/store"
)

// everyPattern accepts robfig's "@every 5m" and the human-readable "every 5 minutes".
var everyPattern = regexp.MustCompile(`^(@every\s+\d+[smh]|every\s+\d+\s*[a-z]+)$`)

// LoadConfig loads and validates an autotest configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes, defaults and validates a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Defaults.MaxRecentTests == 0 {
		cfg.Defaults.MaxRecentTests = 10
	}
	if cfg.Defaults.Device == "" {
		cfg.Defaults.Device = "Desktop"
	}
	if cfg.Defaults.Browser == "" {
		cfg.Defaults.Browser = "Chrome"
	}
	if cfg.Defaults.AgentTimeoutSec == 0 {
		cfg.Defaults.AgentTimeoutSec = 10
	}

	if cfg.Simulation.DelaySec == 0 {
		cfg.Simulation.DelaySec = 5
	}
	if cfg.Simulation.Outcome == "" {
		cfg.Simulation.Outcome = "passed"
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "bbolt"
	}
	if cfg.Store.Path == "" && cfg.Store.Driver != "memory" {
		cfg.Store.Path = "./.autotest.db"
		if cfg.Store.Driver == "json" {
			cfg.Store.Path = "./.autotest.json"
		}
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8001"
	}
	if cfg.Server.DashboardURL == "" {
		cfg.Server.DashboardURL = "http://localhost" + cfg.Server.Addr
		if !strings.HasPrefix(cfg.Server.Addr, ":") {
			cfg.Server.DashboardURL = "http://" + cfg.Server.Addr
		}
	}

	for i := range cfg.Schedules {
		s := &cfg.Schedules[i]
		if s.Device == "" {
			s.Device = cfg.Defaults.Device
		}
		if s.Browser == "" {
			s.Browser = cfg.Defaults.Browser
		}
	}
}

// validate checks the configuration for errors and inconsistencies.
func validate(cfg *Config) error {
	validDrivers := map[string]bool{
		"bbolt":  true,
		"json":   true,
		"memory": true,
	}
	if !validDrivers[cfg.Store.Driver] {
		return fmt.Errorf("invalid store driver: %s (must be 'bbolt', 'json', or 'memory')", cfg.Store.Driver)
	}

	if cfg.Defaults.MaxRecentTests < 0 {
		return fmt.Errorf("defaults.max_recent_tests must be positive")
	}
	if cfg.Defaults.AgentTimeoutSec < 0 {
		return fmt.Errorf("defaults.agent_timeout_sec must be non-negative")
	}

	if cfg.Simulation.DelaySec < 0 {
		return fmt.Errorf("simulation.delay_sec must be non-negative")
	}
	if cfg.Simulation.Outcome != "passed" && cfg.Simulation.Outcome != "failed" {
		return fmt.Errorf("invalid simulation.outcome: %s (must be 'passed' or 'failed')", cfg.Simulation.Outcome)
	}

	if _, err := url.ParseRequestURI(cfg.Server.DashboardURL); err != nil {
		return fmt.Errorf("invalid server.dashboard_url: %w", err)
	}

	ids := make(map[string]bool)
	for i, s := range cfg.Schedules {
		if err := validateSchedule(s); err != nil {
			if s.ID == "" {
				return fmt.Errorf("schedule at index %d: %w", i, err)
			}
			return fmt.Errorf("schedule %s: %w", s.ID, err)
		}
		if ids[s.ID] {
			return fmt.Errorf("duplicate schedule ID: %s", s.ID)
		}
		ids[s.ID] = true
	}

	if len(cfg.Security.AllowedAgents) > 0 {
		if err := validateAgents(cfg.Hooks, cfg.Security.AllowedAgents); err != nil {
			return err
		}
	}

	return nil
}

func validateSchedule(s Schedule) error {
	if s.ID == "" {
		return fmt.Errorf("missing an ID")
	}
	if err := ValidateExpression(s.Schedule); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}
	if !store.Scenario(s.Scenario).Valid() {
		return fmt.Errorf("unknown scenario %q", s.Scenario)
	}
	u, err := url.Parse(s.TargetURL)
	if s.TargetURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("target_url must be an absolute http(s) URL")
	}
	return nil
}

// ValidateExpression performs a cheap syntactic check of a schedule expression.
// The scheduler parses it fully at start-up.
func ValidateExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return fmt.Errorf("schedule cannot be empty")
	}

	lower := strings.ToLower(expr)
	if strings.HasPrefix(lower, "every ") || strings.HasPrefix(lower, "@every") {
		if everyPattern.MatchString(lower) {
			return nil
		}
		return fmt.Errorf("invalid interval: %s (must be like 'every 5m' or '@every 30s')", expr)
	}

	if strings.HasPrefix(expr, "@") {
		switch expr {
		case "@annually", "@yearly", "@monthly", "@weekly", "@daily", "@midnight", "@hourly":
			return nil
		}
		return fmt.Errorf("unknown schedule shortcut: %s", expr)
	}

	fields := strings.Fields(expr)
	if len(fields) < 5 || len(fields) > 6 {
		return fmt.Errorf("cron expression must have 5 or 6 fields, got %d", len(fields))
	}
	return nil
}

// validateAgents checks that every hook agent is in the allowed list.
func validateAgents(hooks Hooks, allowedAgents []string) error {
	allowed := make(map[string]bool, len(allowedAgents))
	for _, agent := range allowedAgents {
		allowed[agent] = true
	}

	lists := []struct {
		name   string
		agents []Agent
	}{
		{"on_started", hooks.OnStarted},
		{"on_completed", hooks.OnCompleted},
		{"on_passed", hooks.OnPassed},
		{"on_failed", hooks.OnFailed},
	}
	for _, l := range lists {
		for _, a := range l.agents {
			if !allowed[a.Agent] {
				return fmt.Errorf("agent '%s' in hook '%s' is not in the allowed agents list", a.Agent, l.name)
			}
		}
	}
	return nil
}
