package config

// Config represents the top-level configuration structure for autotest.
type Config struct {
	Defaults   Defaults   `yaml:"defaults"`
	Simulation Simulation `yaml:"simulation"`
	Store      Store      `yaml:"store"`
	Logging    Logging    `yaml:"logging"`
	Server     Server     `yaml:"server"`
	Security   Security   `yaml:"security"`
	Hooks      Hooks      `yaml:"hooks"`
	Schedules  []Schedule `yaml:"schedules"`
}

// Defaults holds values applied to every test run and hook agent.
type Defaults struct {
	MaxRecentTests   int    `yaml:"max_recent_tests"` // retention bound N, default 10
	Device           string `yaml:"device"`           // default "Desktop"
	Browser          string `yaml:"browser"`          // default "Chrome"
	AgentTimeoutSec  int    `yaml:"agent_timeout_sec"`
	FailOnAgentError bool   `yaml:"fail_on_agent_error"`
}

// Simulation controls the stand-in completion armed for every started test
// while no execution engine reports real results.
type Simulation struct {
	Enabled  bool   `yaml:"enabled"`
	DelaySec int    `yaml:"delay_sec"` // default 5
	Outcome  string `yaml:"outcome"`   // "passed" or "failed", default "passed"
}

// Store configuration for the recent-tests slot.
type Store struct {
	Driver string `yaml:"driver"` // "bbolt", "json", or "memory"
	Path   string `yaml:"path"`   // file path for the store
}

// Logging configures the process logger.
type Logging struct {
	Format string `yaml:"format"` // "json" or "text"
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Output string `yaml:"output"` // "stderr", "stdout", "discard" or a file path
}

// Server configures the HTTP surface and the dashboard location.
type Server struct {
	Addr         string `yaml:"addr"`          // listen address, default ":8001"
	DashboardURL string `yaml:"dashboard_url"` // default "http://localhost:8001"
}

// Security configuration for agent restrictions.
type Security struct {
	AllowedAgents []string `yaml:"allowed_agents"` // optional: whitelist of allowed agents
}

// Hooks lists the agents run on lifecycle events.
type Hooks struct {
	OnStarted   []Agent `yaml:"on_started"`   // after a test starts
	OnCompleted []Agent `yaml:"on_completed"` // after any completion
	OnPassed    []Agent `yaml:"on_passed"`
	OnFailed    []Agent `yaml:"on_failed"`
}

// Empty reports whether no hook agent is configured.
func (h Hooks) Empty() bool {
	return len(h.OnStarted)+len(h.OnCompleted)+len(h.OnPassed)+len(h.OnFailed) == 0
}

// Agent represents a plugin/agent to execute at a hook point.
type Agent struct {
	Agent string         `yaml:"agent"` // agent name (executable name)
	With  map[string]any `yaml:"with"`  // configuration passed to the agent
}

// Schedule starts a test run on a recurring schedule.
type Schedule struct {
	ID        string `yaml:"id" json:"id"`
	Schedule  string `yaml:"schedule" json:"schedule"` // cron expression, @descriptor or "every 5m"
	Scenario  string `yaml:"scenario" json:"scenario"`
	TargetURL string `yaml:"target_url" json:"targetUrl"`
	Title     string `yaml:"title,omitempty" json:"title,omitempty"`
	Name      string `yaml:"name,omitempty" json:"name,omitempty"`
	Device    string `yaml:"device,omitempty" json:"device,omitempty"`
	Browser   string `yaml:"browser,omitempty" json:"browser,omitempty"`
}
