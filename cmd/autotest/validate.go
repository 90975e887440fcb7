package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/plugins"
	"github.com/caevv/autotest/internal/scheduler"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the autotest configuration file",
	Long: `Validate the syntax and semantics of an autotest configuration file.

This command loads and validates the configuration file without starting
the server. It checks for:
  - Valid YAML syntax
  - A valid store driver and retention bound
  - Valid simulation settings
  - Valid schedule expressions, scenarios and target URLs
  - Hook agents that are allowed and can be found on disk

Example:
  autotest validate --config ./autotest.yaml`,
	RunE: validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	out := cmd.OutOrStdout()

	logger.Info("validating configuration", "path", configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configPath)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	// The config layer only checks expression syntax; the scheduler also
	// enforces interval bounds.
	for _, s := range cfg.Schedules {
		if err := scheduler.ValidateSchedule(s.Schedule); err != nil {
			return fmt.Errorf("validation failed: schedule %s: %w", s.ID, err)
		}
		logger.Debug("schedule configured",
			"id", s.ID,
			"schedule", s.Schedule,
			"scenario", s.Scenario,
			"target_url", s.TargetURL)
	}

	if !cfg.Hooks.Empty() {
		executor := plugins.New(logger)
		executor.Discover(plugins.DefaultAgentPaths())
		if err := plugins.ValidateHooks(executor, cfg.Hooks, cfg.Security.AllowedAgents); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
	}

	logger.Info("configuration is valid",
		"path", configPath,
		"schedules", len(cfg.Schedules),
		"store_driver", cfg.Store.Driver,
		"max_recent_tests", cfg.Defaults.MaxRecentTests)

	fmt.Fprintf(out, "\n✓ Configuration is valid: %s\n", configPath)
	fmt.Fprintf(out, "  Store: %s (%s), keeps %d tests\n", cfg.Store.Driver, cfg.Store.Path, cfg.Defaults.MaxRecentTests)
	fmt.Fprintf(out, "  Schedules: %d\n", len(cfg.Schedules))
	fmt.Fprintf(out, "  Dashboard: %s\n", cfg.Server.DashboardURL)
	if cfg.Simulation.Enabled {
		fmt.Fprintf(out, "  Simulation: %s after %ds\n", cfg.Simulation.Outcome, cfg.Simulation.DelaySec)
	}

	return nil
}
