package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/scheduler"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage scheduled test runs in the configuration",
	Long: `Manage recurring test runs in the autotest configuration file.
Changes take effect the next time the server starts.

Subcommands:
  add     - Add a scheduled test run
  list    - List scheduled test runs and their next firing times
  remove  - Remove a scheduled test run
  run     - Fire a schedule on the running server now

Examples:
  autotest schedule add nightly-login --schedule "@daily" --scenario login --url https://shop.example.com/login
  autotest schedule add smoke --schedule "every 15m" --scenario checkout --url https://shop.example.com/cart
  autotest schedule list
  autotest schedule remove nightly-login
  autotest schedule run nightly-login`,
}

var addScheduleCmd = &cobra.Command{
	Use:   "add [schedule-id]",
	Short: "Add a scheduled test run",
	Args:  cobra.ExactArgs(1),
	RunE:  runAddSchedule,
}

var listSchedulesCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled test runs",
	Args:  cobra.NoArgs,
	RunE:  runListSchedules,
}

var removeScheduleCmd = &cobra.Command{
	Use:   "remove [schedule-id]",
	Short: "Remove a scheduled test run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoveSchedule,
}

var runScheduleCmd = &cobra.Command{
	Use:   "run [schedule-id]",
	Short: "Fire a scheduled test run immediately on the server",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunSchedule,
}

func init() {
	scheduleCmd.AddCommand(addScheduleCmd)
	scheduleCmd.AddCommand(listSchedulesCmd)
	scheduleCmd.AddCommand(removeScheduleCmd)
	scheduleCmd.AddCommand(runScheduleCmd)

	addScheduleCmd.Flags().String("schedule", "", "Cron expression, @-notation or 'every <n><unit>' (required)")
	addScheduleCmd.Flags().StringP("scenario", "s", "", "Scenario: signup, login, upload, checkout or custom (required)")
	addScheduleCmd.Flags().StringP("url", "u", "", "Absolute http(s) URL of the page under test (required)")
	addScheduleCmd.Flags().String("title", "", "Page title")
	addScheduleCmd.Flags().String("name", "", "Display name")
	addScheduleCmd.Flags().String("device", "", "Device")
	addScheduleCmd.Flags().String("browser", "", "Browser")

	listSchedulesCmd.Flags().Int("next", 1, "Number of upcoming firing times to show")
}

func runAddSchedule(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	expr, _ := cmd.Flags().GetString("schedule")
	scenario, _ := cmd.Flags().GetString("scenario")
	targetURL, _ := cmd.Flags().GetString("url")
	title, _ := cmd.Flags().GetString("title")
	name, _ := cmd.Flags().GetString("name")
	device, _ := cmd.Flags().GetString("device")
	browser, _ := cmd.Flags().GetString("browser")

	if expr == "" {
		return fmt.Errorf("--schedule flag is required")
	}
	if err := scheduler.ValidateSchedule(expr); err != nil {
		return fmt.Errorf("invalid schedule: %w", err)
	}

	s := config.Schedule{
		ID:        args[0],
		Schedule:  expr,
		Scenario:  scenario,
		TargetURL: targetURL,
		Title:     title,
		Name:      name,
		Device:    device,
		Browser:   browser,
	}
	if err := config.AddSchedule(configPath, s); err != nil {
		return fmt.Errorf("failed to add schedule: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Schedule '%s' added to %s\n", s.ID, configPath)
	fmt.Fprintf(out, "  Schedule: %s\n", s.Schedule)
	fmt.Fprintf(out, "  Test:     %s %s\n", s.Scenario, s.TargetURL)
	if next, err := scheduler.NextRuns(expr, time.Now(), 1); err == nil && len(next) > 0 {
		fmt.Fprintf(out, "  Next run: %s\n", next[0].Local().Format(time.DateTime))
	}
	return nil
}

func runListSchedules(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	n, _ := cmd.Flags().GetInt("next")
	if n < 1 {
		n = 1
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(cfg.Schedules) == 0 {
		fmt.Fprintln(out, "No schedules configured")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tSCHEDULE\tSCENARIO\tTARGET\tNEXT RUN")
	for _, s := range cfg.Schedules {
		next := "invalid"
		if runs, err := scheduler.NextRuns(s.Schedule, now, n); err == nil {
			next = ""
			for i, t := range runs {
				if i > 0 {
					next += ", "
				}
				next += t.Local().Format(time.DateTime)
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID,
			s.Schedule,
			s.Scenario,
			truncate(s.TargetURL, 40),
			next)
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal schedules: %d\n", len(cfg.Schedules))
	return nil
}

func runRemoveSchedule(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	if err := config.RemoveSchedule(configPath, args[0]); err != nil {
		return fmt.Errorf("failed to remove schedule: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Schedule '%s' removed from %s\n", args[0], configPath)
	return nil
}

func runRunSchedule(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	stats, err := c.RunSchedule(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to run schedule: %w", err)
	}

	if stats.LastError != "" {
		return fmt.Errorf("schedule '%s' fired but the test did not start: %s", args[0], stats.LastError)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Schedule '%s' fired\n", args[0])
	if stats.LastTestID != "" {
		fmt.Fprintf(out, "  Test:  %s\n", stats.LastTestID)
	}
	fmt.Fprintf(out, "  Runs:  %d\n", stats.RunCount)
	return nil
}
