package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

var testsCmd = &cobra.Command{
	Use:   "tests",
	Short: "Start, complete and inspect test runs",
	Long: `Talk to a running autotest server.

Subcommands:
  start     - Start a test run
  list      - List the retained test runs, newest first
  get       - Show one test run
  complete  - Report the outcome of a test run
  cancel    - Cancel the simulated completion of a test run
  watch     - Stream lifecycle events

Examples:
  autotest tests start --scenario login --url https://shop.example.com/login
  autotest tests complete test-4f0c... --status failed
  autotest tests list --server http://localhost:8001`,
}

var startTestCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a test run",
	Args:  cobra.NoArgs,
	RunE:  runStartTest,
}

var listTestsCmd = &cobra.Command{
	Use:   "list",
	Short: "List the retained test runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runListTests,
}

var getTestCmd = &cobra.Command{
	Use:   "get [test-id]",
	Short: "Show one test run",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetTest,
}

var completeTestCmd = &cobra.Command{
	Use:   "complete [test-id]",
	Short: "Report the outcome of a test run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCompleteTest,
}

var cancelTestCmd = &cobra.Command{
	Use:   "cancel [test-id]",
	Short: "Cancel the simulated completion of a test run",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancelTest,
}

var watchTestsCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream lifecycle events until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatchTests,
}

func init() {
	testsCmd.AddCommand(startTestCmd)
	testsCmd.AddCommand(listTestsCmd)
	testsCmd.AddCommand(getTestCmd)
	testsCmd.AddCommand(completeTestCmd)
	testsCmd.AddCommand(cancelTestCmd)
	testsCmd.AddCommand(watchTestsCmd)

	startTestCmd.Flags().StringP("scenario", "s", "", "Scenario: signup, login, upload, checkout or custom (required)")
	startTestCmd.Flags().StringP("url", "u", "", "Absolute http(s) URL of the page under test (required)")
	startTestCmd.Flags().String("title", "", "Page title")
	startTestCmd.Flags().String("name", "", "Display name (default derived from the scenario)")
	startTestCmd.Flags().String("device", "", "Device (default from the server config)")
	startTestCmd.Flags().String("browser", "", "Browser (default from the server config)")

	listTestsCmd.Flags().Bool("json", false, "Print JSON instead of a table")
	getTestCmd.Flags().Bool("json", false, "Print JSON instead of text")

	completeTestCmd.Flags().String("status", "passed", "Outcome: passed or failed")
}

func runStartTest(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	scenario, _ := cmd.Flags().GetString("scenario")
	targetURL, _ := cmd.Flags().GetString("url")
	title, _ := cmd.Flags().GetString("title")
	name, _ := cmd.Flags().GetString("name")
	device, _ := cmd.Flags().GetString("device")
	browser, _ := cmd.Flags().GetString("browser")

	rec, err := c.StartTest(cmd.Context(), tracker.TestConfig{
		Scenario:  store.Scenario(scenario),
		TargetURL: targetURL,
		Title:     title,
		Name:      name,
		Device:    device,
		Browser:   browser,
	})
	if err != nil {
		return fmt.Errorf("failed to start test: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "✓ Started %s\n", rec.Name)
	fmt.Fprintf(out, "  ID:     %s\n", rec.ID)
	fmt.Fprintf(out, "  Target: %s\n", rec.TargetURL)
	return nil
}

func runListTests(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	tests, err := c.RecentTests(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list tests: %w", err)
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		if tests == nil {
			tests = []*store.TestRecord{}
		}
		return printJSON(out, tests)
	}

	if len(tests) == 0 {
		fmt.Fprintln(out, "No tests yet")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSCENARIO\tSTATUS\tSTARTED\tDURATION")
	for _, rec := range tests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			rec.ID,
			truncate(rec.Name, 30),
			rec.Scenario,
			rec.Status,
			rec.CreatedAt.Local().Format(time.DateTime),
			durationText(rec))
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal tests: %d\n", len(tests))
	return nil
}

func runGetTest(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	rec, err := c.GetTest(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get test: %w", err)
	}
	if rec == nil {
		return fmt.Errorf("test %s is not retained", args[0])
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(out, rec)
	}

	fmt.Fprintf(out, "%s\n", rec.Name)
	fmt.Fprintf(out, "  ID:        %s\n", rec.ID)
	fmt.Fprintf(out, "  Scenario:  %s\n", rec.Scenario)
	fmt.Fprintf(out, "  Target:    %s\n", rec.TargetURL)
	if rec.Title != "" {
		fmt.Fprintf(out, "  Title:     %s\n", rec.Title)
	}
	fmt.Fprintf(out, "  Device:    %s / %s\n", rec.Device, rec.Browser)
	fmt.Fprintf(out, "  Status:    %s\n", rec.Status)
	fmt.Fprintf(out, "  Started:   %s\n", rec.CreatedAt.Local().Format(time.DateTime))
	if rec.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s (%s)\n", rec.CompletedAt.Local().Format(time.DateTime), durationText(rec))
	}
	return nil
}

func runCompleteTest(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	status, _ := cmd.Flags().GetString("status")
	rec, err := c.CompleteTest(cmd.Context(), args[0], store.Status(status))
	if err != nil {
		return fmt.Errorf("failed to complete test: %w", err)
	}

	out := cmd.OutOrStdout()
	if rec == nil {
		fmt.Fprintf(out, "Test %s is not retained, nothing to complete\n", args[0])
		return nil
	}
	fmt.Fprintf(out, "✓ %s is %s (%s)\n", rec.ID, rec.Status, durationText(rec))
	return nil
}

func runCancelTest(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	cancelled, err := c.CancelSimulation(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to cancel simulation: %w", err)
	}

	if cancelled {
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Simulated completion of %s cancelled\n", args[0])
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "No simulated completion pending for %s\n", args[0])
	}
	return nil
}

func runWatchTests(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx := setupSignalHandler()
	events, err := c.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch events: %w", err)
	}

	out := cmd.OutOrStdout()
	for ev := range events {
		fmt.Fprintf(out, "%s  %-13s  %-8s  %s  %s\n",
			ev.Time.Local().Format(time.TimeOnly),
			ev.Action,
			ev.Status,
			ev.Record.ID,
			ev.Record.Name)
	}
	return nil
}

func durationText(rec *store.TestRecord) string {
	if rec.CompletedAt == nil {
		return "-"
	}
	return rec.Duration().Round(time.Millisecond).String()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
