package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/caevv/autotest/internal/router"
)

var openCmd = &cobra.Command{
	Use:   "open [test-id]",
	Short: "Open the dashboard in a browser",
	Long: `Ask the server for the dashboard URL and open it with the system browser.
With a test id the test's own page is opened.

Examples:
  autotest open
  autotest open test-4f0c... --print`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOpen,
}

func init() {
	openCmd.Flags().Bool("print", false, "Print the URL instead of opening it")
}

func runOpen(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	var testID string
	if len(args) == 1 {
		testID = args[0]
	}

	url, err := c.OpenDashboard(cmd.Context(), testID)
	if err != nil {
		return fmt.Errorf("failed to resolve dashboard URL: %w", err)
	}

	if printOnly, _ := cmd.Flags().GetBool("print"); printOnly {
		fmt.Fprintln(cmd.OutOrStdout(), url)
		return nil
	}

	if err := (router.ExecOpener{}).Open(cmd.Context(), url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "✓ Opened %s\n", url)
	return nil
}
