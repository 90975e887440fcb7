package main

import (
	"fmt"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/logging"
	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Watch a running autotest server from the terminal",
	Long: `Display an interactive terminal dashboard of the recent test runs
of a running autotest server, refreshed every second.

Navigation:
  ↑/↓ or k/j  - Navigate the test list
  enter       - View test details
  esc         - Go back to the test list
  g/G         - Jump to top/bottom
  p/f         - Mark the selected running test passed/failed
  o           - Open the selected test in the browser
  r           - Refresh now
  q           - Quit

Example:
  autotest tui --server http://localhost:8001`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func runTUI(cmd *cobra.Command, args []string) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	// Log lines would corrupt the alternate screen.
	tuiLogger, err := logging.NewFromConfig(config.Logging{Output: "discard"})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = tuiLogger
	slog.SetDefault(tuiLogger)

	model := tui.New(c, router.ExecOpener{}, logger)

	p := tea.NewProgram(
		model,
		tea.WithAltScreen(),
		tea.WithContext(cmd.Context()),
	)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}
