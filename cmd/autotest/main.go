package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/caevv/autotest/internal/client"
	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/logging"
)

var (
	// Version information (set via ldflags at build time)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	logger *slog.Logger
)

const defaultServerURL = "http://localhost:8001"

func main() {
	logger = logging.NewWithWriter(os.Stderr, "info")
	slog.SetDefault(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "autotest",
	Short: "Track automated web test runs",
	Long: `Autotest records automated web test runs, tracks them from start to
pass or fail, keeps the most recent ones and announces every change.

Features:
  - Start, complete and inspect test runs over HTTP or the CLI
  - Bounded recent-tests history (bbolt, JSON file or memory)
  - Live event stream and HTML dashboard
  - Scheduled test runs from cron expressions
  - Pluggable hook agents on lifecycle events
  - Terminal dashboard`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildTime),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "autotest.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("server", "", "Autotest server URL (default: server.dashboard_url from the config, or "+defaultServerURL+")")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		debug, _ := cmd.Flags().GetBool("debug")
		if debug {
			logger = logging.NewWithWriter(os.Stderr, "debug")
			slog.SetDefault(logger)
			logger.Debug("debug logging enabled")
		}
	}

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(testsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(tuiCmd)
}

// setupSignalHandler creates a context that cancels on SIGINT or SIGTERM
func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()

		// Force exit if second signal received
		sig = <-sigChan
		logger.Warn("received second signal, forcing exit", "signal", sig.String())
		os.Exit(1)
	}()

	return ctx
}

// newClient resolves the server URL from --server, then the config file,
// then the default listen address.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	serverURL, _ := cmd.Flags().GetString("server")
	if serverURL != "" {
		return client.New(serverURL), nil
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadConfig(configPath)
	switch {
	case err == nil:
		return client.New(cfg.Server.DashboardURL), nil
	case errors.Is(err, fs.ErrNotExist):
		return client.New(defaultServerURL), nil
	default:
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
}
