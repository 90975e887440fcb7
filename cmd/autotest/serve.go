package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/logging"
	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/plugins"
	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/scheduler"
	"github.com/caevv/autotest/internal/server"
	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the autotest server",
	Long: `Start the test tracker with its HTTP API, live event stream and dashboard.

This command loads the configuration file, opens the recent-tests store,
subscribes the log, hook and WebSocket observers, registers the configured
schedules and serves until interrupted.

Example:
  autotest serve --config ./autotest.yaml --addr :8001`,
	RunE: runServer,
}

func init() {
	serveCmd.Flags().StringP("addr", "a", "", "HTTP server address (default: server.addr from the config)")
}

func runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	addr, _ := cmd.Flags().GetString("addr")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		cfg.Logging.Level = "debug"
	}
	serveLogger, err := logging.NewFromConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = serveLogger
	slog.SetDefault(serveLogger)

	logger.Info("starting autotest",
		"config", configPath,
		"addr", cfg.Server.Addr,
		"store_driver", cfg.Store.Driver,
		"max_recent_tests", cfg.Defaults.MaxRecentTests,
		"schedules", len(cfg.Schedules))

	ctx := setupSignalHandler()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	return a.run(ctx)
}

// app is the set of components a serving process wires together.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store      store.Store
	dispatcher *notify.Dispatcher
	hub        *server.Hub
	tracker    *tracker.Tracker
	router     *router.Router
	scheduler  *scheduler.Scheduler
	server     *server.Server
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	st, err := store.NewStore(cfg.Store.Driver, cfg.Store.Path, cfg.Defaults.MaxRecentTests)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	logger.Info("store initialized", "driver", cfg.Store.Driver, "path", cfg.Store.Path, "capacity", st.Capacity())

	dispatcher := notify.New(logger, notify.DefaultQueueSize)
	dispatcher.Subscribe(notify.NewLogObserver(logger))

	if !cfg.Hooks.Empty() {
		executor := plugins.New(logger)
		executor.Discover(plugins.DefaultAgentPaths())
		if err := plugins.ValidateHooks(executor, cfg.Hooks, cfg.Security.AllowedAgents); err != nil {
			dispatcher.Close()
			st.Close()
			return nil, fmt.Errorf("invalid hooks: %w", err)
		}
		timeout := time.Duration(cfg.Defaults.AgentTimeoutSec) * time.Second
		dispatcher.Subscribe(plugins.NewHookObserver(executor, cfg.Hooks, timeout, cfg.Defaults.FailOnAgentError))
		logger.Info("hook agents enabled",
			"agents", executor.Agents(),
			"timeout_sec", cfg.Defaults.AgentTimeoutSec,
			"fail_on_error", cfg.Defaults.FailOnAgentError)
	}

	hub := server.NewHub(logger)
	dispatcher.Subscribe(hub)

	opts := []tracker.Option{tracker.WithDefaults(cfg.Defaults.Device, cfg.Defaults.Browser)}
	if cfg.Simulation.Enabled {
		opts = append(opts, tracker.WithSimulation(tracker.Simulation{
			Enabled: true,
			Delay:   time.Duration(cfg.Simulation.DelaySec) * time.Second,
			Outcome: store.Status(cfg.Simulation.Outcome),
		}))
		logger.Info("simulated completion enabled",
			"delay_sec", cfg.Simulation.DelaySec,
			"outcome", cfg.Simulation.Outcome)
	}
	tr := tracker.New(st, dispatcher, logger, opts...)

	// The server process never launches a browser; clients open the URL it returns.
	rt := router.New(tr, router.NopOpener{}, cfg.Server.DashboardURL, logger)

	sched := scheduler.New(ctx, rt, logger)
	for _, s := range cfg.Schedules {
		if err := sched.AddSchedule(s); err != nil {
			tr.Close()
			dispatcher.Close()
			st.Close()
			return nil, fmt.Errorf("failed to add schedule %s: %w", s.ID, err)
		}
	}

	srv := server.New(cfg.Server.Addr, server.Deps{
		Commands:  rt,
		Stats:     tr,
		Schedules: sched,
		Delivery:  dispatcher,
		Events:    hub,
	}, logger)

	return &app{
		cfg:        cfg,
		logger:     logger,
		store:      st,
		dispatcher: dispatcher,
		hub:        hub,
		tracker:    tr,
		router:     rt,
		scheduler:  sched,
		server:     srv,
	}, nil
}

// run serves until ctx is cancelled or the server fails.
func (a *app) run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.scheduler.Start()
		<-gCtx.Done()

		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.scheduler.Stop(stopCtx); err != nil {
			a.logger.Error("error stopping scheduler", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := a.server.Start(gCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	a.logger.Info("autotest started",
		"dashboard_url", a.cfg.Server.DashboardURL,
		"schedules", len(a.cfg.Schedules))

	if err := g.Wait(); err != nil {
		a.logger.Error("error during execution", "error", err)
		return err
	}

	a.logger.Info("autotest stopped")
	return nil
}

// close releases components in reverse dependency order. Observers drain
// their queues before the store is closed.
func (a *app) close() {
	a.tracker.Close()
	a.dispatcher.Close()
	if err := a.store.Close(); err != nil {
		a.logger.Error("failed to close store", "error", err)
	}
}
