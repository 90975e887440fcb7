// Package server exposes the command router, recent tests and live
// lifecycle events over HTTP, plus a small HTML dashboard.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/scheduler"
	"github.com/caevv/autotest/internal/tracker"
)

// Commander executes router commands. *router.Router implements it.
type Commander interface {
	Do(ctx context.Context, req router.Request) router.Response
}

// StatsSource summarizes the retained tests. *tracker.Tracker implements it.
type StatsSource interface {
	Stats() (tracker.Stats, error)
}

// Schedules exposes scheduled runs. *scheduler.Scheduler implements it.
type Schedules interface {
	List() []config.Schedule
	Stats(id string) (scheduler.Stats, bool)
	Trigger(id string) error
}

// DeliveryStats reports notification counters. *notify.Dispatcher implements it.
type DeliveryStats interface {
	Published() uint64
	Dropped() uint64
}

// Deps are the components the server reads from. Only Commands is required.
type Deps struct {
	Commands  Commander
	Stats     StatsSource
	Schedules Schedules
	Delivery  DeliveryStats
	Events    *Hub
}

// Server is the HTTP surface of autotest.
type Server struct {
	addr   string
	deps   Deps
	logger *slog.Logger

	srv       *http.Server
	mux       *http.ServeMux
	startTime time.Time

	mu      sync.Mutex
	started bool
}

// New creates a Server listening on addr.
func New(addr string, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:      addr,
		deps:      deps,
		logger:    logger,
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("POST /api/commands", s.handleCommand)
	s.mux.HandleFunc("GET /api/tests", s.handleListTests)
	s.mux.HandleFunc("POST /api/tests", s.handleStartTest)
	s.mux.HandleFunc("GET /api/tests/{id}", s.handleGetTest)
	s.mux.HandleFunc("POST /api/tests/{id}/complete", s.handleCompleteTest)
	s.mux.HandleFunc("DELETE /api/tests/{id}/simulation", s.handleCancelSimulation)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	s.mux.HandleFunc("POST /api/schedules/{id}/run", s.handleRunSchedule)
	if s.deps.Events != nil {
		s.mux.Handle("GET /api/events", s.deps.Events)
	}

	s.mux.HandleFunc("GET /{$}", s.handleDashboard)
	s.mux.HandleFunc("GET /tests/{id}", s.handleTestDetail)
}

// Handler returns the server's routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	s.started = true
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	srv := s.srv
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", slog.String("addr", s.addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server", slog.String("reason", ctx.Err().Error()))
		return s.Stop(context.Background())
	case err := <-errCh:
		return err
	}
}

// Stop gracefully shuts down the HTTP server and disconnects event clients.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started || s.srv == nil {
		return nil
	}

	if s.deps.Events != nil {
		s.deps.Events.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	s.started = false
	s.logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", wrapped.statusCode),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("remote_addr", r.RemoteAddr))
	})
}

// responseWriter captures the status code. It must stay hijackable for
// the websocket upgrade.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// Uptime returns the server uptime rounded to the second.
func (s *Server) Uptime() string {
	return time.Since(s.startTime).Round(time.Second).String()
}
