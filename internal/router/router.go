// Package router is the single entry point for external commands. It
// translates requests into tracker operations and always produces a response.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

// Tracker is the subset of *tracker.Tracker the router drives.
type Tracker interface {
	StartTest(ctx context.Context, cfg tracker.TestConfig) (*store.TestRecord, error)
	CompleteTest(ctx context.Context, id string, outcome store.Status) (*store.TestRecord, error)
	RecentTests() ([]*store.TestRecord, error)
	Get(id string) (*store.TestRecord, error)
	Pending(id string) bool
	CancelCompletion(id string) bool
}

// Router dispatches commands to a Tracker.
type Router struct {
	tracker      Tracker
	opener       Opener
	dashboardURL string
	logger       *slog.Logger
}

// New creates a Router. A nil opener leaves navigation to the caller.
func New(t Tracker, opener Opener, dashboardURL string, logger *slog.Logger) *Router {
	if opener == nil {
		opener = NopOpener{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		tracker:      t,
		opener:       opener,
		dashboardURL: strings.TrimRight(dashboardURL, "/"),
		logger:       logger,
	}
}

// Pending is the eventual response to a submitted command.
type Pending struct {
	done chan struct{}
	resp Response
}

// Done is closed once the response is available.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the response is ready or ctx ends. The command keeps
// running if ctx ends first; only the wait is abandoned.
func (p *Pending) Wait(ctx context.Context) (Response, error) {
	select {
	case <-p.done:
		return p.resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}

// Submit runs req asynchronously. Every command goes through this path,
// whether or not the underlying store blocks.
func (r *Router) Submit(ctx context.Context, req Request) *Pending {
	p := &Pending{done: make(chan struct{})}
	go func() {
		defer close(p.done)
		p.resp = r.Handle(context.WithoutCancel(ctx), req)
	}()
	return p
}

// Do submits req and waits for its response.
func (r *Router) Do(ctx context.Context, req Request) Response {
	resp, err := r.Submit(ctx, req).Wait(ctx)
	if err != nil {
		return failure(KindUnavailable, err.Error())
	}
	return resp
}

// Handle executes req synchronously. It never panics.
func (r *Router) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.ErrorContext(ctx, "command panicked",
				slog.String("action", string(req.Action)),
				slog.Any("panic", p),
				slog.String("stack", string(debug.Stack())))
			resp = failure(KindInternal, fmt.Sprintf("%s failed unexpectedly", req.Action))
		}
	}()

	r.logger.DebugContext(ctx, "handling command",
		slog.String("action", string(req.Action)),
		slog.String("test_id", req.TestID))

	switch req.Action {
	case ActionStartTest:
		resp = r.startTest(ctx, req)
	case ActionGetRecentTests:
		resp = r.getRecentTests()
	case ActionOpenDashboard:
		resp = r.openDashboard(ctx, req)
	case ActionCompleteTest:
		resp = r.completeTest(ctx, req)
	case ActionGetTest:
		resp = r.getTest(req)
	case ActionCancelSimulation:
		resp = r.cancelSimulation(req)
	default:
		resp = failure(KindUnknownAction, fmt.Sprintf("unknown action %q (supported: %v)", req.Action, Actions))
	}

	if resp.Error != nil {
		r.logger.WarnContext(ctx, "command failed",
			slog.String("action", string(req.Action)),
			slog.String("kind", string(resp.Error.Kind)),
			slog.String("error", resp.Error.Message))
	}
	return resp
}

func (r *Router) startTest(ctx context.Context, req Request) Response {
	if req.Config == nil {
		return fromError(&tracker.ValidationError{Field: "config", Message: "is required"})
	}
	rec, err := r.tracker.StartTest(ctx, *req.Config)
	if err != nil {
		return fromError(err)
	}
	return Response{Success: true, Record: rec}
}

func (r *Router) getRecentTests() Response {
	tests, err := r.tracker.RecentTests()
	if err != nil {
		return fromError(err)
	}
	if tests == nil {
		tests = []*store.TestRecord{}
	}
	return Response{Success: true, Tests: tests}
}

func (r *Router) openDashboard(ctx context.Context, req Request) Response {
	url := r.DashboardURL(req.TestID)
	if err := r.opener.Open(ctx, url); err != nil {
		return failure(KindUnavailable, err.Error())
	}
	return Response{Success: true, URL: url}
}

// completeTest treats an unknown id as a successful no-op.
func (r *Router) completeTest(ctx context.Context, req Request) Response {
	rec, err := r.tracker.CompleteTest(ctx, req.TestID, req.Status)
	if err != nil {
		return fromError(err)
	}
	return Response{Success: true, Record: rec}
}

func (r *Router) getTest(req Request) Response {
	if req.TestID == "" {
		return fromError(&tracker.ValidationError{Field: "testId", Message: "is required"})
	}
	rec, err := r.tracker.Get(req.TestID)
	if errors.Is(err, store.ErrNotFound) {
		return Response{Success: true}
	}
	if err != nil {
		return fromError(err)
	}
	return Response{Success: true, Record: rec, Pending: r.tracker.Pending(req.TestID)}
}

func (r *Router) cancelSimulation(req Request) Response {
	if req.TestID == "" {
		return fromError(&tracker.ValidationError{Field: "testId", Message: "is required"})
	}
	return Response{Success: true, Pending: r.tracker.CancelCompletion(req.TestID)}
}

// DashboardURL returns the dashboard page, or the page of a single test.
func (r *Router) DashboardURL(testID string) string {
	if testID == "" {
		return r.dashboardURL + "/"
	}
	return r.dashboardURL + "/tests/" + testID
}

func fromError(err error) Response {
	var verr *tracker.ValidationError
	switch {
	case errors.As(err, &verr):
		return Response{Error: &ErrorPayload{Kind: KindValidation, Message: verr.Message, Field: verr.Field}}
	case errors.Is(err, tracker.ErrClosed), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return failure(KindUnavailable, err.Error())
	default:
		return failure(KindInternal, err.Error())
	}
}
