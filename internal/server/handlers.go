package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/scheduler"
	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

const (
	version      = "v0.1.0"
	maxBodyBytes = 1 << 20
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version,
		Uptime:  s.Uptime(),
	})
}

// handleCommand accepts any router request.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req router.Request
	if !s.decodeBody(w, r, &req) {
		return
	}
	s.respond(w, r, req)
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	resp := s.deps.Commands.Do(r.Context(), router.Request{Action: router.ActionGetRecentTests})
	if resp.Success && limit > 0 && len(resp.Tests) > limit {
		resp.Tests = resp.Tests[:limit]
	}
	s.writeResponse(w, resp)
}

func (s *Server) handleStartTest(w http.ResponseWriter, r *http.Request) {
	var cfg tracker.TestConfig
	if !s.decodeBody(w, r, &cfg) {
		return
	}
	resp := s.deps.Commands.Do(r.Context(), router.Request{Action: router.ActionStartTest, Config: &cfg})
	if resp.Success {
		s.writeJSON(w, http.StatusCreated, resp)
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) handleGetTest(w http.ResponseWriter, r *http.Request) {
	resp := s.deps.Commands.Do(r.Context(), router.Request{Action: router.ActionGetTest, TestID: r.PathValue("id")})
	if resp.Success && resp.Record == nil {
		s.writeError(w, http.StatusNotFound, "test not found", nil)
		return
	}
	s.writeResponse(w, resp)
}

func (s *Server) handleCompleteTest(w http.ResponseWriter, r *http.Request) {
	var body CompleteRequest
	if !s.decodeBody(w, r, &body) {
		return
	}
	s.respond(w, r, router.Request{
		Action: router.ActionCompleteTest,
		TestID: r.PathValue("id"),
		Status: store.Status(body.Status),
	})
}

func (s *Server) handleCancelSimulation(w http.ResponseWriter, r *http.Request) {
	s.respond(w, r, router.Request{Action: router.ActionCancelSimulation, TestID: r.PathValue("id")})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Stats == nil {
		s.writeError(w, http.StatusServiceUnavailable, "stats not available", nil)
		return
	}
	stats, err := s.deps.Stats.Stats()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to compute stats", err)
		return
	}

	out := StatsResponse{Stats: stats, PassRate: stats.PassRate()}
	if s.deps.Delivery != nil {
		out.EventsPublished = s.deps.Delivery.Published()
		out.EventsDropped = s.deps.Delivery.Dropped()
	}
	if s.deps.Events != nil {
		out.EventClients = s.deps.Events.Clients()
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.scheduleSummaries())
}

// handleRunSchedule fires a schedule immediately and returns its updated stats.
func (s *Server) handleRunSchedule(w http.ResponseWriter, r *http.Request) {
	if s.deps.Schedules == nil {
		s.writeError(w, http.StatusServiceUnavailable, "scheduler not available", nil)
		return
	}
	id := r.PathValue("id")
	if err := s.deps.Schedules.Trigger(id); err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "schedule not found", nil)
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to run schedule", err)
		return
	}
	st, _ := s.deps.Schedules.Stats(id)
	s.writeJSON(w, http.StatusOK, st)
}

func (s *Server) scheduleSummaries() []ScheduleSummary {
	if s.deps.Schedules == nil {
		return []ScheduleSummary{}
	}
	list := s.deps.Schedules.List()
	out := make([]ScheduleSummary, 0, len(list))
	for _, sc := range list {
		st, _ := s.deps.Schedules.Stats(sc.ID)
		out = append(out, ScheduleSummary{Schedule: sc, Stats: st})
	}
	return out
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, req router.Request) {
	s.writeResponse(w, s.deps.Commands.Do(r.Context(), req))
}

// writeResponse maps the router's error kind onto an HTTP status.
func (s *Server) writeResponse(w http.ResponseWriter, resp router.Response) {
	s.writeJSON(w, statusFor(resp), resp)
}

func statusFor(resp router.Response) int {
	if resp.Success {
		return http.StatusOK
	}
	if resp.Error == nil {
		return http.StatusInternalServerError
	}
	switch resp.Error.Kind {
	case router.KindValidation:
		return http.StatusBadRequest
	case router.KindUnknownAction:
		return http.StatusNotFound
	case router.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error(), nil)
		return false
	}
	return true
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.New("limit must be a non-negative integer")
	}
	return limit, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		s.logger.Error("API error", "status", status, "message", message, "error", err)
	}
	s.writeJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
