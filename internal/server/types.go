package server

import (
	"github.com/caevv/autotest/internal/config"
	"github.com/caevv/autotest/internal/scheduler"
	"github.com/caevv/autotest/internal/tracker"
)

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is returned for requests that never reach the router.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	tracker.Stats
	PassRate float64 `json:"pass_rate"`

	EventsPublished uint64 `json:"events_published"`
	EventsDropped   uint64 `json:"events_dropped"`
	EventClients    int    `json:"event_clients"`
}

// ScheduleSummary pairs a schedule with its activity.
type ScheduleSummary struct {
	config.Schedule
	Stats scheduler.Stats `json:"stats"`
}

// CompleteRequest is the body of POST /api/tests/{id}/complete.
type CompleteRequest struct {
	Status string `json:"status"`
}
