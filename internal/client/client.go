// Package client talks to a running autotest server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/caevv/autotest/internal/notify"
	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/scheduler"
	"github.com/caevv/autotest/internal/server"
	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

// Client sends router commands to an autotest server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the server at baseURL, e.g. "http://localhost:8001".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Do posts req to /api/commands. Failure payloads are returned in the
// response; err is only set when no response could be obtained.
func (c *Client) Do(ctx context.Context, req router.Request) (router.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return router.Response{}, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/commands", bytes.NewReader(body))
	if err != nil {
		return router.Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return router.Response{}, fmt.Errorf("connecting to autotest server: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return router.Response{}, fmt.Errorf("reading response: %w", err)
	}

	var resp router.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return router.Response{}, fmt.Errorf("decoding response (HTTP %d): %w", httpResp.StatusCode, err)
	}
	if !resp.Success && resp.Error == nil {
		return resp, fmt.Errorf("server returned HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(data)))
	}
	return resp, nil
}

// call is Do with failure payloads turned into errors.
func (c *Client) call(ctx context.Context, req router.Request) (router.Response, error) {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return resp, err
	}
	if !resp.Success {
		return resp, resp.Error
	}
	return resp, nil
}

// StartTest starts a test run.
func (c *Client) StartTest(ctx context.Context, cfg tracker.TestConfig) (*store.TestRecord, error) {
	resp, err := c.call(ctx, router.Request{Action: router.ActionStartTest, Config: &cfg})
	return resp.Record, err
}

// RecentTests lists retained tests, most-recent-first.
func (c *Client) RecentTests(ctx context.Context) ([]*store.TestRecord, error) {
	resp, err := c.call(ctx, router.Request{Action: router.ActionGetRecentTests})
	return resp.Tests, err
}

// GetTest returns one test, or nil when it is not retained.
func (c *Client) GetTest(ctx context.Context, id string) (*store.TestRecord, error) {
	resp, err := c.call(ctx, router.Request{Action: router.ActionGetTest, TestID: id})
	return resp.Record, err
}

// CompleteTest reports the outcome of a test. The record is nil for unknown ids.
func (c *Client) CompleteTest(ctx context.Context, id string, outcome store.Status) (*store.TestRecord, error) {
	resp, err := c.call(ctx, router.Request{Action: router.ActionCompleteTest, TestID: id, Status: outcome})
	return resp.Record, err
}

// CancelSimulation disarms a pending simulated completion and reports whether one was pending.
func (c *Client) CancelSimulation(ctx context.Context, id string) (bool, error) {
	resp, err := c.call(ctx, router.Request{Action: router.ActionCancelSimulation, TestID: id})
	return resp.Pending, err
}

// OpenDashboard asks the server for the dashboard URL of testID (or the
// overview when empty).
func (c *Client) OpenDashboard(ctx context.Context, testID string) (string, error) {
	resp, err := c.call(ctx, router.Request{Action: router.ActionOpenDashboard, TestID: testID})
	return resp.URL, err
}

// Stats fetches the tracker summary from /api/stats.
func (c *Client) Stats(ctx context.Context) (server.StatsResponse, error) {
	var stats server.StatsResponse
	if err := c.fetch(ctx, http.MethodGet, "/api/stats", &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// RunSchedule fires the schedule id on the server immediately and returns
// its stats after the run was issued.
func (c *Client) RunSchedule(ctx context.Context, id string) (scheduler.Stats, error) {
	var stats scheduler.Stats
	if err := c.fetch(ctx, http.MethodPost, "/api/schedules/"+url.PathEscape(id)+"/run", &stats); err != nil {
		return stats, err
	}
	return stats, nil
}

// fetch issues a bodiless request and decodes a 200 response into out.
func (c *Client) fetch(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connecting to autotest server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Watch streams lifecycle events until ctx ends or the connection drops.
// The returned channel is closed when streaming stops.
func (c *Client) Watch(ctx context.Context) (<-chan notify.Event, error) {
	u, err := url.Parse(c.baseURL + "/api/events")
	if err != nil {
		return nil, fmt.Errorf("parsing server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to WebSocket: %w", err)
	}

	events := make(chan notify.Event)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(events)
		defer close(done)
		defer conn.Close()
		for {
			var ev notify.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}
