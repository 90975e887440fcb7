package tracker

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caevv/autotest/internal/store"
)

const (
	DefaultDevice  = "Desktop"
	DefaultBrowser = "Chrome"
)

// TestConfig describes a test run to start.
type TestConfig struct {
	Scenario  store.Scenario `json:"scenario" yaml:"scenario"`
	TargetURL string         `json:"targetUrl" yaml:"target_url"`
	Title     string         `json:"title,omitempty" yaml:"title"`
	Name      string         `json:"name,omitempty" yaml:"name"`
	Device    string         `json:"device,omitempty" yaml:"device"`
	Browser   string         `json:"browser,omitempty" yaml:"browser"`
}

// Validate checks the fields a run cannot start without.
func (c TestConfig) Validate() error {
	if c.Scenario == "" {
		return invalid("scenario", "is required")
	}
	if !c.Scenario.Valid() {
		return invalid("scenario", "unknown scenario %q (must be one of %v)", c.Scenario, store.Scenarios)
	}
	if strings.TrimSpace(c.TargetURL) == "" {
		return invalid("targetUrl", "is required")
	}
	u, err := url.Parse(c.TargetURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("targetUrl", "must be an absolute http(s) URL, got %q", c.TargetURL)
	}
	return nil
}

// newRecord builds a queued record from a validated config.
func (c TestConfig) newRecord(id string, now time.Time, device, browser string) *store.TestRecord {
	rec := &store.TestRecord{
		ID:        id,
		Scenario:  c.Scenario,
		Name:      c.Name,
		TargetURL: c.TargetURL,
		Title:     c.Title,
		Device:    c.Device,
		Browser:   c.Browser,
		Status:    store.StatusQueued,
		CreatedAt: now,
	}
	if rec.Name == "" {
		rec.Name = DefaultName(c.Scenario)
	}
	if rec.Device == "" {
		rec.Device = device
	}
	if rec.Browser == "" {
		rec.Browser = browser
	}
	return rec
}

// DefaultName returns the display name used when a config omits one.
func DefaultName(sc store.Scenario) string {
	switch sc {
	case store.ScenarioUpload:
		return "Document Upload Test"
	case store.ScenarioCustom:
		return "Custom Test"
	case "":
		return "Test"
	}
	s := string(sc)
	return fmt.Sprintf("%s%s Flow Test", strings.ToUpper(s[:1]), s[1:])
}

// Simulation configures the stand-in completion used while no execution
// engine reports results.
type Simulation struct {
	Enabled bool
	Delay   time.Duration
	Outcome store.Status
}
