package server

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/caevv/autotest/internal/router"
	"github.com/caevv/autotest/internal/store"
	"github.com/caevv/autotest/internal/tracker"
)

// DashboardData holds data for the dashboard template.
type DashboardData struct {
	Title     string
	Tests     []*store.TestRecord
	Stats     *tracker.Stats
	Schedules []ScheduleSummary
	Version   string
	Uptime    string
}

// TestDetailData holds data for the test detail template.
type TestDetailData struct {
	Title   string
	Test    *store.TestRecord
	Pending bool
}

var templateFuncs = template.FuncMap{
	"formatTime": func(v any) string {
		var t time.Time
		switch tv := v.(type) {
		case time.Time:
			t = tv
		case *time.Time:
			if tv != nil {
				t = *tv
			}
		}
		if t.IsZero() {
			return "N/A"
		}
		return t.Format("2006-01-02 15:04:05")
	},
	"formatDuration": func(rec *store.TestRecord) string {
		if rec.CompletedAt == nil {
			return "in progress"
		}
		return rec.Duration().Round(time.Millisecond).String()
	},
	"statusBadge": func(s store.Status) template.HTML {
		class := "badge-secondary"
		switch s {
		case store.StatusPassed:
			class = "badge-success"
		case store.StatusFailed:
			class = "badge-danger"
		case store.StatusRunning:
			class = "badge-info"
		}
		return template.HTML(`<span class="badge ` + class + `">` + template.HTMLEscapeString(string(s)) + `</span>`)
	},
	"passRate": func(s *tracker.Stats) string {
		if s.Passed+s.Failed == 0 {
			return "N/A"
		}
		return fmt.Sprintf("%.1f%%", s.PassRate())
	},
}

var (
	dashboardTmpl  = template.Must(template.New("dashboard").Funcs(templateFuncs).Parse(layoutTemplate + dashboardTemplate))
	testDetailTmpl = template.Must(template.New("detail").Funcs(templateFuncs).Parse(layoutTemplate + testDetailTemplate))
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := DashboardData{
		Title:     "Autotest Dashboard",
		Schedules: s.scheduleSummaries(),
		Version:   version,
		Uptime:    s.Uptime(),
	}

	resp := s.deps.Commands.Do(r.Context(), router.Request{Action: router.ActionGetRecentTests})
	if resp.Success {
		data.Tests = resp.Tests
	} else if resp.Error != nil {
		s.logger.Error("failed to get tests for dashboard", "error", resp.Error.Message)
	}

	if s.deps.Stats != nil {
		if st, err := s.deps.Stats.Stats(); err != nil {
			s.logger.Error("failed to get stats for dashboard", "error", err)
		} else {
			data.Stats = &st
		}
	}

	s.render(w, dashboardTmpl, data)
}

func (s *Server) handleTestDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	resp := s.deps.Commands.Do(r.Context(), router.Request{Action: router.ActionGetTest, TestID: id})
	if !resp.Success || resp.Record == nil {
		http.Error(w, "Test not found", http.StatusNotFound)
		return
	}

	s.render(w, testDetailTmpl, TestDetailData{
		Title:   resp.Record.Name,
		Test:    resp.Record,
		Pending: resp.Pending,
	})
}

func (s *Server) render(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "page", data); err != nil {
		s.logger.Error("failed to render template", "template", tmpl.Name(), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

const layoutTemplate = `{{define "page"}}<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body { font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif; background: #f5f5f5; color: #333; line-height: 1.6; }
        .container { max-width: 1200px; margin: 0 auto; padding: 20px; }
        header { background: #1f2937; color: white; padding: 20px 0; margin-bottom: 30px; }
        header h1 { font-size: 26px; }
        header .meta, header a { font-size: 14px; color: white; opacity: 0.8; }
        .stats { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 16px; margin-bottom: 30px; }
        .stat-card, .section { background: white; padding: 20px; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.08); }
        .stat-card h3 { font-size: 13px; color: #6b7280; text-transform: uppercase; }
        .stat-card .value { font-size: 30px; font-weight: bold; }
        .section { margin-bottom: 30px; }
        .section h2 { font-size: 19px; margin-bottom: 16px; border-bottom: 2px solid #6366f1; padding-bottom: 8px; }
        table { width: 100%; border-collapse: collapse; }
        th { background: #f9fafb; text-align: left; padding: 10px; border-bottom: 2px solid #e5e7eb; }
        td { padding: 10px; border-bottom: 1px solid #e5e7eb; }
        dl { display: grid; grid-template-columns: 160px 1fr; gap: 8px 16px; }
        dt { color: #6b7280; text-transform: uppercase; font-size: 12px; padding-top: 3px; }
        .badge { display: inline-block; padding: 3px 8px; border-radius: 4px; font-size: 12px; font-weight: 600; text-transform: uppercase; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-danger { background: #fee2e2; color: #991b1b; }
        .badge-info { background: #dbeafe; color: #1e40af; }
        .badge-secondary { background: #e5e7eb; color: #374151; }
        .empty { text-align: center; padding: 30px; color: #6b7280; }
        a { color: #4f46e5; text-decoration: none; }
        code { background: #f3f4f6; padding: 2px 6px; border-radius: 3px; font-size: 13px; }
    </style>
</head>
<body>
{{template "body" .}}
</body>
</html>{{end}}`

const dashboardTemplate = `{{define "body"}}
    <header>
        <div class="container">
            <h1>{{.Title}}</h1>
            <div class="meta">Version: {{.Version}} | Uptime: {{.Uptime}}</div>
        </div>
    </header>
    <div class="container">
        {{with .Stats}}
        <div class="stats">
            <div class="stat-card"><h3>Recent Tests</h3><div class="value">{{.Total}}</div></div>
            <div class="stat-card"><h3>Running</h3><div class="value">{{.Running}}</div></div>
            <div class="stat-card"><h3>Passed</h3><div class="value">{{.Passed}}</div></div>
            <div class="stat-card"><h3>Failed</h3><div class="value">{{.Failed}}</div></div>
            <div class="stat-card"><h3>Pass Rate</h3><div class="value">{{passRate .}}</div></div>
        </div>
        {{end}}

        <div class="section">
            <h2>Recent Tests ({{len .Tests}})</h2>
            {{if .Tests}}
            <table>
                <thead><tr><th>Name</th><th>Scenario</th><th>Target</th><th>Device</th><th>Started</th><th>Duration</th><th>Status</th></tr></thead>
                <tbody>
                    {{range .Tests}}
                    <tr>
                        <td><a href="/tests/{{.ID}}">{{.Name}}</a></td>
                        <td>{{.Scenario}}</td>
                        <td><code>{{.TargetURL}}</code></td>
                        <td>{{.Device}} / {{.Browser}}</td>
                        <td>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</td>
                        <td>{{formatDuration .}}</td>
                        <td>{{statusBadge .Status}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
            {{else}}
            <div class="empty">No tests yet</div>
            {{end}}
        </div>

        {{if .Schedules}}
        <div class="section">
            <h2>Schedules ({{len .Schedules}})</h2>
            <table>
                <thead><tr><th>ID</th><th>Schedule</th><th>Scenario</th><th>Target</th><th>Runs</th><th>Next Run</th></tr></thead>
                <tbody>
                    {{range .Schedules}}
                    <tr>
                        <td>{{.ID}}</td>
                        <td><code>{{.Schedule.Schedule}}</code></td>
                        <td>{{.Scenario}}</td>
                        <td><code>{{.TargetURL}}</code></td>
                        <td>{{.Stats.RunCount}}</td>
                        <td>{{formatTime .Stats.NextRun}}</td>
                    </tr>
                    {{end}}
                </tbody>
            </table>
        </div>
        {{end}}
    </div>
{{end}}`

const testDetailTemplate = `{{define "body"}}
    <header>
        <div class="container">
            <div><a href="/">&larr; Back to Dashboard</a></div>
            <h1>{{.Title}}</h1>
        </div>
    </header>
    <div class="container">
        <div class="section">
            <h2>Test Details</h2>
            {{with .Test}}
            <dl>
                <dt>ID</dt><dd><code>{{.ID}}</code></dd>
                <dt>Status</dt><dd>{{statusBadge .Status}}</dd>
                <dt>Scenario</dt><dd>{{.Scenario}}</dd>
                <dt>Target URL</dt><dd><a href="{{.TargetURL}}">{{.TargetURL}}</a></dd>
                {{if .Title}}<dt>Page Title</dt><dd>{{.Title}}</dd>{{end}}
                <dt>Device</dt><dd>{{.Device}}</dd>
                <dt>Browser</dt><dd>{{.Browser}}</dd>
                <dt>Created</dt><dd>{{.CreatedAt.Format "2006-01-02 15:04:05"}}</dd>
                <dt>Completed</dt><dd>{{formatTime .CompletedAt}}</dd>
                <dt>Duration</dt><dd>{{formatDuration .}}</dd>
            </dl>
            {{end}}
            {{if .Pending}}<p class="empty">Simulated completion pending</p>{{end}}
        </div>
    </div>
{{end}}`
