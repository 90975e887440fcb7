package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/caevv/autotest/internal/store"
)

// View renders the UI.
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	if m.viewMode == ViewModeDetail {
		return m.renderDetailView()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader("Autotest"),
		m.renderStats(),
		m.renderTestList(),
		m.renderHelpBar("q: quit  │  ↑/↓: navigate  │  enter: details  │  p/f: pass/fail  │  o: open  │  r: refresh"),
	)
}

func (m Model) renderHeader(title string) string {
	updated := "never"
	if !m.lastUpdate.IsZero() {
		updated = m.lastUpdate.Format("15:04:05")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Top,
		titleStyle.Render("⚡ "+title),
		"  ",
		subtitleStyle.Render("Last updated: "+updated),
	)
	return headerStyle.Render(header)
}

// renderStats renders the statistics bar.
func (m Model) renderStats() string {
	s := m.stats
	items := []string{
		fmt.Sprintf("%s %d", keyStyle.Render("Tests:"), s.Total),
		fmt.Sprintf("%s %d", keyStyle.Render("Running:"), s.Running),
		fmt.Sprintf("%s %d", keyStyle.Render("Passed:"), s.Passed),
		fmt.Sprintf("%s %d", keyStyle.Render("Failed:"), s.Failed),
	}
	if s.Passed+s.Failed > 0 {
		items = append(items, fmt.Sprintf("%s %.0f%%", keyStyle.Render("Pass rate:"), s.PassRate))
	}
	if s.EventsDropped > 0 {
		items = append(items, statusFailedStyle.Render(fmt.Sprintf("%d events dropped", s.EventsDropped)))
	}
	return statsStyle.Render(strings.Join(items, "  │  "))
}

func (m Model) renderTestList() string {
	if len(m.tests) == 0 {
		return panelStyle.Render(subtitleStyle.Render("No tests yet"))
	}

	rows := []string{
		titleStyle.Render(fmt.Sprintf("Recent Tests (%d)", len(m.tests))),
		"",
		keyStyle.Render(fmt.Sprintf("   %-9s  %-24s  %-10s  %-9s  %s", "Started", "Name", "Scenario", "Status", "Duration")),
		keyStyle.Render("   " + strings.Repeat("─", 70)),
	}
	for i, rec := range m.tests {
		rows = append(rows, renderTestRow(rec, i == m.selected))
	}
	return panelStyle.Render(strings.Join(rows, "\n"))
}

func renderTestRow(rec *store.TestRecord, selected bool) string {
	cursor := " "
	if selected {
		cursor = iconArrow
	}

	row := fmt.Sprintf("%s  %-9s  %-24s  %-10s  %s  %s",
		cursor,
		rec.CreatedAt.Format("15:04:05"),
		padRight(truncate(rec.Name, 24), 24),
		rec.Scenario,
		statusLabel(rec.Status),
		durationStyle.Render(recordDuration(rec)),
	)

	if selected {
		return itemSelectedStyle.Render(row)
	}
	return itemStyle.Render(row)
}

func (m Model) renderHelpBar(help string) string {
	if m.errorMessage != "" {
		return statusBarStyle.Render(statusFailedStyle.Render("Error: " + m.errorMessage))
	}
	if m.notice != "" {
		help = noticeStyle.Render(m.notice) + "  │  " + help
	}
	return statusBarStyle.Render(help)
}

// renderDetailView renders the detailed view for the selected test.
func (m Model) renderDetailView() string {
	rec := m.detail()
	if rec == nil {
		return lipgloss.JoinVertical(lipgloss.Left,
			m.renderHeader("Autotest"),
			panelStyle.Render(subtitleStyle.Render("Test "+m.detailID+" is no longer retained")),
			m.renderHelpBar("esc: back  │  q: quit"),
		)
	}

	field := func(key, value string) string {
		return fmt.Sprintf("%s %s", keyStyle.Render(padRight(key+":", 11)), valueStyle.Render(value))
	}

	info := []string{
		titleStyle.Render(rec.Name),
		"",
		field("ID", rec.ID),
		field("Scenario", string(rec.Scenario)),
		field("Target", rec.TargetURL),
	}
	if rec.Title != "" {
		info = append(info, field("Title", rec.Title))
	}
	info = append(info,
		field("Device", rec.Device),
		field("Browser", rec.Browser),
		fmt.Sprintf("%s %s", keyStyle.Render(padRight("Status:", 11)), statusLabel(rec.Status)),
		field("Started", rec.CreatedAt.Format("2006-01-02 15:04:05")),
	)
	if rec.CompletedAt != nil {
		info = append(info,
			field("Completed", rec.CompletedAt.Format("2006-01-02 15:04:05")),
			fmt.Sprintf("%s %s", keyStyle.Render(padRight("Duration:", 11)), durationStyle.Render(recordDuration(rec))))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader("Autotest - "+rec.Name),
		panelStyle.Render(strings.Join(info, "\n")),
		m.renderHelpBar("esc: back  │  p/f: pass/fail  │  o: open  │  q: quit"),
	)
}

// recordDuration shows elapsed time for finished runs and a marker otherwise.
func recordDuration(rec *store.TestRecord) string {
	if rec.CompletedAt == nil {
		return "running..."
	}
	return formatDuration(rec.Duration())
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}
