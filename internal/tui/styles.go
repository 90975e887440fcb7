// Package tui provides a terminal dashboard for a running autotest server.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/caevv/autotest/internal/store"
)

var (
	colorPrimary   = lipgloss.Color("#0EA5E9") // Sky
	colorSuccess   = lipgloss.Color("#10B981") // Green
	colorError     = lipgloss.Color("#EF4444") // Red
	colorWarning   = lipgloss.Color("#F59E0B") // Orange
	colorInfo      = lipgloss.Color("#3B82F6") // Blue
	colorMuted     = lipgloss.Color("#6B7280") // Gray
	colorBorder    = lipgloss.Color("#374151") // Dark gray
	colorHighlight = lipgloss.Color("#38BDF8")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(colorBorder).
			Padding(0, 1).
			MarginBottom(1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Background(lipgloss.Color("#1F2937")).
			Padding(0, 1).
			MarginTop(1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(1, 2).
			MarginBottom(1)

	itemStyle = lipgloss.NewStyle().
			Padding(0, 1)

	itemSelectedStyle = lipgloss.NewStyle().
				Foreground(colorHighlight).
				Bold(true).
				Padding(0, 1)

	statusQueuedStyle = lipgloss.NewStyle().
				Foreground(colorWarning)

	statusRunningStyle = lipgloss.NewStyle().
				Foreground(colorInfo).
				Bold(true)

	statusPassedStyle = lipgloss.NewStyle().
				Foreground(colorSuccess).
				Bold(true)

	statusFailedStyle = lipgloss.NewStyle().
				Foreground(colorError).
				Bold(true)

	statsStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 2).
			MarginBottom(1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary).
			Padding(0, 1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	keyStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	valueStyle = lipgloss.NewStyle().
			Bold(true)

	durationStyle = lipgloss.NewStyle().
			Foreground(colorInfo)
)

// Status icons
const (
	iconQueued  = "◌"
	iconRunning = "⟳"
	iconPassed  = "✓"
	iconFailed  = "✗"
	iconArrow   = ">"
)

// statusLabel renders the icon and name of a status in its color.
func statusLabel(s store.Status) string {
	switch s {
	case store.StatusQueued:
		return statusQueuedStyle.Render(iconQueued + " queued ")
	case store.StatusRunning:
		return statusRunningStyle.Render(iconRunning + " running")
	case store.StatusPassed:
		return statusPassedStyle.Render(iconPassed + " passed ")
	case store.StatusFailed:
		return statusFailedStyle.Render(iconFailed + " failed ")
	default:
		return keyStyle.Render("? " + string(s))
	}
}
