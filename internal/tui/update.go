package tui

import (
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/caevv/autotest/internal/store"
)

// Update handles incoming messages and updates the model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case dataMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			m.logger.Debug("refresh failed", slog.String("error", msg.err.Error()))
			return m, nil
		}
		m.apply(msg)
		return m, nil

	case noticeMsg:
		if msg.err != nil {
			m.errorMessage = msg.err.Error()
			return m, nil
		}
		m.notice = msg.text
		return m, m.refreshCmd()

	case error:
		m.errorMessage = msg.Error()
		return m, nil
	}

	return m, nil
}

// handleKeyPress processes keyboard input.
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		if m.viewMode == ViewModeDetail {
			m.viewMode = ViewModeList
			m.detailID = ""
		}
		return m, nil

	case "enter":
		if m.viewMode == ViewModeList {
			if rec := m.current(); rec != nil {
				m.viewMode = ViewModeDetail
				m.detailID = rec.ID
			}
		}
		return m, nil

	case "up", "k":
		if m.viewMode == ViewModeList && m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.viewMode == ViewModeList && m.selected < len(m.tests)-1 {
			m.selected++
		}
		return m, nil

	case "g":
		if m.viewMode == ViewModeList {
			m.selected = 0
		}
		return m, nil

	case "G":
		if m.viewMode == ViewModeList && len(m.tests) > 0 {
			m.selected = len(m.tests) - 1
		}
		return m, nil

	case "r":
		return m, m.refreshCmd()

	case "p", "f":
		rec := m.target()
		if rec == nil || !rec.IsRunning() {
			return m, nil
		}
		outcome := store.StatusPassed
		if msg.String() == "f" {
			outcome = store.StatusFailed
		}
		return m, m.completeCmd(rec.ID, outcome)

	case "o":
		if m.opener == nil {
			return m, nil
		}
		var id string
		if rec := m.target(); rec != nil {
			id = rec.ID
		}
		return m, m.openCmd(id)
	}

	return m, nil
}

// target is the test an action key applies to in the current view.
func (m Model) target() *store.TestRecord {
	if m.viewMode == ViewModeDetail {
		return m.detail()
	}
	return m.current()
}
