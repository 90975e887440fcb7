package tui

import (
	"context"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/caevv/autotest/internal/server"
	"github.com/caevv/autotest/internal/store"
)

// refreshTimeout bounds a single poll of the server.
const refreshTimeout = 5 * time.Second

// Source is the view of an autotest server the TUI needs.
// *client.Client implements it.
type Source interface {
	RecentTests(ctx context.Context) ([]*store.TestRecord, error)
	Stats(ctx context.Context) (server.StatsResponse, error)
	CompleteTest(ctx context.Context, id string, outcome store.Status) (*store.TestRecord, error)
	OpenDashboard(ctx context.Context, testID string) (string, error)
}

// Opener launches a URL on this machine. router.ExecOpener implements it.
type Opener interface {
	Open(ctx context.Context, url string) error
}

// ViewMode represents the current view in the TUI.
type ViewMode int

const (
	ViewModeList ViewMode = iota
	ViewModeDetail
)

// Model holds the state for the TUI.
type Model struct {
	source Source
	opener Opener
	logger *slog.Logger

	viewMode     ViewMode
	tests        []*store.TestRecord
	stats        server.StatsResponse
	selected     int
	detailID     string
	width        int
	height       int
	lastUpdate   time.Time
	quitting     bool
	errorMessage string
	notice       string
}

// New creates a new TUI model. opener may be nil, which disables "o".
func New(source Source, opener Opener, logger *slog.Logger) Model {
	if logger == nil {
		logger = slog.Default()
	}
	return Model{
		source: source,
		opener: opener,
		logger: logger,
	}
}

// Init initializes the model (required by Bubbletea).
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refreshCmd(),
		tickCmd(),
		tea.EnterAltScreen,
	)
}

// tickMsg is sent on a regular interval to refresh the UI.
type tickMsg time.Time

// dataMsg carries the result of one poll.
type dataMsg struct {
	tests []*store.TestRecord
	stats server.StatsResponse
	at    time.Time
	err   error
}

// noticeMsg reports the outcome of a user action.
type noticeMsg struct {
	text string
	err  error
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refreshCmd polls the server off the UI goroutine.
func (m Model) refreshCmd() tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		tests, err := source.RecentTests(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		stats, err := source.Stats(ctx)
		if err != nil {
			return dataMsg{err: err}
		}
		return dataMsg{tests: tests, stats: stats, at: time.Now()}
	}
}

func (m Model) completeCmd(id string, outcome store.Status) tea.Cmd {
	source := m.source
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		rec, err := source.CompleteTest(ctx, id, outcome)
		if err != nil {
			return noticeMsg{err: err}
		}
		if rec == nil {
			return noticeMsg{text: id + " is no longer retained"}
		}
		return noticeMsg{text: rec.Name + " is " + string(rec.Status)}
	}
}

func (m Model) openCmd(id string) tea.Cmd {
	source, opener := m.source, m.opener
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		url, err := source.OpenDashboard(ctx, id)
		if err != nil {
			return noticeMsg{err: err}
		}
		if err := opener.Open(ctx, url); err != nil {
			return noticeMsg{err: err}
		}
		return noticeMsg{text: "opened " + url}
	}
}

// apply stores a successful poll and keeps the cursor on the same test when
// new ones are prepended.
func (m *Model) apply(msg dataMsg) {
	var selectedID string
	if m.selected < len(m.tests) {
		selectedID = m.tests[m.selected].ID
	}

	m.tests = msg.tests
	m.stats = msg.stats
	m.lastUpdate = msg.at
	m.errorMessage = ""

	m.selected = 0
	for i, rec := range m.tests {
		if rec.ID == selectedID {
			m.selected = i
			break
		}
	}
}

// current returns the test under the cursor, or nil.
func (m Model) current() *store.TestRecord {
	if m.selected < len(m.tests) {
		return m.tests[m.selected]
	}
	return nil
}

// detail returns the test shown in the detail view, or nil once it has
// rotated out of the retained list.
func (m Model) detail() *store.TestRecord {
	for _, rec := range m.tests {
		if rec.ID == m.detailID {
			return rec
		}
	}
	return nil
}

// Quitting returns true if the user has requested to quit.
func (m Model) Quitting() bool {
	return m.quitting
}
