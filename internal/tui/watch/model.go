package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/cinema-bridge/internal/events"
	"github.com/mattjoyce/cinema-bridge/internal/journal"
)

const logLimit = 200

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	health HealthState
	log    *DispatchLog
	pulse  Pulse
	now    time.Time

	table table.Model
	theme Theme

	hubEvents chan events.Event

	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns(dispatchColumns(100)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		log:       NewDispatchLog(logLimit),
		now:       time.Now(),
		table:     t,
		theme:     NewDefaultTheme(),
		hubEvents: make(chan events.Event, 100),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents),
		receiveNextEvent(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchDispatches(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(dispatchColumns(m.width - 4))
		m.table.SetHeight(max(5, m.height-12))
		m.refreshRows()

	case tickMsg:
		m.now = time.Time(msg)
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		e := events.Event(msg)
		if e.Type == events.TypeCallReported {
			var entry journal.Entry
			if err := json.Unmarshal(e.Data, &entry); err == nil && m.log.Add(entry) {
				m.pulse.Hit(e.At)
				m.refreshRows()
			}
		}
		m.health.Connected = true
		m.lastError = ""
		return m, receiveNextEvent(m.hubEvents)

	case dispatchesMsg:
		for _, entry := range msg {
			m.log.Add(entry)
		}
		m.refreshRows()
		return m, nil

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Channel = msg.Channel
		m.health.Method = msg.Method
		m.health.JournalEnabled = msg.JournalEnabled
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		// The pending receiveNextEvent keeps reading from hubEvents and will
		// pick up events from the new subscription.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) refreshRows() {
	cols := m.table.Columns()
	inputWidth := 30
	if len(cols) > 3 {
		inputWidth = cols[3].Width
	}
	m.table.SetRows(m.log.Rows(inputWidth))
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting to cinema-bridge..."
	}

	header := renderHeader(m.health, m.log, m.pulse, m.theme, m.width, m.now)

	calls := lipgloss.JoinVertical(lipgloss.Left,
		m.theme.Title.Render(fmt.Sprintf("CALLS (%d)", len(m.log.Entries()))),
		m.table.View(),
	)
	if len(m.log.Entries()) == 0 {
		calls = lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("CALLS"),
			m.theme.Dim.Render("  Waiting for calls..."),
		)
	}

	parts := []string{header, m.theme.Border.Width(m.width - 4).Render(calls)}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
