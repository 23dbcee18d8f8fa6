// Package tui implements the terminal monitor behind `tubewatch watch`. It
// reads the delivery queue and log straight from the SQLite state file, so it
// works whether or not the service is running.
package tui

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/soulxhy/tubewatch/internal/queue"
)

const (
	refreshInterval = 2 * time.Second
	logWindow       = 50
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusQueued  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// --- Types ---

type Model struct {
	q *queue.Queue

	width  int
	height int

	depth   int
	entries []queue.LogEntry
	loadErr error

	logTable table.Model
}

type refreshMsg struct {
	depth   int
	entries []queue.LogEntry
}

type errMsg error

// --- Init ---

func NewMonitor(db *sql.DB) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Video", Width: 12},
			{Title: "Title", Width: 36},
			{Title: "Completed", Width: 19},
			{Title: "Error", Width: 30},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
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
		q:        queue.New(db, 0),
		logTable: t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.refresh(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logTable.SetWidth(m.width - 6)

	case refreshMsg:
		m.depth = msg.depth
		m.entries = msg.entries
		m.loadErr = nil
		m.updateTable()
		return m, m.scheduleRefresh()

	case errMsg:
		m.loadErr = msg
		return m, m.scheduleRefresh()
	}

	m.logTable, cmd = m.logTable.Update(msg)
	return m, cmd
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.entries))
	for _, e := range m.entries {
		rows = append(rows, entryToRow(e))
	}
	m.logTable.SetRows(rows)
}

func entryToRow(e queue.LogEntry) table.Row {
	statusSym := "○"
	switch e.Status {
	case queue.StatusQueued:
		statusSym = statusQueued.Render("○")
	case queue.StatusRunning:
		statusSym = statusRunning.Render("◉")
	case queue.StatusSucceeded:
		statusSym = statusOK.Render("●")
	case queue.StatusFailed:
		statusSym = statusFailed.Render("∅")
	}

	completed := "-"
	if !e.CompletedAt.IsZero() {
		completed = e.CompletedAt.Local().Format("2006-01-02 15:04:05")
	}

	lastError := ""
	if e.LastError != nil {
		lastError = *e.LastError
	}

	return table.Row{
		statusSym,
		e.VideoID,
		e.Title,
		completed,
		lastError,
	}
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	deliveries := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Recent Deliveries"),
			m.logTable.View(),
		),
	)

	help := helpStyle.Render(" [q] Quit • [↑/↓] Scroll Deliveries")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			deliveries,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	state := statusOK.Render("IDLE")
	if m.depth > 0 {
		state = statusRunning.Render("WORKING")
	}
	if m.loadErr != nil {
		state = statusFailed.Render("ERROR")
	}

	succeeded, failed := 0, 0
	for _, e := range m.entries {
		switch e.Status {
		case queue.StatusSucceeded:
			succeeded++
		case queue.StatusFailed:
			failed++
		}
	}

	items := []string{
		fmt.Sprintf("State: %s", state),
		fmt.Sprintf("Pending: %d", m.depth),
		fmt.Sprintf("Succeeded: %d", succeeded),
		fmt.Sprintf("Failed: %d", failed),
	}

	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top,
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[0]),
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[1]),
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[2]),
			lipgloss.NewStyle().Width((m.width-4)/4).Render(items[3]),
		),
	)
}

// --- Commands ---

func (m Model) refresh() tea.Cmd {
	return func() tea.Msg {
		return m.load()
	}
}

func (m Model) scheduleRefresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg {
		return m.load()
	})
}

func (m Model) load() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	depth, err := m.q.Depth(ctx)
	if err != nil {
		return errMsg(err)
	}
	entries, err := m.q.RecentLog(ctx, logWindow)
	if err != nil {
		return errMsg(err)
	}
	return refreshMsg{depth: depth, entries: entries}
}
