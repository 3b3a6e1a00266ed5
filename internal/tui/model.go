// Package tui is the terminal dashboard. It polls a running daemon through
// the API client once per refresh interval.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loykin/svcwatch/internal/status"
	"github.com/loykin/svcwatch/pkg/client"
)

const (
	DefaultRefresh = time.Second
	eventLines     = 8
	requestTimeout = 30 * time.Second
)

// Backend is the subset of the API client the dashboard uses.
type Backend interface {
	List(ctx context.Context) ([]client.ServiceStatus, error)
	Start(ctx context.Context, index int, async bool) (client.Result, error)
	Stop(ctx context.Context, index int) error
	Restart(ctx context.Context, index int) error
	StartAll(ctx context.Context) (client.StartAllResult, error)
	StopAll(ctx context.Context) (string, error)
	Events(ctx context.Context, limit int) ([]string, error)
}

type mode int

const (
	modeList mode = iota
	modeSearch
)

type tickMsg struct{}

type refreshedMsg struct {
	rows   []client.ServiceStatus
	events []string
	err    error
}

type actionMsg struct {
	text string
	err  error
}

// Model is the bubbletea model of the dashboard.
type Model struct {
	backend Backend
	refresh time.Duration

	rows     []client.ServiceStatus
	filtered []client.ServiceStatus
	events   []string
	selected int

	mode   mode
	search textinput.Model

	notice string
	err    error
	width  int
}

func New(backend Backend, refresh time.Duration) *Model {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	search := textinput.New()
	search.Placeholder = "filter by name or state"
	return &Model{backend: backend, refresh: refresh, search: search}
}

func (m *Model) Init() tea.Cmd {
	return m.fetch()
}

func (m *Model) tick() tea.Cmd {
	return tea.Tick(m.refresh, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m *Model) fetch() tea.Cmd {
	b := m.backend
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		rows, err := b.List(ctx)
		if err != nil {
			return refreshedMsg{err: err}
		}
		lines, err := b.Events(ctx, eventLines)
		return refreshedMsg{rows: rows, events: lines, err: err}
	}
}

// act runs fn off the UI goroutine and reports its outcome.
func (m *Model) act(label string, fn func(ctx context.Context) (string, error)) tea.Cmd {
	m.notice = label + "..."
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		text, err := fn(ctx)
		return actionMsg{text: text, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, m.fetch()

	case refreshedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.rows = msg.rows
			m.events = msg.events
			m.applyFilter()
		}
		return m, m.tick()

	case actionMsg:
		if msg.err != nil {
			m.notice = ""
			m.err = msg.err
		} else {
			m.notice = msg.text
			m.err = nil
		}
		return m, m.fetch()

	case tea.KeyMsg:
		if m.mode == modeSearch {
			return m.updateSearch(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m *Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.search.SetValue("")
		fallthrough
	case "enter":
		m.mode = modeList
		m.search.Blur()
		m.applyFilter()
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "j", "down":
		if m.selected < len(m.filtered)-1 {
			m.selected++
		}
	case "k", "up":
		if m.selected > 0 {
			m.selected--
		}
	case "/":
		m.mode = modeSearch
		m.search.Focus()
		return m, textinput.Blink
	case "s":
		if row, ok := m.current(); ok {
			return m, m.act("Starting "+row.Name, func(ctx context.Context) (string, error) {
				res, err := m.backend.Start(ctx, row.Index, true)
				return res.Message, err
			})
		}
	case "x":
		if row, ok := m.current(); ok {
			return m, m.act("Stopping "+row.Name, func(ctx context.Context) (string, error) {
				return "Stopped " + row.Name, m.backend.Stop(ctx, row.Index)
			})
		}
	case "r":
		if row, ok := m.current(); ok {
			return m, m.act("Restarting "+row.Name, func(ctx context.Context) (string, error) {
				return "Restarted " + row.Name, m.backend.Restart(ctx, row.Index)
			})
		}
	case "S":
		return m, m.act("Starting all", func(ctx context.Context) (string, error) {
			res, err := m.backend.StartAll(ctx)
			return fmt.Sprintf("%d started, %d skipped, %d failed", res.Started, res.Skipped, res.Failed), err
		})
	case "X":
		return m, m.act("Stopping all", m.backend.StopAll)
	}
	return m, nil
}

func (m *Model) current() (client.ServiceStatus, bool) {
	if m.selected < 0 || m.selected >= len(m.filtered) {
		return client.ServiceStatus{}, false
	}
	return m.filtered[m.selected], true
}

func (m *Model) applyFilter() {
	term := strings.ToLower(strings.TrimSpace(m.search.Value()))
	if term == "" {
		m.filtered = m.rows
	} else {
		m.filtered = m.filtered[:0:0]
		for _, r := range m.rows {
			if strings.Contains(strings.ToLower(r.Name), term) || strings.Contains(r.State, term) {
				m.filtered = append(m.filtered, r)
			}
		}
	}
	if m.selected >= len(m.filtered) {
		m.selected = max(0, len(m.filtered)-1)
	}
}

func label(r client.ServiceStatus) string {
	return status.Snapshot{State: status.State(r.State), PID: r.PID}.String()
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("svcwatch"))
	b.WriteString("\n\n")

	nameW := len("NAME")
	for _, r := range m.filtered {
		nameW = max(nameW, lipgloss.Width(r.Name))
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("  %-4s %-*s  %s", "#", nameW, "NAME", "STATUS")))
	b.WriteString("\n")
	if len(m.filtered) == 0 {
		b.WriteString(rowStyle.Render("no services"))
		b.WriteString("\n")
	}
	for i, r := range m.filtered {
		line := fmt.Sprintf("%-4d %-*s  %s", r.Index, nameW, r.Name, stateStyle(r.State).Render(label(r)))
		if i == m.selected {
			b.WriteString(rowSelectedStyle.Render(line))
		} else {
			b.WriteString(rowStyle.Render(line))
		}
		b.WriteString("\n")
	}

	var ev strings.Builder
	ev.WriteString(titleStyle.Render("Events"))
	for _, l := range m.events {
		ev.WriteString("\n")
		ev.WriteString(eventStyle.Render(l))
	}
	b.WriteString("\n")
	panel := panelStyle
	if m.width > 4 {
		panel = panel.Width(m.width - 4)
	}
	b.WriteString(panel.Render(ev.String()))
	b.WriteString("\n")

	switch {
	case m.mode == modeSearch:
		b.WriteString(m.search.View())
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
	case m.notice != "":
		b.WriteString(noticeStyle.Render(m.notice))
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("j/k move  s start  x stop  r restart  S start all  X stop all  / filter  q quit"))
	return b.String()
}

// Run starts the dashboard on the terminal and blocks until it quits.
func Run(backend Backend, refresh time.Duration) error {
	_, err := tea.NewProgram(New(backend, refresh), tea.WithAltScreen()).Run()
	return err
}
