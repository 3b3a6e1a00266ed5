package tui

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcwatch/pkg/client"
)

type fakeBackend struct {
	mu      sync.Mutex
	rows    []client.ServiceStatus
	events  []string
	listErr error
	calls   []string
}

func (f *fakeBackend) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeBackend) List(context.Context) ([]client.ServiceStatus, error) {
	return f.rows, f.listErr
}

func (f *fakeBackend) Start(_ context.Context, _ int, async bool) (client.Result, error) {
	if async {
		f.record("start")
	} else {
		f.record("start-sync")
	}
	return client.Result{Success: true, Message: "service starting"}, nil
}

func (f *fakeBackend) Stop(context.Context, int) error { f.record("stop"); return nil }

func (f *fakeBackend) Restart(context.Context, int) error {
	f.record("restart")
	return errors.New("launch verification failed")
}

func (f *fakeBackend) StartAll(context.Context) (client.StartAllResult, error) {
	f.record("start-all")
	return client.StartAllResult{Started: 2, Failed: 1}, nil
}

func (f *fakeBackend) StopAll(context.Context) (string, error) {
	f.record("stop-all")
	return "stopped 2 services", nil
}

func (f *fakeBackend) Events(context.Context, int) ([]string, error) { return f.events, nil }

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// run feeds msg to m and executes the returned command once, feeding its
// message back.
func run(t *testing.T, m *Model, msg tea.Msg) {
	t.Helper()
	_, cmd := m.Update(msg)
	require.NotNil(t, cmd)
	m.Update(cmd())
}

func loaded(t *testing.T) (*Model, *fakeBackend) {
	t.Helper()
	b := &fakeBackend{
		rows: []client.ServiceStatus{
			{Index: 0, Name: "api", State: "running", PID: 77},
			{Index: 1, Name: "worker", State: "stopped"},
		},
		events: []string{"2026-01-02 10:00:00 | [api] process started and verified pid=77"},
	}
	m := New(b, 0)
	m.Update(m.Init()())
	return m, b
}

func TestRefreshPopulatesView(t *testing.T) {
	m, _ := loaded(t)
	v := m.View()
	assert.Contains(t, v, "api")
	assert.Contains(t, v, "Running (PID: 77)")
	assert.Contains(t, v, "worker")
	assert.Contains(t, v, "[api] process started")
}

func TestRefreshErrorKeepsRows(t *testing.T) {
	m, b := loaded(t)
	b.listErr = errors.New("connection refused")
	m.Update(m.fetch()())
	assert.Len(t, m.filtered, 2)
	assert.Contains(t, m.View(), "connection refused")
}

func TestActionsOnSelection(t *testing.T) {
	m, b := loaded(t)

	m.Update(key("j"))
	row, ok := m.current()
	require.True(t, ok)
	assert.Equal(t, "worker", row.Name)

	_, cmd := m.Update(key("s"))
	require.NotNil(t, cmd)
	assert.Contains(t, m.View(), "Starting worker...")
	m.Update(cmd())
	assert.Contains(t, m.View(), "service starting")

	run(t, m, key("x"))
	assert.Contains(t, m.View(), "Stopped worker")

	run(t, m, key("r"))
	assert.Contains(t, m.View(), "launch verification failed")

	run(t, m, key("S"))
	assert.Contains(t, m.View(), "2 started, 0 skipped, 1 failed")

	run(t, m, key("X"))
	assert.Equal(t, []string{"start", "stop", "restart", "start-all", "stop-all"}, b.calls)
}

func TestFilter(t *testing.T) {
	m, _ := loaded(t)
	m.Update(key("/"))
	m.Update(key("w"))
	m.Update(key("o"))
	require.Len(t, m.filtered, 1)
	assert.Equal(t, "worker", m.filtered[0].Name)

	m.Update(key("esc"))
	assert.Len(t, m.filtered, 2)
}

func TestQuit(t *testing.T) {
	m, _ := loaded(t)
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
