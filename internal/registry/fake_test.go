package registry

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/svcwatch/internal/process"
	"github.com/loykin/svcwatch/internal/store"
	"github.com/loykin/svcwatch/internal/supervisor"
)

// memServices is an in-memory service store. Setting fail makes Save error.
type memServices struct {
	mu    sync.Mutex
	list  []store.Service
	saves int
	fail  bool
}

func (m *memServices) Load() ([]store.Service, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.Service(nil), m.list...), nil
}

func (m *memServices) Save(list []store.Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.saves++
	m.list = append([]store.Service(nil), list...)
	return nil
}

func (m *memServices) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.list))
	for i, s := range m.list {
		out[i] = s.Name
	}
	return out
}

type memSettings struct {
	mu   sync.Mutex
	s    store.Settings
	fail bool
}

func (m *memSettings) Load() (store.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s, nil
}

func (m *memSettings) Save(s store.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("read-only")
	}
	m.s = s
	return nil
}

// liveHandle runs until terminated or killed.
type liveHandle struct {
	pid  int
	mu   sync.Mutex
	done chan struct{}
	dead bool
}

func newLiveHandle(pid int) *liveHandle { return &liveHandle{pid: pid, done: make(chan struct{})} }

func (h *liveHandle) exit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.dead {
		h.dead = true
		close(h.done)
	}
}

func (h *liveHandle) PID() int         { return h.pid }
func (h *liveHandle) StartUnix() int64 { return 0 }
func (h *liveHandle) ExitErr() error   { return nil }
func (h *liveHandle) Release()         {}
func (h *liveHandle) Terminate() error { h.exit(); return nil }
func (h *liveHandle) Kill() error      { h.exit(); return nil }

func (h *liveHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.dead
}

func (h *liveHandle) Wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

// stubProbe spawns live handles. Executables listed in failing are rejected.
type stubProbe struct {
	mu      sync.Mutex
	failing map[string]bool
	handles []*liveHandle
	specs   []process.SpawnSpec
}

func (p *stubProbe) Spawn(s process.SpawnSpec) (process.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing[filepath.Base(s.Executable)] {
		return nil, errors.New("exec format error")
	}
	h := newLiveHandle(2000 + len(p.handles))
	p.handles = append(p.handles, h)
	p.specs = append(p.specs, s)
	return h, nil
}

func (p *stubProbe) VerifyExists(pid int, _ int64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		if h.pid == pid {
			return h.Alive(), nil
		}
	}
	return false, nil
}

func (p *stubProbe) TreeKill(int) error { return nil }

func (p *stubProbe) lastSpec() process.SpawnSpec {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.specs[len(p.specs)-1]
}

func testTimings(confirm time.Duration) *supervisor.Timings {
	return &supervisor.Timings{
		ConfirmWindow:          confirm,
		PollInterval:           20 * time.Millisecond,
		MinRestartInterval:     confirm + 500*time.Millisecond,
		MaxConsecutiveFailures: 5,
		RestartGrace:           10 * time.Millisecond,
		StopJoinTimeout:        500 * time.Millisecond,
		TermWait:               50 * time.Millisecond,
		KillWait:               50 * time.Millisecond,
		TreeKillWait:           50 * time.Millisecond,
	}
}

// fixture creates an executable file per name in a temp dir and returns
// matching service records.
func fixture(t *testing.T, names ...string) (dir string, svcs []store.Service) {
	t.Helper()
	dir = t.TempDir()
	for _, n := range names {
		exe := filepath.Join(dir, n+".bin")
		require.NoError(t, os.WriteFile(exe, []byte("#!/bin/sh\n"), 0o755))
		svcs = append(svcs, store.Service{Name: n, Executable: exe, WorkDir: dir})
	}
	return dir, svcs
}

type harness struct {
	reg      *Registry
	services *memServices
	settings *memSettings
	probe    *stubProbe
	dir      string
}

func newHarness(t *testing.T, confirm time.Duration, names ...string) *harness {
	t.Helper()
	dir, svcs := fixture(t, names...)
	h := &harness{
		services: &memServices{list: svcs},
		settings: &memSettings{s: store.Settings{LogBasePath: filepath.Join(dir, "logs")}},
		probe:    &stubProbe{failing: map[string]bool{}},
		dir:      dir,
	}
	reg, err := New(Options{
		Services:        h.services,
		Settings:        h.settings,
		Probe:           h.probe,
		Timings:         testTimings(confirm),
		RestartSettle:   10 * time.Millisecond,
		StartAllSpacing: 5 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(reg.Shutdown)
	h.reg = reg
	return h
}
