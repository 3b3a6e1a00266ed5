package supervisor

import (
	"errors"
	"sync"
	"time"

	"github.com/loykin/svcwatch/internal/events"
	"github.com/loykin/svcwatch/internal/process"
)

type behavior struct {
	lifetime   time.Duration // 0 means until killed
	ignoreTerm bool
	ignoreKill bool
}

type fakeHandle struct {
	pid int
	b   behavior

	mu       sync.Mutex
	done     chan struct{}
	exited   bool
	terms    []time.Time
	kills    []time.Time
	released bool
}

func newFakeHandle(pid int, b behavior) *fakeHandle {
	h := &fakeHandle{pid: pid, b: b, done: make(chan struct{})}
	if b.lifetime > 0 {
		time.AfterFunc(b.lifetime, h.exit)
	}
	return h
}

func (h *fakeHandle) exit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.exited {
		h.exited = true
		close(h.done)
	}
}

func (h *fakeHandle) PID() int         { return h.pid }
func (h *fakeHandle) StartUnix() int64 { return 0 }
func (h *fakeHandle) ExitErr() error   { return nil }

func (h *fakeHandle) Alive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.exited
}

func (h *fakeHandle) Terminate() error {
	h.mu.Lock()
	h.terms = append(h.terms, time.Now())
	h.mu.Unlock()
	if !h.b.ignoreTerm {
		h.exit()
	}
	return nil
}

func (h *fakeHandle) Kill() error {
	h.mu.Lock()
	h.kills = append(h.kills, time.Now())
	h.mu.Unlock()
	if !h.b.ignoreKill {
		h.exit()
	}
	return nil
}

func (h *fakeHandle) Wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.done:
		return true
	case <-t.C:
		return false
	}
}

func (h *fakeHandle) Release() {
	h.mu.Lock()
	h.released = true
	h.mu.Unlock()
}

func (h *fakeHandle) snapshot() (terms, kills []time.Time, released bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]time.Time(nil), h.terms...), append([]time.Time(nil), h.kills...), h.released
}

// fakeProbe hands out fake handles. behave picks the behavior of the n-th
// spawn (0-based).
type fakeProbe struct {
	mu        sync.Mutex
	behave    func(n int) behavior
	spawnErr  func(n int) error
	verify    func(pid int) (bool, error)
	onSpawn   func(n int, spec process.SpawnSpec)
	handles   []*fakeHandle
	treeKills []int
}

var _ process.Probe = (*fakeProbe)(nil)

func (p *fakeProbe) Spawn(spec process.SpawnSpec) (process.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.handles)
	if p.spawnErr != nil {
		if err := p.spawnErr(n); err != nil {
			return nil, err
		}
	}
	var b behavior
	if p.behave != nil {
		b = p.behave(n)
	}
	h := newFakeHandle(1000+n, b)
	p.handles = append(p.handles, h)
	if p.onSpawn != nil {
		p.onSpawn(n, spec)
	}
	return h, nil
}

func (p *fakeProbe) VerifyExists(pid int, _ int64) (bool, error) {
	if p.verify != nil {
		return p.verify(pid)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handles {
		if h.pid == pid {
			return h.Alive(), nil
		}
	}
	return false, nil
}

func (p *fakeProbe) TreeKill(pid int) error {
	p.mu.Lock()
	p.treeKills = append(p.treeKills, pid)
	var target *fakeHandle
	for _, h := range p.handles {
		if h.pid == pid {
			target = h
		}
	}
	p.mu.Unlock()
	if target == nil {
		return errors.New("no such process")
	}
	target.exit()
	return nil
}

func (p *fakeProbe) spawns() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *fakeProbe) handle(n int) *fakeHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handles[n]
}

func (p *fakeProbe) treeKilled() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.treeKills...)
}

// recorder collects event lines.
type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.lines = append(r.lines, e.Message)
	r.mu.Unlock()
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func fastTimings() *Timings {
	return &Timings{
		ConfirmWindow:          30 * time.Millisecond,
		PollInterval:           30 * time.Millisecond,
		MinRestartInterval:     300 * time.Millisecond,
		MaxConsecutiveFailures: 5,
		RestartGrace:           20 * time.Millisecond,
		StopJoinTimeout:        500 * time.Millisecond,
		TermWait:               150 * time.Millisecond,
		KillWait:               50 * time.Millisecond,
		TreeKillWait:           50 * time.Millisecond,
	}
}
