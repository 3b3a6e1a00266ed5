// Package supervisor owns the lifecycle of one external process: it launches
// and verifies it, restarts it when it dies and tears it down on request.
//
// All state is guarded by a single mutex that is never held across a wait.
// Start reports failures to its caller. The monitor loop and Stop report
// only through the logger, the event sink and the history sinks.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/svcwatch/internal/events"
	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/process"
	"github.com/loykin/svcwatch/internal/status"
)

const historyTimeout = 2 * time.Second

// Options wires a Supervisor to its collaborators. Zero values select the OS
// probe, DefaultTimings, slog.Default and a discarding event sink.
type Options struct {
	Probe   process.Probe
	Timings *Timings
	Logger  *slog.Logger
	Events  events.Sink
	History []history.Sink
}

type Supervisor struct {
	spec    Spec
	probe   process.Probe
	t       Timings
	log     *slog.Logger
	events  events.Sink
	history []history.Sink

	mu        sync.Mutex
	running   bool
	handle    process.Handle
	lastStart time.Time
	failures  int
	// counted is set once the rapid death of the current launch attempt has
	// been added to failures.
	counted bool

	launching    bool
	launchCancel context.CancelFunc
	launchDone   chan struct{}

	monitorCancel context.CancelFunc
	monitorDone   chan struct{}
}

func New(spec Spec, opts Options) *Supervisor {
	s := &Supervisor{
		spec:    spec,
		probe:   opts.Probe,
		t:       DefaultTimings(),
		log:     opts.Logger,
		events:  opts.Events,
		history: append([]history.Sink(nil), opts.History...),
	}
	if s.probe == nil {
		s.probe = process.OSProbe{}
	}
	if opts.Timings != nil {
		s.t = *opts.Timings
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("service", spec.Name)
	if s.events == nil {
		s.events = events.Discard
	}
	return s
}

func (s *Supervisor) Spec() Spec { return s.spec }

// IsRunning reports whether supervision is active, regardless of whether the
// child is currently alive.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Supervisor) IsAlive() bool {
	s.mu.Lock()
	h := s.handle
	s.mu.Unlock()
	return h != nil && h.Alive()
}

// PID returns the current child's PID or -1.
func (s *Supervisor) PID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return -1
	}
	return s.handle.PID()
}

// Failures is the current consecutive rapid-failure count.
func (s *Supervisor) Failures() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

func (s *Supervisor) Snapshot() status.Snapshot { return status.Report(s) }

// emit logs msg and publishes it as an event line with the attrs appended as
// key=value pairs.
func (s *Supervisor) emit(level slog.Level, msg string, attrs ...any) {
	s.log.Log(context.Background(), level, msg, attrs...)

	line := msg
	if len(attrs) > 0 {
		var b strings.Builder
		b.WriteString(msg)
		for i := 0; i+1 < len(attrs); i += 2 {
			fmt.Fprintf(&b, " %v=%v", attrs[i], attrs[i+1])
		}
		line = b.String()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Warn("event sink panicked", "panic", r)
		}
	}()
	s.events.Publish(events.Event{Time: time.Now(), Service: s.spec.Name, Message: line})
}

func (s *Supervisor) record(typ history.EventType, pid int, detail string) {
	if len(s.history) == 0 {
		return
	}
	s.mu.Lock()
	failures := s.failures
	s.mu.Unlock()

	evt := history.Event{
		Type:       typ,
		OccurredAt: time.Now().UTC(),
		Record:     history.Record{Name: s.spec.Name, PID: pid, Failures: failures, Detail: detail},
	}
	for _, h := range s.history {
		ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		if err := h.Send(ctx, evt); err != nil {
			s.log.Warn("history send failed", "event", typ, "error", err)
		}
		cancel()
	}
}

func (s *Supervisor) spawnSpec() process.SpawnSpec {
	return process.SpawnSpec{
		Executable: s.spec.Executable,
		Args:       s.spec.Args,
		WorkDir:    s.spec.WorkDir,
		Env:        s.spec.Env,
		StdoutPath: s.spec.StdoutPath,
		StderrPath: s.spec.StderrPath,
	}
}

// dispose kills h if it is still alive and releases it.
func (s *Supervisor) dispose(h process.Handle) {
	if h == nil {
		return
	}
	if h.Alive() {
		if err := h.Kill(); err != nil {
			s.log.Warn("kill failed", "pid", h.PID(), "error", err)
		}
		h.Wait(s.t.KillWait)
	}
	h.Release()
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
