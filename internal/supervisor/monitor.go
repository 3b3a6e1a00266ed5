package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/process"
)

// monitor polls the child every PollInterval and respawns it when it dies.
// It exits when ctx is cancelled, when running is cleared, or after
// MaxConsecutiveFailures rapid deaths in a row.
func (s *Supervisor) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)
	first := true

	for {
		if !sleep(ctx, s.t.PollInterval) {
			return
		}

		s.mu.Lock()
		if !s.running || ctx.Err() != nil {
			s.mu.Unlock()
			return
		}
		h := s.handle
		if h != nil && h.Alive() {
			if s.failures > 0 {
				s.failures = 0
				s.mu.Unlock()
				s.emit(slog.LevelInfo, "process healthy, failure count reset", "pid", h.PID())
				continue
			}
			s.mu.Unlock()
			continue
		}

		elapsed := time.Since(s.lastStart)
		alreadyCounted := s.counted
		rapid := !first && elapsed < s.t.MinRestartInterval
		if rapid {
			if !alreadyCounted {
				s.failures++
				s.counted = true
			}
		} else {
			s.failures = 0
		}
		failures := s.failures
		s.mu.Unlock()
		first = false

		pid := -1
		if h != nil {
			pid = h.PID()
		}
		if !alreadyCounted {
			s.emit(slog.LevelWarn, "process exited", "pid", pid, "uptime", elapsed.Round(time.Millisecond))
			s.record(history.EventExit, pid, "")
		}

		if rapid {
			s.emit(slog.LevelWarn, "process exited shortly after launch", "failures", failures, "max", s.t.MaxConsecutiveFailures)
			if failures >= s.t.MaxConsecutiveFailures {
				s.crashLoop(h, failures)
				return
			}
			backoff := min(s.t.MinRestartInterval-elapsed, s.t.MinRestartInterval)
			if !sleep(ctx, backoff) {
				return
			}
		} else {
			s.emit(slog.LevelInfo, "restarting process")
		}

		s.respawn(ctx)
	}
}

// crashLoop ends supervision after repeated rapid deaths.
func (s *Supervisor) crashLoop(h process.Handle, failures int) {
	s.mu.Lock()
	s.running = false
	if s.handle == h {
		s.handle = nil
	}
	s.mu.Unlock()
	if h != nil {
		h.Release()
	}
	s.emit(slog.LevelError, ErrCrashLoop.Error()+", auto-restart disabled until the next start", "failures", failures)
	s.record(history.EventCrashLoop, -1, ErrCrashLoop.Error())
}

// respawn replaces the dead child with a new one and checks it once after
// RestartGrace.
func (s *Supervisor) respawn(ctx context.Context) {
	s.mu.Lock()
	if !s.running || ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	old := s.handle
	s.handle = nil
	s.mu.Unlock()
	s.dispose(old)

	h, err := s.probe.Spawn(s.spawnSpec())
	now := time.Now()

	s.mu.Lock()
	s.lastStart = now
	if err != nil {
		s.failures++
		s.counted = true
		failures := s.failures
		s.mu.Unlock()
		s.emit(slog.LevelError, "restart failed", "error", err, "failures", failures)
		return
	}
	if !s.running || ctx.Err() != nil {
		s.mu.Unlock()
		s.dispose(h)
		return
	}
	s.handle = h
	s.counted = false
	s.mu.Unlock()

	pid := h.PID()
	s.emit(slog.LevelInfo, "process restarted", "pid", pid)
	s.record(history.EventRestart, pid, "")

	if !sleep(ctx, s.t.RestartGrace) {
		return
	}

	alive := h.Alive()
	s.mu.Lock()
	if s.handle != h {
		s.mu.Unlock()
		return
	}
	if !alive {
		s.failures++
		s.counted = true
		failures := s.failures
		s.mu.Unlock()
		s.emit(slog.LevelWarn, "restarted process exited within the grace window", "pid", pid, "failures", failures)
		s.record(history.EventExit, pid, "exited within restart grace")
		return
	}
	reset := s.failures > 0
	s.failures = 0
	s.mu.Unlock()
	if reset {
		s.emit(slog.LevelInfo, "restarted process is running, failure count reset", "pid", pid)
	}
}
