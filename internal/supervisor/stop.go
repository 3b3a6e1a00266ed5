package supervisor

import (
	"log/slog"
	"time"

	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/process"
)

// Stop ends supervision and tears the process down: graceful termination,
// then a forceful kill, then a process tree kill. It aborts an in-flight
// Start and joins the monitor loop before touching the process. Stop never
// fails and calling it again is a no-op.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	active := s.running || s.launching || s.handle != nil
	s.running = false
	s.failures = 0
	s.counted = false
	launchCancel, launchDone := s.launchCancel, s.launchDone
	monitorCancel, monitorDone := s.monitorCancel, s.monitorDone
	s.monitorCancel, s.monitorDone = nil, nil
	s.mu.Unlock()

	if launchCancel != nil {
		launchCancel()
		<-launchDone
	}

	if monitorCancel != nil {
		monitorCancel()
		t := time.NewTimer(s.t.StopJoinTimeout)
		select {
		case <-monitorDone:
		case <-t.C:
			s.log.Warn("monitor loop did not exit in time", "timeout", s.t.StopJoinTimeout)
		}
		t.Stop()
	}

	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h == nil {
		if active {
			s.emit(slog.LevelInfo, "service stopped")
		}
		return
	}
	pid := h.PID()
	s.terminate(h)
	s.emit(slog.LevelInfo, "service stopped", "pid", pid)
	s.record(history.EventStop, pid, "")
}

func (s *Supervisor) terminate(h process.Handle) {
	defer h.Release()
	pid := h.PID()
	if !h.Alive() {
		s.log.Debug("process already exited", "pid", pid)
		return
	}

	s.emit(slog.LevelInfo, "sending graceful termination", "pid", pid)
	if err := h.Terminate(); err != nil {
		s.log.Warn("terminate failed", "pid", pid, "error", err)
	}
	if h.Wait(s.t.TermWait) {
		return
	}

	s.emit(slog.LevelWarn, "process ignored termination, killing", "pid", pid, "waited", s.t.TermWait)
	if err := h.Kill(); err != nil {
		s.log.Warn("kill failed", "pid", pid, "error", err)
	}
	if h.Wait(s.t.KillWait) {
		return
	}

	s.emit(slog.LevelError, ErrEscalationExhausted.Error()+", killing process tree", "pid", pid)
	if err := s.probe.TreeKill(pid); err != nil {
		s.log.Warn("tree kill failed", "pid", pid, "error", err)
	}
	if !h.Wait(s.t.TreeKillWait) {
		s.emit(slog.LevelError, "process still alive after tree kill", "pid", pid)
	}
}
