package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loykin/svcwatch/internal/history"
	"github.com/loykin/svcwatch/internal/process"
)

// Start launches the process and verifies it. It blocks for the confirm
// window and returns nil only when the process passed every check, after
// which the monitor loop owns it. On any error no process is left behind and
// Start may be called again.
//
// Cancelling ctx, or calling Stop, while Start waits aborts the launch with
// ErrLaunchAborted.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running || s.launching {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	lctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.launching = true
	s.launchCancel = cancel
	s.launchDone = done
	s.mu.Unlock()

	err := s.launch(lctx)

	s.mu.Lock()
	s.launching = false
	s.launchCancel = nil
	s.launchDone = nil
	s.mu.Unlock()
	cancel()
	close(done)
	return err
}

func (s *Supervisor) launch(ctx context.Context) error {
	if err := s.spec.Validate(); err != nil {
		s.emit(slog.LevelError, "invalid configuration", "error", err)
		return &LaunchError{Kind: ErrConfigInvalid, Reason: "configuration check failed", Err: err}
	}

	// Only what this launch writes to the error log is scanned.
	logStart := logSize(s.spec.StderrPath)
	h, err := s.probe.Spawn(s.spawnSpec())
	if err != nil {
		s.emit(slog.LevelError, "spawn failed", "executable", s.spec.Executable, "error", err)
		return &LaunchError{Kind: ErrSpawnFailed, Reason: "could not create process", LogPath: s.spec.StderrPath, Err: err}
	}
	pid := h.PID()

	s.mu.Lock()
	if ctx.Err() != nil {
		s.mu.Unlock()
		s.dispose(h)
		return s.aborted(ctx, pid)
	}
	prev := s.handle
	s.handle = h
	s.running = true
	s.lastStart = time.Now()
	s.failures = 0
	s.counted = false
	s.mu.Unlock()
	if prev != nil {
		s.dispose(prev)
	}

	s.emit(slog.LevelInfo, "process spawned, verifying", "pid", pid, "window", s.t.ConfirmWindow)
	if !sleep(ctx, s.t.ConfirmWindow) {
		s.abandon(h)
		return s.aborted(ctx, pid)
	}

	if !h.Alive() {
		reason := "process exited during the confirm window"
		if exitErr := h.ExitErr(); exitErr != nil {
			reason += " (" + exitErr.Error() + ")"
		}
		return s.fail(h, reason, logStart)
	}

	exists, err := s.probe.VerifyExists(pid, h.StartUnix())
	if err != nil {
		s.emit(slog.LevelWarn, "process table query unavailable, falling back to handle liveness", "pid", pid, "error", err)
		exists = h.Alive()
	}
	if !exists {
		return s.fail(h, fmt.Sprintf("PID %d not found in the process table", pid), logStart)
	}

	if tail := readTailFrom(s.spec.StderrPath, logStart); hasBindConflict(tail) {
		return s.fail(h, "port or address conflict reported in the error log", logStart)
	}

	s.mu.Lock()
	if ctx.Err() != nil || !s.running || s.handle != h {
		s.mu.Unlock()
		s.abandon(h)
		return s.aborted(ctx, pid)
	}
	if s.monitorCancel != nil {
		s.monitorCancel()
	}
	mctx, mcancel := context.WithCancel(context.Background())
	mdone := make(chan struct{})
	s.monitorCancel = mcancel
	s.monitorDone = mdone
	s.mu.Unlock()

	go s.monitor(mctx, mdone)

	s.emit(slog.LevelInfo, "process started and verified", "pid", pid)
	s.record(history.EventStart, pid, "")
	return nil
}

// abandon detaches h from the supervisor, clears running and disposes of h.
func (s *Supervisor) abandon(h process.Handle) {
	s.mu.Lock()
	if s.handle == h {
		s.handle = nil
	}
	s.running = false
	s.mu.Unlock()
	s.dispose(h)
}

func (s *Supervisor) fail(h process.Handle, reason string, logStart int64) error {
	pid := h.PID()
	s.abandon(h)
	detail := readTailFrom(s.spec.StderrPath, logStart)
	s.emit(slog.LevelError, "launch verification failed", "pid", pid, "reason", reason, "log", s.spec.StderrPath)
	s.record(history.EventLaunchFailed, pid, reason)
	return &LaunchError{
		Kind:    ErrLaunchVerificationFailed,
		Reason:  reason,
		Detail:  detail,
		LogPath: s.spec.StderrPath,
		PID:     pid,
	}
}

func (s *Supervisor) aborted(ctx context.Context, pid int) error {
	s.emit(slog.LevelWarn, "launch aborted", "pid", pid)
	if cause := context.Cause(ctx); cause != nil && cause != context.Canceled {
		return fmt.Errorf("%w: %w", ErrLaunchAborted, cause)
	}
	return ErrLaunchAborted
}
