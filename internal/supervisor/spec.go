package supervisor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Spec describes one external program. It is immutable for the duration of a
// launch.
type Spec struct {
	Name       string   `json:"name"`
	Executable string   `json:"executable"`
	WorkDir    string   `json:"work_dir"`
	Args       []string `json:"args,omitempty"`
	Env        []string `json:"env,omitempty"` // complete environment; nil inherits the daemon's
	StdoutPath string   `json:"stdout_path"`
	StderrPath string   `json:"stderr_path"`
}

// Validate checks that the executable is an existing regular file and the
// working directory an existing directory.
func (s Spec) Validate() error {
	if strings.TrimSpace(s.Executable) == "" {
		return errors.New("executable path is empty")
	}
	fi, err := os.Stat(s.Executable)
	if err != nil {
		return fmt.Errorf("executable %q: %w", s.Executable, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("executable %q is not a regular file", s.Executable)
	}
	if strings.TrimSpace(s.WorkDir) == "" {
		return errors.New("working directory is empty")
	}
	di, err := os.Stat(s.WorkDir)
	if err != nil {
		return fmt.Errorf("working directory %q: %w", s.WorkDir, err)
	}
	if !di.IsDir() {
		return fmt.Errorf("working directory %q is not a directory", s.WorkDir)
	}
	return nil
}

// Timings are the waits and thresholds of the supervision protocol.
type Timings struct {
	ConfirmWindow          time.Duration // wait before verifying a fresh launch
	PollInterval           time.Duration // monitor loop period
	MinRestartInterval     time.Duration // a death sooner than this after a launch is rapid
	MaxConsecutiveFailures int
	RestartGrace           time.Duration // liveness check delay after a respawn
	StopJoinTimeout        time.Duration
	TermWait               time.Duration
	KillWait               time.Duration
	TreeKillWait           time.Duration
}

func DefaultTimings() Timings {
	return Timings{
		ConfirmWindow:          5 * time.Second,
		PollInterval:           5 * time.Second,
		MinRestartInterval:     10 * time.Second,
		MaxConsecutiveFailures: 5,
		RestartGrace:           2 * time.Second,
		StopJoinTimeout:        2 * time.Second,
		TermWait:               3 * time.Second,
		KillWait:               1 * time.Second,
		TreeKillWait:           2 * time.Second,
	}
}

// Validate enforces positive values and keeps the confirm window and restart
// grace shorter than the minimum restart interval.
func (t Timings) Validate() error {
	durations := map[string]time.Duration{
		"confirm_window":       t.ConfirmWindow,
		"poll_interval":        t.PollInterval,
		"min_restart_interval": t.MinRestartInterval,
		"restart_grace":        t.RestartGrace,
		"stop_join_timeout":    t.StopJoinTimeout,
		"term_wait":            t.TermWait,
		"kill_wait":            t.KillWait,
		"tree_kill_wait":       t.TreeKillWait,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if t.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("max_consecutive_failures must be at least 1, got %d", t.MaxConsecutiveFailures)
	}
	if t.RestartGrace >= t.MinRestartInterval {
		return fmt.Errorf("restart_grace (%s) must be shorter than min_restart_interval (%s)", t.RestartGrace, t.MinRestartInterval)
	}
	if t.ConfirmWindow >= t.MinRestartInterval {
		return fmt.Errorf("confirm_window (%s) must be shorter than min_restart_interval (%s)", t.ConfirmWindow, t.MinRestartInterval)
	}
	return nil
}
