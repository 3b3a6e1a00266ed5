package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/loykin/svcwatch/internal/detector"
)

// SpawnSpec is everything needed to launch one OS process.
type SpawnSpec struct {
	Executable string
	Args       []string
	WorkDir    string
	Env        []string // optional; nil inherits the parent environment
	StdoutPath string   // appended to; empty discards output
	StderrPath string   // appended to; empty discards output
}

// Handle is an exclusively owned reference to a spawned process.
type Handle interface {
	PID() int
	// Alive reports whether the process has not been reaped yet.
	Alive() bool
	// Terminate asks the process (group) to exit.
	Terminate() error
	// Kill forcefully ends the process (group).
	Kill() error
	// Wait blocks until the process exits or d elapses. It reports whether
	// the process has exited.
	Wait(d time.Duration) bool
	// StartUnix is the OS-reported start time, 0 when unknown.
	StartUnix() int64
	// ExitErr is the result of the OS wait once the process has exited.
	ExitErr() error
	// Release frees OS resources held for the process. A still-alive process
	// is killed first. Safe to call more than once.
	Release()
}

// Probe abstracts the operating system's process primitives.
type Probe interface {
	Spawn(spec SpawnSpec) (Handle, error)
	// VerifyExists checks the OS process table for pid without consulting any
	// Handle. An error means the query mechanism was unavailable.
	VerifyExists(pid int, startUnix int64) (bool, error)
	// TreeKill force-kills pid and all of its descendants.
	TreeKill(pid int) error
}

// OSProbe is the Probe backed by os/exec and the platform process table.
type OSProbe struct{}

var _ Probe = OSProbe{}

func (OSProbe) Spawn(spec SpawnSpec) (Handle, error) {
	if spec.Executable == "" {
		return nil, errors.New("empty executable")
	}
	stdout, err := openAppend(spec.StdoutPath)
	if err != nil {
		return nil, fmt.Errorf("open stdout log: %w", err)
	}
	stderr, err := openAppend(spec.StderrPath)
	if err != nil {
		_ = stdout.Close()
		return nil, fmt.Errorf("open stderr log: %w", err)
	}

	// #nosec G204 -- executing the configured service is the purpose of this package
	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Dir = spec.WorkDir
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, err
	}
	h := &osHandle{
		cmd:      cmd,
		pid:      cmd.Process.Pid,
		waitDone: make(chan struct{}),
		files:    []*os.File{stdout, stderr},
	}
	h.startUnix = detector.ProcStartUnix(h.pid)
	go h.reap()
	return h, nil
}

func (OSProbe) VerifyExists(pid int, startUnix int64) (bool, error) {
	ok, _, err := detector.First(
		detector.ProcessTableDetector{PID: pid, StartUnix: startUnix},
		detector.ProcessListDetector(pid),
	)
	return ok, err
}

func (OSProbe) TreeKill(pid int) error { return treeKill(pid) }

// openAppend opens path for appending, creating parent directories. An empty
// path yields the null device.
func openAppend(path string) (*os.File, error) {
	if path == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	// #nosec G304 -- log path is resolved by the registry from trusted settings
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
}
