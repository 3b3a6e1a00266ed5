//go:build !windows

package process

import (
	"errors"
	"os/exec"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// configureSysProcAttr places the child in its own process group so that
// signals reach everything it forks.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) error { return signalGroup(cmd.Process.Pid, syscall.SIGTERM) }

func kill(cmd *exec.Cmd) error { return signalGroup(cmd.Process.Pid, syscall.SIGKILL) }

// signalGroup signals the process group led by pid, falling back to the
// single process when the group is gone.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if err == nil {
		return nil
	}
	if errors.Is(err, syscall.ESRCH) {
		err = syscall.Kill(pid, sig)
		if errors.Is(err, syscall.ESRCH) {
			return nil
		}
	}
	return err
}

// treeKill walks the descendants of pid through the process table and kills
// them leaves first, then the group and the root itself.
func treeKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	var errs []error
	if root, err := gopsproc.NewProcess(int32(pid)); err == nil {
		errs = append(errs, killDescendants(root)...)
	}
	if err := signalGroup(pid, syscall.SIGKILL); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func killDescendants(p *gopsproc.Process) []error {
	children, err := p.Children()
	if err != nil {
		// ErrorNoChildren is the common case
		return nil
	}
	var errs []error
	for _, c := range children {
		errs = append(errs, killDescendants(c)...)
		if err := c.Kill(); err != nil && !errors.Is(err, syscall.ESRCH) {
			errs = append(errs, err)
		}
	}
	return errs
}
