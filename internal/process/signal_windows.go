//go:build windows

package process

import (
	"os/exec"
	"strconv"
	"syscall"
	"time"
)

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

// terminate asks the process to close through taskkill without /F.
func terminate(cmd *exec.Cmd) error {
	return runTaskkill(2*time.Second, "/PID", strconv.Itoa(cmd.Process.Pid))
}

func kill(cmd *exec.Cmd) error { return cmd.Process.Kill() }

func treeKill(pid int) error {
	if pid <= 0 {
		return nil
	}
	return runTaskkill(2*time.Second, "/F", "/T", "/PID", strconv.Itoa(pid))
}

func runTaskkill(timeout time.Duration, args ...string) error {
	// #nosec G204 -- fixed system utility with numeric arguments
	c := exec.Command("taskkill", args...)
	if err := c.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- c.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		_ = c.Process.Kill()
		return <-done
	}
}
