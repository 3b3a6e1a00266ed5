package process

import (
	"os"
	"os/exec"
	"sync"
	"time"
)

type osHandle struct {
	cmd       *exec.Cmd
	pid       int
	startUnix int64
	waitDone  chan struct{} // closed by reap when cmd.Wait returns

	mu      sync.Mutex
	exitErr error
	files   []*os.File
	release sync.Once
}

// reap is the single waiter on cmd. Nobody else calls cmd.Wait.
func (h *osHandle) reap() {
	err := h.cmd.Wait()
	h.mu.Lock()
	h.exitErr = err
	h.mu.Unlock()
	close(h.waitDone)
}

func (h *osHandle) PID() int { return h.pid }

func (h *osHandle) StartUnix() int64 { return h.startUnix }

func (h *osHandle) Alive() bool {
	select {
	case <-h.waitDone:
		return false
	default:
		return true
	}
}

func (h *osHandle) Wait(d time.Duration) bool {
	if d <= 0 {
		return !h.Alive()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-h.waitDone:
		return true
	case <-t.C:
		return false
	}
}

func (h *osHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *osHandle) Terminate() error {
	if !h.Alive() {
		return nil
	}
	return terminate(h.cmd)
}

func (h *osHandle) Kill() error {
	if !h.Alive() {
		return nil
	}
	return kill(h.cmd)
}

func (h *osHandle) Release() {
	h.release.Do(func() {
		if h.Alive() {
			_ = kill(h.cmd)
			h.Wait(200 * time.Millisecond)
		}
		h.mu.Lock()
		files := h.files
		h.files = nil
		h.mu.Unlock()
		for _, f := range files {
			_ = f.Close()
		}
	})
}
