package detector

import (
	"fmt"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessTableDetector looks a PID up in the OS process table.
// When StartUnix is non-zero, a live process whose start time differs is
// reported as not alive: the PID has been reused by someone else.
type ProcessTableDetector struct {
	PID       int
	StartUnix int64
}

func (d ProcessTableDetector) Alive() (bool, error) {
	if d.PID <= 0 {
		return false, nil
	}
	ok, err := gopsproc.PidExists(int32(d.PID))
	if err != nil {
		return false, fmt.Errorf("process table lookup for pid %d: %w", d.PID, err)
	}
	if !ok || isZombie(d.PID) {
		return false, nil
	}
	if d.StartUnix > 0 {
		cur := ProcStartUnix(d.PID)
		if cur > 0 && absDiff(cur, d.StartUnix) > 1 {
			return false, nil
		}
	}
	return true, nil
}

func (d ProcessTableDetector) Describe() string { return fmt.Sprintf("proctable:%d", d.PID) }

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
