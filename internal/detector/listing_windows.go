//go:build windows

package detector

import "strconv"

// ProcessListDetector asks the system process listing utility about pid.
// tasklist exits 0 even when nothing matches, so the PID must appear in its output.
func ProcessListDetector(pid int) CommandDetector {
	p := strconv.Itoa(pid)
	return CommandDetector{Name: "tasklist", Args: []string{"/FI", "PID eq " + p, "/NH"}, Match: p}
}
