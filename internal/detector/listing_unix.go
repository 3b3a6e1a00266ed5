//go:build !windows

package detector

import "strconv"

// ProcessListDetector asks the system process listing utility about pid.
func ProcessListDetector(pid int) CommandDetector {
	return CommandDetector{Name: "ps", Args: []string{"-p", strconv.Itoa(pid)}}
}
