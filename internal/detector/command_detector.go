package detector

import (
	"bytes"
	"errors"
	"os/exec"
	"strings"
)

// CommandDetector runs an external command that succeeds if the process is
// running. When Match is set, the command's stdout must also contain it.
type CommandDetector struct {
	Name  string
	Args  []string
	Match string
}

func (d CommandDetector) Alive() (bool, error) {
	// #nosec G204 -- fixed system utility, arguments are numeric PIDs
	cmd := exec.Command(d.Name, d.Args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = nil
	err := cmd.Run()
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			// non-zero exit code means not alive
			return false, nil
		}
		return false, err
	}
	if d.Match != "" {
		return strings.Contains(out.String(), d.Match), nil
	}
	return true, nil
}

func (d CommandDetector) Describe() string {
	return "cmd:" + strings.TrimSpace(d.Name+" "+strings.Join(d.Args, " "))
}
