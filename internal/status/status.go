// Package status derives the display status of a supervised service.
package status

import (
	"strconv"
	"strings"
)

// State is the display state of one service.
type State string

const (
	NotStarted    State = "not_started"
	Starting      State = "starting"
	Running       State = "running"
	ProcessExited State = "process_exited"
	Stopped       State = "stopped"
)

// Label is the short human form used in tables.
func (s State) Label() string {
	switch s {
	case NotStarted:
		return "Not Started"
	case ProcessExited:
		return "Process Exited"
	case "":
		return ""
	}
	return strings.ToUpper(string(s[:1])) + string(s[1:])
}

// Snapshot is a point-in-time status. PID is set only for Running.
type Snapshot struct {
	State State `json:"state"`
	PID   int   `json:"pid,omitempty"`
}

func (s Snapshot) String() string {
	if s.State == Running && s.PID > 0 {
		return s.State.Label() + " (PID: " + strconv.Itoa(s.PID) + ")"
	}
	return s.State.Label()
}

// Observed is what a supervisor exposes to the reporter.
type Observed interface {
	IsRunning() bool
	IsAlive() bool
	PID() int
}

// Report maps observable supervisor state to a Snapshot. A nil o means no
// supervisor exists. Report has no side effects.
func Report(o Observed) Snapshot {
	if o == nil {
		return Snapshot{State: NotStarted}
	}
	if o.IsAlive() {
		return Snapshot{State: Running, PID: o.PID()}
	}
	if o.IsRunning() {
		return Snapshot{State: ProcessExited}
	}
	return Snapshot{State: Stopped}
}
