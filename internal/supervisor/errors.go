package supervisor

import (
	"errors"
	"fmt"
)

var (
	ErrConfigInvalid            = errors.New("invalid service configuration")
	ErrSpawnFailed              = errors.New("failed to spawn process")
	ErrLaunchVerificationFailed = errors.New("launch verification failed")
	ErrAlreadyRunning           = errors.New("service is already running")
	ErrLaunchAborted            = errors.New("launch aborted")

	// Reported through events and history only.
	ErrCrashLoop           = errors.New("crash loop detected")
	ErrEscalationExhausted = errors.New("termination escalation exhausted")
)

// LaunchError describes why Start failed. Kind is one of ErrConfigInvalid,
// ErrSpawnFailed or ErrLaunchVerificationFailed.
type LaunchError struct {
	Kind    error
	Reason  string
	Detail  string // stderr tail, when one was read
	LogPath string // stderr log of the failed launch
	PID     int
	Err     error
}

func (e *LaunchError) Error() string {
	msg := e.Kind.Error() + ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Detail != "" {
		msg += fmt.Sprintf(" (stderr: %s)", e.Detail)
	}
	if e.LogPath != "" {
		msg += fmt.Sprintf(", see %s", e.LogPath)
	}
	return msg
}

func (e *LaunchError) Is(target error) bool { return target == e.Kind }

func (e *LaunchError) Unwrap() error { return e.Err }
