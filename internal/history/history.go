package history

import (
	"context"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart        EventType = "start"
	EventStop         EventType = "stop"
	EventExit         EventType = "exit"
	EventRestart      EventType = "restart"
	EventCrashLoop    EventType = "crashloop"
	EventLaunchFailed EventType = "launch_failed"
)

// Record is the service state attached to an event.
type Record struct {
	Name     string `json:"name"`
	PID      int    `json:"pid"`
	Failures int    `json:"failures"`
	Detail   string `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
