// Package events carries the human-readable lifecycle lines that supervisors
// emit. Both the REST layer and the terminal dashboard subscribe to a Bus.
package events

import (
	"fmt"
	"sync"
	"time"
)

const timeLayout = "2006-01-02 15:04:05"

// Event is one timestamped line about a service.
type Event struct {
	Time    time.Time `json:"time"`
	Service string    `json:"service,omitempty"`
	Message string    `json:"message"`
}

// String renders the event the way it is shown to operators:
// "2006-01-02 15:04:05 | [name] message".
func (e Event) String() string {
	if e.Service == "" {
		return fmt.Sprintf("%s | %s", e.Time.Format(timeLayout), e.Message)
	}
	return fmt.Sprintf("%s | [%s] %s", e.Time.Format(timeLayout), e.Service, e.Message)
}

// Sink receives events. Implementations must not block and must not panic.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// DefaultRecent is how many events a Bus keeps for late subscribers.
const DefaultRecent = 500

// Bus fans events out to subscribers. A subscriber whose buffer is full
// misses the event; Publish never waits.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	ring   []Event
	head   int
	full   bool
}

// NewBus returns a Bus that remembers the last recent events. recent <= 0
// selects DefaultRecent.
func NewBus(recent int) *Bus {
	if recent <= 0 {
		recent = DefaultRecent
	}
	return &Bus{subs: make(map[int]chan Event), ring: make([]Event, recent)}
}

var _ Sink = (*Bus)(nil)

func (b *Bus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ring[b.head] = e
	b.head = (b.head + 1) % len(b.ring)
	if b.head == 0 {
		b.full = true
	}
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe registers a new subscriber with the given channel buffer. The
// returned cancel function unregisters it and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Recent returns up to n of the most recent events, oldest first. n <= 0
// returns everything retained.
func (b *Bus) Recent(n int) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := b.head
	if b.full {
		size = len(b.ring)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]Event, 0, n)
	start := b.head - n
	if start < 0 {
		start += len(b.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, b.ring[(start+i)%len(b.ring)])
	}
	return out
}
