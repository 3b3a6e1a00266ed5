package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrQueueFull   = errors.New("history queue full")
	ErrQueueClosed = errors.New("history queue closed")
)

const (
	DefaultQueueSize   = 256
	DefaultSendTimeout = 2 * time.Second
)

// Queue is a Sink that hands events to a single background worker, which
// forwards them in order to every wrapped sink. Send never blocks; when the
// buffer is full the event is dropped with ErrQueueFull.
type Queue struct {
	sinks   []Sink
	log     *slog.Logger
	timeout time.Duration
	ch      chan Event
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewQueue(size int, log *slog.Logger, sinks ...Sink) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if log == nil {
		log = slog.Default()
	}
	q := &Queue{
		sinks:   sinks,
		log:     log,
		timeout: DefaultSendTimeout,
		ch:      make(chan Event, size),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Send(_ context.Context, e Event) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting events and waits until the queued ones were sent.
// It does not close the wrapped sinks.
func (q *Queue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for e := range q.ch {
		for _, s := range q.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
			if err := s.Send(ctx, e); err != nil {
				q.log.Warn("history send failed", "event", e.Type, "service", e.Record.Name, "error", err)
			}
			cancel()
		}
	}
}
