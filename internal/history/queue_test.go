package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSink struct {
	gate chan struct{}
	mu   sync.Mutex
	got  []string
}

func (s *blockingSink) Send(ctx context.Context, e Event) error {
	select {
	case <-s.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	s.got = append(s.got, e.Record.Name)
	s.mu.Unlock()
	return nil
}

type failingSink struct{}

func (failingSink) Send(context.Context, Event) error { return errors.New("unreachable") }

func TestQueueSendDoesNotBlock(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{})}
	q := NewQueue(4, nil, sink, failingSink{})

	began := time.Now()
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, q.Send(context.Background(), Event{Type: EventStart, Record: Record{Name: name}}))
	}
	assert.Less(t, time.Since(began), 100*time.Millisecond)

	close(sink.gate)
	q.Close()
	assert.Equal(t, []string{"a", "b", "c"}, sink.got)
	assert.ErrorIs(t, q.Send(context.Background(), Event{}), ErrQueueClosed)
	q.Close()
}

func TestQueueDropsWhenFull(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{})}
	q := NewQueue(1, nil, sink)
	defer func() {
		close(sink.gate)
		q.Close()
	}()

	// The worker takes one event and blocks on it; one more fits the buffer.
	var full bool
	for i := 0; i < 5; i++ {
		if errors.Is(q.Send(context.Background(), Event{Record: Record{Name: "x"}}), ErrQueueFull) {
			full = true
			break
		}
	}
	assert.True(t, full)
}
