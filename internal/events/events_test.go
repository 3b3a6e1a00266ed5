package events

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventString(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 5, 7, 0, time.UTC)
	assert.Equal(t, "2024-03-01 09:05:07 | [web] started", Event{Time: ts, Service: "web", Message: "started"}.String())
	assert.Equal(t, "2024-03-01 09:05:07 | ready", Event{Time: ts, Message: "ready"}.String())
}

func TestBusFanOut(t *testing.T) {
	b := NewBus(10)
	a, cancelA := b.Subscribe(4)
	defer cancelA()
	c, cancelC := b.Subscribe(4)
	defer cancelC()

	b.Publish(Event{Service: "x", Message: "hello"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, "hello", e.Message)
			assert.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBus(10)
	ch, cancel := b.Subscribe(1)
	defer cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(Event{Message: fmt.Sprint(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Equal(t, "0", (<-ch).Message)
}

func TestBusCancelClosesChannel(t *testing.T) {
	b := NewBus(4)
	ch, cancel := b.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
	b.Publish(Event{Message: "after"})
}

func TestBusRecentWraps(t *testing.T) {
	b := NewBus(3)
	assert.Empty(t, b.Recent(0))
	for i := 1; i <= 5; i++ {
		b.Publish(Event{Message: fmt.Sprint(i)})
	}
	got := b.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"3", "4", "5"}, []string{got[0].Message, got[1].Message, got[2].Message})

	last := b.Recent(2)
	require.Len(t, last, 2)
	assert.Equal(t, "4", last[0].Message)
	assert.Equal(t, "5", last[1].Message)
}

func TestBusRecentPartial(t *testing.T) {
	b := NewBus(5)
	b.Publish(Event{Message: "a"})
	b.Publish(Event{Message: "b"})
	got := b.Recent(10)
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Message)
}
