package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()

	ch, cancel := hub.Subscribe(Filter{})
	defer cancel()

	hub.Publish(Event{ChainID: "chain-1", TaskIndex: 2, Type: TaskCompleted})

	select {
	case got := <-ch:
		assert.Equal(t, "chain-1", got.ChainID)
		assert.Equal(t, 2, got.TaskIndex)
		assert.Equal(t, TaskCompleted, got.Type)
		assert.False(t, got.Timestamp.IsZero(), "publish stamps a timestamp")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestFilterByChainID(t *testing.T) {
	hub := NewMemoryHub()

	ch, cancel := hub.Subscribe(Filter{ChainID: "chain-1"})
	defer cancel()

	hub.Publish(Event{ChainID: "chain-1", Type: TaskStarted})
	hub.Publish(Event{ChainID: "chain-2", Type: TaskStarted})

	select {
	case got := <-ch:
		assert.Equal(t, "chain-1", got.ChainID)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	// Channel should be empty -- the chain-2 event was filtered out.
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestFilterByEventType(t *testing.T) {
	hub := NewMemoryHub()

	ch, cancel := hub.Subscribe(Filter{Types: []string{ChainCompleted, ChainAborted}})
	defer cancel()

	hub.Publish(Event{ChainID: "c", Type: ChainCompleted})
	hub.Publish(Event{ChainID: "c", Type: TaskStarted})
	hub.Publish(Event{ChainID: "c", Type: ChainAborted})

	var received []string
	for i := 0; i < 2; i++ {
		select {
		case got := <-ch:
			received = append(received, got.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	assert.Equal(t, []string{ChainCompleted, ChainAborted}, received)

	select {
	case evt := <-ch:
		t.Fatalf("unexpected event: %+v", evt)
	case <-time.After(50 * time.Millisecond):
		// expected
	}
}

func TestMultipleSubscribers(t *testing.T) {
	hub := NewMemoryHub()

	ch1, cancel1 := hub.Subscribe(Filter{})
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(Filter{})
	defer cancel2()

	hub.Publish(Event{ChainID: "c", Type: ChainStarted})

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, ChainStarted, got.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestCancelSubscription(t *testing.T) {
	hub := NewMemoryHub()

	ch, cancel := hub.Subscribe(Filter{})
	cancel()

	hub.Publish(Event{ChainID: "c", Type: ChainStarted})

	select {
	case evt, ok := <-ch:
		if ok {
			t.Fatalf("unexpected event after cancel: %+v", evt)
		}
	case <-time.After(50 * time.Millisecond):
		// expected: nothing delivered
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewMemoryHub()

	ch, cancel := hub.Subscribe(Filter{})
	defer cancel()

	// Overflow the subscriber buffer; the extras must be dropped, never block.
	for i := 0; i < defaultChannelBuffer+10; i++ {
		hub.Publish(Event{ChainID: "c", Type: TaskStarted})
	}

	assert.Len(t, ch, defaultChannelBuffer)
}
