package monitor

import (
	"testing"
	"time"

	"github.com/harun/clevent/pkg/commandqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan StatusEvent) StatusEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return StatusEvent{}
	}
}

func TestHub_ObserveUserCommand(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	events, cancel := hub.Subscribe(8)
	defer cancel()

	c := commandqueue.NewUserCommand(nil)
	defer c.Release()

	require.NoError(t, hub.Observe("gate", c))

	// Submitted is already reached and reported synchronously.
	first := receive(t, events)
	assert.Equal(t, "gate", first.Command)
	assert.Equal(t, c.ID(), first.CommandID)
	assert.Equal(t, "submitted", first.Threshold)
	assert.Empty(t, first.Queue)

	require.NoError(t, c.SetUserStatus(commandqueue.StatusOutOfResources))

	second := receive(t, events)
	third := receive(t, events)
	assert.Equal(t, "running", second.Threshold)
	assert.Equal(t, "complete", third.Threshold)
	assert.Equal(t, int(commandqueue.StatusOutOfResources), third.Code)
	assert.Equal(t, "out_of_resources", third.Status)

	assert.Less(t, first.Seq, second.Seq)
	assert.Less(t, second.Seq, third.Seq)
}

func TestHub_SubscribeCancel(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	events, cancel := hub.Subscribe(1)
	cancel()
	cancel()

	_, open := <-events
	assert.False(t, open)

	hub.Publish(StatusEvent{Command: "x"})
}

func TestHub_FullSubscriberDropsEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	events, cancel := hub.Subscribe(1)
	defer cancel()

	hub.Publish(StatusEvent{Command: "a"})
	hub.Publish(StatusEvent{Command: "b"})

	ev := receive(t, events)
	assert.Equal(t, "a", ev.Command)
	select {
	case extra := <-events:
		t.Fatalf("unexpected event %+v", extra)
	default:
	}
}

func TestClientRegistry(t *testing.T) {
	r := NewClientRegistry()
	r.Add(&Client{ID: "a"})
	r.Add(&Client{ID: "b"})
	assert.Equal(t, 2, r.Count())
	assert.Len(t, r.GetAll(), 2)

	r.Remove("a")
	assert.Equal(t, 1, r.Count())
}
