package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherDeliversToSubscribers(t *testing.T) {
	d := NewInMemoryDispatcher()

	var got []Event
	d.Subscribe(EventSessionCreated, func(_ context.Context, e Event) error {
		got = append(got, e)
		return nil
	})
	d.Subscribe(EventSessionRevoked, func(context.Context, Event) error {
		t.Fatal("wrong subscriber called")
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventSessionCreated, UserID: "u1"}))
	require.Len(t, got, 1)
	assert.Equal(t, "u1", got[0].UserID)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestDispatcherRunsAllHandlersAndJoinsErrors(t *testing.T) {
	d := NewInMemoryDispatcher()
	boom := errors.New("boom")

	calls := 0
	d.Subscribe(EventLoginFailed, func(context.Context, Event) error {
		calls++
		return boom
	})
	d.Subscribe(EventLoginFailed, func(context.Context, Event) error {
		calls++
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventLoginFailed})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}
