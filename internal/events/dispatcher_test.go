package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRoutesByType(t *testing.T) {
	d := NewInMemoryDispatcher()

	var created, resolved int
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		created++
		return nil
	})
	d.Subscribe(EventTicketResolved, func(ctx context.Context, e Event) error {
		resolved++
		return nil
	})

	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketCreated}))
	require.NoError(t, d.Publish(context.Background(), Event{Type: EventTicketClosed}))

	assert.Equal(t, 2, created)
	assert.Equal(t, 0, resolved)
}

func TestDispatcherSwallowsHandlerErrors(t *testing.T) {
	d := NewInMemoryDispatcher()

	var reached bool
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		return errors.New("handler exploded")
	})
	d.Subscribe(EventTicketCreated, func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	err := d.Publish(context.Background(), Event{Type: EventTicketCreated})
	assert.NoError(t, err, "publication is best-effort")
	assert.True(t, reached, "later handlers still run after a failure")
}

func TestSubscribeAllCoversEveryType(t *testing.T) {
	d := NewInMemoryDispatcher()

	seen := make(map[EventType]int)
	SubscribeAll(d, func(ctx context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})

	for _, eventType := range All() {
		require.NoError(t, d.Publish(context.Background(), Event{Type: eventType}))
	}
	for _, eventType := range All() {
		assert.Equal(t, 1, seen[eventType], string(eventType))
	}
}
