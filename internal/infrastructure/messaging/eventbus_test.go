package messaging

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schoolhub/schoolhub/internal/domain/shared"
	"github.com/schoolhub/schoolhub/pkg/logger"
)

func event(t shared.EventType, id string) shared.Event {
	return shared.EntityChanged{BaseEvent: shared.NewBaseEvent(t, id), Collection: "students"}
}

func TestSyncBus_RoutesByType(t *testing.T) {
	bus := NewInMemoryEventBus(Config{Logger: logger.Nop()})
	defer bus.Close()

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventStudentAdded, func(e shared.Event) error {
		typed = append(typed, e.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(e shared.Event) error {
		all = append(all, e.AggregateID())
		return nil
	}))

	require.NoError(t, bus.Publish(event(shared.EventStudentAdded, "s1")))
	require.NoError(t, bus.Publish(event(shared.EventEmployeeAdded, "e1")))

	assert.Equal(t, []string{"s1"}, typed)
	assert.Equal(t, []string{"s1", "e1"}, all)
}

func TestBus_HandlerFailuresAreContained(t *testing.T) {
	bus := NewInMemoryEventBus(Config{Logger: logger.Nop()})
	defer bus.Close()

	calls := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return errors.New("boom") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("handler bug") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { calls++; return nil }))

	assert.NoError(t, bus.Publish(event(shared.EventStudentAdded, "s1")))
	assert.Equal(t, 1, calls)

	stats := bus.Stats()
	assert.Equal(t, int64(2), stats.Failed)
	assert.Equal(t, int64(1), stats.Succeeded)
}

func TestAsyncBus_PreservesOrderAndDrainsOnClose(t *testing.T) {
	bus := NewInMemoryEventBus(Config{AsyncMode: true, QueueSize: 100, Logger: logger.Nop()})

	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Subscribe(shared.EventStudentUpdated, func(e shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e.AggregateID())
		return nil
	}))

	want := []string{"a", "b", "c", "d", "e"}
	for _, id := range want {
		require.NoError(t, bus.Publish(event(shared.EventStudentUpdated, id)))
	}
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, got)
}

func TestBus_Closed(t *testing.T) {
	bus := NewInMemoryEventBus(DefaultConfig())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(event(shared.EventStudentAdded, "s1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.Subscribe(shared.EventStudentAdded, func(shared.Event) error { return nil }), ErrEventBusClosed)
}

func TestBus_RejectsNil(t *testing.T) {
	bus := NewInMemoryEventBus(Config{Logger: logger.Nop()})
	defer bus.Close()

	assert.Error(t, bus.Publish(nil))
	assert.Error(t, bus.Subscribe(shared.EventStudentAdded, nil))
}
