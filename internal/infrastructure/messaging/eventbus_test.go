package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
)

func quietLog() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

func TestInMemoryEventBus_DeliversToSubscriber(t *testing.T) {
	bus := NewInMemoryEventBus(4, quietLog())

	var mu sync.Mutex
	var got []shared.EventType
	err := bus.Subscribe(shared.EventMilestoneCrossed, func(event shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.EventType())
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewMilestoneCrossedEvent("user1", 7, 7)))
	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("user1", 7, 3)))

	// Close waits for in-flight handlers, so assertions after it are stable.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []shared.EventType{shared.EventMilestoneCrossed}, got,
		"only the subscribed type is delivered")

	metrics := bus.Metrics()
	assert.Equal(t, int64(2), metrics["published"])
	assert.Equal(t, int64(1), metrics["delivered"])
}

func TestInMemoryEventBus_SubscribeAll(t *testing.T) {
	bus := NewInMemoryEventBus(4, quietLog())

	var count sync.WaitGroup
	count.Add(2)
	err := bus.SubscribeAll(func(event shared.Event) error {
		count.Done()
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewMilestoneCrossedEvent("user1", 7, 7)))
	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("user2", 3, 2)))

	count.Wait()
	require.NoError(t, bus.Close())
}

func TestInMemoryEventBus_RejectsNilHandlerAndEvent(t *testing.T) {
	bus := NewInMemoryEventBus(1, quietLog())

	assert.Error(t, bus.Subscribe(shared.EventMilestoneCrossed, nil))
	assert.Error(t, bus.SubscribeAll(nil))
	assert.Error(t, bus.Publish(nil))
}

func TestInMemoryEventBus_DropsAfterClose(t *testing.T) {
	bus := NewInMemoryEventBus(1, quietLog())
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close(), "double close is a no-op")

	err := bus.Publish(shared.NewMilestoneCrossedEvent("user1", 7, 7))
	assert.Error(t, err)
	assert.Equal(t, int64(1), bus.Metrics()["dropped"])
}

func TestInMemoryEventBus_HandlerPanicIsContained(t *testing.T) {
	bus := NewInMemoryEventBus(1, quietLog())

	require.NoError(t, bus.Subscribe(shared.EventStreakBroken, func(shared.Event) error {
		panic("boom")
	}))

	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("user1", 5, 2)))
	require.NoError(t, bus.Close())

	assert.Equal(t, int64(1), bus.Metrics()["handler_errors"])
}

func TestDispatcher_DeadLettersExhaustedHandler(t *testing.T) {
	bus := NewInMemoryEventBus(1, quietLog())
	d := NewDispatcher(bus, quietLog(), RecoveryMiddleware())

	attempts := 0
	err := d.Register(HandlerRegistration{
		Name:      "always_fails",
		EventType: shared.EventMilestoneCrossed,
		Handler: func(shared.Event) error {
			attempts++
			return retry.Retryable(errors.New("downstream unavailable"))
		},
		Retrier: retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(2*time.Millisecond),
		),
	})
	require.NoError(t, err)

	require.NoError(t, bus.Publish(shared.NewMilestoneCrossedEvent("user1", 7, 7)))
	require.NoError(t, bus.Close())

	assert.Equal(t, 3, attempts)

	letters := d.DeadLetters().All()
	require.Len(t, letters, 1)
	assert.Equal(t, "always_fails", letters[0].HandlerName)
	assert.Equal(t, shared.EventMilestoneCrossed, letters[0].EventType)
	assert.Equal(t, "user1", letters[0].AggregateID)

	metrics := d.Metrics()
	assert.Equal(t, int64(1), metrics["dispatched"])
	assert.Equal(t, int64(1), metrics["dead_letters"])
	// Bus-side delivery still succeeds; failures stay inside the dispatcher.
	assert.Equal(t, int64(1), bus.Metrics()["delivered"])
}

func TestDispatcher_RecoveryMiddlewareTurnsPanicIntoDeadLetter(t *testing.T) {
	bus := NewInMemoryEventBus(1, quietLog())
	d := NewDispatcher(bus, quietLog(), RecoveryMiddleware())

	require.NoError(t, d.Register(HandlerRegistration{
		Name:      "panics",
		EventType: shared.EventStreakBroken,
		Handler:   func(shared.Event) error { panic("boom") },
	}))

	require.NoError(t, bus.Publish(shared.NewStreakBrokenEvent("user1", 9, 4)))
	require.NoError(t, bus.Close())

	require.Equal(t, 1, d.DeadLetters().Len())
	assert.Contains(t, d.DeadLetters().All()[0].Error, "panic")
}

// loopbackPubSub echoes every published message straight back into the
// subscribed handler, the worst case for a process hearing its own mirror.
type loopbackPubSub struct {
	mu      sync.Mutex
	handler func(payload string)
}

func (p *loopbackPubSub) Publish(_ context.Context, _ string, message interface{}) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	p.mu.Lock()
	handler := p.handler
	p.mu.Unlock()
	if handler != nil {
		handler(string(data))
	}
	return nil
}

func (p *loopbackPubSub) SubscribeHandler(_ context.Context, _ string, handler func(payload string)) error {
	p.mu.Lock()
	p.handler = handler
	p.mu.Unlock()
	return nil
}

func TestRedisEventBus_SkipsOwnMirroredMessages(t *testing.T) {
	local := NewInMemoryEventBus(1, quietLog())
	pubsub := &loopbackPubSub{}
	bus := NewRedisEventBus(pubsub, local, "test-channel", quietLog())
	require.NoError(t, bus.Start())

	var mu sync.Mutex
	deliveries := 0
	require.NoError(t, bus.Subscribe(shared.EventMilestoneCrossed, func(shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		deliveries++
		return nil
	}))

	require.NoError(t, bus.Publish(shared.NewMilestoneCrossedEvent("user1", 7, 7)))
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, deliveries, "the echoed envelope must not double local delivery")
}

func TestRedisEventBus_DeliversForeignMessages(t *testing.T) {
	local := NewInMemoryEventBus(1, quietLog())
	pubsub := &loopbackPubSub{}
	bus := NewRedisEventBus(pubsub, local, "test-channel", quietLog())
	require.NoError(t, bus.Start())

	var mu sync.Mutex
	var got []string
	require.NoError(t, bus.Subscribe(shared.EventMilestoneCrossed, func(event shared.Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, event.AggregateID())
		return nil
	}))

	env := eventEnvelope{
		Type:        shared.EventMilestoneCrossed,
		AggregateID: "user2",
		OccurredAt:  time.Now().UTC(),
		Origin:      "another-instance",
		Payload:     map[string]interface{}{"user_id": "user2", "milestone": 7},
	}
	data, err := json.Marshal(env)
	require.NoError(t, err)
	pubsub.handler(string(data))

	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"user2"}, got)
}

func TestDeadLetterQueue_BoundedCapacity(t *testing.T) {
	q := NewDeadLetterQueue(2)
	for i := 0; i < 5; i++ {
		q.Add(DeadLetter{HandlerName: "h", Error: "e", FailedAt: time.Now()})
	}
	assert.Equal(t, 2, q.Len())
}
