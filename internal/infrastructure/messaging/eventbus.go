// Package messaging provides the in-process event bus and the dispatcher
// that routes domain events to registered handlers with retry, recovery,
// and dead-letter capture.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to subscribers through a bounded worker
// pool. Delivery is at-least-once and asynchronous: Publish never blocks on
// handler execution, only on worker availability.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	workers     chan struct{}
	wg          sync.WaitGroup
	closed      atomic.Bool
	log         *logger.Logger
	metrics     EventBusMetrics
}

// EventBusMetrics counts bus activity. All fields are atomic.
type EventBusMetrics struct {
	Published     atomic.Int64
	Delivered     atomic.Int64
	HandlerErrors atomic.Int64
	Dropped       atomic.Int64
}

// NewInMemoryEventBus creates a bus with the given worker pool size.
func NewInMemoryEventBus(workerCount int, log *logger.Logger) *InMemoryEventBus {
	if workerCount <= 0 {
		workerCount = 8
	}
	if log == nil {
		log = logger.Default()
	}
	return &InMemoryEventBus{
		handlers: make(map[shared.EventType][]shared.EventHandler),
		workers:  make(chan struct{}, workerCount),
		log:      log.With(logger.Component("eventbus")),
	}
}

var _ shared.EventBus = (*InMemoryEventBus)(nil)

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("messaging: nil handler for %s", eventType)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler that receives every event.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return fmt.Errorf("messaging: nil wildcard handler")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish fans the event out to all matching handlers. Events published
// after Close are dropped and counted.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return fmt.Errorf("messaging: nil event")
	}
	if b.closed.Load() {
		b.metrics.Dropped.Add(1)
		return fmt.Errorf("messaging: bus closed, dropped %s", event.EventType())
	}
	b.metrics.Published.Add(1)

	b.mu.RLock()
	targets := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	targets = append(targets, b.handlers[event.EventType()]...)
	targets = append(targets, b.allHandlers...)
	b.mu.RUnlock()

	for _, handler := range targets {
		b.dispatch(event, handler)
	}
	return nil
}

func (b *InMemoryEventBus) dispatch(event shared.Event, handler shared.EventHandler) {
	b.workers <- struct{}{}
	b.wg.Add(1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.metrics.HandlerErrors.Add(1)
				b.log.Error("handler panicked",
					logger.EventType(string(event.EventType())),
					logger.Any("panic", r))
			}
			<-b.workers
			b.wg.Done()
		}()
		if err := handler(event); err != nil {
			b.metrics.HandlerErrors.Add(1)
			b.log.Warn("handler failed",
				logger.EventType(string(event.EventType())),
				logger.UserID(event.AggregateID()),
				logger.Err(err))
			return
		}
		b.metrics.Delivered.Add(1)
	}()
}

// Close stops accepting events and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.wg.Wait()
	return nil
}

// Metrics returns a snapshot of the counters.
func (b *InMemoryEventBus) Metrics() map[string]int64 {
	return map[string]int64{
		"published":      b.metrics.Published.Load(),
		"delivered":      b.metrics.Delivered.Load(),
		"handler_errors": b.metrics.HandlerErrors.Load(),
		"dropped":        b.metrics.Dropped.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChannel is the Redis pub/sub channel events travel on.
const DefaultChannel = "progression:events"

// RedisPubSub is the slice of the Redis client the bus needs. Satisfied by
// the persistence/redis Cache.
type RedisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	SubscribeHandler(ctx context.Context, channel string, handler func(payload string)) error
}

// eventEnvelope is the wire form of an event crossing process boundaries.
// Subscribers receive the payload map, not the original typed event. Origin
// identifies the publishing process so it can skip its own mirror: local
// subscribers already saw the event before it reached Redis.
type eventEnvelope struct {
	Type        shared.EventType       `json:"type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Origin      string                 `json:"origin,omitempty"`
	Payload     map[string]interface{} `json:"payload"`
}

// envelopeEvent adapts a decoded envelope back to the shared.Event interface.
type envelopeEvent struct {
	env eventEnvelope
}

func (e envelopeEvent) EventType() shared.EventType     { return e.env.Type }
func (e envelopeEvent) OccurredAt() time.Time           { return e.env.OccurredAt }
func (e envelopeEvent) AggregateID() string             { return e.env.AggregateID }
func (e envelopeEvent) Payload() map[string]interface{} { return e.env.Payload }

// RedisEventBus mirrors every published event onto a Redis channel and feeds
// events received from that channel into a local bus, so multiple engine
// processes (API and worker) share one event stream.
type RedisEventBus struct {
	pubsub     RedisPubSub
	local      shared.EventBus
	channel    string
	instanceID string
	log        *logger.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewRedisEventBus wraps a local bus with Redis fan-out.
func NewRedisEventBus(pubsub RedisPubSub, local shared.EventBus, channel string, log *logger.Logger) *RedisEventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisEventBus{
		pubsub:     pubsub,
		local:      local,
		channel:    channel,
		instanceID: uuid.NewString(),
		log:        log.With(logger.Component("redis_eventbus")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

var _ shared.EventBus = (*RedisEventBus)(nil)

// Start begins consuming the Redis channel into the local bus.
func (b *RedisEventBus) Start() error {
	return b.pubsub.SubscribeHandler(b.ctx, b.channel, func(payload string) {
		var env eventEnvelope
		if err := json.Unmarshal([]byte(payload), &env); err != nil {
			b.log.Warn("malformed event envelope", logger.Err(err))
			return
		}
		if env.Origin == b.instanceID {
			return
		}
		if err := b.local.Publish(envelopeEvent{env: env}); err != nil {
			b.log.Warn("local redeliver failed",
				logger.EventType(string(env.Type)),
				logger.Err(err))
		}
	})
}

// Publish delivers locally and mirrors to Redis. A Redis failure is logged
// but does not fail the publish: local subscribers already got the event.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if err := b.local.Publish(event); err != nil {
		return err
	}
	env := eventEnvelope{
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Origin:      b.instanceID,
		Payload:     event.Payload(),
	}
	if err := b.pubsub.Publish(b.ctx, b.channel, env); err != nil {
		b.log.Warn("redis mirror failed",
			logger.EventType(string(event.EventType())),
			logger.Err(err))
	}
	return nil
}

// Subscribe registers on the local bus.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.local.Subscribe(eventType, handler)
}

// SubscribeAll registers on the local bus.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.local.SubscribeAll(handler)
}

// Close stops the Redis consumer and closes the local bus.
func (b *RedisEventBus) Close() error {
	b.cancel()
	return b.local.Close()
}
