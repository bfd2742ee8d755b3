package messaging

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Middleware wraps an event handler with cross-cutting behavior.
type Middleware func(next shared.EventHandler) shared.EventHandler

// HandlerRegistration names a handler so failures can be attributed.
type HandlerRegistration struct {
	Name      string
	EventType shared.EventType
	Handler   shared.EventHandler
	Retrier   *retry.Retrier
}

// DeadLetter is an event a handler permanently failed to process.
type DeadLetter struct {
	HandlerName string
	EventType   shared.EventType
	AggregateID string
	Error       string
	FailedAt    time.Time
	Payload     map[string]interface{}
}

// DeadLetterQueue keeps the most recent permanently failed events in memory
// for inspection through the admin surface.
type DeadLetterQueue struct {
	mu      sync.Mutex
	letters []DeadLetter
	cap     int
}

// NewDeadLetterQueue creates a queue bounded to cap entries.
func NewDeadLetterQueue(cap int) *DeadLetterQueue {
	if cap <= 0 {
		cap = 128
	}
	return &DeadLetterQueue{cap: cap}
}

// Add appends a letter, evicting the oldest past capacity.
func (q *DeadLetterQueue) Add(letter DeadLetter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.letters = append(q.letters, letter)
	if len(q.letters) > q.cap {
		q.letters = q.letters[len(q.letters)-q.cap:]
	}
}

// All returns a copy of the stored letters, oldest first.
func (q *DeadLetterQueue) All() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]DeadLetter, len(q.letters))
	copy(out, q.letters)
	return out
}

// Len returns the number of stored letters.
func (q *DeadLetterQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.letters)
}

// DispatcherMetrics counts dispatcher activity.
type DispatcherMetrics struct {
	Dispatched  atomic.Int64
	Retried     atomic.Int64
	DeadLetters atomic.Int64
}

// Dispatcher subscribes named handlers to a bus, wrapping each with the
// configured middleware chain and per-handler retry. Handlers that exhaust
// their retries land in the dead-letter queue instead of erroring the bus.
type Dispatcher struct {
	bus        shared.EventBus
	middleware []Middleware
	dlq        *DeadLetterQueue
	log        *logger.Logger
	metrics    DispatcherMetrics
}

// NewDispatcher creates a dispatcher on the given bus.
func NewDispatcher(bus shared.EventBus, log *logger.Logger, middleware ...Middleware) *Dispatcher {
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		bus:        bus,
		middleware: middleware,
		dlq:        NewDeadLetterQueue(128),
		log:        log.With(logger.Component("dispatcher")),
	}
}

// Register subscribes the handler for its event type. The middleware chain
// is applied outermost-first, then retry, then dead-lettering.
func (d *Dispatcher) Register(reg HandlerRegistration) error {
	if reg.Handler == nil {
		return fmt.Errorf("messaging: handler %q is nil", reg.Name)
	}
	if reg.Name == "" {
		reg.Name = string(reg.EventType)
	}

	wrapped := d.withRetry(reg)
	for i := len(d.middleware) - 1; i >= 0; i-- {
		wrapped = d.middleware[i](wrapped)
	}

	final := func(event shared.Event) error {
		d.metrics.Dispatched.Add(1)
		if err := wrapped(event); err != nil {
			d.deadLetter(reg, event, err)
		}
		return nil
	}
	return d.bus.Subscribe(reg.EventType, final)
}

func (d *Dispatcher) withRetry(reg HandlerRegistration) shared.EventHandler {
	if reg.Retrier == nil {
		return reg.Handler
	}
	return func(event shared.Event) error {
		attempt := 0
		return reg.Retrier.Do(context.Background(), func(ctx context.Context) error {
			attempt++
			if attempt > 1 {
				d.metrics.Retried.Add(1)
			}
			return reg.Handler(event)
		})
	}
}

func (d *Dispatcher) deadLetter(reg HandlerRegistration, event shared.Event, err error) {
	d.metrics.DeadLetters.Add(1)
	d.dlq.Add(DeadLetter{
		HandlerName: reg.Name,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		Error:       err.Error(),
		FailedAt:    time.Now().UTC(),
		Payload:     event.Payload(),
	})
	d.log.Error("handler exhausted retries",
		logger.String("handler", reg.Name),
		logger.EventType(string(event.EventType())),
		logger.UserID(event.AggregateID()),
		logger.Err(err))
}

// DeadLetters returns the dispatcher's dead-letter queue.
func (d *Dispatcher) DeadLetters() *DeadLetterQueue {
	return d.dlq
}

// Metrics returns a snapshot of the counters.
func (d *Dispatcher) Metrics() map[string]int64 {
	return map[string]int64{
		"dispatched":   d.metrics.Dispatched.Load(),
		"retried":      d.metrics.Retried.Load(),
		"dead_letters": d.metrics.DeadLetters.Load(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE
// ══════════════════════════════════════════════════════════════════════════════

// RecoveryMiddleware converts handler panics into errors.
func RecoveryMiddleware() Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("messaging: handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs each event with its handling latency.
func LoggingMiddleware(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.Default()
	}
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			fields := []logger.Field{
				logger.EventType(string(event.EventType())),
				logger.UserID(event.AggregateID()),
				logger.Latency(time.Since(start)),
			}
			if err != nil {
				log.Warn("event handling failed", append(fields, logger.Err(err))...)
			} else {
				log.Debug("event handled", fields...)
			}
			return err
		}
	}
}
