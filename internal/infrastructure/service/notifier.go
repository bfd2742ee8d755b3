// Package service contains adapters between the event bus and outward-facing
// collaborators.
package service

import (
	"context"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/infrastructure/external/webhook"
	"github.com/tastebook/progression-engine/pkg/circuitbreaker"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// Notifier forwards unlock notifications to the configured webhook receiver.
// A failed delivery never rolls back the reward: the ledger entry stands and
// the miss is logged after the breaker and retrier give up.
type Notifier struct {
	client  *webhook.Client
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	log     *logger.Logger
	timeout time.Duration
}

// NewNotifier creates the notifier.
func NewNotifier(client *webhook.Client, log *logger.Logger) *Notifier {
	if log == nil {
		log = logger.Default()
	}
	nlog := log.With(logger.Component("notifier"))
	breaker := circuitbreaker.NotifierBreaker(func(name string, from, to circuitbreaker.State) {
		nlog.Warn("breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	})
	return &Notifier{
		client:  client,
		breaker: breaker,
		retrier: retry.NotifierRetrier(),
		log:     nlog,
		timeout: 30 * time.Second,
	}
}

// Register subscribes the notifier to unlock notifications on the bus.
func (n *Notifier) Register(bus shared.EventBus) error {
	return bus.Subscribe(shared.EventUnlockNotification, n.HandleEvent)
}

// HandleEvent delivers one notification event.
func (n *Notifier) HandleEvent(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	delivery := webhook.NewDelivery(string(event.EventType()), event.OccurredAt(), event.Payload())

	err := n.retrier.Do(ctx, func(ctx context.Context) error {
		return n.breaker.Execute(ctx, func(ctx context.Context) error {
			return n.client.Send(ctx, delivery)
		})
	})
	if err != nil {
		n.log.Error("notification delivery failed",
			logger.UserID(event.AggregateID()),
			logger.String("delivery_id", delivery.ID),
			logger.Err(err))
		return err
	}

	n.log.Info("notification delivered",
		logger.UserID(event.AggregateID()),
		logger.String("delivery_id", delivery.ID))
	return nil
}

// BreakerState exposes the breaker state for health reporting.
func (n *Notifier) BreakerState() circuitbreaker.State {
	return n.breaker.State()
}
