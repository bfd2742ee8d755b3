// Package eventhandler contains bus-driven reactions to domain events.
package eventhandler

import (
	"context"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// SUMMARY INVALIDATION HANDLER
// Drops the cached per-user progression summary whenever an event changes
// what the summary reports. The cache has a short TTL, so a missed
// invalidation heals itself; this handler just shortens the stale window
// after an unlock or a streak transition.
// ═══════════════════════════════════════════════════════════════════════════

// SummaryInvalidator removes one user's cached summary.
// Satisfied by the Redis summary cache.
type SummaryInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// InvalidateSummaryHandler drops cached summaries on progression changes.
type InvalidateSummaryHandler struct {
	cache   SummaryInvalidator
	log     *logger.Logger
	timeout time.Duration
}

// NewInvalidateSummaryHandler creates the handler.
func NewInvalidateSummaryHandler(cache SummaryInvalidator, log *logger.Logger) *InvalidateSummaryHandler {
	if log == nil {
		log = logger.Default()
	}
	return &InvalidateSummaryHandler{
		cache:   cache,
		log:     log.With(logger.Component("invalidate_summary")),
		timeout: 5 * time.Second,
	}
}

// EventTypes lists the events that change the summary.
func (h *InvalidateSummaryHandler) EventTypes() []shared.EventType {
	return []shared.EventType{
		shared.EventAchievementUnlocked,
		shared.EventMilestoneCrossed,
		shared.EventStreakExtended,
		shared.EventStreakBroken,
		shared.EventRewardApplied,
	}
}

// Handle drops the summary of the event's user. Implements shared.EventHandler.
func (h *InvalidateSummaryHandler) Handle(event shared.Event) error {
	userID := event.AggregateID()
	if userID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.Invalidate(ctx, userID); err != nil {
		// The TTL bounds the staleness either way.
		h.log.Warn("summary invalidation failed",
			logger.UserID(userID),
			logger.String("event_type", string(event.EventType())),
			logger.Err(err))
		return err
	}
	return nil
}
