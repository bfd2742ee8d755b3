// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT EVENT COMMAND
// The ingest gateway: validates, deduplicates, and dispatches one activity
// event to the streak tracker and the achievement evaluator.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitStatus classifies the gateway's answer to a submission.
type SubmitStatus string

const (
	// StatusAccepted - first delivery, processed.
	StatusAccepted SubmitStatus = "accepted"

	// StatusDuplicate - idempotency key already seen; successful no-op.
	StatusDuplicate SubmitStatus = "duplicate"

	// StatusRejected - the event failed validation and was never processed.
	// Rejections are terminal; callers must not retry them unchanged.
	StatusRejected SubmitStatus = "rejected"
)

// SubmitEventCommand carries one inbound activity event.
type SubmitEventCommand struct {
	// IdempotencyKey is the caller-supplied unique token for this action.
	IdempotencyKey string

	// UserID is the acting user.
	UserID string

	// Type is the activity event type, e.g. "postCreated".
	Type string

	// Timestamp is when the action occurred on the caller's clock.
	Timestamp time.Time

	// Payload carries event-specific metadata (cuisine, place_id, ...).
	Payload map[string]string

	// CorrelationID for tracing.
	CorrelationID string
}

// Event converts the command into the domain event.
func (c SubmitEventCommand) Event() activity.Event {
	return activity.Event{
		IdempotencyKey: c.IdempotencyKey,
		UserID:         c.UserID,
		Type:           activity.EventType(c.Type),
		Timestamp:      c.Timestamp,
		Payload:        c.Payload,
	}
}

// SubmitEventResult reports what one submission did.
type SubmitEventResult struct {
	// Status - accepted, duplicate, or rejected.
	Status SubmitStatus

	// Reason - human-readable rejection reason; empty otherwise.
	Reason string

	// Unlocks - achievements unlocked by this event.
	Unlocks []*achievement.UnlockRecord

	// StreakOutcome - the streak transition, when the event was
	// streak-relevant. Nil otherwise.
	StreakOutcome *streak.Outcome

	// ProcessedAt - when the gateway finished.
	ProcessedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// SubmitEventHandler is the ingest gateway.
type SubmitEventHandler struct {
	dedup        activity.DedupIndex
	streaks      *TrackStreakHandler
	achievements *EvaluateAchievementsHandler
	log          *logger.Logger

	dedupTTL      time.Duration
	maxFutureSkew time.Duration
}

// SubmitEventConfig contains gateway tuning.
type SubmitEventConfig struct {
	// DedupTTL is the retention window of the dedup index. Must comfortably
	// exceed the transport's redelivery delay.
	DedupTTL time.Duration

	// MaxFutureSkew is the tolerated client-clock drift into the future.
	MaxFutureSkew time.Duration
}

// DefaultSubmitEventConfig returns the default gateway tuning.
func DefaultSubmitEventConfig() SubmitEventConfig {
	return SubmitEventConfig{
		DedupTTL:      72 * time.Hour,
		MaxFutureSkew: activity.MaxFutureSkewDefault,
	}
}

// NewSubmitEventHandler creates the gateway.
func NewSubmitEventHandler(
	dedup activity.DedupIndex,
	streaks *TrackStreakHandler,
	achievements *EvaluateAchievementsHandler,
	log *logger.Logger,
	cfg SubmitEventConfig,
) *SubmitEventHandler {
	if cfg.DedupTTL == 0 {
		cfg = DefaultSubmitEventConfig()
	}
	return &SubmitEventHandler{
		dedup:         dedup,
		streaks:       streaks,
		achievements:  achievements,
		log:           log,
		dedupTTL:      cfg.DedupTTL,
		maxFutureSkew: cfg.MaxFutureSkew,
	}
}

// Handle processes one submission end to end.
//
// Order matters: the streak tracker runs before the achievement evaluator so
// that maxStreak achievements observe the streak produced by this very event.
// The two consumers are otherwise independent; a failure in either aborts the
// submission as retryable after compensating the dedup registration, so the
// caller's retry with the same key is processed rather than swallowed.
func (h *SubmitEventHandler) Handle(ctx context.Context, cmd SubmitEventCommand) (*SubmitEventResult, error) {
	evt := cmd.Event()

	if err := evt.Validate(time.Now(), h.maxFutureSkew); err != nil {
		h.log.Warn("event rejected",
			logger.UserID(evt.UserID),
			logger.EventType(string(evt.Type)),
			logger.IdempotencyKey(evt.IdempotencyKey),
			logger.Err(err),
		)
		return &SubmitEventResult{
			Status:      StatusRejected,
			Reason:      err.Error(),
			ProcessedAt: time.Now().UTC(),
		}, nil
	}

	fresh, err := h.dedup.Register(ctx, evt.IdempotencyKey, h.dedupTTL)
	if err != nil {
		return nil, shared.WrapError("ingest", "Submit", shared.ErrStorage, "dedup index unavailable", err)
	}
	if !fresh {
		h.log.Debug("duplicate event",
			logger.UserID(evt.UserID),
			logger.IdempotencyKey(evt.IdempotencyKey),
		)
		return &SubmitEventResult{
			Status:      StatusDuplicate,
			ProcessedAt: time.Now().UTC(),
		}, nil
	}

	result := &SubmitEventResult{Status: StatusAccepted}

	// Streak tracker first: maxStreak aggregations read the post-update streak.
	currentStreak := 0
	if evt.Type.IsStreakRelevant() {
		_, outcome, err := h.streaks.Handle(ctx, evt)
		if err != nil {
			h.compensate(ctx, evt.IdempotencyKey)
			return nil, err
		}
		result.StreakOutcome = outcome
		currentStreak = outcome.CurrentStreak
	}

	unlocks, err := h.achievements.Handle(ctx, evt, currentStreak)
	if err != nil {
		h.compensate(ctx, evt.IdempotencyKey)
		return nil, err
	}
	result.Unlocks = unlocks

	result.ProcessedAt = time.Now().UTC()
	h.log.Info("event accepted",
		logger.UserID(evt.UserID),
		logger.EventType(string(evt.Type)),
		logger.Int("unlocks", len(unlocks)),
	)
	return result, nil
}

// compensate removes the dedup registration after a processing failure so
// the retried delivery is not misread as a duplicate. Best effort: every
// downstream mutation is idempotent on its own key anyway.
func (h *SubmitEventHandler) compensate(ctx context.Context, key string) {
	if err := h.dedup.Remove(ctx, key); err != nil {
		h.log.Warn("dedup compensation failed", logger.IdempotencyKey(key), logger.Err(err))
	}
}

// IsRejection reports whether err marks an unprocessable submission rather
// than a transient failure.
func IsRejection(err error) bool {
	return shared.IsValidation(err) && !errors.Is(err, shared.ErrStorage)
}
