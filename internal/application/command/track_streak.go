package command

import (
	"context"
	"errors"

	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
	"github.com/tastebook/progression-engine/pkg/logger"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRACK STREAK COMMAND
// Applies one streak-relevant event to the user's streak state and owns the
// side effects of the transition: milestone rewards and broken-streak events.
// ══════════════════════════════════════════════════════════════════════════════

// TrackStreakHandler drives the daily-streak state machine.
type TrackStreakHandler struct {
	streaks   streak.Repository
	outbox    reward.OutboxRepository
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewTrackStreakHandler creates the streak tracker.
func NewTrackStreakHandler(
	streaks streak.Repository,
	outbox reward.OutboxRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *TrackStreakHandler {
	return &TrackStreakHandler{
		streaks:   streaks,
		outbox:    outbox,
		publisher: publisher,
		log:       log,
	}
}

// Handle records one qualifying activity. The state transition commits
// atomically inside the repository's Mutate; milestone backlog entries and
// domain events follow the commit, each idempotent on its own key so a crash
// in between is healed by the outbox drain.
func (h *TrackStreakHandler) Handle(ctx context.Context, evt activity.Event) (*streak.State, *streak.Outcome, error) {
	day := timeutil.CanonicalDay(evt.Timestamp)

	var outcome streak.Outcome
	state, err := h.streaks.Mutate(ctx, evt.UserID, func(s *streak.State) error {
		outcome = s.RecordActivity(day)
		return nil
	})
	if err != nil {
		return nil, nil, shared.WrapError("streak", "Track", shared.ErrStorage, "streak mutation failed", err)
	}

	switch outcome.Result {
	case streak.ResultOutOfOrder:
		// Late event for a settled day. The streak stays put; achievement
		// counters already advanced independently.
		h.log.Warn("out-of-order activity day",
			logger.UserID(evt.UserID),
			logger.String("activity_day", timeutil.FormatDayStr(day)),
			logger.String("last_active_day", timeutil.FormatDayStr(state.LastActiveDay)),
		)

	case streak.ResultReset:
		event := shared.NewStreakBrokenEvent(evt.UserID, outcome.PreviousStreak, outcome.DaysMissed)
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("streak broken event not published", logger.UserID(evt.UserID), logger.Err(err))
		}
		h.log.Info("streak reset",
			logger.UserID(evt.UserID),
			logger.Int("previous_streak", outcome.PreviousStreak),
			logger.Int("days_missed", outcome.DaysMissed),
		)

	case streak.ResultFrozen:
		h.log.Info("streak preserved by freeze",
			logger.UserID(evt.UserID),
			logger.Streak(outcome.CurrentStreak),
			logger.Int("freezes_consumed", outcome.FreezesConsumed),
		)
	}

	// Every transition that grew the streak announces the new length.
	switch outcome.Result {
	case streak.ResultStarted, streak.ResultExtended, streak.ResultFrozen:
		event := shared.NewStreakExtendedEvent(evt.UserID, outcome.CurrentStreak)
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("streak extended event not published", logger.UserID(evt.UserID), logger.Err(err))
		}
	}

	if err := h.enqueueMilestones(ctx, evt.UserID, outcome); err != nil {
		return nil, nil, err
	}

	return state, &outcome, nil
}

// enqueueMilestones records one reward backlog entry and one domain event per
// newly crossed milestone. Enqueue is idempotent on (user, milestone), so a
// replayed transition never doubles the backlog.
func (h *TrackStreakHandler) enqueueMilestones(ctx context.Context, userID string, outcome streak.Outcome) error {
	var errs []error
	for _, m := range outcome.NewMilestones {
		if err := h.outbox.Enqueue(ctx, reward.NewMilestoneOutboxItem(userID, m)); err != nil {
			errs = append(errs, shared.WrapError("streak", "Track", shared.ErrStorage, "milestone outbox enqueue failed", err))
			continue
		}

		event := shared.NewMilestoneCrossedEvent(userID, m, outcome.CurrentStreak)
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("milestone event not published",
				logger.UserID(userID),
				logger.Milestone(m),
				logger.Err(err),
			)
		}

		h.log.Info("milestone crossed",
			logger.UserID(userID),
			logger.Milestone(m),
			logger.Streak(outcome.CurrentStreak),
		)
	}
	return errors.Join(errs...)
}

// AddFreezes grants freeze credits to a user, e.g. from a purchase or a
// seasonal promotion.
func (h *TrackStreakHandler) AddFreezes(ctx context.Context, userID string, n int) (*streak.State, error) {
	if n <= 0 {
		return nil, shared.NewDomainError("streak", "AddFreezes", shared.ErrInvalidInput, "freeze count must be positive")
	}
	return h.streaks.Mutate(ctx, userID, func(s *streak.State) error {
		s.AddFreezes(n)
		return nil
	})
}
