package command

import (
	"context"
	"errors"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ACHIEVEMENTS COMMAND
// Advances every matching achievement's progress and performs the one-way
// unlock transition when a target is reached. Secret achievements are
// evaluated exactly like visible ones; secrecy is a read-side concern.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAchievementsHandler is the achievement evaluator.
type EvaluateAchievementsHandler struct {
	catalog   *achievement.Catalog
	progress  achievement.ProgressRepository
	outbox    reward.OutboxRepository
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewEvaluateAchievementsHandler creates the evaluator.
func NewEvaluateAchievementsHandler(
	catalog *achievement.Catalog,
	progress achievement.ProgressRepository,
	outbox reward.OutboxRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *EvaluateAchievementsHandler {
	return &EvaluateAchievementsHandler{
		catalog:   catalog,
		progress:  progress,
		outbox:    outbox,
		publisher: publisher,
		log:       log,
	}
}

// Handle evaluates one accepted event against every catalog definition whose
// requirement matches its type. currentStreak is the user's streak after this
// event's own streak transition; maxStreak aggregations mirror it.
//
// Definitions are independent: a storage failure on one is collected and the
// rest still evaluate, so a partially failed evaluation can be retried
// without re-unlocking what already committed.
func (h *EvaluateAchievementsHandler) Handle(ctx context.Context, evt activity.Event, currentStreak int) ([]*achievement.UnlockRecord, error) {
	defs := h.catalog.ForEventType(evt.Type)
	if len(defs) == 0 {
		return nil, nil
	}

	var (
		unlocks []*achievement.UnlockRecord
		errs    []error
	)
	for _, def := range defs {
		rec, err := h.evaluateOne(ctx, evt, def, currentStreak)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rec != nil {
			unlocks = append(unlocks, rec)
		}
	}
	return unlocks, errors.Join(errs...)
}

// evaluateOne advances one definition's progress row and, when the target is
// met, unlocks it. The progress write and the unlock record commit in one
// atomic step inside the repository; the reward backlog entry and the domain
// event follow the commit, each idempotent on (user, achievement).
func (h *EvaluateAchievementsHandler) evaluateOne(
	ctx context.Context,
	evt activity.Event,
	def achievement.Definition,
	currentStreak int,
) (*achievement.UnlockRecord, error) {
	target := def.Requirement.TargetValue

	_, rec, err := h.progress.Mutate(ctx, evt.UserID, def.ID, func(p *achievement.Progress) (*achievement.UnlockRecord, error) {
		if p.IsUnlocked() {
			return nil, nil
		}

		switch def.Requirement.Aggregation {
		case shared.AggregationCount:
			p.AdvanceCount(target)

		case shared.AggregationDistinctCount:
			value, ok := evt.DistinctValue(def.Requirement.DistinctKey)
			if !ok {
				return nil, nil
			}
			p.AdvanceDistinct(value, target)

		case shared.AggregationMaxStreak:
			p.ObserveStreak(currentStreak, target)
		}

		if p.MeetsTarget(target) {
			return p.Unlock(target, time.Now())
		}
		return nil, nil
	})
	if err != nil {
		return nil, shared.WrapError("achievement", "Evaluate", shared.ErrStorage, "progress mutation failed", err)
	}
	if rec == nil {
		return nil, nil
	}

	if err := h.outbox.Enqueue(ctx, reward.NewUnlockOutboxItem(rec.UserID, rec.AchievementID)); err != nil {
		return nil, shared.WrapError("achievement", "Evaluate", shared.ErrStorage, "unlock outbox enqueue failed", err)
	}

	event := shared.NewAchievementUnlockedEvent(rec.UserID, rec.AchievementID, def.Category, def.Rarity, rec.UnlockedAt)
	if err := h.publisher.Publish(event); err != nil {
		h.log.Warn("unlock event not published",
			logger.UserID(rec.UserID),
			logger.AchievementID(rec.AchievementID),
			logger.Err(err),
		)
	}

	h.log.Info("achievement unlocked",
		logger.UserID(rec.UserID),
		logger.AchievementID(rec.AchievementID),
		logger.String("rarity", string(def.Rarity)),
	)
	return rec, nil
}
