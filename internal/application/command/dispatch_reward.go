package command

import (
	"context"
	"fmt"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCH REWARD COMMAND
// Applies the reward for an unlock or milestone exactly once: the ledger's
// idempotency key resolves every race and replay. Dispatch is fed
// synchronously after evaluation and asynchronously from the outbox drain.
// ══════════════════════════════════════════════════════════════════════════════

// DispatchStatus classifies a dispatch attempt.
type DispatchStatus string

const (
	// StatusApplied - the reward was applied now, for the first time.
	StatusApplied DispatchStatus = "applied"

	// StatusAlreadyApplied - a ledger entry with the same key already
	// existed; successful no-op.
	StatusAlreadyApplied DispatchStatus = "already_applied"
)

// DefaultMilestonePoints is the fixed points schedule for streak milestones,
// independent of the achievement catalog.
func DefaultMilestonePoints() map[int]int {
	return map[int]int{
		7:   70,
		14:  140,
		30:  300,
		60:  600,
		100: 1000,
		365: 3650,
	}
}

// DispatchRewardHandler is the reward dispatcher.
type DispatchRewardHandler struct {
	catalog   *achievement.Catalog
	ledger    reward.LedgerRepository
	publisher shared.EventPublisher
	log       *logger.Logger

	milestonePoints map[int]int
}

// NewDispatchRewardHandler creates the dispatcher.
func NewDispatchRewardHandler(
	catalog *achievement.Catalog,
	ledger reward.LedgerRepository,
	publisher shared.EventPublisher,
	log *logger.Logger,
	milestonePoints map[int]int,
) *DispatchRewardHandler {
	if len(milestonePoints) == 0 {
		milestonePoints = DefaultMilestonePoints()
	}
	return &DispatchRewardHandler{
		catalog:         catalog,
		ledger:          ledger,
		publisher:       publisher,
		log:             log,
		milestonePoints: milestonePoints,
	}
}

// DispatchUnlock applies the catalog reward for an achievement unlock.
func (h *DispatchRewardHandler) DispatchUnlock(ctx context.Context, userID, achievementID string) (DispatchStatus, error) {
	def, ok := h.catalog.Get(achievementID)
	if !ok {
		return "", shared.WrapError("reward", "Dispatch", shared.ErrNotFound,
			fmt.Sprintf("no definition for achievement %q", achievementID), shared.ErrDefinitionNotFound)
	}

	entry := reward.NewAchievementEntry(userID, achievementID, def.Reward.Type, def.Reward.Value, def.Reward.BadgeID)
	applied, err := h.ledger.Apply(ctx, entry)
	if err != nil {
		return "", shared.WrapError("reward", "Dispatch", shared.ErrStorage, "ledger apply failed", err)
	}
	if !applied {
		return StatusAlreadyApplied, nil
	}

	h.notify(shared.NewRewardAppliedEvent(userID, achievementID, 0, def.Reward.Type, def.Reward.Value))
	h.notify(shared.NewUnlockNotificationEvent(userID, achievementID, def.Grant()))
	h.log.Info("reward applied",
		logger.UserID(userID),
		logger.AchievementID(achievementID),
		logger.String("reward_type", string(def.Reward.Type)),
		logger.Points(def.Reward.Value),
	)
	return StatusApplied, nil
}

// DispatchMilestone applies the fixed points reward for a streak milestone.
func (h *DispatchRewardHandler) DispatchMilestone(ctx context.Context, userID string, milestone int) (DispatchStatus, error) {
	points, ok := h.milestonePoints[milestone]
	if !ok {
		return "", shared.NewDomainError("reward", "Dispatch", shared.ErrInvalidInput,
			fmt.Sprintf("no points schedule for milestone %d", milestone))
	}

	entry := reward.NewMilestoneEntry(userID, milestone, points)
	applied, err := h.ledger.Apply(ctx, entry)
	if err != nil {
		return "", shared.WrapError("reward", "Dispatch", shared.ErrStorage, "ledger apply failed", err)
	}
	if !applied {
		return StatusAlreadyApplied, nil
	}

	grant := shared.RewardGrant{Type: shared.RewardPoints, Value: points, Title: fmt.Sprintf("%d-day streak", milestone)}
	h.notify(shared.NewRewardAppliedEvent(userID, "", milestone, shared.RewardPoints, points))
	h.notify(shared.NewMilestoneNotificationEvent(userID, milestone, grant))
	h.log.Info("milestone reward applied",
		logger.UserID(userID),
		logger.Milestone(milestone),
		logger.Points(points),
	)
	return StatusApplied, nil
}

// Dispatch routes a backlog item to the right apply path. Used by the outbox
// drain job.
func (h *DispatchRewardHandler) Dispatch(ctx context.Context, item *reward.OutboxItem) (DispatchStatus, error) {
	switch item.Kind {
	case reward.KindMilestone:
		return h.DispatchMilestone(ctx, item.UserID, item.Milestone)
	case reward.KindAchievement:
		return h.DispatchUnlock(ctx, item.UserID, item.AchievementID)
	default:
		return "", shared.NewDomainError("reward", "Dispatch", shared.ErrInvalidInput,
			fmt.Sprintf("unknown outbox kind %q", item.Kind))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT FEED
// The API process subscribes these to the event bus so rewards apply as soon
// as the unlock or milestone lands, without waiting for the outbox drain.
// The drain stays the safety net; the ledger key resolves the overlap.
// ══════════════════════════════════════════════════════════════════════════════

// HandleUnlockEvent dispatches the reward for an achievement.unlocked event.
// Implements shared.EventHandler.
func (h *DispatchRewardHandler) HandleUnlockEvent(event shared.Event) error {
	p := event.Payload()
	userID, _ := p["user_id"].(string)
	achievementID, _ := p["achievement_id"].(string)
	if userID == "" || achievementID == "" {
		return shared.NewDomainError("reward", "Dispatch", shared.ErrInvalidInput,
			"unlock event missing user_id or achievement_id")
	}
	_, err := h.DispatchUnlock(context.Background(), userID, achievementID)
	return err
}

// HandleMilestoneEvent dispatches the reward for a streak.milestone_crossed
// event. Implements shared.EventHandler.
func (h *DispatchRewardHandler) HandleMilestoneEvent(event shared.Event) error {
	p := event.Payload()
	userID, _ := p["user_id"].(string)
	milestone := payloadInt(p["milestone"])
	if userID == "" || milestone <= 0 {
		return shared.NewDomainError("reward", "Dispatch", shared.ErrInvalidInput,
			"milestone event missing user_id or milestone")
	}
	_, err := h.DispatchMilestone(context.Background(), userID, milestone)
	return err
}

// payloadInt reads an integer that may have crossed a JSON boundary, where
// numbers decode as float64.
func payloadInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

// notify publishes the outward notification. Delivery is at-least-once and
// failure here never undoes the ledger write; subscribers reconcile from the
// ledger when a notification is lost.
func (h *DispatchRewardHandler) notify(event shared.Event) {
	if err := h.publisher.Publish(event); err != nil {
		h.log.Warn("unlock notification not published",
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}
}
