// Package reward contains the reward-issuance model: the append-only ledger
// that makes every grant exactly-once, and the outbox that makes dispatch
// retryable independently of the triggering evaluation.
package reward

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// Kind distinguishes what triggered a reward.
type Kind string

const (
	// KindAchievement - reward for an achievement unlock.
	KindAchievement Kind = "achievement"

	// KindMilestone - reward for a streak milestone crossing.
	KindMilestone Kind = "milestone"
)

// LedgerEntry is the immutable, append-only record of one granted reward.
// Its idempotency key makes issuance exactly-once: a replayed dispatch finds
// the entry and no-ops.
type LedgerEntry struct {
	// ID - surrogate identifier.
	ID uuid.UUID

	// UserID - the rewarded user.
	UserID string

	// Kind - achievement unlock or streak milestone.
	Kind Kind

	// AchievementID - set for achievement rewards.
	AchievementID string

	// Milestone - set for milestone rewards.
	Milestone int

	// RewardType, Points, BadgeID - the applied effect.
	RewardType shared.RewardType
	Points     int
	BadgeID    string

	// AppliedAt - when the reward was applied.
	AppliedAt time.Time
}

// NewAchievementEntry builds the ledger entry for an unlock reward.
func NewAchievementEntry(userID, achievementID string, rewardType shared.RewardType, points int, badgeID string) *LedgerEntry {
	return &LedgerEntry{
		ID:            uuid.New(),
		UserID:        userID,
		Kind:          KindAchievement,
		AchievementID: achievementID,
		RewardType:    rewardType,
		Points:        points,
		BadgeID:       badgeID,
		AppliedAt:     time.Now().UTC(),
	}
}

// NewMilestoneEntry builds the ledger entry for a milestone reward.
// Milestone rewards are always points.
func NewMilestoneEntry(userID string, milestone, points int) *LedgerEntry {
	return &LedgerEntry{
		ID:         uuid.New(),
		UserID:     userID,
		Kind:       KindMilestone,
		Milestone:  milestone,
		RewardType: shared.RewardPoints,
		Points:     points,
		AppliedAt:  time.Now().UTC(),
	}
}

// IdempotencyKey returns the natural key the ledger is unique on:
// (user, achievement) or (user, milestone).
func (e *LedgerEntry) IdempotencyKey() string {
	if e.Kind == KindMilestone {
		return MilestoneKey(e.UserID, e.Milestone)
	}
	return AchievementKey(e.UserID, e.AchievementID)
}

// AchievementKey builds the ledger key for an unlock reward.
func AchievementKey(userID, achievementID string) string {
	return fmt.Sprintf("%s|achievement:%s", userID, achievementID)
}

// MilestoneKey builds the ledger key for a milestone reward.
func MilestoneKey(userID string, milestone int) string {
	return fmt.Sprintf("%s|milestone:%d", userID, milestone)
}

// ══════════════════════════════════════════════════════════════════════════════
// OUTBOX
// ══════════════════════════════════════════════════════════════════════════════

// OutboxItem is a durable dispatch request. Items are enqueued as soon as the
// unlock or milestone commits and removed only after the ledger write
// succeeds, so a dispatch failure never silently drops a reward; the worker
// drains and retries whatever the synchronous path left behind.
type OutboxItem struct {
	// ID - surrogate identifier.
	ID uuid.UUID

	// Kind, UserID, AchievementID, Milestone - what to dispatch.
	Kind          Kind
	UserID        string
	AchievementID string
	Milestone     int

	// EnqueuedAt - when the item was created.
	EnqueuedAt time.Time

	// Attempts - dispatch attempts so far.
	Attempts int

	// LastError - most recent failure, for operators.
	LastError string
}

// NewUnlockOutboxItem builds an outbox item for an achievement unlock.
func NewUnlockOutboxItem(userID, achievementID string) *OutboxItem {
	return &OutboxItem{
		ID:            uuid.New(),
		Kind:          KindAchievement,
		UserID:        userID,
		AchievementID: achievementID,
		EnqueuedAt:    time.Now().UTC(),
	}
}

// NewMilestoneOutboxItem builds an outbox item for a milestone crossing.
func NewMilestoneOutboxItem(userID string, milestone int) *OutboxItem {
	return &OutboxItem{
		ID:         uuid.New(),
		Kind:       KindMilestone,
		UserID:     userID,
		Milestone:  milestone,
		EnqueuedAt: time.Now().UTC(),
	}
}

// IdempotencyKey mirrors the ledger key so the outbox dedupes on the same
// natural identity as the ledger itself.
func (i *OutboxItem) IdempotencyKey() string {
	if i.Kind == KindMilestone {
		return MilestoneKey(i.UserID, i.Milestone)
	}
	return AchievementKey(i.UserID, i.AchievementID)
}
