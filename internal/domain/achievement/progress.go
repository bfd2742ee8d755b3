package achievement

import (
	"time"

	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the per-(user, achievement) running counter and unlock status.
//
// Invariants:
//   - while UnlockedAt is nil, Value <= the requirement's target
//   - the locked→unlocked transition happens exactly once and is never undone
//   - after unlock, Value is frozen at the target
type Progress struct {
	// UserID and AchievementID form the primary key.
	UserID        string
	AchievementID string

	// Value - the running progress counter.
	Value int

	// DistinctValues - values already counted for distinctCount aggregations.
	// Nil for other aggregations.
	DistinctValues map[string]struct{}

	// UnlockedAt - set exactly once when the achievement unlocks.
	UnlockedAt *time.Time

	// UpdatedAt - last mutation time.
	UpdatedAt time.Time
}

// NewProgress creates a zero-progress row. Rows are created lazily on the
// first relevant event and never deleted.
func NewProgress(userID, achievementID string) *Progress {
	return &Progress{
		UserID:        userID,
		AchievementID: achievementID,
		Value:         0,
		UpdatedAt:     time.Now().UTC(),
	}
}

// IsUnlocked reports whether the one-way transition already happened.
func (p *Progress) IsUnlocked() bool {
	return p.UnlockedAt != nil
}

// AdvanceCount advances a count aggregation by one, capped at target.
// Returns true when the counter actually moved.
func (p *Progress) AdvanceCount(target int) bool {
	if p.IsUnlocked() || p.Value >= target {
		return false
	}
	p.Value++
	p.UpdatedAt = time.Now().UTC()
	return true
}

// AdvanceDistinct advances a distinctCount aggregation when value has not
// been seen before for this (user, achievement). Returns true when the
// counter moved.
func (p *Progress) AdvanceDistinct(value string, target int) bool {
	if p.IsUnlocked() || p.Value >= target || value == "" {
		return false
	}
	if p.DistinctValues == nil {
		p.DistinctValues = make(map[string]struct{})
	}
	if _, seen := p.DistinctValues[value]; seen {
		return false
	}
	p.DistinctValues[value] = struct{}{}
	p.Value = len(p.DistinctValues)
	if p.Value > target {
		p.Value = target
	}
	p.UpdatedAt = time.Now().UTC()
	return true
}

// ObserveStreak advances a maxStreak aggregation to the observed current
// streak, capped at target. Progress never decreases when a streak resets.
func (p *Progress) ObserveStreak(currentStreak, target int) bool {
	if p.IsUnlocked() || currentStreak <= p.Value {
		return false
	}
	p.Value = currentStreak
	if p.Value > target {
		p.Value = target
	}
	p.UpdatedAt = time.Now().UTC()
	return true
}

// MeetsTarget reports whether the counter has reached the target.
func (p *Progress) MeetsTarget(target int) bool {
	return p.Value >= target
}

// Unlock performs the one-way transition: caps Value at target and stamps
// UnlockedAt. The caller persists the returned UnlockRecord in the same
// atomic step; a concurrent unlock is resolved by the record's uniqueness,
// not by this method.
func (p *Progress) Unlock(target int, at time.Time) (*UnlockRecord, error) {
	if p.IsUnlocked() {
		return nil, shared.ErrAlreadyUnlocked
	}
	if p.Value < target {
		return nil, shared.NewDomainError("achievement", "Unlock", shared.ErrInvalidState, "progress below target")
	}

	p.Value = target
	unlockedAt := at.UTC()
	p.UnlockedAt = &unlockedAt
	p.UpdatedAt = unlockedAt

	return &UnlockRecord{
		UserID:        p.UserID,
		AchievementID: p.AchievementID,
		UnlockedAt:    unlockedAt,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// UNLOCK RECORD
// ══════════════════════════════════════════════════════════════════════════════

// UnlockRecord is the immutable, durable fact that an achievement unlocked.
// It is the evidence reward issuance references: even if the triggering
// progress update is replayed, the record's (user, achievement) uniqueness
// prevents a second unlock and a second reward.
type UnlockRecord struct {
	UserID        string
	AchievementID string
	UnlockedAt    time.Time
}
