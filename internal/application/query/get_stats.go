package query

import (
	"context"
	"math"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS QUERY
// The stats aggregator: a pure read over unlock records and the reward
// ledger. Never mutates, never caches staleness-sensitive values itself.
// ══════════════════════════════════════════════════════════════════════════════

// StatsView is the per-user progression summary.
type StatsView struct {
	UserID string `json:"user_id"`

	// TotalAchievements is the catalog size; UnlockedCount the user's unlocks.
	TotalAchievements int `json:"total_achievements"`
	UnlockedCount     int `json:"unlocked_count"`

	// CompletionPercentage is unlocked/total in percent, one decimal,
	// 0 for an empty catalog.
	CompletionPercentage float64 `json:"completion_percentage"`

	// TotalPoints sums the catalog point rewards of the unlocked
	// achievements. It moves with the unlock, not with the ledger, so a
	// fresh unlock is reflected before its reward is dispatched.
	TotalPoints int `json:"total_points"`

	// PointsBalance is the applied ledger balance: achievement points once
	// dispatched, plus streak milestone points.
	PointsBalance int `json:"points_balance"`

	// Badges are the badge identifiers granted so far.
	Badges []string `json:"badges,omitempty"`

	// RarityBreakdown counts unlocks per rarity tier.
	RarityBreakdown map[shared.Rarity]int `json:"rarity_breakdown"`
}

// GetStatsHandler serves the progression summary.
type GetStatsHandler struct {
	catalog  *achievement.Catalog
	progress achievement.ProgressRepository
	ledger   reward.LedgerRepository
}

// NewGetStatsHandler creates the handler.
func NewGetStatsHandler(
	catalog *achievement.Catalog,
	progress achievement.ProgressRepository,
	ledger reward.LedgerRepository,
) *GetStatsHandler {
	return &GetStatsHandler{catalog: catalog, progress: progress, ledger: ledger}
}

// Handle computes the user's summary.
func (h *GetStatsHandler) Handle(ctx context.Context, userID string) (*StatsView, error) {
	if userID == "" {
		return nil, shared.ErrMissingUserID
	}

	unlocks, err := h.progress.ListUnlocks(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("stats", "Summarize", shared.ErrStorage, "failed to list unlocks", err)
	}

	balance, err := h.ledger.TotalPoints(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("stats", "Summarize", shared.ErrStorage, "failed to sum points", err)
	}

	badges, err := h.ledger.Badges(ctx, userID)
	if err != nil {
		return nil, shared.WrapError("stats", "Summarize", shared.ErrStorage, "failed to list badges", err)
	}

	view := &StatsView{
		UserID:            userID,
		TotalAchievements: h.catalog.Len(),
		UnlockedCount:     len(unlocks),
		PointsBalance:     balance,
		Badges:            badges,
		RarityBreakdown:   make(map[shared.Rarity]int),
	}

	for _, rec := range unlocks {
		if def, ok := h.catalog.Get(rec.AchievementID); ok {
			view.RarityBreakdown[def.Rarity]++
			if def.Reward.Type == shared.RewardPoints {
				view.TotalPoints += def.Reward.Value
			}
		}
	}

	// Empty catalog reads as 0% complete, never a division by zero.
	if view.TotalAchievements > 0 {
		pct := float64(view.UnlockedCount) / float64(view.TotalAchievements) * 100
		view.CompletionPercentage = math.Round(pct*10) / 10
	}

	return view, nil
}
