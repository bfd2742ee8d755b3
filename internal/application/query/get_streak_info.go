package query

import (
	"context"
	"errors"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK INFO QUERY
// ══════════════════════════════════════════════════════════════════════════════

// StreakInfoView is the user's streak as collaborators see it.
// IsStreakActive is derived at read time, never stored.
type StreakInfoView struct {
	UserID             string `json:"user_id"`
	CurrentStreak      int    `json:"current_streak"`
	LongestStreak      int    `json:"longest_streak"`
	LastActiveDay      string `json:"last_active_day,omitempty"`
	FreezeCount        int    `json:"freeze_count"`
	IsStreakActive     bool   `json:"is_streak_active"`
	IsAtRisk           bool   `json:"is_at_risk"`
	NextMilestone      int    `json:"next_milestone,omitempty"`
	AchievedMilestones []int  `json:"achieved_milestones,omitempty"`
}

// GetStreakInfoHandler serves the streak read model.
type GetStreakInfoHandler struct {
	streaks streak.Repository
}

// NewGetStreakInfoHandler creates the handler.
func NewGetStreakInfoHandler(streaks streak.Repository) *GetStreakInfoHandler {
	return &GetStreakInfoHandler{streaks: streaks}
}

// Handle returns the user's streak info. A user with no activity yet gets an
// all-zero view rather than an error: every user conceptually has a streak.
func (h *GetStreakInfoHandler) Handle(ctx context.Context, userID string) (*StreakInfoView, error) {
	if userID == "" {
		return nil, shared.ErrMissingUserID
	}

	state, err := h.streaks.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return &StreakInfoView{
				UserID:        userID,
				NextMilestone: shared.NextMilestone(0),
			}, nil
		}
		return nil, shared.WrapError("streak", "Get", shared.ErrStorage, "failed to load streak", err)
	}

	now := timeutil.Now()
	view := &StreakInfoView{
		UserID:             state.UserID,
		CurrentStreak:      state.CurrentStreak,
		LongestStreak:      state.LongestStreak,
		FreezeCount:        state.FreezeCount,
		IsStreakActive:     state.IsActive(now),
		IsAtRisk:           state.IsAtRisk(now),
		NextMilestone:      state.NextMilestone(),
		AchievedMilestones: state.AchievedMilestones,
	}
	if !state.LastActiveDay.IsZero() {
		view.LastActiveDay = timeutil.FormatDayStr(state.LastActiveDay)
	}
	return view, nil
}
