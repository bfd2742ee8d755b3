// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS QUERY
// The collaborator-facing achievement list. Secrecy and progress visibility
// are enforced here, on the read side; the evaluator never redacts anything.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementView is one achievement as collaborators see it.
type AchievementView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	IconRef     string          `json:"icon_ref,omitempty"`
	Category    shared.Category `json:"category"`
	Rarity      shared.Rarity   `json:"rarity"`

	// Progress and Target are zeroed when the definition hides progress.
	Progress int `json:"progress"`
	Target   int `json:"target"`

	IsSecret   bool       `json:"is_secret"`
	IsUnlocked bool       `json:"is_unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`

	RewardType  shared.RewardType `json:"reward_type"`
	RewardValue int               `json:"reward_value,omitempty"`
}

// GetAchievementsQuery requests one user's achievement list.
type GetAchievementsQuery struct {
	UserID string

	// IncludeSecret includes still-locked secret achievements in redacted
	// form instead of omitting them. Off for collaborator surfaces.
	IncludeSecret bool
}

// GetAchievementsResult is the ordered achievement list.
type GetAchievementsResult struct {
	UserID       string            `json:"user_id"`
	Achievements []AchievementView `json:"achievements"`
}

// GetAchievementsHandler serves the achievement list.
type GetAchievementsHandler struct {
	catalog  *achievement.Catalog
	progress achievement.ProgressRepository
}

// NewGetAchievementsHandler creates the handler.
func NewGetAchievementsHandler(catalog *achievement.Catalog, progress achievement.ProgressRepository) *GetAchievementsHandler {
	return &GetAchievementsHandler{catalog: catalog, progress: progress}
}

// Handle returns the user's achievements in the catalog's stable order.
// Users with no progress rows see the full visible catalog at zero progress.
func (h *GetAchievementsHandler) Handle(ctx context.Context, q GetAchievementsQuery) (*GetAchievementsResult, error) {
	if q.UserID == "" {
		return nil, shared.ErrMissingUserID
	}

	rows, err := h.progress.ListForUser(ctx, q.UserID)
	if err != nil {
		return nil, shared.WrapError("achievement", "List", shared.ErrStorage, "failed to list progress", err)
	}
	byID := make(map[string]*achievement.Progress, len(rows))
	for _, p := range rows {
		byID[p.AchievementID] = p
	}

	result := &GetAchievementsResult{
		UserID:       q.UserID,
		Achievements: make([]AchievementView, 0, h.catalog.Len()),
	}
	for _, def := range h.catalog.All() {
		view, visible := buildView(def, byID[def.ID], q.IncludeSecret)
		if visible {
			result.Achievements = append(result.Achievements, view)
		}
	}
	return result, nil
}

// buildView applies the visibility rules for one definition.
func buildView(def achievement.Definition, p *achievement.Progress, includeSecret bool) (AchievementView, bool) {
	unlocked := p != nil && p.IsUnlocked()

	// Locked secrets are omitted from collaborator lists entirely.
	if def.IsSecret && !unlocked && !includeSecret {
		return AchievementView{}, false
	}

	view := AchievementView{
		ID:          def.ID,
		Title:       def.Title,
		Description: def.Description,
		IconRef:     def.IconRef,
		Category:    def.Category,
		Rarity:      def.Rarity,
		IsSecret:    def.IsSecret,
		IsUnlocked:  unlocked,
		RewardType:  def.Reward.Type,
		RewardValue: def.Reward.Value,
	}

	if def.IsSecret && !unlocked {
		view.Title = "???"
		view.Description = ""
		view.IconRef = ""
	}

	if def.IsProgressVisible || unlocked {
		view.Target = def.Requirement.TargetValue
		if p != nil {
			view.Progress = p.Value
		}
	}
	if unlocked {
		view.UnlockedAt = p.UnlockedAt
	}
	return view, true
}
