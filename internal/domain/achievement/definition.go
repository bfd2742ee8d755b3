// Package achievement contains the achievement catalog and per-user progress
// model: static definitions, running progress counters, and the one-way
// unlock transition that the evaluator drives.
package achievement

import (
	"fmt"
	"strings"

	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Requirement describes what a user must do to unlock an achievement.
type Requirement struct {
	// EventType - the activity-event type this requirement counts.
	EventType activity.EventType `json:"event_type"`

	// TargetValue - the progress value at which the achievement unlocks.
	TargetValue int `json:"target_value"`

	// Aggregation - how matching events advance progress.
	Aggregation shared.Aggregation `json:"aggregation"`

	// DistinctKey - for distinctCount, the payload key whose values are
	// counted (e.g. "cuisine", "place_id"). Ignored for other aggregations.
	DistinctKey string `json:"distinct_key,omitempty"`
}

// Reward describes what an unlock grants.
type Reward struct {
	// Type - points or badge.
	Type shared.RewardType `json:"type"`

	// Value - point amount for points rewards; ignored for badges.
	Value int `json:"value"`

	// BadgeID - badge identifier for badge rewards.
	BadgeID string `json:"badge_id,omitempty"`

	// Title - short celebratory title shown by collaborators.
	Title string `json:"title"`

	// Description - longer reward description.
	Description string `json:"description,omitempty"`
}

// Definition is a static catalog entry describing one unlockable achievement.
// Definitions are read-only at runtime and loaded once at bootstrap.
type Definition struct {
	// ID - stable catalog identifier, e.g. "first_italian".
	ID string `json:"id"`

	// Title and Description are the user-facing copy. For secret achievements
	// these are redacted in collaborator views until unlocked.
	Title       string `json:"title"`
	Description string `json:"description"`

	// IconRef - opaque reference resolved by the UI layer.
	IconRef string `json:"icon_ref,omitempty"`

	// Category and Rarity classify the achievement.
	Category shared.Category `json:"category"`
	Rarity   shared.Rarity   `json:"rarity"`

	// Requirement - the unlock condition.
	Requirement Requirement `json:"requirement"`

	// Reward - granted exactly once on unlock.
	Reward Reward `json:"reward"`

	// IsSecret - hidden from collaborators until unlocked. Evaluated
	// identically to visible achievements.
	IsSecret bool `json:"is_secret"`

	// IsProgressVisible - whether collaborators may show the running counter.
	IsProgressVisible bool `json:"is_progress_visible"`
}

// Validate checks the definition for catalog admission.
func (d Definition) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return shared.WrapError("achievement", "Validate", shared.ErrEmptyValue, "definition ID is required", nil)
	}
	if !d.Category.IsValid() {
		return fmt.Errorf("%w: definition %q: bad category %q", shared.ErrInvalidDefinition, d.ID, d.Category)
	}
	if !d.Rarity.IsValid() {
		return fmt.Errorf("%w: definition %q: bad rarity %q", shared.ErrInvalidDefinition, d.ID, d.Rarity)
	}
	if !d.Requirement.Aggregation.IsValid() {
		return fmt.Errorf("%w: definition %q: bad aggregation %q", shared.ErrInvalidDefinition, d.ID, d.Requirement.Aggregation)
	}
	if d.Requirement.TargetValue <= 0 {
		return fmt.Errorf("%w: definition %q: target value must be positive", shared.ErrInvalidDefinition, d.ID)
	}
	if strings.TrimSpace(string(d.Requirement.EventType)) == "" {
		return fmt.Errorf("%w: definition %q: requirement event type is required", shared.ErrInvalidDefinition, d.ID)
	}
	if !d.Reward.Type.IsValid() {
		return fmt.Errorf("%w: definition %q: bad reward type %q", shared.ErrInvalidDefinition, d.ID, d.Reward.Type)
	}
	if d.Reward.Type == shared.RewardPoints && d.Reward.Value <= 0 {
		return fmt.Errorf("%w: definition %q: points reward must be positive", shared.ErrInvalidDefinition, d.ID)
	}
	if d.Reward.Type == shared.RewardBadge && strings.TrimSpace(d.Reward.BadgeID) == "" {
		return fmt.Errorf("%w: definition %q: badge reward requires badge_id", shared.ErrInvalidDefinition, d.ID)
	}
	return nil
}

// Grant returns the reward as the wire-level grant collaborators receive.
func (d Definition) Grant() shared.RewardGrant {
	return shared.RewardGrant{
		Type:  d.Reward.Type,
		Value: d.Reward.Value,
		Title: d.Reward.Title,
	}
}
