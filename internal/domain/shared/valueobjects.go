// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT CATEGORY
// ══════════════════════════════════════════════════════════════════════════════

// Category classifies achievements into a fixed set of product areas.
// The engine treats categories as identity only; all presentation metadata
// (colors, icons, gradients) lives in the UI layer, never here.
type Category string

const (
	// CategoryCulinary - achievements about trying dishes and cuisines.
	CategoryCulinary Category = "culinary"

	// CategorySocial - achievements about friends, likes, and interactions.
	CategorySocial Category = "social"

	// CategoryExploration - achievements about visiting new places.
	CategoryExploration Category = "exploration"

	// CategoryMilestone - long-horizon achievements (streaks, totals).
	CategoryMilestone Category = "milestone"
)

// AllCategories returns the closed set of categories.
func AllCategories() []Category {
	return []Category{CategoryCulinary, CategorySocial, CategoryExploration, CategoryMilestone}
}

// IsValid reports whether the category is one of the known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryCulinary, CategorySocial, CategoryExploration, CategoryMilestone:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (c Category) String() string { return string(c) }

// ParseCategory parses a string into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: unknown category %q", ErrInvalidInput, s)
	}
	return c, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RARITY
// ══════════════════════════════════════════════════════════════════════════════

// Rarity is the totally ordered scarcity tier of an achievement:
// common < rare < epic < legendary.
type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

// rarityOrder defines the total order used by Less.
var rarityOrder = map[Rarity]int{
	RarityCommon:    0,
	RarityRare:      1,
	RarityEpic:      2,
	RarityLegendary: 3,
}

// AllRarities returns rarities in ascending order.
func AllRarities() []Rarity {
	return []Rarity{RarityCommon, RarityRare, RarityEpic, RarityLegendary}
}

// IsValid reports whether the rarity is one of the known tiers.
func (r Rarity) IsValid() bool {
	_, ok := rarityOrder[r]
	return ok
}

// Less reports whether r orders strictly below other.
func (r Rarity) Less(other Rarity) bool {
	return rarityOrder[r] < rarityOrder[other]
}

// String returns the string representation.
func (r Rarity) String() string { return string(r) }

// ParseRarity parses a string into a Rarity.
func ParseRarity(s string) (Rarity, error) {
	r := Rarity(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", fmt.Errorf("%w: unknown rarity %q", ErrInvalidInput, s)
	}
	return r, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATION
// ══════════════════════════════════════════════════════════════════════════════

// Aggregation describes how an achievement's progress counter advances
// in response to matching events.
type Aggregation string

const (
	// AggregationCount - every matching event advances progress by one.
	AggregationCount Aggregation = "count"

	// AggregationDistinctCount - progress advances only when the event carries
	// a distinct value not yet seen for this (user, achievement), e.g. a new
	// cuisine tried.
	AggregationDistinctCount Aggregation = "distinctCount"

	// AggregationMaxStreak - progress mirrors the user's current daily streak
	// instead of counting events.
	AggregationMaxStreak Aggregation = "maxStreak"
)

// IsValid reports whether the aggregation is a known mode.
func (a Aggregation) IsValid() bool {
	switch a {
	case AggregationCount, AggregationDistinctCount, AggregationMaxStreak:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (a Aggregation) String() string { return string(a) }

// ══════════════════════════════════════════════════════════════════════════════
// REWARD TYPE
// ══════════════════════════════════════════════════════════════════════════════

// RewardType identifies what kind of reward an unlock grants.
type RewardType string

const (
	// RewardPoints - increments the user's points ledger by Reward.Value.
	RewardPoints RewardType = "points"

	// RewardBadge - grants a badge identifier to the user's badge set.
	RewardBadge RewardType = "badge"
)

// IsValid reports whether the reward type is known.
func (t RewardType) IsValid() bool {
	return t == RewardPoints || t == RewardBadge
}

// String returns the string representation.
func (t RewardType) String() string { return string(t) }

// ══════════════════════════════════════════════════════════════════════════════
// STREAK MILESTONES
// ══════════════════════════════════════════════════════════════════════════════

// StreakMilestones is the fixed, ascending set of streak-length thresholds
// that trigger their own rewards independent of the achievement catalog.
var StreakMilestones = []int{7, 14, 30, 60, 100, 365}

// IsMilestone reports whether n is one of the fixed milestone thresholds.
func IsMilestone(n int) bool {
	for _, m := range StreakMilestones {
		if m == n {
			return true
		}
	}
	return false
}

// NextMilestone returns the smallest milestone strictly greater than streak,
// or 0 when the streak is already past the largest threshold.
func NextMilestone(streak int) int {
	for _, m := range StreakMilestones {
		if m > streak {
			return m
		}
	}
	return 0
}
