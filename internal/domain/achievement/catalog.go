package achievement

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is the immutable set of achievement definitions the engine
// evaluates against. Built once at bootstrap; safe for concurrent reads.
type Catalog struct {
	byID    map[string]Definition
	byEvent map[activity.EventType][]Definition
	ordered []Definition
}

// NewCatalog validates and indexes the given definitions.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]Definition, len(defs)),
		byEvent: make(map[activity.EventType][]Definition),
		ordered: make([]Definition, 0, len(defs)),
	}

	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, exists := c.byID[def.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate definition %q", shared.ErrInvalidDefinition, def.ID)
		}
		c.byID[def.ID] = def
		c.byEvent[def.Requirement.EventType] = append(c.byEvent[def.Requirement.EventType], def)
		c.ordered = append(c.ordered, def)
	}

	// Stable order: category, then ascending rarity, then ID. Collaborator
	// lists depend on this being deterministic.
	sort.SliceStable(c.ordered, func(i, j int) bool {
		a, b := c.ordered[i], c.ordered[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Rarity != b.Rarity {
			return a.Rarity.Less(b.Rarity)
		}
		return a.ID < b.ID
	})

	return c, nil
}

// Get returns the definition with the given ID.
func (c *Catalog) Get(id string) (Definition, bool) {
	def, ok := c.byID[id]
	return def, ok
}

// ForEventType returns all definitions whose requirement matches eventType.
func (c *Catalog) ForEventType(eventType activity.EventType) []Definition {
	return c.byEvent[eventType]
}

// All returns every definition in stable display order.
func (c *Catalog) All() []Definition {
	out := make([]Definition, len(c.ordered))
	copy(out, c.ordered)
	return out
}

// Len returns the catalog size.
func (c *Catalog) Len() int {
	return len(c.byID)
}

// LoadCatalogFile reads a JSON array of definitions from path.
// The file fully replaces the default catalog when provided.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: failed to read %s: %w", path, err)
	}

	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("catalog: failed to parse %s: %w", path, err)
	}

	return NewCatalog(defs)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFAULT CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// DefaultDefinitions returns the built-in catalog. Deployments override it
// with a JSON catalog file; this set keeps development and tests realistic.
func DefaultDefinitions() []Definition {
	return []Definition{
		{
			ID:          "first_italian",
			Title:       "Prima Volta",
			Description: "Share your first Italian dish.",
			IconRef:     "achievements/first_italian",
			Category:    shared.CategoryCulinary,
			Rarity:      shared.RarityCommon,
			Requirement: Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 1,
				Aggregation: shared.AggregationCount,
			},
			Reward:            Reward{Type: shared.RewardPoints, Value: 50, Title: "Prima Volta"},
			IsProgressVisible: true,
		},
		{
			ID:          "prolific_poster",
			Title:       "Prolific Poster",
			Description: "Publish 25 posts.",
			IconRef:     "achievements/prolific_poster",
			Category:    shared.CategorySocial,
			Rarity:      shared.RarityRare,
			Requirement: Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 25,
				Aggregation: shared.AggregationCount,
			},
			Reward:            Reward{Type: shared.RewardPoints, Value: 250, Title: "Prolific Poster"},
			IsProgressVisible: true,
		},
		{
			ID:          "cuisine_explorer",
			Title:       "Cuisine Explorer",
			Description: "Post dishes from 10 different cuisines.",
			IconRef:     "achievements/cuisine_explorer",
			Category:    shared.CategoryCulinary,
			Rarity:      shared.RarityEpic,
			Requirement: Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 10,
				Aggregation: shared.AggregationDistinctCount,
				DistinctKey: "cuisine",
			},
			Reward:            Reward{Type: shared.RewardBadge, Value: 0, BadgeID: "badge_cuisine_explorer", Title: "Cuisine Explorer"},
			IsProgressVisible: true,
		},
		{
			ID:          "globe_trotter",
			Title:       "Globe Trotter",
			Description: "Visit 20 different places.",
			IconRef:     "achievements/globe_trotter",
			Category:    shared.CategoryExploration,
			Rarity:      shared.RarityEpic,
			Requirement: Requirement{
				EventType:   activity.EventPlaceVisited,
				TargetValue: 20,
				Aggregation: shared.AggregationDistinctCount,
				DistinctKey: "place_id",
			},
			Reward:            Reward{Type: shared.RewardBadge, Value: 0, BadgeID: "badge_globe_trotter", Title: "Globe Trotter"},
			IsProgressVisible: true,
		},
		{
			ID:          "social_butterfly",
			Title:       "Social Butterfly",
			Description: "Add 10 friends.",
			IconRef:     "achievements/social_butterfly",
			Category:    shared.CategorySocial,
			Rarity:      shared.RarityCommon,
			Requirement: Requirement{
				EventType:   activity.EventFriendAdded,
				TargetValue: 10,
				Aggregation: shared.AggregationCount,
			},
			Reward:            Reward{Type: shared.RewardPoints, Value: 100, Title: "Social Butterfly"},
			IsProgressVisible: true,
		},
		{
			ID:          "generous_heart",
			Title:       "Generous Heart",
			Description: "Give 100 likes.",
			IconRef:     "achievements/generous_heart",
			Category:    shared.CategorySocial,
			Rarity:      shared.RarityRare,
			Requirement: Requirement{
				EventType:   activity.EventLikeGiven,
				TargetValue: 100,
				Aggregation: shared.AggregationCount,
			},
			Reward:            Reward{Type: shared.RewardPoints, Value: 150, Title: "Generous Heart"},
			IsProgressVisible: true,
		},
		{
			ID:          "week_of_fire",
			Title:       "Week of Fire",
			Description: "Reach a 7-day posting streak.",
			IconRef:     "achievements/week_of_fire",
			Category:    shared.CategoryMilestone,
			Rarity:      shared.RarityRare,
			Requirement: Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 7,
				Aggregation: shared.AggregationMaxStreak,
			},
			Reward:            Reward{Type: shared.RewardPoints, Value: 200, Title: "Week of Fire"},
			IsProgressVisible: true,
		},
		{
			ID:          "iron_month",
			Title:       "Iron Month",
			Description: "Reach a 30-day posting streak.",
			IconRef:     "achievements/iron_month",
			Category:    shared.CategoryMilestone,
			Rarity:      shared.RarityLegendary,
			Requirement: Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 30,
				Aggregation: shared.AggregationMaxStreak,
			},
			Reward:            Reward{Type: shared.RewardBadge, Value: 0, BadgeID: "badge_iron_month", Title: "Iron Month"},
			IsProgressVisible: true,
		},
		{
			ID:          "midnight_snacker",
			Title:       "???",
			Description: "A secret for night owls.",
			IconRef:     "achievements/midnight_snacker",
			Category:    shared.CategoryCulinary,
			Rarity:      shared.RarityEpic,
			Requirement: Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 5,
				Aggregation: shared.AggregationDistinctCount,
				DistinctKey: "midnight_dish",
			},
			Reward:            Reward{Type: shared.RewardPoints, Value: 300, Title: "Midnight Snacker"},
			IsSecret:          true,
			IsProgressVisible: false,
		},
	}
}

// DefaultCatalog builds the catalog from DefaultDefinitions.
// Panics on invalid built-ins, which is a programmer error caught by tests.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultDefinitions())
	if err != nil {
		panic(fmt.Sprintf("achievement: default catalog invalid: %v", err))
	}
	return c
}
