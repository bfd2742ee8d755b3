package achievement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	c := DefaultCatalog()
	assert.Equal(t, len(DefaultDefinitions()), c.Len())

	def, ok := c.Get("first_italian")
	require.True(t, ok)
	assert.Equal(t, shared.CategoryCulinary, def.Category)
	assert.Equal(t, 1, def.Requirement.TargetValue)
}

func TestCatalogRejectsDuplicateIDs(t *testing.T) {
	defs := DefaultDefinitions()[:1]
	defs = append(defs, defs[0])

	_, err := NewCatalog(defs)
	assert.ErrorIs(t, err, shared.ErrInvalidDefinition)
}

func TestCatalogRejectsInvalidDefinition(t *testing.T) {
	defs := []Definition{{
		ID:       "broken",
		Category: shared.CategoryCulinary,
		Rarity:   shared.RarityCommon,
		Requirement: Requirement{
			EventType:   activity.EventPostCreated,
			TargetValue: 0, // must be positive
			Aggregation: shared.AggregationCount,
		},
		Reward: Reward{Type: shared.RewardPoints, Value: 10},
	}}

	_, err := NewCatalog(defs)
	assert.Error(t, err)
}

func TestCatalogForEventType(t *testing.T) {
	c := DefaultCatalog()

	for _, def := range c.ForEventType(activity.EventPostCreated) {
		assert.Equal(t, activity.EventPostCreated, def.Requirement.EventType)
	}
	assert.NotEmpty(t, c.ForEventType(activity.EventPostCreated))
	assert.Empty(t, c.ForEventType(activity.EventType("neverSeen")))
}

func TestCatalogOrderIsStable(t *testing.T) {
	c := DefaultCatalog()

	first := c.All()
	second := c.All()
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}

	// Within a category, rarity ascends.
	for i := 1; i < len(first); i++ {
		if first[i-1].Category == first[i].Category {
			assert.False(t, first[i].Rarity.Less(first[i-1].Rarity),
				"rarity order violated between %s and %s", first[i-1].ID, first[i].ID)
		}
	}
}

func TestLoadCatalogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	content := `[
		{
			"id": "test_badge",
			"title": "Test Badge",
			"description": "For testing.",
			"category": "social",
			"rarity": "rare",
			"requirement": {"event_type": "likeGiven", "target_value": 5, "aggregation": "count"},
			"reward": {"type": "badge", "badge_id": "badge_test", "title": "Test Badge"},
			"is_progress_visible": true
		}
	]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	c, err := LoadCatalogFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	def, ok := c.Get("test_badge")
	require.True(t, ok)
	assert.Equal(t, shared.RewardBadge, def.Reward.Type)
	assert.Equal(t, "badge_test", def.Reward.BadgeID)
}

func TestLoadCatalogFileMissing(t *testing.T) {
	_, err := LoadCatalogFile(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
