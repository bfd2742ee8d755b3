package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
)

// ══════════════════════════════════════════════════════════════════════════════
// FAKES
// ══════════════════════════════════════════════════════════════════════════════

type stubProgressRepo struct {
	mu      sync.Mutex
	rows    map[string]*achievement.Progress
	unlocks []*achievement.UnlockRecord
}

func newStubProgressRepo() *stubProgressRepo {
	return &stubProgressRepo{rows: make(map[string]*achievement.Progress)}
}

func (r *stubProgressRepo) addUnlocked(userID, achievementID string, value int, at time.Time) {
	p := achievement.NewProgress(userID, achievementID)
	p.Value = value
	p.UnlockedAt = &at
	r.rows[userID+"|"+achievementID] = p
	r.unlocks = append(r.unlocks, &achievement.UnlockRecord{
		UserID: userID, AchievementID: achievementID, UnlockedAt: at,
	})
}

func (r *stubProgressRepo) addInProgress(userID, achievementID string, value int) {
	p := achievement.NewProgress(userID, achievementID)
	p.Value = value
	r.rows[userID+"|"+achievementID] = p
}

func (r *stubProgressRepo) Get(_ context.Context, userID, achievementID string) (*achievement.Progress, error) {
	p, ok := r.rows[userID+"|"+achievementID]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return p, nil
}

func (r *stubProgressRepo) ListForUser(_ context.Context, userID string) ([]*achievement.Progress, error) {
	var out []*achievement.Progress
	for _, p := range r.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *stubProgressRepo) Mutate(context.Context, string, string, achievement.MutateFunc) (*achievement.Progress, *achievement.UnlockRecord, error) {
	panic("queries never mutate")
}

func (r *stubProgressRepo) HasUnlock(_ context.Context, userID, achievementID string) (bool, error) {
	_, ok := r.rows[userID+"|"+achievementID]
	return ok, nil
}

func (r *stubProgressRepo) ListUnlocks(_ context.Context, userID string) ([]*achievement.UnlockRecord, error) {
	var out []*achievement.UnlockRecord
	for _, rec := range r.unlocks {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type stubLedger struct {
	points int
	badges []string
}

func (l *stubLedger) Apply(context.Context, *reward.LedgerEntry) (bool, error) { return false, nil }
func (l *stubLedger) Has(context.Context, string) (bool, error)               { return false, nil }
func (l *stubLedger) ListForUser(context.Context, string) ([]*reward.LedgerEntry, error) {
	return nil, nil
}
func (l *stubLedger) TotalPoints(context.Context, string) (int, error) { return l.points, nil }
func (l *stubLedger) Badges(context.Context, string) ([]string, error) { return l.badges, nil }

type stubStreakRepo struct {
	state *streak.State
}

func (r *stubStreakRepo) Get(_ context.Context, userID string) (*streak.State, error) {
	if r.state == nil {
		return nil, shared.ErrStreakNotFound
	}
	return r.state, nil
}

func (r *stubStreakRepo) Mutate(context.Context, string, streak.MutateFunc) (*streak.State, error) {
	panic("queries never mutate")
}

func (r *stubStreakRepo) ListAtRisk(context.Context, int) ([]*streak.State, error) { return nil, nil }

// ══════════════════════════════════════════════════════════════════════════════
// GET ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

func TestGetAchievements_NewUserSeesFullVisibleCatalog(t *testing.T) {
	catalog := achievement.DefaultCatalog()
	h := NewGetAchievementsHandler(catalog, newStubProgressRepo())

	result, err := h.Handle(context.Background(), GetAchievementsQuery{UserID: "user1"})
	require.NoError(t, err)

	secretCount := 0
	for _, def := range catalog.All() {
		if def.IsSecret {
			secretCount++
		}
	}
	assert.Len(t, result.Achievements, catalog.Len()-secretCount,
		"locked secrets are omitted from the default view")

	for _, v := range result.Achievements {
		assert.False(t, v.IsUnlocked)
		assert.Equal(t, 0, v.Progress)
	}
}

func TestGetAchievements_SecretStaysRedactedUntilUnlock(t *testing.T) {
	catalog := achievement.DefaultCatalog()
	repo := newStubProgressRepo()
	h := NewGetAchievementsHandler(catalog, repo)
	ctx := context.Background()

	// Locked secret, include_secret on: present but redacted.
	result, err := h.Handle(ctx, GetAchievementsQuery{UserID: "user1", IncludeSecret: true})
	require.NoError(t, err)

	var secret *AchievementView
	for i := range result.Achievements {
		if result.Achievements[i].ID == "midnight_snacker" {
			secret = &result.Achievements[i]
		}
	}
	require.NotNil(t, secret)
	assert.Equal(t, "???", secret.Title)
	assert.Empty(t, secret.Description)
	assert.Equal(t, 0, secret.Target, "hidden progress stays zeroed")

	// After unlock the real copy is revealed even without include_secret.
	repo.addUnlocked("user1", "midnight_snacker", 5, time.Now().UTC())
	result, err = h.Handle(ctx, GetAchievementsQuery{UserID: "user1"})
	require.NoError(t, err)

	secret = nil
	for i := range result.Achievements {
		if result.Achievements[i].ID == "midnight_snacker" {
			secret = &result.Achievements[i]
		}
	}
	require.NotNil(t, secret)
	assert.True(t, secret.IsUnlocked)
	assert.NotEqual(t, "???", secret.Title)
	assert.NotNil(t, secret.UnlockedAt)
}

func TestGetAchievements_ProgressVisibility(t *testing.T) {
	catalog := achievement.DefaultCatalog()
	repo := newStubProgressRepo()
	repo.addInProgress("user1", "prolific_poster", 10)
	h := NewGetAchievementsHandler(catalog, repo)

	result, err := h.Handle(context.Background(), GetAchievementsQuery{UserID: "user1"})
	require.NoError(t, err)

	for _, v := range result.Achievements {
		if v.ID == "prolific_poster" {
			assert.Equal(t, 10, v.Progress)
			assert.Equal(t, 25, v.Target)
		}
	}
}

func TestGetAchievements_RequiresUserID(t *testing.T) {
	h := NewGetAchievementsHandler(achievement.DefaultCatalog(), newStubProgressRepo())

	_, err := h.Handle(context.Background(), GetAchievementsQuery{})
	assert.ErrorIs(t, err, shared.ErrMissingUserID)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STATS
// ══════════════════════════════════════════════════════════════════════════════

// catalogPoints sums the catalog point rewards over a set of unlocked
// achievement IDs, the way the summary defines totalPoints.
func catalogPoints(t *testing.T, catalog *achievement.Catalog, ids ...string) int {
	t.Helper()
	total := 0
	for _, id := range ids {
		def, ok := catalog.Get(id)
		require.True(t, ok, "unknown achievement %q", id)
		if def.Reward.Type == shared.RewardPoints {
			total += def.Reward.Value
		}
	}
	return total
}

func TestGetStats_ComputesSummary(t *testing.T) {
	catalog := achievement.DefaultCatalog()
	repo := newStubProgressRepo()
	repo.addUnlocked("user1", "first_italian", 1, time.Now().UTC())
	repo.addUnlocked("user1", "cuisine_explorer", 10, time.Now().UTC())
	ledger := &stubLedger{points: 350, badges: []string{"badge_cuisine_explorer"}}

	h := NewGetStatsHandler(catalog, repo, ledger)
	view, err := h.Handle(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, catalog.Len(), view.TotalAchievements)
	assert.Equal(t, 2, view.UnlockedCount)
	assert.Equal(t, catalogPoints(t, catalog, "first_italian", "cuisine_explorer"), view.TotalPoints,
		"totalPoints comes from catalog rewards of the unlocked set")
	assert.Equal(t, 350, view.PointsBalance, "ledger balance reported separately")
	assert.Equal(t, []string{"badge_cuisine_explorer"}, view.Badges)
	assert.Equal(t, 1, view.RarityBreakdown[shared.RarityCommon])
	assert.Equal(t, 1, view.RarityBreakdown[shared.RarityEpic])

	expected := float64(2) / float64(catalog.Len()) * 100
	assert.InDelta(t, expected, view.CompletionPercentage, 0.05)
}

func TestGetStats_TotalPointsIgnoresLedgerLag(t *testing.T) {
	// A freshly unlocked points achievement counts immediately, even though
	// its reward has not been dispatched to the ledger yet. Milestone points
	// sitting in the ledger never leak into totalPoints.
	catalog := achievement.DefaultCatalog()
	repo := newStubProgressRepo()
	repo.addUnlocked("user1", "first_italian", 1, time.Now().UTC())
	ledger := &stubLedger{points: 70} // a 7-day milestone reward, nothing else

	h := NewGetStatsHandler(catalog, repo, ledger)
	view, err := h.Handle(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, catalogPoints(t, catalog, "first_italian"), view.TotalPoints)
	assert.Equal(t, 70, view.PointsBalance)
}

func TestGetStats_EmptyCatalogIsZeroPercent(t *testing.T) {
	catalog, err := achievement.NewCatalog(nil)
	require.NoError(t, err)

	h := NewGetStatsHandler(catalog, newStubProgressRepo(), &stubLedger{})
	view, err := h.Handle(context.Background(), "user1")
	require.NoError(t, err)

	assert.Zero(t, view.CompletionPercentage)
	assert.Zero(t, view.TotalAchievements)
}

// ══════════════════════════════════════════════════════════════════════════════
// GET STREAK INFO
// ══════════════════════════════════════════════════════════════════════════════

func TestGetStreakInfo_NoStateYieldsZeroView(t *testing.T) {
	h := NewGetStreakInfoHandler(&stubStreakRepo{})

	view, err := h.Handle(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, "user1", view.UserID)
	assert.Zero(t, view.CurrentStreak)
	assert.Equal(t, 7, view.NextMilestone)
}

func TestGetStreakInfo_ReflectsState(t *testing.T) {
	state := streak.New("user1")
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 8; i++ {
		state.RecordActivity(start.AddDate(0, 0, i))
	}
	state.AddFreezes(2)

	h := NewGetStreakInfoHandler(&stubStreakRepo{state: state})
	view, err := h.Handle(context.Background(), "user1")
	require.NoError(t, err)

	assert.Equal(t, 8, view.CurrentStreak)
	assert.Equal(t, 8, view.LongestStreak)
	assert.Equal(t, 2, view.FreezeCount)
	assert.Equal(t, []int{7}, view.AchievedMilestones)
	assert.Equal(t, 14, view.NextMilestone)
}
