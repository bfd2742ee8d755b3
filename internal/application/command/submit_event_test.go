package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
)

// gateway assembles the full submit pipeline over in-memory fakes.
type gateway struct {
	submit   *SubmitEventHandler
	streaks  *TrackStreakHandler
	evaluate *EvaluateAchievementsHandler

	dedup    *fakeDedup
	streakDB *fakeStreakRepo
	progress *fakeProgressRepo
	outbox   *fakeOutbox
	bus      *fakePublisher
}

func newGateway(t *testing.T, defs []achievement.Definition) *gateway {
	t.Helper()

	catalog, err := achievement.NewCatalog(defs)
	require.NoError(t, err)

	g := &gateway{
		dedup:    newFakeDedup(),
		streakDB: newFakeStreakRepo(),
		progress: newFakeProgressRepo(),
		outbox:   newFakeOutbox(),
		bus:      &fakePublisher{},
	}
	log := newTestLogger()
	g.streaks = NewTrackStreakHandler(g.streakDB, g.outbox, g.bus, log)
	g.evaluate = NewEvaluateAchievementsHandler(catalog, g.progress, g.outbox, g.bus, log)
	g.submit = NewSubmitEventHandler(g.dedup, g.streaks, g.evaluate, log, DefaultSubmitEventConfig())
	return g
}

func simpleDefs() []achievement.Definition {
	return []achievement.Definition{
		{
			ID:          "first_post",
			Title:       "First Post",
			Description: "Publish one post.",
			Category:    shared.CategoryCulinary,
			Rarity:      shared.RarityCommon,
			Requirement: achievement.Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 1,
				Aggregation: shared.AggregationCount,
			},
			Reward:            achievement.Reward{Type: shared.RewardPoints, Value: 50, Title: "First Post"},
			IsProgressVisible: true,
		},
		{
			ID:          "two_day_fire",
			Title:       "Two-Day Fire",
			Description: "Reach a 2-day streak.",
			Category:    shared.CategoryMilestone,
			Rarity:      shared.RarityRare,
			Requirement: achievement.Requirement{
				EventType:   activity.EventPostCreated,
				TargetValue: 2,
				Aggregation: shared.AggregationMaxStreak,
			},
			Reward:            achievement.Reward{Type: shared.RewardPoints, Value: 100, Title: "Two-Day Fire"},
			IsProgressVisible: true,
		},
	}
}

func submitCmd(key, userID string, ts time.Time) SubmitEventCommand {
	return SubmitEventCommand{
		IdempotencyKey: key,
		UserID:         userID,
		Type:           string(activity.EventPostCreated),
		Timestamp:      ts,
	}
}

func TestSubmitEvent_RejectsMissingIdempotencyKey(t *testing.T) {
	g := newGateway(t, simpleDefs())

	result, err := g.submit.Handle(context.Background(), submitCmd("", "user1", time.Now()))

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, result.Status)
	assert.NotEmpty(t, result.Reason)
	assert.Empty(t, result.Unlocks)
}

func TestSubmitEvent_RejectsFutureTimestamp(t *testing.T) {
	g := newGateway(t, simpleDefs())

	result, err := g.submit.Handle(context.Background(),
		submitCmd("evt-1", "user1", time.Now().Add(48*time.Hour)))

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, result.Status)

	// A rejection never consumes the idempotency key.
	seen, _ := g.dedup.Seen(context.Background(), "evt-1")
	assert.False(t, seen)
}

func TestSubmitEvent_AcceptedUnlocksAndStartsStreak(t *testing.T) {
	g := newGateway(t, simpleDefs())

	result, err := g.submit.Handle(context.Background(), submitCmd("evt-1", "user1", time.Now()))

	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)

	require.Len(t, result.Unlocks, 1)
	assert.Equal(t, "first_post", result.Unlocks[0].AchievementID)

	require.NotNil(t, result.StreakOutcome)
	assert.Equal(t, streak.ResultStarted, result.StreakOutcome.Result)
	assert.Equal(t, 1, result.StreakOutcome.CurrentStreak)

	// The unlock went to the reward backlog and the bus.
	assert.Equal(t, 1, g.outbox.len())
	assert.Len(t, g.bus.byType(shared.EventAchievementUnlocked), 1)
}

func TestSubmitEvent_DuplicateKeyIsNoOp(t *testing.T) {
	g := newGateway(t, simpleDefs())
	ctx := context.Background()

	first, err := g.submit.Handle(ctx, submitCmd("evt-1", "user1", time.Now()))
	require.NoError(t, err)
	require.Equal(t, StatusAccepted, first.Status)

	second, err := g.submit.Handle(ctx, submitCmd("evt-1", "user1", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Empty(t, second.Unlocks)

	// Nothing advanced twice.
	state, err := g.streakDB.Get(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentStreak)
	assert.Equal(t, 1, g.outbox.len())
}

func TestSubmitEvent_MaxStreakObservesOwnTransition(t *testing.T) {
	g := newGateway(t, simpleDefs())
	ctx := context.Background()
	day1 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	_, err := g.submit.Handle(ctx, submitCmd("evt-1", "user1", day1))
	require.NoError(t, err)

	result, err := g.submit.Handle(ctx, submitCmd("evt-2", "user1", day2))
	require.NoError(t, err)

	// The day-2 event extends the streak to 2 and the maxStreak achievement
	// sees that same transition, not the pre-event streak.
	require.NotNil(t, result.StreakOutcome)
	assert.Equal(t, 2, result.StreakOutcome.CurrentStreak)

	ids := make([]string, 0, len(result.Unlocks))
	for _, u := range result.Unlocks {
		ids = append(ids, u.AchievementID)
	}
	assert.Contains(t, ids, "two_day_fire")
}

func TestSubmitEvent_NonStreakEventSkipsTracker(t *testing.T) {
	g := newGateway(t, simpleDefs())

	result, err := g.submit.Handle(context.Background(), SubmitEventCommand{
		IdempotencyKey: "evt-1",
		UserID:         "user1",
		Type:           string(activity.EventLikeGiven),
		Timestamp:      time.Now(),
	})

	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)
	assert.Nil(t, result.StreakOutcome)

	_, err = g.streakDB.Get(context.Background(), "user1")
	assert.ErrorIs(t, err, shared.ErrStreakNotFound)
}

func TestSubmitEvent_CompensatesDedupOnFailure(t *testing.T) {
	g := newGateway(t, simpleDefs())
	ctx := context.Background()

	g.progress.failMutate = true
	_, err := g.submit.Handle(ctx, submitCmd("evt-1", "user1", time.Now()))
	require.Error(t, err)

	// The key was released, so the caller's retry is processed, not
	// misread as a duplicate.
	seen, _ := g.dedup.Seen(ctx, "evt-1")
	assert.False(t, seen)

	g.progress.failMutate = false
	result, err := g.submit.Handle(ctx, submitCmd("evt-1", "user1", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, result.Status)
	assert.Len(t, result.Unlocks, 1)
}

func TestSubmitEvent_DedupOutageIsRetryable(t *testing.T) {
	g := newGateway(t, simpleDefs())
	g.dedup.failRegister = true

	_, err := g.submit.Handle(context.Background(), submitCmd("evt-1", "user1", time.Now()))

	require.Error(t, err)
	assert.False(t, IsRejection(err))
}
