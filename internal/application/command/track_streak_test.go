package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/domain/activity"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
)

func streakEvent(userID string, ts time.Time) activity.Event {
	return activity.Event{
		IdempotencyKey: "evt-" + ts.Format("20060102"),
		UserID:         userID,
		Type:           activity.EventPostCreated,
		Timestamp:      ts,
	}
}

func TestTrackStreak_MilestoneEnqueuedExactlyOnce(t *testing.T) {
	streaks := newFakeStreakRepo()
	outbox := newFakeOutbox()
	bus := &fakePublisher{}
	h := NewTrackStreakHandler(streaks, outbox, bus, newTestLogger())
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		_, _, err := h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, i)))
		require.NoError(t, err)
	}

	// One milestone item for day 7, nothing before.
	require.Equal(t, 1, outbox.len())
	due, err := outbox.Due(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, reward.KindMilestone, due[0].Kind)
	assert.Equal(t, 7, due[0].Milestone)
	assert.Len(t, bus.byType(shared.EventMilestoneCrossed), 1)

	// Replaying the day-7 event is an unchanged transition; the backlog
	// does not grow.
	_, outcome, err := h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, 6)))
	require.NoError(t, err)
	assert.Equal(t, streak.ResultUnchanged, outcome.Result)
	assert.Equal(t, 1, outbox.len())
}

func TestTrackStreak_GrowthPublishesExtendedEvent(t *testing.T) {
	streaks := newFakeStreakRepo()
	bus := &fakePublisher{}
	h := NewTrackStreakHandler(streaks, newFakeOutbox(), bus, newTestLogger())
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, _, err := h.Handle(ctx, streakEvent("user1", start))
	require.NoError(t, err)
	_, _, err = h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, 1)))
	require.NoError(t, err)

	// Start and extension both grow the streak; a same-day replay does not.
	assert.Len(t, bus.byType(shared.EventStreakExtended), 2)

	_, _, err = h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.Len(t, bus.byType(shared.EventStreakExtended), 2)
}

func TestTrackStreak_BrokenStreakPublishesEvent(t *testing.T) {
	streaks := newFakeStreakRepo()
	outbox := newFakeOutbox()
	bus := &fakePublisher{}
	h := NewTrackStreakHandler(streaks, outbox, bus, newTestLogger())
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, _, err := h.Handle(ctx, streakEvent("user1", start))
	require.NoError(t, err)
	_, _, err = h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, 1)))
	require.NoError(t, err)

	_, outcome, err := h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, 5)))
	require.NoError(t, err)

	assert.Equal(t, streak.ResultReset, outcome.Result)
	assert.Equal(t, 2, outcome.PreviousStreak)
	assert.Equal(t, 1, outcome.CurrentStreak)
	assert.Len(t, bus.byType(shared.EventStreakBroken), 1)
}

func TestTrackStreak_FreezeBridgesGap(t *testing.T) {
	streaks := newFakeStreakRepo()
	h := NewTrackStreakHandler(streaks, newFakeOutbox(), &fakePublisher{}, newTestLogger())
	ctx := context.Background()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	_, _, err := h.Handle(ctx, streakEvent("user1", start))
	require.NoError(t, err)

	_, err = h.AddFreezes(ctx, "user1", 1)
	require.NoError(t, err)

	_, outcome, err := h.Handle(ctx, streakEvent("user1", start.AddDate(0, 0, 2)))
	require.NoError(t, err)

	assert.Equal(t, streak.ResultFrozen, outcome.Result)
	assert.Equal(t, 2, outcome.CurrentStreak)
	assert.Equal(t, 1, outcome.FreezesConsumed)
}

func TestAddFreezes_RejectsNonPositive(t *testing.T) {
	h := NewTrackStreakHandler(newFakeStreakRepo(), newFakeOutbox(), &fakePublisher{}, newTestLogger())

	_, err := h.AddFreezes(context.Background(), "user1", 0)
	assert.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	_, err = h.AddFreezes(context.Background(), "user1", -3)
	assert.Error(t, err)
}
