package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
)

func newDispatcherUnderTest(t *testing.T) (*DispatchRewardHandler, *fakeLedger, *fakePublisher) {
	t.Helper()
	ledger := newFakeLedger()
	bus := &fakePublisher{}
	h := NewDispatchRewardHandler(achievement.DefaultCatalog(), ledger, bus, newTestLogger(), nil)
	return h, ledger, bus
}

func TestDispatchUnlock_ExactlyOnce(t *testing.T) {
	h, ledger, bus := newDispatcherUnderTest(t)
	ctx := context.Background()

	status, err := h.DispatchUnlock(ctx, "user1", "first_italian")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)

	// A replayed dispatch resolves against the ledger and no-ops.
	status, err = h.DispatchUnlock(ctx, "user1", "first_italian")
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyApplied, status)

	points, err := ledger.TotalPoints(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 50, points)

	// Only the first application notifies and announces the apply.
	assert.Len(t, bus.byType(shared.EventUnlockNotification), 1)
	assert.Len(t, bus.byType(shared.EventRewardApplied), 1)
}

func TestDispatchUnlock_BadgeReward(t *testing.T) {
	h, ledger, _ := newDispatcherUnderTest(t)
	ctx := context.Background()

	status, err := h.DispatchUnlock(ctx, "user1", "cuisine_explorer")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)

	badges, err := ledger.Badges(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, []string{"badge_cuisine_explorer"}, badges)

	points, err := ledger.TotalPoints(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 0, points, "badge rewards carry no points")
}

func TestDispatchUnlock_UnknownDefinition(t *testing.T) {
	h, _, _ := newDispatcherUnderTest(t)

	_, err := h.DispatchUnlock(context.Background(), "user1", "no_such_achievement")
	require.Error(t, err)
	assert.True(t, shared.IsNotFound(err))
}

func TestDispatchMilestone_UsesPointsSchedule(t *testing.T) {
	h, ledger, bus := newDispatcherUnderTest(t)
	ctx := context.Background()

	status, err := h.DispatchMilestone(ctx, "user1", 7)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)

	points, err := ledger.TotalPoints(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, DefaultMilestonePoints()[7], points)

	// Replay is a successful no-op.
	status, err = h.DispatchMilestone(ctx, "user1", 7)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyApplied, status)
	assert.Len(t, bus.byType(shared.EventUnlockNotification), 1)
}

func TestDispatchMilestone_UnknownThreshold(t *testing.T) {
	h, _, _ := newDispatcherUnderTest(t)

	_, err := h.DispatchMilestone(context.Background(), "user1", 13)
	assert.Error(t, err)
}

// wireEvent mimics an event decoded from the cross-process envelope, where
// the typed struct is gone and JSON numbers arrive as float64.
type wireEvent struct {
	typ     shared.EventType
	userID  string
	payload map[string]interface{}
}

func (e wireEvent) EventType() shared.EventType     { return e.typ }
func (e wireEvent) OccurredAt() time.Time           { return time.Now().UTC() }
func (e wireEvent) AggregateID() string             { return e.userID }
func (e wireEvent) Payload() map[string]interface{} { return e.payload }

func TestHandleUnlockEvent_AppliesReward(t *testing.T) {
	h, ledger, _ := newDispatcherUnderTest(t)

	event := shared.NewAchievementUnlockedEvent(
		"user1", "first_italian", shared.CategoryCulinary, shared.RarityCommon, time.Now().UTC())
	require.NoError(t, h.HandleUnlockEvent(event))

	points, err := ledger.TotalPoints(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, 50, points)

	// Redelivery resolves against the ledger.
	require.NoError(t, h.HandleUnlockEvent(event))
	points, err = ledger.TotalPoints(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, 50, points)
}

func TestHandleMilestoneEvent_AppliesReward(t *testing.T) {
	h, ledger, _ := newDispatcherUnderTest(t)

	require.NoError(t, h.HandleMilestoneEvent(shared.NewMilestoneCrossedEvent("user1", 7, 7)))

	points, err := ledger.TotalPoints(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, DefaultMilestonePoints()[7], points)
}

func TestHandleMilestoneEvent_AcceptsWirePayload(t *testing.T) {
	h, ledger, _ := newDispatcherUnderTest(t)

	event := wireEvent{
		typ:    shared.EventMilestoneCrossed,
		userID: "user1",
		payload: map[string]interface{}{
			"user_id":        "user1",
			"milestone":      float64(14),
			"current_streak": float64(14),
		},
	}
	require.NoError(t, h.HandleMilestoneEvent(event))

	points, err := ledger.TotalPoints(context.Background(), "user1")
	require.NoError(t, err)
	assert.Equal(t, DefaultMilestonePoints()[14], points)
}

func TestHandleEvents_RejectMissingFields(t *testing.T) {
	h, _, _ := newDispatcherUnderTest(t)

	err := h.HandleUnlockEvent(wireEvent{typ: shared.EventAchievementUnlocked, payload: map[string]interface{}{}})
	assert.True(t, shared.IsValidation(err))

	err = h.HandleMilestoneEvent(wireEvent{typ: shared.EventMilestoneCrossed, payload: map[string]interface{}{"user_id": "user1"}})
	assert.True(t, shared.IsValidation(err))
}

func TestDispatch_RoutesByKind(t *testing.T) {
	h, ledger, _ := newDispatcherUnderTest(t)
	ctx := context.Background()

	status, err := h.Dispatch(ctx, reward.NewMilestoneOutboxItem("user1", 14))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)

	status, err = h.Dispatch(ctx, reward.NewUnlockOutboxItem("user1", "social_butterfly"))
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, status)

	points, err := ledger.TotalPoints(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, DefaultMilestonePoints()[14]+100, points)

	_, err = h.Dispatch(ctx, &reward.OutboxItem{Kind: reward.Kind("bogus"), UserID: "user1"})
	assert.Error(t, err)
}
