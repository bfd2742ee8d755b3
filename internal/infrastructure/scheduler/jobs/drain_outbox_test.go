package jobs

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tastebook/progression-engine/internal/application/command"
	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/logger"
)

func testLog() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

type memOutbox struct {
	mu    sync.Mutex
	items map[string]*reward.OutboxItem
	order []string
}

func newMemOutbox() *memOutbox {
	return &memOutbox{items: make(map[string]*reward.OutboxItem)}
}

func (o *memOutbox) Enqueue(_ context.Context, item *reward.OutboxItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := item.IdempotencyKey()
	if _, exists := o.items[key]; exists {
		return nil
	}
	o.items[key] = item
	o.order = append(o.order, key)
	return nil
}

func (o *memOutbox) Due(_ context.Context, limit int) ([]*reward.OutboxItem, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*reward.OutboxItem
	seen := make(map[string]bool)
	for _, key := range o.order {
		if len(out) >= limit {
			break
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		if item, ok := o.items[key]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func (o *memOutbox) MarkDone(_ context.Context, item *reward.OutboxItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, item.IdempotencyKey())
	return nil
}

func (o *memOutbox) MarkFailed(_ context.Context, item *reward.OutboxItem, dispatchErr error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if stored, ok := o.items[item.IdempotencyKey()]; ok {
		stored.Attempts++
		stored.LastError = dispatchErr.Error()
	}
	return nil
}

func (o *memOutbox) size() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

type memLedger struct {
	mu      sync.Mutex
	entries map[string]*reward.LedgerEntry
}

func newMemLedger() *memLedger {
	return &memLedger{entries: make(map[string]*reward.LedgerEntry)}
}

func (l *memLedger) Apply(_ context.Context, entry *reward.LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.entries[entry.IdempotencyKey()]; exists {
		return false, nil
	}
	l.entries[entry.IdempotencyKey()] = entry
	return true, nil
}

func (l *memLedger) Has(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok, nil
}

func (l *memLedger) ListForUser(_ context.Context, userID string) ([]*reward.LedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*reward.LedgerEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (l *memLedger) TotalPoints(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, e := range l.entries {
		if e.UserID == userID && e.RewardType == shared.RewardPoints {
			total += e.Points
		}
	}
	return total, nil
}

func (l *memLedger) Badges(context.Context, string) ([]string, error) { return nil, nil }

type nopPublisher struct{}

func (nopPublisher) Publish(shared.Event) error { return nil }

func newDrainFixture(t *testing.T) (*DrainOutboxJob, *memOutbox, *memLedger) {
	t.Helper()
	outbox := newMemOutbox()
	ledger := newMemLedger()
	dispatcher := command.NewDispatchRewardHandler(
		achievement.DefaultCatalog(), ledger, nopPublisher{}, testLog(), nil)
	job := NewDrainOutboxJob(outbox, dispatcher, testLog(), DrainOutboxConfig{
		BatchSize:   10,
		MaxAttempts: 3,
	})
	return job, outbox, ledger
}

func TestDrainOutbox_AppliesAndClears(t *testing.T) {
	job, outbox, ledger := newDrainFixture(t)
	ctx := context.Background()

	require.NoError(t, outbox.Enqueue(ctx, reward.NewUnlockOutboxItem("user1", "first_italian")))
	require.NoError(t, outbox.Enqueue(ctx, reward.NewMilestoneOutboxItem("user1", 7)))

	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Taken)
	assert.Equal(t, 2, stats.Applied)
	assert.Zero(t, stats.Failed)
	assert.Zero(t, outbox.size(), "dispatched items leave the outbox")

	points, err := ledger.TotalPoints(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 50+command.DefaultMilestonePoints()[7], points)

	// A second run over the empty outbox is a no-op.
	require.NoError(t, job.Run(ctx))
	assert.Zero(t, job.LastStats().Taken)
}

func TestDrainOutbox_ReplayResolvesAsDuplicate(t *testing.T) {
	job, outbox, _ := newDrainFixture(t)
	ctx := context.Background()

	item := reward.NewUnlockOutboxItem("user1", "first_italian")
	require.NoError(t, outbox.Enqueue(ctx, item))
	require.NoError(t, job.Run(ctx))

	// Simulate a crash between ledger apply and MarkDone: the item is
	// re-enqueued and retaken next run.
	require.NoError(t, outbox.Enqueue(ctx, reward.NewUnlockOutboxItem("user1", "first_italian")))
	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	assert.Equal(t, 1, stats.Duplicate)
	assert.Zero(t, stats.Applied)
	assert.Zero(t, outbox.size())
}

func TestDrainOutbox_FailedItemStaysWithAttempt(t *testing.T) {
	job, outbox, _ := newDrainFixture(t)
	ctx := context.Background()

	require.NoError(t, outbox.Enqueue(ctx, reward.NewUnlockOutboxItem("user1", "no_such_achievement")))
	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, outbox.size(), "failed items stay for the next run")

	due, err := outbox.Due(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, due[0].Attempts)
	assert.NotEmpty(t, due[0].LastError)
}

func TestDrainOutbox_ParksAfterMaxAttempts(t *testing.T) {
	job, outbox, _ := newDrainFixture(t)
	ctx := context.Background()

	item := reward.NewUnlockOutboxItem("user1", "no_such_achievement")
	item.Attempts = 3
	require.NoError(t, outbox.Enqueue(ctx, item))

	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	assert.Equal(t, 1, stats.Parked)
	assert.Zero(t, stats.Failed, "parked items are not re-dispatched")
	assert.Equal(t, 1, outbox.size())
}
