package command

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/achievement"
	"github.com/tastebook/progression-engine/internal/domain/reward"
	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/internal/domain/streak"
	"github.com/tastebook/progression-engine/pkg/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError})
}

// In-memory fakes mirroring the repository contracts: lazy row creation,
// idempotent inserts, and natural-key uniqueness.

type fakeDedup struct {
	mu   sync.Mutex
	seen map[string]bool

	failRegister bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{seen: make(map[string]bool)}
}

func (d *fakeDedup) Register(_ context.Context, key string, _ time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failRegister {
		return false, errors.New("dedup backend down")
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *fakeDedup) Seen(_ context.Context, key string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen[key], nil
}

func (d *fakeDedup) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

func (d *fakeDedup) Purge(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeStreakRepo struct {
	mu     sync.Mutex
	states map[string]*streak.State
}

func newFakeStreakRepo() *fakeStreakRepo {
	return &fakeStreakRepo{states: make(map[string]*streak.State)}
}

func (r *fakeStreakRepo) Get(_ context.Context, userID string) (*streak.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[userID]
	if !ok {
		return nil, shared.ErrStreakNotFound
	}
	return s, nil
}

func (r *fakeStreakRepo) Mutate(_ context.Context, userID string, fn streak.MutateFunc) (*streak.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[userID]
	if !ok {
		s = streak.New(userID)
		r.states[userID] = s
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	return s, nil
}

func (r *fakeStreakRepo) ListAtRisk(_ context.Context, limit int) ([]*streak.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*streak.State
	for _, s := range r.states {
		if len(out) >= limit {
			break
		}
		out = append(out, s)
	}
	return out, nil
}

type fakeProgressRepo struct {
	mu      sync.Mutex
	rows    map[string]*achievement.Progress
	unlocks map[string]*achievement.UnlockRecord

	failMutate bool
}

func newFakeProgressRepo() *fakeProgressRepo {
	return &fakeProgressRepo{
		rows:    make(map[string]*achievement.Progress),
		unlocks: make(map[string]*achievement.UnlockRecord),
	}
}

func progressKey(userID, achievementID string) string { return userID + "|" + achievementID }

func (r *fakeProgressRepo) Get(_ context.Context, userID, achievementID string) (*achievement.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[progressKey(userID, achievementID)]
	if !ok {
		return nil, shared.ErrProgressNotFound
	}
	return p, nil
}

func (r *fakeProgressRepo) ListForUser(_ context.Context, userID string) ([]*achievement.Progress, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*achievement.Progress
	for _, p := range r.rows {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakeProgressRepo) Mutate(_ context.Context, userID, achievementID string, fn achievement.MutateFunc) (*achievement.Progress, *achievement.UnlockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failMutate {
		return nil, nil, errors.New("store down")
	}

	key := progressKey(userID, achievementID)
	p, ok := r.rows[key]
	if !ok {
		p = achievement.NewProgress(userID, achievementID)
		r.rows[key] = p
	}

	rec, err := fn(p)
	if err != nil {
		return nil, nil, err
	}
	if rec != nil {
		if _, exists := r.unlocks[key]; exists {
			// Concurrent duplicate: the unlock is already recorded.
			return p, nil, nil
		}
		r.unlocks[key] = rec
	}
	return p, rec, nil
}

func (r *fakeProgressRepo) HasUnlock(_ context.Context, userID, achievementID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.unlocks[progressKey(userID, achievementID)]
	return ok, nil
}

func (r *fakeProgressRepo) ListUnlocks(_ context.Context, userID string) ([]*achievement.UnlockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*achievement.UnlockRecord
	for _, rec := range r.unlocks {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakeOutbox struct {
	mu    sync.Mutex
	items map[string]*reward.OutboxItem
	order []string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{items: make(map[string]*reward.OutboxItem)}
}

func (o *fakeOutbox) Enqueue(_ context.Context, item *reward.OutboxItem) error {
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

func (o *fakeOutbox) Due(_ context.Context, limit int) ([]*reward.OutboxItem, error) {
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

func (o *fakeOutbox) MarkDone(_ context.Context, item *reward.OutboxItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.items, item.IdempotencyKey())
	return nil
}

func (o *fakeOutbox) MarkFailed(_ context.Context, item *reward.OutboxItem, dispatchErr error) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if stored, ok := o.items[item.IdempotencyKey()]; ok {
		stored.Attempts++
		stored.LastError = dispatchErr.Error()
	}
	return nil
}

func (o *fakeOutbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.items)
}

type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*reward.LedgerEntry
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*reward.LedgerEntry)}
}

func (l *fakeLedger) Apply(_ context.Context, entry *reward.LedgerEntry) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := entry.IdempotencyKey()
	if _, exists := l.entries[key]; exists {
		return false, nil
	}
	l.entries[key] = entry
	return true, nil
}

func (l *fakeLedger) Has(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[key]
	return ok, nil
}

func (l *fakeLedger) ListForUser(_ context.Context, userID string) ([]*reward.LedgerEntry, error) {
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

func (l *fakeLedger) TotalPoints(_ context.Context, userID string) (int, error) {
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

func (l *fakeLedger) Badges(_ context.Context, userID string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, e := range l.entries {
		if e.UserID == userID && e.BadgeID != "" {
			out = append(out, e.BadgeID)
		}
	}
	return out, nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *fakePublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) byType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}
