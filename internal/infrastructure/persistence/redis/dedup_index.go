package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/activity"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEDUP INDEX
// ══════════════════════════════════════════════════════════════════════════════

// DedupIndex implements activity.DedupIndex on Redis.
//
// Register is SET NX with TTL: the existence check and the write are one
// atomic command, so two concurrent deliveries of the same key resolve to
// exactly one first delivery with no lock.
type DedupIndex struct {
	cache *Cache
}

// NewDedupIndex creates the index.
func NewDedupIndex(cache *Cache) *DedupIndex {
	return &DedupIndex{cache: cache}
}

var _ activity.DedupIndex = (*DedupIndex)(nil)

// Register records the key if absent. Returns true on first delivery.
func (d *DedupIndex) Register(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = TTLDedupEntry
	}
	fresh, err := d.cache.Client().SetNX(ctx, DedupKey(key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: dedup register: %w", err)
	}
	return fresh, nil
}

// Seen reports whether the key is currently present.
func (d *DedupIndex) Seen(ctx context.Context, key string) (bool, error) {
	exists, err := d.cache.Exists(ctx, DedupKey(key))
	if err != nil {
		return false, fmt.Errorf("redis: dedup seen: %w", err)
	}
	return exists, nil
}

// Remove deletes the key, compensating a failed ingest.
func (d *DedupIndex) Remove(ctx context.Context, key string) error {
	if err := d.cache.Delete(ctx, DedupKey(key)); err != nil {
		return fmt.Errorf("redis: dedup remove: %w", err)
	}
	return nil
}

// Purge is a no-op: Redis expires entries natively via the per-key TTL.
func (d *DedupIndex) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	return 0, nil
}
