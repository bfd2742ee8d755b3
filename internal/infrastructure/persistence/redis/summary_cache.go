package redis

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUMMARY CACHE
// ══════════════════════════════════════════════════════════════════════════════

// SummaryCache holds recently computed per-user progression summaries so the
// stats endpoint doesn't recompute ledger sums on every poll. Strictly a
// read-path accelerator: the store stays the source of truth and entries
// expire within TTLSummaryCache.
type SummaryCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewSummaryCache creates the cache with the default TTL.
func NewSummaryCache(cache *Cache) *SummaryCache {
	return &SummaryCache{cache: cache, ttl: TTLSummaryCache}
}

// WithTTL overrides the entry TTL.
func (s *SummaryCache) WithTTL(ttl time.Duration) *SummaryCache {
	if ttl > 0 {
		s.ttl = ttl
	}
	return s
}

// Get loads the cached summary into dest. Returns false on a miss; cache
// errors degrade to a miss so a Redis outage never breaks reads.
func (s *SummaryCache) Get(ctx context.Context, userID string, dest interface{}) (bool, error) {
	err := s.cache.Get(ctx, SummaryKey(userID), dest)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("redis: summary get: %w", err)
	}
	return true, nil
}

// Set stores the summary.
func (s *SummaryCache) Set(ctx context.Context, userID string, summary interface{}) error {
	if err := s.cache.Set(ctx, SummaryKey(userID), summary, s.ttl); err != nil {
		return fmt.Errorf("redis: summary set: %w", err)
	}
	return nil
}

// Invalidate drops the user's entry, called after unlocks and reward applies
// so collaborators see fresh numbers sooner than the TTL.
func (s *SummaryCache) Invalidate(ctx context.Context, userID string) error {
	if err := s.cache.Delete(ctx, SummaryKey(userID)); err != nil {
		return fmt.Errorf("redis: summary invalidate: %w", err)
	}
	return nil
}
