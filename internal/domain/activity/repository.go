package activity

import (
	"context"
	"time"
)

// DedupIndex is the short-lived index of already-seen idempotency keys.
//
// Entries expire after a retention window longer than any plausible
// redelivery delay; expiry is an optimization, not a correctness requirement,
// because every downstream mutation is idempotent on its own key as well.
type DedupIndex interface {
	// Register records the key if it was not present. Returns true when the
	// key was newly registered (first delivery) and false when it already
	// existed (duplicate). The check and the write are a single atomic step.
	Register(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Seen reports whether the key is currently present in the index.
	Seen(ctx context.Context, key string) (bool, error)

	// Remove deletes the key. Used to compensate a failed ingest so the
	// caller's retry with the same key is not misclassified as a duplicate.
	Remove(ctx context.Context, key string) error

	// Purge removes expired entries for backends without native TTL support.
	// Backends with native expiry may implement this as a no-op.
	Purge(ctx context.Context, olderThan time.Time) (int64, error)
}
