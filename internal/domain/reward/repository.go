package reward

import (
	"context"
)

// LedgerRepository is the Progress Store surface for reward issuance.
type LedgerRepository interface {
	// Apply writes the ledger entry and its effect (points increment or
	// badge grant) in one atomic step. Returns false with no error when an
	// entry with the same idempotency key already exists - the reward was
	// applied by an earlier or concurrent dispatch.
	Apply(ctx context.Context, entry *LedgerEntry) (applied bool, err error)

	// Has reports whether a ledger entry exists for the idempotency key.
	Has(ctx context.Context, key string) (bool, error)

	// ListForUser returns the user's ledger entries, newest first.
	ListForUser(ctx context.Context, userID string) ([]*LedgerEntry, error)

	// TotalPoints returns the user's applied points balance.
	TotalPoints(ctx context.Context, userID string) (int, error)

	// Badges returns the badge identifiers granted to the user.
	Badges(ctx context.Context, userID string) ([]string, error)
}

// OutboxRepository is the durable dispatch backlog.
type OutboxRepository interface {
	// Enqueue adds an item; idempotent on the item's natural key, so a
	// replayed evaluation never produces a second backlog row.
	Enqueue(ctx context.Context, item *OutboxItem) error

	// Due returns up to limit pending items, oldest first.
	Due(ctx context.Context, limit int) ([]*OutboxItem, error)

	// MarkDone removes a successfully dispatched item.
	MarkDone(ctx context.Context, item *OutboxItem) error

	// MarkFailed records a failed attempt and keeps the item for retry.
	MarkFailed(ctx context.Context, item *OutboxItem, dispatchErr error) error
}
