package achievement

import (
	"context"
)

// MutateFunc inspects and mutates a progress row inside the store's atomic
// section. Returning an UnlockRecord asks the store to persist the unlock in
// the same transaction; returning (nil, nil) commits the progress mutation
// alone. Returning an error rolls everything back.
type MutateFunc func(p *Progress) (*UnlockRecord, error)

// ProgressRepository is the Progress Store surface for achievement state.
//
// Implementations must provide per-user serialization for Mutate: two
// concurrent mutations of the same (user, achievement) never interleave an
// increment and an unlock check. Mutations for different users proceed in
// parallel.
type ProgressRepository interface {
	// Get returns the progress row, or shared.ErrProgressNotFound.
	Get(ctx context.Context, userID, achievementID string) (*Progress, error)

	// ListForUser returns all progress rows for the user.
	ListForUser(ctx context.Context, userID string) ([]*Progress, error)

	// Mutate atomically applies fn to the (lazily created) progress row.
	// The updated row and any unlock record commit in one transaction; the
	// unlock insert is idempotent on (user, achievement), and a concurrent
	// duplicate unlock commits the progress cap but reports no new record.
	Mutate(ctx context.Context, userID, achievementID string, fn MutateFunc) (*Progress, *UnlockRecord, error)

	// HasUnlock reports whether an unlock record exists.
	HasUnlock(ctx context.Context, userID, achievementID string) (bool, error)

	// ListUnlocks returns all unlock records for the user.
	ListUnlocks(ctx context.Context, userID string) ([]*UnlockRecord, error)
}
