package streak

import (
	"context"
)

// MutateFunc inspects and mutates a streak row inside the store's atomic
// section. Returning an error rolls the mutation back.
type MutateFunc func(s *State) error

// Repository is the Progress Store surface for streak state.
//
// Implementations must serialize Mutate per user so concurrent streak-relevant
// events for the same user never interleave gap computation and the write.
type Repository interface {
	// Get returns the user's streak state, or shared.ErrStreakNotFound.
	Get(ctx context.Context, userID string) (*State, error)

	// Mutate atomically applies fn to the (lazily created) streak row.
	Mutate(ctx context.Context, userID string, fn MutateFunc) (*State, error)

	// ListAtRisk returns states whose streak breaks unless the user acts
	// today. Used by the day-rollover audit job.
	ListAtRisk(ctx context.Context, limit int) ([]*State, error)
}
