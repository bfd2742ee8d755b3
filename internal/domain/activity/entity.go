// Package activity contains the inbound activity-event model: the immutable,
// externally supplied events the progression engine consumes, plus their
// validation rules and the deduplication contract.
package activity

import (
	"strings"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVENT TYPES
// ══════════════════════════════════════════════════════════════════════════════

// EventType identifies the kind of user action an ActivityEvent records.
type EventType string

const (
	// EventPostCreated - the user published a post (content-publish action).
	EventPostCreated EventType = "postCreated"

	// EventLikeGiven - the user liked another user's content.
	EventLikeGiven EventType = "likeGiven"

	// EventPlaceVisited - the user checked in at a place.
	EventPlaceVisited EventType = "placeVisited"

	// EventFriendAdded - the user added a friend.
	EventFriendAdded EventType = "friendAdded"

	// EventCommentPosted - the user commented on a post.
	EventCommentPosted EventType = "commentPosted"

	// EventRecipeSaved - the user saved a recipe to a list.
	EventRecipeSaved EventType = "recipeSaved"
)

// KnownEventTypes returns the event types the engine understands.
// Unknown types are still accepted by the gateway: definitions may be added
// for them later, and the count-based algorithms don't care.
func KnownEventTypes() []EventType {
	return []EventType{
		EventPostCreated,
		EventLikeGiven,
		EventPlaceVisited,
		EventFriendAdded,
		EventCommentPosted,
		EventRecipeSaved,
	}
}

// streakRelevant is the set of content-publish actions that advance the
// daily streak. Likes and friend-adds never extend a streak.
var streakRelevant = map[EventType]bool{
	EventPostCreated:   true,
	EventPlaceVisited:  true,
	EventCommentPosted: true,
}

// IsStreakRelevant reports whether events of this type feed the streak tracker.
func (t EventType) IsStreakRelevant() bool {
	return streakRelevant[t]
}

// String returns the string representation.
func (t EventType) String() string { return string(t) }

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY EVENT
// ══════════════════════════════════════════════════════════════════════════════

// Event is a single, immutable user-activity event.
//
// The idempotency key is globally unique per logical action and is supplied
// by the caller; re-delivery with the same key must have no additional effect.
type Event struct {
	// IdempotencyKey - caller-supplied unique token for this logical action.
	IdempotencyKey string

	// UserID - the acting user.
	UserID string

	// Type - what happened.
	Type EventType

	// Timestamp - when the action occurred (caller clock, validated for skew).
	Timestamp time.Time

	// Payload - event-specific metadata (e.g. cuisine, place_id).
	Payload map[string]string
}

// MaxFutureSkewDefault is the default tolerance for timestamps ahead of the
// engine clock. Mobile clients drift; anything beyond this is rejected.
const MaxFutureSkewDefault = 24 * time.Hour

// Validate checks the event shape against the given future-skew tolerance.
// Returns a validation error suitable for synchronous rejection; validation
// failures are never retried.
func (e Event) Validate(now time.Time, maxFutureSkew time.Duration) error {
	if strings.TrimSpace(e.IdempotencyKey) == "" {
		return shared.ErrMissingDedupKey
	}
	if strings.TrimSpace(e.UserID) == "" {
		return shared.ErrMissingUserID
	}
	if strings.TrimSpace(string(e.Type)) == "" {
		return shared.ErrMissingEventType
	}
	if e.Timestamp.IsZero() {
		return shared.ErrMissingTimestamp
	}
	if e.Timestamp.After(now.Add(maxFutureSkew)) {
		return shared.ErrTimestampSkew
	}
	return nil
}

// PayloadValue returns the payload value for key, and whether it was present.
func (e Event) PayloadValue(key string) (string, bool) {
	if e.Payload == nil {
		return "", false
	}
	v, ok := e.Payload[key]
	return v, ok
}

// DistinctValue extracts the value used by distinct-count aggregations,
// e.g. the cuisine of a post or the place of a visit. Falls back to a
// generic "value" payload key so new achievement kinds don't need engine
// changes.
func (e Event) DistinctValue(payloadKey string) (string, bool) {
	if payloadKey != "" {
		return e.PayloadValue(payloadKey)
	}
	return e.PayloadValue("value")
}
