// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the engine.
const (
	// Achievement events
	EventAchievementUnlocked EventType = "achievement.unlocked"

	// Streak events
	EventStreakExtended   EventType = "streak.extended"
	EventStreakBroken     EventType = "streak.broken"
	EventMilestoneCrossed EventType = "streak.milestone_crossed"

	// Reward events
	EventRewardApplied EventType = "reward.applied"

	// Outward notification
	EventUnlockNotification EventType = "notification.unlock"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For this engine, the aggregate is always the user.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// EventHandler processes a domain event. Handlers must be idempotent:
// the bus guarantees at-least-once delivery, never exactly-once.
type EventHandler func(event Event) error

// EventPublisher publishes domain events to interested subscribers.
type EventPublisher interface {
	Publish(event Event) error
}

// EventBus is a publisher that also manages subscriptions.
type EventBus interface {
	EventPublisher
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
	Close() error
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementUnlockedEvent is emitted when a user's progress crosses an
// achievement's target value and the unlock record is created.
type AchievementUnlockedEvent struct {
	BaseEvent
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	Rarity        Rarity    `json:"rarity"`
	Category      Category  `json:"category"`
	UnlockedAt    time.Time `json:"unlocked_at"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"achievement_id": e.AchievementID,
		"rarity":         string(e.Rarity),
		"category":       string(e.Category),
		"unlocked_at":    e.UnlockedAt,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID string, category Category, rarity Rarity, unlockedAt time.Time) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Rarity:        rarity,
		Category:      category,
		UnlockedAt:    unlockedAt,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Events
// ═══════════════════════════════════════════════════════════════════════════

// MilestoneCrossedEvent is emitted once per milestone the first time a user's
// current streak reaches it. Re-processing the same transition never re-emits.
type MilestoneCrossedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	Milestone     int    `json:"milestone"`
	CurrentStreak int    `json:"current_streak"`
}

// Payload implements Event interface.
func (e MilestoneCrossedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"milestone":      e.Milestone,
		"current_streak": e.CurrentStreak,
	}
}

// NewMilestoneCrossedEvent creates a new MilestoneCrossedEvent.
func NewMilestoneCrossedEvent(userID string, milestone, currentStreak int) MilestoneCrossedEvent {
	return MilestoneCrossedEvent{
		BaseEvent:     NewBaseEvent(EventMilestoneCrossed, userID),
		UserID:        userID,
		Milestone:     milestone,
		CurrentStreak: currentStreak,
	}
}

// StreakExtendedEvent is emitted whenever a user's current streak grows:
// a fresh start, a consecutive-day extension, or a freeze-bridged gap.
type StreakExtendedEvent struct {
	BaseEvent
	UserID        string `json:"user_id"`
	CurrentStreak int    `json:"current_streak"`
}

// Payload implements Event interface.
func (e StreakExtendedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID,
		"current_streak": e.CurrentStreak,
	}
}

// NewStreakExtendedEvent creates a new StreakExtendedEvent.
func NewStreakExtendedEvent(userID string, currentStreak int) StreakExtendedEvent {
	return StreakExtendedEvent{
		BaseEvent:     NewBaseEvent(EventStreakExtended, userID),
		UserID:        userID,
		CurrentStreak: currentStreak,
	}
}

// StreakBrokenEvent is emitted when a gap could not be bridged by freezes
// and the current streak reset to 1.
type StreakBrokenEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	PreviousStreak int    `json:"previous_streak"`
	DaysMissed     int    `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID),
		UserID:         userID,
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Reward / Notification Events
// ═══════════════════════════════════════════════════════════════════════════

// RewardAppliedEvent is emitted when a ledger entry is written for the first
// time. Replayed dispatches resolve as no-ops and never re-emit it.
type RewardAppliedEvent struct {
	BaseEvent
	UserID        string     `json:"user_id"`
	AchievementID string     `json:"achievement_id,omitempty"`
	Milestone     int        `json:"milestone,omitempty"`
	RewardType    RewardType `json:"reward_type"`
	Value         int        `json:"value"`
}

// Payload implements Event interface.
func (e RewardAppliedEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"user_id":     e.UserID,
		"reward_type": string(e.RewardType),
		"value":       e.Value,
	}
	if e.AchievementID != "" {
		p["achievement_id"] = e.AchievementID
	}
	if e.Milestone > 0 {
		p["milestone"] = e.Milestone
	}
	return p
}

// NewRewardAppliedEvent creates a new RewardAppliedEvent. Exactly one of
// achievementID and milestone identifies the source.
func NewRewardAppliedEvent(userID, achievementID string, milestone int, rewardType RewardType, value int) RewardAppliedEvent {
	return RewardAppliedEvent{
		BaseEvent:     NewBaseEvent(EventRewardApplied, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Milestone:     milestone,
		RewardType:    rewardType,
		Value:         value,
	}
}

// RewardGrant describes the reward carried by an unlock notification.
type RewardGrant struct {
	Type  RewardType `json:"type"`
	Value int        `json:"value"`
	Title string     `json:"title,omitempty"`
}

// UnlockNotificationEvent is the outward-facing notification emitted after a
// reward is applied. Delivery to collaborators is at-least-once; collaborators
// must be idempotent on duplicates.
type UnlockNotificationEvent struct {
	BaseEvent
	UserID        string      `json:"user_id"`
	AchievementID string      `json:"achievement_id,omitempty"`
	Milestone     int         `json:"milestone,omitempty"`
	Reward        RewardGrant `json:"reward"`
}

// Payload implements Event interface.
func (e UnlockNotificationEvent) Payload() map[string]interface{} {
	p := map[string]interface{}{
		"user_id":      e.UserID,
		"reward_type":  string(e.Reward.Type),
		"reward_value": e.Reward.Value,
	}
	if e.AchievementID != "" {
		p["achievement_id"] = e.AchievementID
	}
	if e.Milestone > 0 {
		p["milestone"] = e.Milestone
	}
	return p
}

// NewUnlockNotificationEvent creates a notification for an achievement unlock.
func NewUnlockNotificationEvent(userID, achievementID string, reward RewardGrant) UnlockNotificationEvent {
	return UnlockNotificationEvent{
		BaseEvent:     NewBaseEvent(EventUnlockNotification, userID),
		UserID:        userID,
		AchievementID: achievementID,
		Reward:        reward,
	}
}

// NewMilestoneNotificationEvent creates a notification for a streak milestone.
func NewMilestoneNotificationEvent(userID string, milestone int, reward RewardGrant) UnlockNotificationEvent {
	return UnlockNotificationEvent{
		BaseEvent: NewBaseEvent(EventUnlockNotification, userID),
		UserID:    userID,
		Milestone: milestone,
		Reward:    reward,
	}
}
