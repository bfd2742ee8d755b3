// Package streak contains the daily-activity streak model: the per-user
// streak state machine with freeze protection and milestone detection.
package streak

import (
	"sort"
	"time"

	"github.com/tastebook/progression-engine/internal/domain/shared"
	"github.com/tastebook/progression-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK STATE
// ══════════════════════════════════════════════════════════════════════════════

// State is the per-user streak record.
//
// Invariants:
//   - CurrentStreak <= LongestStreak
//   - AchievedMilestones is the historical set of thresholds ever reached;
//     it never shrinks, even when CurrentStreak later drops
//   - FreezeCount >= 0 and decreases only when consumed to bridge a gap
type State struct {
	// UserID - the owning user.
	UserID string

	// CurrentStreak - consecutive active days ending at LastActiveDay.
	CurrentStreak int

	// LongestStreak - best streak ever reached.
	LongestStreak int

	// LastActiveDay - the canonical day of the most recent qualifying
	// activity, truncated to the engine's day boundary. Zero before the
	// first activity.
	LastActiveDay time.Time

	// FreezeCount - consumable credits that each forgive one missed day.
	FreezeCount int

	// AchievedMilestones - ascending set of milestone thresholds reached.
	AchievedMilestones []int

	// UpdatedAt - last mutation time.
	UpdatedAt time.Time
}

// New creates an empty streak state for a user's first activity event.
func New(userID string) *State {
	return &State{
		UserID:    userID,
		UpdatedAt: time.Now().UTC(),
	}
}

// Result classifies what RecordActivity did.
type Result string

const (
	// ResultUnchanged - already active on that day; idempotent no-op.
	ResultUnchanged Result = "unchanged"

	// ResultStarted - first ever activity; streak begins at 1.
	ResultStarted Result = "started"

	// ResultExtended - consecutive day; streak grew by one.
	ResultExtended Result = "extended"

	// ResultFrozen - missed days bridged by consuming freezes; streak grew.
	ResultFrozen Result = "frozen"

	// ResultReset - gap too large for available freezes; streak reset to 1.
	ResultReset Result = "reset"

	// ResultOutOfOrder - activity day precedes the settled last active day;
	// no mutation.
	ResultOutOfOrder Result = "out_of_order"
)

// Outcome reports the transition RecordActivity performed.
type Outcome struct {
	Result          Result
	PreviousStreak  int
	CurrentStreak   int
	DaysMissed      int
	FreezesConsumed int

	// NewMilestones - milestone thresholds crossed for the first time by
	// this transition, ascending. One MilestoneEvent is owed per entry.
	NewMilestones []int
}

// RecordActivity applies one qualifying activity on the given canonical day.
// The transition is driven entirely by the gap between activityDay and
// LastActiveDay, which makes replays of the same day idempotent and makes
// the algorithm order-insensitive except for the explicit out-of-order case.
func (s *State) RecordActivity(activityDay time.Time) Outcome {
	day := timeutil.CanonicalDay(activityDay)
	out := Outcome{PreviousStreak: s.CurrentStreak}

	switch {
	case s.LastActiveDay.IsZero():
		s.CurrentStreak = 1
		s.LastActiveDay = day
		out.Result = ResultStarted

	default:
		gap := timeutil.DaysBetween(s.LastActiveDay, day)

		switch {
		case gap == 0:
			out.Result = ResultUnchanged
			out.CurrentStreak = s.CurrentStreak
			return out

		case gap < 0:
			// Late-arriving event for an already-settled day. It cannot
			// retroactively move the streak forward; callers log it.
			out.Result = ResultOutOfOrder
			out.CurrentStreak = s.CurrentStreak
			return out

		case gap == 1:
			s.CurrentStreak++
			s.LastActiveDay = day
			out.Result = ResultExtended

		default: // gap > 1
			missed := gap - 1
			out.DaysMissed = missed
			if s.FreezeCount >= missed {
				s.FreezeCount -= missed
				s.CurrentStreak++
				out.FreezesConsumed = missed
				out.Result = ResultFrozen
			} else {
				s.CurrentStreak = 1
				out.Result = ResultReset
			}
			s.LastActiveDay = day
		}
	}

	if s.CurrentStreak > s.LongestStreak {
		s.LongestStreak = s.CurrentStreak
	}

	out.NewMilestones = s.crossMilestones()
	out.CurrentStreak = s.CurrentStreak
	s.UpdatedAt = time.Now().UTC()

	return out
}

// crossMilestones adds every milestone threshold <= CurrentStreak that is not
// yet in AchievedMilestones, and returns the newly added ones ascending.
func (s *State) crossMilestones() []int {
	var crossed []int
	for _, m := range shared.StreakMilestones {
		if m > s.CurrentStreak {
			break
		}
		if !s.HasMilestone(m) {
			s.AchievedMilestones = append(s.AchievedMilestones, m)
			crossed = append(crossed, m)
		}
	}
	if len(crossed) > 0 {
		sort.Ints(s.AchievedMilestones)
	}
	return crossed
}

// HasMilestone reports whether the milestone was ever reached.
func (s *State) HasMilestone(m int) bool {
	for _, have := range s.AchievedMilestones {
		if have == m {
			return true
		}
	}
	return false
}

// IsActive reports whether the user has qualifying activity today.
// Derived, never persisted.
func (s *State) IsActive(now time.Time) bool {
	if s.LastActiveDay.IsZero() {
		return false
	}
	return timeutil.SameDay(s.LastActiveDay, now)
}

// IsAtRisk reports whether the streak will break unless the user is active
// today: the last activity was exactly yesterday.
func (s *State) IsAtRisk(now time.Time) bool {
	if s.LastActiveDay.IsZero() || s.CurrentStreak == 0 {
		return false
	}
	return timeutil.DaysBetween(s.LastActiveDay, timeutil.CanonicalDay(now)) == 1
}

// NextMilestone returns the next threshold ahead of the current streak,
// or 0 when past the largest.
func (s *State) NextMilestone() int {
	return shared.NextMilestone(s.CurrentStreak)
}

// AddFreezes grants n freeze credits (n <= 0 is a no-op).
func (s *State) AddFreezes(n int) {
	if n <= 0 {
		return
	}
	s.FreezeCount += n
	s.UpdatedAt = time.Now().UTC()
}
