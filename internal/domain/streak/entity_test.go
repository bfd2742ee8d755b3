package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tastebook/progression-engine/pkg/timeutil"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestRecordActivity_FirstEver(t *testing.T) {
	s := New("user1")

	out := s.RecordActivity(day("2026-03-01"))

	assert.Equal(t, ResultStarted, out.Result)
	assert.Equal(t, 0, out.PreviousStreak)
	assert.Equal(t, 1, out.CurrentStreak)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.LongestStreak)
	assert.Equal(t, timeutil.CanonicalDay(day("2026-03-01")), s.LastActiveDay)
}

func TestRecordActivity_SameDayIsIdempotent(t *testing.T) {
	s := New("user1")
	s.RecordActivity(day("2026-03-01"))

	out := s.RecordActivity(day("2026-03-01"))

	assert.Equal(t, ResultUnchanged, out.Result)
	assert.Equal(t, 1, out.CurrentStreak)
	assert.Equal(t, 1, s.CurrentStreak)

	// A third replay changes nothing either.
	out = s.RecordActivity(day("2026-03-01"))
	assert.Equal(t, ResultUnchanged, out.Result)
	assert.Equal(t, 1, s.CurrentStreak)
}

func TestRecordActivity_ConsecutiveDayExtends(t *testing.T) {
	s := New("user1")
	s.RecordActivity(day("2026-03-01"))

	out := s.RecordActivity(day("2026-03-02"))

	assert.Equal(t, ResultExtended, out.Result)
	assert.Equal(t, 1, out.PreviousStreak)
	assert.Equal(t, 2, out.CurrentStreak)
	assert.Equal(t, 2, s.LongestStreak)
}

func TestRecordActivity_GapWithEnoughFreezes(t *testing.T) {
	s := New("user1")
	s.RecordActivity(day("2026-03-01"))
	s.RecordActivity(day("2026-03-02"))
	s.AddFreezes(2)

	// 2026-03-03 and 03-04 missed, activity on 03-05.
	out := s.RecordActivity(day("2026-03-05"))

	assert.Equal(t, ResultFrozen, out.Result)
	assert.Equal(t, 2, out.DaysMissed)
	assert.Equal(t, 2, out.FreezesConsumed)
	assert.Equal(t, 3, out.CurrentStreak)
	assert.Equal(t, 0, s.FreezeCount)
}

func TestRecordActivity_GapBeyondFreezesResets(t *testing.T) {
	s := New("user1")
	s.RecordActivity(day("2026-03-01"))
	s.RecordActivity(day("2026-03-02"))
	s.AddFreezes(1)

	out := s.RecordActivity(day("2026-03-05"))

	assert.Equal(t, ResultReset, out.Result)
	assert.Equal(t, 2, out.DaysMissed)
	assert.Equal(t, 0, out.FreezesConsumed)
	assert.Equal(t, 2, out.PreviousStreak)
	assert.Equal(t, 1, out.CurrentStreak)
	// Freezes are not partially spent on a reset.
	assert.Equal(t, 1, s.FreezeCount)
	// Longest streak survives the reset.
	assert.Equal(t, 2, s.LongestStreak)
}

func TestRecordActivity_OutOfOrderDayIsIgnored(t *testing.T) {
	s := New("user1")
	s.RecordActivity(day("2026-03-05"))

	out := s.RecordActivity(day("2026-03-03"))

	assert.Equal(t, ResultOutOfOrder, out.Result)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, timeutil.CanonicalDay(day("2026-03-05")), s.LastActiveDay)
}

func TestRecordActivity_MilestonesCrossOnce(t *testing.T) {
	s := New("user1")
	start := day("2026-03-01")
	for i := 0; i < 7; i++ {
		out := s.RecordActivity(timeutil.AddDays(start, i))
		if i < 6 {
			assert.Empty(t, out.NewMilestones)
		} else {
			assert.Equal(t, []int{7}, out.NewMilestones)
		}
	}
	assert.True(t, s.HasMilestone(7))

	// Break the streak, climb back to 7: the milestone is not re-awarded.
	s.RecordActivity(timeutil.AddDays(start, 20))
	assert.Equal(t, 1, s.CurrentStreak)
	for i := 21; i < 27; i++ {
		out := s.RecordActivity(timeutil.AddDays(start, i))
		assert.Empty(t, out.NewMilestones)
	}
	assert.Equal(t, 7, s.CurrentStreak)
	assert.Equal(t, []int{7}, s.AchievedMilestones)
}

func TestRecordActivity_FrozenJumpCrossesMilestone(t *testing.T) {
	s := New("user1")
	start := day("2026-03-01")
	for i := 0; i < 6; i++ {
		s.RecordActivity(timeutil.AddDays(start, i))
	}
	s.AddFreezes(1)

	// Day 6 missed, day 7 active: streak 6 -> 7 via freeze.
	out := s.RecordActivity(timeutil.AddDays(start, 7))

	assert.Equal(t, ResultFrozen, out.Result)
	assert.Equal(t, 7, out.CurrentStreak)
	assert.Equal(t, []int{7}, out.NewMilestones)
}

func TestIsAtRisk(t *testing.T) {
	s := New("user1")
	assert.False(t, s.IsAtRisk(day("2026-03-02")))

	s.RecordActivity(day("2026-03-01"))
	assert.False(t, s.IsAtRisk(day("2026-03-01")), "active today is not at risk")
	assert.True(t, s.IsAtRisk(day("2026-03-02")), "last active yesterday is at risk")
	assert.False(t, s.IsAtRisk(day("2026-03-03")), "already broken is not at risk")
}

func TestIsActive(t *testing.T) {
	s := New("user1")
	assert.False(t, s.IsActive(day("2026-03-01")))

	s.RecordActivity(day("2026-03-01"))
	assert.True(t, s.IsActive(day("2026-03-01")))
	assert.False(t, s.IsActive(day("2026-03-02")))
}

func TestNextMilestone(t *testing.T) {
	s := New("user1")
	assert.Equal(t, 7, s.NextMilestone())

	s.CurrentStreak = 7
	assert.Equal(t, 14, s.NextMilestone())

	s.CurrentStreak = 365
	assert.Equal(t, 0, s.NextMilestone())
}

func TestAddFreezes(t *testing.T) {
	s := New("user1")
	s.AddFreezes(3)
	assert.Equal(t, 3, s.FreezeCount)

	s.AddFreezes(0)
	s.AddFreezes(-5)
	assert.Equal(t, 3, s.FreezeCount)
}
