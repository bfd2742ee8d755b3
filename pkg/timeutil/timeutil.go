// Package timeutil provides the canonical day-boundary arithmetic shared by
// all streak computations. A "day" is anchored to a single engine-wide
// timezone (UTC unless configured otherwise) so streak math never depends on
// the submitting device's clock or locale.
// No external dependencies - uses only standard library.
package timeutil

import (
	"sync/atomic"
	"time"
)

// canonicalZone holds the engine-wide day-boundary location.
// Defaults to UTC; set once at bootstrap via SetCanonicalZone.
var canonicalZone atomic.Pointer[time.Location]

func init() {
	canonicalZone.Store(time.UTC)
}

// SetCanonicalZone sets the engine-wide day-boundary timezone. Call once
// during process bootstrap, before any streak computation.
func SetCanonicalZone(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	canonicalZone.Store(loc)
}

// CanonicalZone returns the engine-wide day-boundary timezone.
func CanonicalZone() *time.Location {
	return canonicalZone.Load()
}

// Now returns the current time in the canonical zone.
func Now() time.Time {
	return time.Now().In(CanonicalZone())
}

// CanonicalDay truncates t to the start of its calendar day in the canonical
// zone. Every streak computation goes through this single function.
func CanonicalDay(t time.Time) time.Time {
	local := t.In(CanonicalZone())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, CanonicalZone())
}

// Today returns the start of the current canonical day.
func Today() time.Time {
	return CanonicalDay(time.Now())
}

// SameDay reports whether t1 and t2 fall on the same canonical day.
func SameDay(t1, t2 time.Time) bool {
	a, b := t1.In(CanonicalZone()), t2.In(CanonicalZone())
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// DaysBetween returns the signed number of canonical days from "from" to
// "to": positive when to is after from, negative when it precedes it.
// Computed on day starts so DST shifts in non-UTC zones cannot skew the gap.
func DaysBetween(from, to time.Time) int {
	a := CanonicalDay(from)
	b := CanonicalDay(to)
	// Round rather than truncate: a DST transition makes one "day" 23h or 25h.
	hours := b.Sub(a).Hours()
	if hours >= 0 {
		return int(hours + 12) / 24
	}
	return -(int(-hours+12) / 24)
}

// IsConsecutiveDay reports whether "to" is exactly the day after "from".
func IsConsecutiveDay(from, to time.Time) bool {
	return DaysBetween(from, to) == 1
}

// AddDays returns the start of the canonical day n days after t.
func AddDays(t time.Time, n int) time.Time {
	return CanonicalDay(CanonicalDay(t).AddDate(0, 0, n))
}

// FormatDay is the wire format for canonical days (YYYY-MM-DD).
const FormatDay = "2006-01-02"

// FormatDayStr formats t's canonical day as YYYY-MM-DD.
func FormatDayStr(t time.Time) string {
	return CanonicalDay(t).Format(FormatDay)
}

// ParseDay parses a YYYY-MM-DD string as a canonical day.
func ParseDay(value string) (time.Time, error) {
	return time.ParseInLocation(FormatDay, value, CanonicalZone())
}
