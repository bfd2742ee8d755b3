package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalDayTruncates(t *testing.T) {
	ts := time.Date(2026, 3, 15, 23, 45, 12, 999, time.UTC)
	d := CanonicalDay(ts)

	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), d)
}

func TestCanonicalDayCrossesZoneBoundary(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	SetCanonicalZone(ny)
	defer SetCanonicalZone(time.UTC)

	// 2026-03-16 02:00 UTC is still 2026-03-15 in New York.
	ts := time.Date(2026, 3, 16, 2, 0, 0, 0, time.UTC)
	d := CanonicalDay(ts)

	assert.Equal(t, 15, d.Day())
	assert.Equal(t, time.March, d.Month())
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	b := time.Date(2026, 3, 13, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, 3, DaysBetween(a, b))
	assert.Equal(t, -3, DaysBetween(b, a))
	assert.Equal(t, 0, DaysBetween(a, a.Add(5*time.Hour)))
}

func TestDaysBetweenAcrossDST(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	SetCanonicalZone(ny)
	defer SetCanonicalZone(time.UTC)

	// The US spring-forward transition (2026-03-08) makes that day 23 hours.
	before := time.Date(2026, 3, 7, 12, 0, 0, 0, ny)
	after := time.Date(2026, 3, 9, 12, 0, 0, 0, ny)

	assert.Equal(t, 2, DaysBetween(before, after))
	assert.True(t, IsConsecutiveDay(before, time.Date(2026, 3, 8, 12, 0, 0, 0, ny)))
}

func TestSameDay(t *testing.T) {
	a := time.Date(2026, 3, 10, 0, 0, 1, 0, time.UTC)
	b := time.Date(2026, 3, 10, 23, 59, 59, 0, time.UTC)
	c := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)

	assert.True(t, SameDay(a, b))
	assert.False(t, SameDay(b, c))
}

func TestAddDays(t *testing.T) {
	d := time.Date(2026, 2, 27, 15, 30, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), AddDays(d, 2))
	assert.Equal(t, time.Date(2026, 2, 25, 0, 0, 0, 0, time.UTC), AddDays(d, -2))
}

func TestFormatAndParseDay(t *testing.T) {
	d := time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-05", FormatDayStr(d))

	parsed, err := ParseDay("2026-03-05")
	require.NoError(t, err)
	assert.Equal(t, CanonicalDay(d), parsed)

	_, err = ParseDay("not-a-day")
	assert.Error(t, err)
}

func TestSetCanonicalZoneNilFallsBackToUTC(t *testing.T) {
	SetCanonicalZone(nil)
	assert.Equal(t, time.UTC, CanonicalZone())
}
