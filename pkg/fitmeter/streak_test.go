package fitmeter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func assertStreak(t *testing.T, want, got StreakState) {
	t.Helper()
	assert.Equal(t, want.ActivityCountToday, got.ActivityCountToday, "activityCountToday")
	assert.Equal(t, want.StreakLength, got.StreakLength, "streakLength")
	assertDate(t, want.LastActivityDate, got.LastActivityDate, "lastActivityDate")
	assertDate(t, want.LastStreakCreditDate, got.LastStreakCreditDate, "lastStreakCreditDate")
}

func assertDate(t *testing.T, want, got *time.Time, name string) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got, name)
		return
	}
	require.NotNil(t, got, name)
	assert.True(t, want.Equal(*got), "%s: want %v, got %v", name, *want, *got)
}

func TestRecordActivity_FirstEver(t *testing.T) {
	d := date(2024, time.March, 10)

	got := RecordActivity(nil, d)

	assertStreak(t, StreakState{ActivityCountToday: 1, LastActivityDate: &d}, got)
}

func TestRecordActivity_ThresholdCreditsOncePerDay(t *testing.T) {
	d := date(2024, time.March, 10)
	state := StreakState{ActivityCountToday: 1, LastActivityDate: &d}

	second := RecordActivity(&state, d)
	assertStreak(t, StreakState{ActivityCountToday: 2, StreakLength: 1, LastActivityDate: &d, LastStreakCreditDate: &d}, second)
	assert.True(t, Credited(&state, second))

	third := RecordActivity(&second, d)
	assertStreak(t, StreakState{ActivityCountToday: 3, StreakLength: 1, LastActivityDate: &d, LastStreakCreditDate: &d}, third)
	assert.False(t, Credited(&second, third))
}

func TestRecordActivity_ConsecutiveDayContinues(t *testing.T) {
	d := date(2024, time.March, 10)
	next := date(2024, time.March, 11)
	state := StreakState{ActivityCountToday: 2, StreakLength: 1, LastActivityDate: &d, LastStreakCreditDate: &d}

	first := RecordActivity(&state, next)
	assertStreak(t, StreakState{ActivityCountToday: 1, StreakLength: 1, LastActivityDate: &next, LastStreakCreditDate: &d}, first)

	second := RecordActivity(&first, next)
	assertStreak(t, StreakState{ActivityCountToday: 2, StreakLength: 2, LastActivityDate: &next, LastStreakCreditDate: &next}, second)
}

func TestRecordActivity_GapResets(t *testing.T) {
	d := date(2024, time.March, 10)
	later := date(2024, time.March, 13)
	state := StreakState{ActivityCountToday: 4, StreakLength: 3, LastActivityDate: &d, LastStreakCreditDate: &d}

	got := RecordActivity(&state, later)

	assertStreak(t, StreakState{ActivityCountToday: 1, LastActivityDate: &later, LastStreakCreditDate: &d}, got)
}

func TestRecordActivity_OneDayGapWithoutCreditResets(t *testing.T) {
	// active yesterday below the threshold, so there is no credit from yesterday
	d := date(2024, time.March, 10)
	yesterday := date(2024, time.March, 11)
	today := date(2024, time.March, 12)
	state := StreakState{ActivityCountToday: 1, StreakLength: 2, LastActivityDate: &yesterday, LastStreakCreditDate: &d}

	got := RecordActivity(&state, today)

	assert.Equal(t, uint64(0), got.StreakLength)
	assert.Equal(t, uint64(1), got.ActivityCountToday)
}

func TestRecordActivity_NewDayWithoutPriorCreditResets(t *testing.T) {
	d := date(2024, time.March, 10)
	next := date(2024, time.March, 11)
	state := StreakState{ActivityCountToday: 1, StreakLength: 0, LastActivityDate: &d}

	got := RecordActivity(&state, next)

	assertStreak(t, StreakState{ActivityCountToday: 1, LastActivityDate: &next}, got)
}

func TestRecordActivity_MissingLastActivityIsNewDay(t *testing.T) {
	d := date(2024, time.March, 10)
	yesterday := date(2024, time.March, 9)
	state := StreakState{ActivityCountToday: 7, StreakLength: 5, LastStreakCreditDate: &yesterday}

	got := RecordActivity(&state, d)

	assertStreak(t, StreakState{ActivityCountToday: 1, StreakLength: 5, LastActivityDate: &d, LastStreakCreditDate: &yesterday}, got)
}

func TestRecordActivity_NormalizesToday(t *testing.T) {
	d := date(2024, time.March, 10)
	afternoon := d.Add(15*time.Hour + 30*time.Minute)

	first := RecordActivity(nil, afternoon)
	second := RecordActivity(&first, d.Add(23*time.Hour))

	assertDate(t, &d, first.LastActivityDate, "lastActivityDate")
	assert.Equal(t, uint64(1), second.StreakLength)
	assertDate(t, &d, second.LastStreakCreditDate, "lastStreakCreditDate")
}

func TestRecordActivity_MonthAndYearBoundaries(t *testing.T) {
	tests := []struct {
		name        string
		credit, now time.Time
	}{
		{"month end", date(2024, time.February, 29), date(2024, time.March, 1)},
		{"year end", date(2023, time.December, 31), date(2024, time.January, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := StreakState{ActivityCountToday: 2, StreakLength: 9, LastActivityDate: ptr(tt.credit), LastStreakCreditDate: ptr(tt.credit)}
			got := RecordActivity(&state, tt.now)
			assert.Equal(t, uint64(9), got.StreakLength)
		})
	}
}

func TestRecordActivity_DaylightSavingTransition(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}
	// 2024-03-10 is 23 hours long in New York
	credit := time.Date(2024, time.March, 10, 0, 0, 0, 0, loc)
	next := time.Date(2024, time.March, 11, 8, 0, 0, 0, loc)
	state := StreakState{ActivityCountToday: 2, StreakLength: 4, LastActivityDate: &credit, LastStreakCreditDate: &credit}

	got := RecordActivity(&state, next)

	assert.Equal(t, uint64(4), got.StreakLength)
}

func TestRecordActivity_DoesNotMutateInput(t *testing.T) {
	d := date(2024, time.March, 10)
	state := StreakState{ActivityCountToday: 1, LastActivityDate: &d}

	a := RecordActivity(&state, d)
	b := RecordActivity(&state, d)

	assertStreak(t, a, b)
	assert.Equal(t, uint64(1), state.ActivityCountToday)
	assert.Nil(t, state.LastStreakCreditDate)
}

func TestRecordActivity_NeverAdvancesBeyondToday(t *testing.T) {
	d := date(2024, time.March, 10)
	var state *StreakState
	for i := 0; i < 5; i++ {
		next := RecordActivity(state, d)
		assert.False(t, next.LastActivityDate.After(d))
		if next.LastStreakCreditDate != nil {
			assert.False(t, next.LastStreakCreditDate.After(d))
		}
		state = &next
	}
	assert.Equal(t, uint64(1), state.StreakLength)
}

func TestStreakTracker_CustomPolicy(t *testing.T) {
	tracker := StreakTracker{Threshold: 3, Lookback: 2}
	d := date(2024, time.March, 10)

	s := tracker.RecordActivity(nil, d)
	s = tracker.RecordActivity(&s, d)
	assert.Equal(t, uint64(0), s.StreakLength)
	s = tracker.RecordActivity(&s, d)
	assert.Equal(t, uint64(1), s.StreakLength)

	// two days later still continues with a two-day lookback
	s = tracker.RecordActivity(&s, date(2024, time.March, 12))
	assert.Equal(t, uint64(1), s.StreakLength)
}

func TestStreakTracker_ZeroValueUsesDefaults(t *testing.T) {
	var tracker StreakTracker
	d := date(2024, time.March, 10)

	s := tracker.RecordActivity(nil, d)
	s = tracker.RecordActivity(&s, d)

	assert.Equal(t, uint64(1), s.StreakLength)
}
