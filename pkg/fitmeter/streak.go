package fitmeter

import "time"

// StreakTracker advances a StreakState on every tracked activity.
// A day earns streak credit once Threshold activities are logged on it, and the
// streak survives a new day only if the last credit is exactly Lookback days old.
type StreakTracker struct {
	Threshold uint64
	Lookback  int
}

// DefaultStreakTracker returns the tracker with a threshold of 2 and a one-day lookback
func DefaultStreakTracker() StreakTracker {
	return StreakTracker{Threshold: DefaultStreakThreshold, Lookback: DefaultStreakLookback}
}

// RecordActivity applies the default tracker to state for an activity on today
func RecordActivity(state *StreakState, today time.Time) StreakState {
	return DefaultStreakTracker().RecordActivity(state, today)
}

// RecordActivity returns the state after one more activity on today.
// today is normalized to midnight; state is not modified.
func (t StreakTracker) RecordActivity(state *StreakState, today time.Time) StreakState {
	today = Day(today)
	threshold := t.Threshold
	if threshold == 0 {
		threshold = DefaultStreakThreshold
	}
	lookback := t.Lookback
	if lookback <= 0 {
		lookback = DefaultStreakLookback
	}

	if state == nil {
		return StreakState{
			ActivityCountToday: 1,
			LastActivityDate:   &today,
		}
	}

	next := StreakState{
		ActivityCountToday:   state.ActivityCountToday,
		StreakLength:         state.StreakLength,
		LastStreakCreditDate: cloneTime(state.LastStreakCreditDate),
	}
	if next.LastStreakCreditDate != nil {
		credit := Day(next.LastStreakCreditDate.In(today.Location()))
		next.LastStreakCreditDate = &credit
	}

	if state.LastActivityDate == nil || !sameDay(today, *state.LastActivityDate) {
		next.ActivityCountToday = 1
		expected := addDays(today, -lookback)
		if next.LastStreakCreditDate == nil || !next.LastStreakCreditDate.Equal(expected) {
			next.StreakLength = 0
		}
		next.LastActivityDate = &today
		return next
	}

	next.ActivityCountToday++
	next.LastActivityDate = &today
	if next.ActivityCountToday >= threshold &&
		(next.LastStreakCreditDate == nil || !next.LastStreakCreditDate.Equal(today)) {
		next.StreakLength++
		credit := today
		next.LastStreakCreditDate = &credit
	}
	return next
}

// Credited reports whether the transition from prev to next earned streak credit
func Credited(prev *StreakState, next StreakState) bool {
	if prev == nil {
		return next.StreakLength > 0
	}
	return next.StreakLength > prev.StreakLength
}
