package fitmeter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// UsagePeriod identifies a calendar month. Quotas reset when it changes.
type UsagePeriod struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the calendar month of t, evaluated in t's location
func PeriodOf(t time.Time) UsagePeriod {
	return UsagePeriod{Year: t.Year(), Month: t.Month()}
}

// String renders the period as "{year}-{month}" with an unpadded month (e.g. "2026-3")
func (p UsagePeriod) String() string {
	return strconv.Itoa(p.Year) + "-" + strconv.Itoa(int(p.Month))
}

// IsZero reports whether p is the zero period
func (p UsagePeriod) IsZero() bool {
	return p.Year == 0 && p.Month == 0
}

// ParsePeriod parses "{year}-{month}". Zero-padded months are accepted.
func ParsePeriod(s string) (UsagePeriod, error) {
	year, month, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return UsagePeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	y, err := strconv.Atoi(year)
	if err != nil || y <= 0 {
		return UsagePeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	m, err := strconv.Atoi(month)
	if err != nil || m < 1 || m > 12 {
		return UsagePeriod{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	return UsagePeriod{Year: y, Month: time.Month(m)}, nil
}

// Day normalizes t to midnight in its own location
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// addDays moves a midnight-normalized date by n calendar days.
// time.Date handles DST days that are not 24h long.
func addDays(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, day.Location())
}

// sameDay reports whether two dates fall on the same calendar day in a's location
func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
