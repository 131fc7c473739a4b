package fitmeter

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned when a user record does not exist
	ErrUserNotFound = errors.New("user not found")

	// ErrStorageUnavailable is returned when storage is unavailable
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidUserID is returned for empty or oversized user identifiers
	ErrInvalidUserID = errors.New("invalid user ID")

	// ErrInvalidFeature is returned for an unknown feature
	ErrInvalidFeature = errors.New("invalid feature")

	// ErrQuotaExhausted is returned by Allow when no units remain in the period
	ErrQuotaExhausted = errors.New("quota exhausted")

	// ErrInvalidPeriod is returned when a period string cannot be parsed
	ErrInvalidPeriod = errors.New("invalid period")

	// ErrInvalidMeal is returned when a meal is missing required fields
	ErrInvalidMeal = errors.New("invalid meal")

	// ErrInvalidStreakThreshold is returned for a streak threshold below 2.
	// The first meal of a day only starts the day's count and never earns credit.
	ErrInvalidStreakThreshold = errors.New("streak threshold must be at least 2")
)

// MalformedStateError describes a persisted sub-structure that is present but
// cannot be decoded. The sub-structure is treated as absent.
type MalformedStateError struct {
	Field  string
	Reason string
}

func (e *MalformedStateError) Error() string {
	return fmt.Sprintf("malformed state in %q: %s", e.Field, e.Reason)
}

func malformed(field, format string, args ...interface{}) *MalformedStateError {
	return &MalformedStateError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
