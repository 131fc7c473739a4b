package fitmeter

import (
	"context"
)

// UpdateFunc mutates a user record in place. Returning an error aborts the update
// and nothing is persisted.
type UpdateFunc func(record *UserRecord) error

// Storage defines the persistence contract for user records and meals.
//
// UpdateUser is the only write path for usage and streak state. Implementations
// must run fn against the latest stored record and persist its result atomically
// (transaction, row lock or compare-and-swap), retrying fn if the record changed
// underneath. fn may therefore be called more than once and must be free of side
// effects outside the record.
type Storage interface {
	// GetUser returns the user's record or ErrUserNotFound.
	GetUser(ctx context.Context, userID string) (*UserRecord, error)

	// UpdateUser atomically applies fn to the user's record and returns the stored result.
	UpdateUser(ctx context.Context, userID string, opts UpdateOptions, fn UpdateFunc) (*UserRecord, error)

	// AddMeal stores a meal and returns its identifier.
	AddMeal(ctx context.Context, meal *Meal) (string, error)
}

// HealthChecker is optionally implemented by storage backends that can report liveness.
type HealthChecker interface {
	Ping(ctx context.Context) error
}
