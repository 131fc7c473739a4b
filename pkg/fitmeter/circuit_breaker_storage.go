package fitmeter

import (
	"context"
)

// CircuitBreakerStorage wraps a Storage implementation with circuit breaker protection.
type CircuitBreakerStorage struct {
	storage Storage
	cb      CircuitBreaker
}

// NewCircuitBreakerStorage creates a new storage wrapper with circuit breaker.
func NewCircuitBreakerStorage(storage Storage, cb CircuitBreaker) *CircuitBreakerStorage {
	return &CircuitBreakerStorage{
		storage: storage,
		cb:      cb,
	}
}

func (s *CircuitBreakerStorage) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	var rec *UserRecord
	err := s.cb.Execute(ctx, func() error {
		var e error
		rec, e = s.storage.GetUser(ctx, userID)
		return e
	})
	return rec, err
}

func (s *CircuitBreakerStorage) UpdateUser(ctx context.Context, userID string, opts UpdateOptions,
	fn UpdateFunc) (*UserRecord, error) {
	var rec *UserRecord
	err := s.cb.Execute(ctx, func() error {
		var e error
		rec, e = s.storage.UpdateUser(ctx, userID, opts, fn)
		return e
	})
	return rec, err
}

func (s *CircuitBreakerStorage) AddMeal(ctx context.Context, meal *Meal) (string, error) {
	var id string
	err := s.cb.Execute(ctx, func() error {
		var e error
		id, e = s.storage.AddMeal(ctx, meal)
		return e
	})
	return id, err
}

// Ping forwards to the wrapped storage when it supports health checks.
func (s *CircuitBreakerStorage) Ping(ctx context.Context) error {
	hc, ok := s.storage.(HealthChecker)
	if !ok {
		return nil
	}
	return s.cb.Execute(ctx, func() error {
		return hc.Ping(ctx)
	})
}

// State returns the breaker state.
func (s *CircuitBreakerStorage) State() CircuitBreakerState {
	return s.cb.State()
}
