// Package memory provides an in-memory implementation of the fitmeter.Storage interface.
// This implementation is primarily intended for testing and development.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Storage implements fitmeter.Storage using in-memory maps
type Storage struct {
	mu     sync.RWMutex
	users  map[string]*fitmeter.UserRecord
	meals  map[string]*fitmeter.Meal
	nextID int64
}

// New creates a new in-memory storage adapter
func New() *Storage {
	return &Storage{
		users: make(map[string]*fitmeter.UserRecord),
		meals: make(map[string]*fitmeter.Meal),
	}
}

// GetUser implements fitmeter.Storage
func (s *Storage) GetUser(_ context.Context, userID string) (*fitmeter.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[userID]
	if !ok {
		return nil, fitmeter.ErrUserNotFound
	}
	// Return a copy to prevent external mutations
	return rec.Clone(), nil
}

// UpdateUser implements fitmeter.Storage. The write lock serializes concurrent
// updates, so fn always sees the latest record.
func (s *Storage) UpdateUser(ctx context.Context, userID string, opts fitmeter.UpdateOptions,
	fn fitmeter.UpdateFunc) (*fitmeter.UserRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[userID]
	if !ok {
		if !opts.CreateIfMissing {
			return nil, fitmeter.ErrUserNotFound
		}
		rec = &fitmeter.UserRecord{UserID: userID}
	}

	// fn works on a copy so a failed update leaves the stored record untouched
	work := rec.Clone()
	if err := fn(work); err != nil {
		return nil, err
	}
	work.UserID = userID
	s.users[userID] = work
	return work.Clone(), nil
}

// AddMeal implements fitmeter.Storage
func (s *Storage) AddMeal(_ context.Context, meal *fitmeter.Meal) (string, error) {
	if meal == nil {
		return "", fitmeter.ErrInvalidMeal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := "meal-" + strconv.FormatInt(s.nextID, 10)
	mealCopy := *meal
	mealCopy.ID = id
	s.meals[id] = &mealCopy
	return id, nil
}

// PutUser stores a record as-is (useful for seeding tests)
func (s *Storage) PutUser(rec *fitmeter.UserRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[rec.UserID] = rec.Clone()
}

// Meals returns the meals logged by a user, oldest first
func (s *Storage) Meals(userID string) []fitmeter.Meal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []fitmeter.Meal
	for _, m := range s.meals {
		if m.UserID == userID {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

// Ping implements fitmeter.HealthChecker
func (s *Storage) Ping(context.Context) error {
	return nil
}

// Clear removes all data (useful for testing)
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = make(map[string]*fitmeter.UserRecord)
	s.meals = make(map[string]*fitmeter.Meal)
}
