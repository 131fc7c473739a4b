// Package firestore provides a Firestore implementation of the fitmeter.Storage interface.
// User records are stored in the document shape used by the mobile clients, so the
// same collection can be shared with them.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

const healthDocID = "healthcheck"

// Storage implements fitmeter.Storage using Google Cloud Firestore
type Storage struct {
	client           *firestore.Client
	usersCollection  string
	mealsCollection  string
	logger           fitmeter.Logger
	metrics          fitmeter.Metrics
	healthCollection string
}

// Config holds Firestore storage configuration
type Config struct {
	// UsersCollection is the Firestore collection for user records
	// Default: "users"
	UsersCollection string

	// MealsCollection is the Firestore collection for logged meals
	// Default: "meals"
	MealsCollection string

	// Logger receives warnings about malformed documents (optional)
	Logger fitmeter.Logger

	// Metrics counts malformed documents (optional)
	Metrics fitmeter.Metrics
}

// New creates a new Firestore storage adapter
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}

	// Set defaults
	if config.UsersCollection == "" {
		config.UsersCollection = "users"
	}
	if config.MealsCollection == "" {
		config.MealsCollection = "meals"
	}
	if config.Logger == nil {
		config.Logger = &fitmeter.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &fitmeter.NoopMetrics{}
	}

	return &Storage{
		client:           client,
		usersCollection:  config.UsersCollection,
		mealsCollection:  config.MealsCollection,
		logger:           config.Logger,
		metrics:          config.Metrics,
		healthCollection: config.UsersCollection,
	}, nil
}

// GetUser implements fitmeter.Storage
func (s *Storage) GetUser(ctx context.Context, userID string) (*fitmeter.UserRecord, error) {
	snap, err := s.userDoc(userID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fitmeter.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !snap.Exists() {
		return nil, fitmeter.ErrUserNotFound
	}
	return s.decode(userID, snap.Data()), nil
}

// UpdateUser implements fitmeter.Storage inside a Firestore transaction.
// Firestore retries the transaction when the document changes concurrently.
func (s *Storage) UpdateUser(ctx context.Context, userID string, opts fitmeter.UpdateOptions,
	fn fitmeter.UpdateFunc) (*fitmeter.UserRecord, error) {
	doc := s.userDoc(userID)
	var result *fitmeter.UserRecord

	err := s.client.RunTransaction(ctx, func(_ context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(doc)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}

		var rec *fitmeter.UserRecord
		if snap != nil && snap.Exists() {
			rec = s.decode(userID, snap.Data())
		} else {
			if !opts.CreateIfMissing {
				return fitmeter.ErrUserNotFound
			}
			rec = &fitmeter.UserRecord{UserID: userID}
		}

		if err := fn(rec); err != nil {
			return err
		}
		rec.UserID = userID

		// merge so that fields owned by other services (push tokens, profile) survive
		if err := tx.Set(doc, fitmeter.EncodeDocument(rec), firestore.MergeAll); err != nil {
			return err
		}
		result = rec
		return nil
	})
	if err != nil {
		if err == fitmeter.ErrUserNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return result, nil
}

// AddMeal implements fitmeter.Storage
func (s *Storage) AddMeal(ctx context.Context, meal *fitmeter.Meal) (string, error) {
	if meal == nil {
		return "", fitmeter.ErrInvalidMeal
	}

	junk := 0
	if meal.Junk {
		junk = 1
	}
	var image interface{}
	if meal.ImageURL != "" {
		image = meal.ImageURL
	}

	ref, _, err := s.client.Collection(s.mealsCollection).Add(ctx, map[string]interface{}{
		"userId":        meal.UserID,
		"foodName":      meal.FoodName,
		"calories":      meal.Calories,
		"protein":       meal.Protein,
		"fat":           meal.Fat,
		"carbohydrates": meal.Carbohydrates,
		"sugars":        meal.Sugars,
		"junk":          junk,
		"image":         image,
		"loggedAt":      meal.Timestamp,
		"timestamp":     firestore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("failed to add meal: %w", err)
	}
	return ref.ID, nil
}

// Ping implements fitmeter.HealthChecker by reading a document that normally does not exist
func (s *Storage) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.client.Collection(s.healthCollection).Doc(healthDocID).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("firestore unavailable: %w", err)
	}
	return nil
}

func (s *Storage) decode(userID string, data map[string]interface{}) *fitmeter.UserRecord {
	rec, errs := fitmeter.DecodeDocument(userID, data)
	if len(errs) > 0 {
		fitmeter.ReportMalformed(s.logger, s.metrics, userID, errs)
	}
	return rec
}

// userDoc returns the Firestore document reference for a user record
func (s *Storage) userDoc(userID string) *firestore.DocumentRef {
	return s.client.Collection(s.usersCollection).Doc(userID)
}
