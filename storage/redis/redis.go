// Package redis provides a Redis implementation of the fitmeter.Storage interface.
// User records are JSON documents updated with optimistic WATCH/MULTI transactions.
package redis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Storage implements fitmeter.Storage using Redis
type Storage struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis storage configuration
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "fitmeter:")
	KeyPrefix string

	// MealTTL is the TTL for meal keys (0 = no expiration)
	MealTTL time.Duration

	// MaxRetries is the maximum number of optimistic transaction attempts (default: 10)
	MaxRetries int

	// Logger receives warnings about malformed documents (optional)
	Logger fitmeter.Logger

	// Metrics counts malformed documents (optional)
	Metrics fitmeter.Metrics
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		KeyPrefix:  "fitmeter:",
		MealTTL:    0, // Meals don't expire
		MaxRetries: 10,
	}
}

// New creates a new Redis storage adapter
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring
func New(client redis.UniversalClient, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	// Set defaults
	if config.KeyPrefix == "" {
		config.KeyPrefix = "fitmeter:"
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 10
	}
	if config.Logger == nil {
		config.Logger = &fitmeter.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &fitmeter.NoopMetrics{}
	}

	return &Storage{client: client, config: config}, nil
}

// GetUser implements fitmeter.Storage
func (s *Storage) GetUser(ctx context.Context, userID string) (*fitmeter.UserRecord, error) {
	raw, err := s.client.Get(ctx, s.userKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, fitmeter.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	doc, err := unmarshalDocument(raw)
	if err != nil {
		// an unreadable document is treated like fully malformed state
		fitmeter.ReportMalformed(s.config.Logger, s.config.Metrics, userID,
			[]error{&fitmeter.MalformedStateError{Field: "document", Reason: err.Error()}})
		return &fitmeter.UserRecord{UserID: userID}, nil
	}
	return s.decode(userID, doc), nil
}

// UpdateUser implements fitmeter.Storage. The user key is watched while fn runs;
// a concurrent write aborts the transaction and fn is re-run on the fresh record.
func (s *Storage) UpdateUser(ctx context.Context, userID string, opts fitmeter.UpdateOptions,
	fn fitmeter.UpdateFunc) (*fitmeter.UserRecord, error) {
	key := s.userKey(userID)
	var (
		result *fitmeter.UserRecord
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}

		doc := map[string]interface{}{}
		var rec *fitmeter.UserRecord
		switch {
		case err == redis.Nil:
			if !opts.CreateIfMissing {
				return fitmeter.ErrUserNotFound
			}
			rec = &fitmeter.UserRecord{UserID: userID}
		default:
			if doc, err = unmarshalDocument(raw); err != nil {
				fitmeter.ReportMalformed(s.config.Logger, s.config.Metrics, userID,
					[]error{&fitmeter.MalformedStateError{Field: "document", Reason: err.Error()}})
				doc = map[string]interface{}{}
			}
			rec = s.decode(userID, doc)
		}

		if fnErr = fn(rec); fnErr != nil {
			return fnErr
		}
		rec.UserID = userID

		// top-level merge keeps fields written by other services
		for k, v := range fitmeter.EncodeDocument(rec) {
			doc[k] = v
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return fmt.Errorf("failed to marshal user: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = rec
		return nil
	}

	for attempt := 0; attempt < s.config.MaxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		// errors returned by fn pass through unchanged
		if fnErr != nil || errors.Is(err, fitmeter.ErrUserNotFound) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return nil, fmt.Errorf("failed to update user %s: too much contention after %d attempts",
		userID, s.config.MaxRetries)
}

// AddMeal implements fitmeter.Storage. Meals are hashes indexed per user in a list.
func (s *Storage) AddMeal(ctx context.Context, meal *fitmeter.Meal) (string, error) {
	if meal == nil {
		return "", fitmeter.ErrInvalidMeal
	}

	seq, err := s.client.Incr(ctx, s.config.KeyPrefix+"meal:seq").Result()
	if err != nil {
		return "", fmt.Errorf("failed to allocate meal id: %w", err)
	}
	id := strconv.FormatInt(seq, 10)
	mealKey := s.mealKey(id)

	junk := 0
	if meal.Junk {
		junk = 1
	}
	fields := map[string]interface{}{
		"userId":        meal.UserID,
		"foodName":      meal.FoodName,
		"calories":      meal.Calories,
		"protein":       meal.Protein,
		"fat":           meal.Fat,
		"carbohydrates": meal.Carbohydrates,
		"sugars":        meal.Sugars,
		"junk":          junk,
		"image":         meal.ImageURL,
		"timestamp":     meal.Timestamp.UTC().Format(time.RFC3339Nano),
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, mealKey, fields)
		if s.config.MealTTL > 0 {
			pipe.Expire(ctx, mealKey, s.config.MealTTL)
		}
		pipe.RPush(ctx, s.mealIndexKey(meal.UserID), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to add meal: %w", err)
	}
	return id, nil
}

// MealIDs returns the ids of the meals a user logged, oldest first
func (s *Storage) MealIDs(ctx context.Context, userID string) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.mealIndexKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	return ids, nil
}

// Ping implements fitmeter.HealthChecker
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Storage) decode(userID string, doc map[string]interface{}) *fitmeter.UserRecord {
	rec, errs := fitmeter.DecodeDocument(userID, doc)
	if len(errs) > 0 {
		fitmeter.ReportMalformed(s.config.Logger, s.config.Metrics, userID, errs)
	}
	return rec
}

// unmarshalDocument keeps numbers as json.Number so large counters survive intact
func unmarshalDocument(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	doc := map[string]interface{}{}
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Key generation helpers
func (s *Storage) userKey(userID string) string {
	return fmt.Sprintf("%suser:%s", s.config.KeyPrefix, userID)
}

func (s *Storage) mealKey(mealID string) string {
	return fmt.Sprintf("%smeal:%s", s.config.KeyPrefix, mealID)
}

func (s *Storage) mealIndexKey(userID string) string {
	return fmt.Sprintf("%smeals:%s", s.config.KeyPrefix, userID)
}
