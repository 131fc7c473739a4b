// Package postgres provides a PostgreSQL implementation of the fitmeter.Storage interface.
// User records live in a JSONB column and are updated under SELECT FOR UPDATE row locks.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Storage implements fitmeter.Storage using PostgreSQL
type Storage struct {
	pool   *pgxpool.Pool
	config Config

	// stopCleanup cancels the background cleanup goroutine
	stopCleanup func()
}

// Config holds PostgreSQL storage configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration

	// AutoMigrate applies the embedded schema migrations on startup
	AutoMigrate bool

	// Cleanup configuration. Meals older than MealRetention are deleted
	// every CleanupInterval; a zero retention keeps meals forever.
	CleanupInterval time.Duration
	MealRetention   time.Duration

	// Logger receives migration output and malformed document warnings (optional)
	Logger fitmeter.Logger

	// Metrics counts malformed documents (optional)
	Metrics fitmeter.Metrics
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
		AutoMigrate:     true,
		CleanupInterval: time.Hour,
	}
}

// New creates a new PostgreSQL storage adapter
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if config.Logger == nil {
		config.Logger = &fitmeter.NoopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = &fitmeter.NoopMetrics{}
	}

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	// Apply pool settings
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if config.AutoMigrate {
		if err := Migrate(ctx, pool, config.Logger); err != nil {
			pool.Close()
			return nil, err
		}
	}

	cleanupCtx, cancel := context.WithCancel(context.Background())
	s := &Storage{
		pool:        pool,
		config:      config,
		stopCleanup: cancel,
	}

	if config.MealRetention > 0 && config.CleanupInterval > 0 {
		go s.startCleanup(cleanupCtx)
	}

	return s, nil
}

// Close closes the PostgreSQL connection pool and stops background cleanup
func (s *Storage) Close() {
	if s.stopCleanup != nil {
		s.stopCleanup()
	}
	if s.pool != nil {
		s.pool.Close()
	}
}

// GetUser implements fitmeter.Storage
func (s *Storage) GetUser(ctx context.Context, userID string) (*fitmeter.UserRecord, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT doc FROM users WHERE user_id = $1`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fitmeter.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return s.decode(userID, raw), nil
}

// UpdateUser implements fitmeter.Storage. The row is locked with SELECT FOR UPDATE
// for the duration of fn, so concurrent updates to one user are serialized.
func (s *Storage) UpdateUser(ctx context.Context, userID string, opts fitmeter.UpdateOptions,
	fn fitmeter.UpdateFunc) (*fitmeter.UserRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if opts.CreateIfMissing {
		// a concurrent creator may win; ON CONFLICT makes both paths converge on the lock below
		_, err = tx.Exec(ctx,
			`INSERT INTO users (user_id, doc) VALUES ($1, '{}'::jsonb)
			ON CONFLICT (user_id) DO NOTHING`, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT doc FROM users WHERE user_id = $1 FOR UPDATE`, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fitmeter.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock user: %w", err)
	}

	rec := s.decode(userID, raw)
	if err := fn(rec); err != nil {
		return nil, err
	}
	rec.UserID = userID

	data, err := json.Marshal(fitmeter.EncodeDocument(rec))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	// jsonb || merges top-level keys, keeping fields written by other services
	_, err = tx.Exec(ctx,
		`UPDATE users SET doc = doc || $2::jsonb, updated_at = NOW() WHERE user_id = $1`,
		userID, data)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return rec, nil
}

// AddMeal implements fitmeter.Storage
func (s *Storage) AddMeal(ctx context.Context, meal *fitmeter.Meal) (string, error) {
	if meal == nil {
		return "", fitmeter.ErrInvalidMeal
	}

	var image *string
	if meal.ImageURL != "" {
		image = &meal.ImageURL
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO meals (user_id, food_name, calories, protein, fat, carbohydrates, sugars, junk, image_url, logged_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		meal.UserID, meal.FoodName, meal.Calories, meal.Protein, meal.Fat,
		meal.Carbohydrates, meal.Sugars, meal.Junk, image, meal.Timestamp.UTC()).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to add meal: %w", err)
	}
	return strconv.FormatInt(id, 10), nil
}

// Meals returns the meals logged by a user, oldest first
func (s *Storage) Meals(ctx context.Context, userID string) ([]fitmeter.Meal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, food_name, calories, protein, fat, carbohydrates, sugars, junk, image_url, logged_at
		FROM meals WHERE user_id = $1 ORDER BY logged_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list meals: %w", err)
	}
	defer rows.Close()

	var meals []fitmeter.Meal
	for rows.Next() {
		var (
			m     fitmeter.Meal
			id    int64
			image *string
		)
		if err := rows.Scan(&id, &m.FoodName, &m.Calories, &m.Protein, &m.Fat,
			&m.Carbohydrates, &m.Sugars, &m.Junk, &image, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan meal: %w", err)
		}
		m.ID = strconv.FormatInt(id, 10)
		m.UserID = userID
		if image != nil {
			m.ImageURL = *image
		}
		meals = append(meals, m)
	}
	return meals, rows.Err()
}

// startCleanup runs periodic deletion of meals past the retention window
func (s *Storage) startCleanup(ctx context.Context) {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Cleanup(ctx); err != nil && ctx.Err() == nil {
				s.config.Logger.Warn("meal cleanup failed", fitmeter.ErrField(err))
			}
		}
	}
}

// Cleanup deletes meals logged before the retention window
func (s *Storage) Cleanup(ctx context.Context) error {
	if s.config.MealRetention <= 0 {
		return nil
	}
	cutoff := time.Now().UTC().Add(-s.config.MealRetention)
	if _, err := s.pool.Exec(ctx, `DELETE FROM meals WHERE logged_at < $1`, cutoff); err != nil {
		return fmt.Errorf("failed to cleanup meals: %w", err)
	}
	return nil
}

// Ping checks the PostgreSQL connection
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Storage) decode(userID string, raw []byte) *fitmeter.UserRecord {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	doc := map[string]interface{}{}
	if err := dec.Decode(&doc); err != nil {
		fitmeter.ReportMalformed(s.config.Logger, s.config.Metrics, userID,
			[]error{&fitmeter.MalformedStateError{Field: "document", Reason: err.Error()}})
		return &fitmeter.UserRecord{UserID: userID}
	}

	rec, errs := fitmeter.DecodeDocument(userID, doc)
	if len(errs) > 0 {
		fitmeter.ReportMalformed(s.config.Logger, s.config.Metrics, userID, errs)
	}
	return rec
}
