package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mihaimyh/fitmeter/pkg/billing"
	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

// Storage backends selectable with STORAGE_BACKEND
const (
	BackendMemory    = "memory"
	BackendRedis     = "redis"
	BackendFirestore = "firestore"
	BackendPostgres  = "postgres"
)

// Config is the server configuration read from the environment
type Config struct {
	Port      int    `env:"PORT" envDefault:"3000"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	StorageBackend           string `env:"STORAGE_BACKEND" envDefault:"memory"`
	RedisURL                 string `env:"REDIS_URL"`
	FirestoreProjectID       string `env:"FIRESTORE_PROJECT_ID"`
	FirestoreUsersCollection string `env:"FIRESTORE_USERS_COLLECTION" envDefault:"users"`
	FirestoreMealsCollection string `env:"FIRESTORE_MEALS_COLLECTION" envDefault:"meals"`
	PostgresDSN              string `env:"POSTGRES_DSN"`

	PlanTokenLimit         uint64 `env:"PLAN_TOKEN_LIMIT" envDefault:"10000"`
	ImageTokenLimit        uint64 `env:"IMAGE_TOKEN_LIMIT" envDefault:"10000"`
	PremiumPlanTokenLimit  uint64 `env:"PREMIUM_PLAN_TOKEN_LIMIT" envDefault:"100000"`
	PremiumImageTokenLimit uint64 `env:"PREMIUM_IMAGE_TOKEN_LIMIT" envDefault:"100000"`
	StreakThreshold        uint64 `env:"STREAK_THRESHOLD" envDefault:"2"`
	Timezone               string `env:"TIMEZONE"`

	GeminiAPIKey string  `env:"GEMINI_API_KEY"`
	GeminiModel  string  `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`
	GeminiRPS    float64 `env:"GEMINI_RPS" envDefault:"5"`

	StripeAPIKey         string `env:"STRIPE_API_KEY"`
	StripeWebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePremiumPriceID string `env:"STRIPE_PREMIUM_PRICE_ID"`

	// a zero threshold disables the storage circuit breaker
	CircuitBreakerThreshold int           `env:"CIRCUIT_BREAKER_THRESHOLD" envDefault:"5"`
	CircuitBreakerReset     time.Duration `env:"CIRCUIT_BREAKER_RESET" envDefault:"30s"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"fitmeter"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// LoadConfig reads .env (when present) and the process environment
func LoadConfig() (Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that backend specific settings are present
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	switch c.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis backend"))
		}
	case BackendFirestore:
		if c.FirestoreProjectID == "" {
			errs = append(errs, errors.New("FIRESTORE_PROJECT_ID is required for the firestore backend"))
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend))
	}
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if c.StripeAPIKey != "" && c.StripePremiumPriceID == "" {
		errs = append(errs, errors.New("STRIPE_PREMIUM_PRICE_ID is required when STRIPE_API_KEY is set"))
	}
	if c.StreakThreshold < 2 {
		errs = append(errs, fmt.Errorf("STREAK_THRESHOLD %d must be at least 2", c.StreakThreshold))
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			errs = append(errs, fmt.Errorf("invalid TIMEZONE: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Location resolves TIMEZONE, defaulting to the host's local zone
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// Plans returns the plan limits served by the manager
func (c Config) Plans() map[string]fitmeter.PlanLimits {
	return map[string]fitmeter.PlanLimits{
		fitmeter.DefaultPlan: {PlanGeneration: c.PlanTokenLimit, ImageAnalysis: c.ImageTokenLimit},
		billing.PremiumPlan:  {PlanGeneration: c.PremiumPlanTokenLimit, ImageAnalysis: c.PremiumImageTokenLimit},
	}
}

// BillingEnabled reports whether Stripe is configured
func (c Config) BillingEnabled() bool {
	return c.StripeAPIKey != ""
}
