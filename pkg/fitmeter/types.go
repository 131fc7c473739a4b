package fitmeter

import (
	"time"
)

// Feature identifies a metered capability with its own monthly quota
type Feature int

const (
	// FeaturePlanGeneration meters units spent generating meal/workout plans
	FeaturePlanGeneration Feature = iota + 1
	// FeatureImageAnalysis meters units spent analyzing food and barcode images
	FeatureImageAnalysis
)

// Features lists every metered feature in a stable order
var Features = []Feature{FeaturePlanGeneration, FeatureImageAnalysis}

// String returns the wire name of the feature ("planGeneration", "imageAnalysis")
func (f Feature) String() string {
	switch f {
	case FeaturePlanGeneration:
		return "planGeneration"
	case FeatureImageAnalysis:
		return "imageAnalysis"
	default:
		return "unknown"
	}
}

// Valid reports whether f is one of the known features
func (f Feature) Valid() bool {
	return f == FeaturePlanGeneration || f == FeatureImageAnalysis
}

// ParseFeature converts a wire name back to a Feature
func ParseFeature(s string) (Feature, bool) {
	switch s {
	case "planGeneration":
		return FeaturePlanGeneration, true
	case "imageAnalysis":
		return FeatureImageAnalysis, true
	default:
		return 0, false
	}
}

// Default limits and streak policy
const (
	DefaultPlanGenerationLimit uint64 = 10000
	DefaultImageAnalysisLimit  uint64 = 10000

	// DefaultStreakThreshold is the number of activities per day that earns streak credit
	DefaultStreakThreshold uint64 = 2
	// DefaultStreakLookback is how far back the last credit may be for the streak to continue
	DefaultStreakLookback = 1

	// DefaultPlan is the plan assigned to users without a paid subscription
	DefaultPlan = "free"
)

// FeatureUsage is the consumption of one feature by one user within a period
type FeatureUsage struct {
	Period        UsagePeriod
	UnitsConsumed uint64
}

// StreakState tracks daily engagement and the consecutive-day streak
type StreakState struct {
	ActivityCountToday   uint64
	StreakLength         uint64
	LastActivityDate     *time.Time
	LastStreakCreditDate *time.Time
}

// NutritionTotals are lifetime sums over every logged meal
type NutritionTotals struct {
	Calories      int64
	Protein       int64
	Fat           int64
	Carbohydrates int64
	Sugars        int64
}

// UserRecord is the persisted per-user document.
// Nil sub-structures mean the user has no state for them yet.
type UserRecord struct {
	UserID  string
	Plan    string
	Premium bool
	// SubscriptionDate is when the user last moved onto a paid plan
	SubscriptionDate *time.Time
	PlanUsage        *FeatureUsage
	ImageUsage       *FeatureUsage
	Streak           *StreakState
	Totals           NutritionTotals
	LastUpdated      time.Time
}

// Usage returns the stored usage for a feature, or nil
func (r *UserRecord) Usage(f Feature) *FeatureUsage {
	if r == nil {
		return nil
	}
	switch f {
	case FeaturePlanGeneration:
		return r.PlanUsage
	case FeatureImageAnalysis:
		return r.ImageUsage
	default:
		return nil
	}
}

// SetUsage replaces the stored usage for a feature
func (r *UserRecord) SetUsage(f Feature, u FeatureUsage) {
	switch f {
	case FeaturePlanGeneration:
		r.PlanUsage = &u
	case FeatureImageAnalysis:
		r.ImageUsage = &u
	}
}

// Clone returns a deep copy of the record
func (r *UserRecord) Clone() *UserRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.SubscriptionDate = cloneTime(r.SubscriptionDate)
	if r.PlanUsage != nil {
		u := *r.PlanUsage
		c.PlanUsage = &u
	}
	if r.ImageUsage != nil {
		u := *r.ImageUsage
		c.ImageUsage = &u
	}
	if r.Streak != nil {
		s := *r.Streak
		s.LastActivityDate = cloneTime(r.Streak.LastActivityDate)
		s.LastStreakCreditDate = cloneTime(r.Streak.LastStreakCreditDate)
		c.Streak = &s
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	tt := *t
	return &tt
}

// Meal is a single logged meal
type Meal struct {
	ID            string
	UserID        string
	FoodName      string
	Calories      int64
	Protein       int64
	Fat           int64
	Carbohydrates int64
	Sugars        int64
	Junk          bool
	ImageURL      string
	Timestamp     time.Time
}

// PlanLimits holds the monthly unit limits of a plan
type PlanLimits struct {
	PlanGeneration uint64
	ImageAnalysis  uint64
}

// Limit returns the limit for a feature
func (p PlanLimits) Limit(f Feature) uint64 {
	switch f {
	case FeaturePlanGeneration:
		return p.PlanGeneration
	case FeatureImageAnalysis:
		return p.ImageAnalysis
	default:
		return 0
	}
}

// UsageReport is the outcome of tracking or checking a feature's usage
type UsageReport struct {
	UserID    string
	Feature   Feature
	Period    UsagePeriod
	Used      uint64
	Remaining uint64
	Limit     uint64
}

// UsageSummary reports every feature for one user
type UsageSummary struct {
	UserID   string
	Plan     string
	Features map[Feature]UsageReport
}

// Subscription is a user's paid plan standing. Plan is empty for users
// who never had a plan recorded.
type Subscription struct {
	UserID    string
	Plan      string
	IsPremium bool
	Since     *time.Time
}

// MealResult is returned after a meal has been logged
type MealResult struct {
	MealID            string
	Streak            uint64
	MealsTrackedToday uint64
	StreakCredited    bool
}

// CircuitBreakerConfig holds circuit breaker configuration
type CircuitBreakerConfig struct {
	// Enabled determines if the circuit breaker is active
	Enabled bool

	// FailureThreshold is the number of consecutive failures before opening the circuit (default: 5)
	FailureThreshold int

	// ResetTimeout is the duration to wait before transitioning from Open to Half-Open (default: 30 seconds)
	ResetTimeout time.Duration
}

// Config holds manager configuration
type Config struct {
	// Plans maps plan names to their limits. DefaultPlan is added with the default
	// limits when missing.
	Plans map[string]PlanLimits

	// DefaultPlan is used for users without a plan (default: "free")
	DefaultPlan string

	// StreakThreshold is the number of meals per day that earns streak credit (default: 2, minimum: 2)
	StreakThreshold uint64

	// Location is the time zone used to derive "today" and the usage period (default: time.Local)
	Location *time.Location

	// Clock returns the current time (default: time.Now)
	Clock func() time.Time

	// Metrics is used for tracking operations (default: NoopMetrics)
	Metrics Metrics

	// Logger is used for structured logging (default: NoopLogger)
	Logger Logger

	// CircuitBreakerConfig wraps storage in a circuit breaker when enabled
	CircuitBreakerConfig *CircuitBreakerConfig
}

// UpdateOptions controls Storage.UpdateUser
type UpdateOptions struct {
	// CreateIfMissing creates an empty record when the user does not exist.
	// When false, UpdateUser returns ErrUserNotFound for unknown users.
	CreateIfMissing bool
}
