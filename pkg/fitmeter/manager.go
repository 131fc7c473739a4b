package fitmeter

import (
	"context"
	"errors"
	"strings"
	"time"
)

const maxUserIDLen = 255

// Manager loads user records, runs them through the usage meters and the streak
// tracker, and persists the result through Storage.UpdateUser.
type Manager struct {
	storage Storage
	config  Config
	streaks StreakTracker
}

// NewManager creates a new manager with the given storage and configuration
func NewManager(storage Storage, config Config) (*Manager, error) {
	if storage == nil {
		return nil, ErrStorageUnavailable
	}

	// Set defaults
	if config.DefaultPlan == "" {
		config.DefaultPlan = DefaultPlan
	}
	plans := make(map[string]PlanLimits, len(config.Plans)+1)
	for name, limits := range config.Plans {
		plans[name] = limits
	}
	if _, ok := plans[config.DefaultPlan]; !ok {
		plans[config.DefaultPlan] = PlanLimits{
			PlanGeneration: DefaultPlanGenerationLimit,
			ImageAnalysis:  DefaultImageAnalysisLimit,
		}
	}
	config.Plans = plans
	if config.StreakThreshold == 0 {
		config.StreakThreshold = DefaultStreakThreshold
	}
	if config.StreakThreshold < 2 {
		return nil, ErrInvalidStreakThreshold
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.Metrics == nil {
		config.Metrics = &NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = &NoopLogger{}
	}

	if cbc := config.CircuitBreakerConfig; cbc != nil && cbc.Enabled {
		metrics := config.Metrics
		logger := config.Logger
		cb := NewDefaultCircuitBreaker(cbc.FailureThreshold, cbc.ResetTimeout, func(state CircuitBreakerState) {
			metrics.RecordCircuitBreakerStateChange(string(state))
			logger.Warn("storage circuit breaker state changed", F("state", string(state)))
		})
		storage = NewCircuitBreakerStorage(storage, cb)
	}

	return &Manager{
		storage: storage,
		config:  config,
		streaks: StreakTracker{Threshold: config.StreakThreshold, Lookback: DefaultStreakLookback},
	}, nil
}

// Ping checks storage liveness when the backend supports it
func (m *Manager) Ping(ctx context.Context) error {
	if hc, ok := m.storage.(HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// now returns the manager clock in the configured location
func (m *Manager) now() time.Time {
	return m.config.Clock().In(m.config.Location)
}

// CurrentPeriod returns the usage period the manager is accounting into
func (m *Manager) CurrentPeriod() UsagePeriod {
	return PeriodOf(m.now())
}

// Today returns the current day, midnight-normalized in the configured location
func (m *Manager) Today() time.Time {
	return Day(m.now())
}

// Limits returns the limits of a plan, falling back to the default plan
func (m *Manager) Limits(plan string) PlanLimits {
	if limits, ok := m.config.Plans[plan]; ok {
		return limits
	}
	return m.config.Plans[m.config.DefaultPlan]
}

// DefaultLimits returns the limits of the default plan
func (m *Manager) DefaultLimits() PlanLimits {
	return m.config.Plans[m.config.DefaultPlan]
}

// Meter returns the usage meter for a feature under a plan
func (m *Manager) Meter(feature Feature, plan string) UsageMeter {
	return NewUsageMeter(feature, m.Limits(plan).Limit(feature))
}

// TrackUsage records units for a feature in the current period, creating the
// user record if needed, and reports the new standing.
func (m *Manager) TrackUsage(ctx context.Context, userID string, feature Feature, units uint64) (*UsageReport, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if !feature.Valid() {
		return nil, ErrInvalidFeature
	}

	period := m.CurrentPeriod()
	var (
		meter UsageMeter
		next  FeatureUsage
	)
	start := time.Now()
	_, err := m.storage.UpdateUser(ctx, userID, UpdateOptions{CreateIfMissing: true}, func(rec *UserRecord) error {
		meter = m.Meter(feature, rec.Plan)
		next = meter.Record(rec, units, period)
		rec.LastUpdated = m.now()
		return nil
	})
	m.config.Metrics.RecordStorageOperation("update_user", time.Since(start), err)
	if err != nil {
		m.config.Logger.Error("failed to track usage",
			F("user_id", userID), F("feature", feature.String()), ErrField(err))
		return nil, err
	}

	report := &UsageReport{
		UserID:    userID,
		Feature:   feature,
		Period:    next.Period,
		Used:      next.UnitsConsumed,
		Remaining: meter.Remaining(next),
		Limit:     meter.Limit,
	}
	m.config.Metrics.RecordUsage(feature.String(), units, report.Remaining)
	m.config.Logger.Debug("usage tracked",
		F("user_id", userID), F("feature", feature.String()),
		F("period", next.Period.String()), F("units", units), F("used", next.UnitsConsumed))
	return report, nil
}

// CheckQuota reports the current standing for one feature without changing it.
// Unknown users and stale periods report a fresh quota.
func (m *Manager) CheckQuota(ctx context.Context, userID string, feature Feature) (*UsageReport, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if !feature.Valid() {
		return nil, ErrInvalidFeature
	}

	start := time.Now()
	rec, err := m.getUser(ctx, userID)
	m.config.Metrics.RecordQuotaCheck(feature.String(), time.Since(start))
	if err != nil && !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}
	if rec == nil {
		rec = &UserRecord{UserID: userID}
	}

	report := m.report(rec, feature, m.CurrentPeriod())
	return &report, nil
}

// Allow returns ErrQuotaExhausted when the user has no units left for feature.
// It is a policy helper for callers; recording usage never denies.
func (m *Manager) Allow(ctx context.Context, userID string, feature Feature) (*UsageReport, error) {
	report, err := m.CheckQuota(ctx, userID, feature)
	if err != nil {
		return nil, err
	}
	if report.Remaining == 0 {
		m.config.Metrics.RecordQuotaDenied(feature.String())
		return report, ErrQuotaExhausted
	}
	return report, nil
}

// GetUsage reports every feature for an existing user.
// Features without recorded usage report zero for the current period.
func (m *Manager) GetUsage(ctx context.Context, userID string) (*UsageSummary, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	rec, err := m.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	plan := rec.Plan
	if plan == "" {
		plan = m.config.DefaultPlan
	}
	summary := &UsageSummary{
		UserID:   userID,
		Plan:     plan,
		Features: make(map[Feature]UsageReport, len(Features)),
	}
	current := m.CurrentPeriod()
	for _, f := range Features {
		meter := m.Meter(f, rec.Plan)
		usage := rec.Usage(f)
		if usage == nil {
			usage = &FeatureUsage{Period: current}
		}
		// stored counters are reported as stored, including a stale period,
		// matching what the document holds until the next tracked request
		summary.Features[f] = UsageReport{
			UserID:    userID,
			Feature:   f,
			Period:    usage.Period,
			Used:      usage.UnitsConsumed,
			Remaining: meter.Remaining(*usage),
			Limit:     meter.Limit,
		}
	}
	return summary, nil
}

// LogMeal stores a meal, then advances the user's streak and nutrition totals.
// The user must already exist.
func (m *Manager) LogMeal(ctx context.Context, meal *Meal) (*MealResult, error) {
	if meal == nil {
		return nil, ErrInvalidMeal
	}
	if err := validateUserID(meal.UserID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(meal.FoodName) == "" {
		return nil, ErrInvalidMeal
	}
	if meal.Timestamp.IsZero() {
		meal.Timestamp = m.now()
	}

	// unknown users are rejected before the meal is stored
	if _, err := m.getUser(ctx, meal.UserID); err != nil {
		return nil, err
	}

	start := time.Now()
	mealID, err := m.storage.AddMeal(ctx, meal)
	m.config.Metrics.RecordStorageOperation("add_meal", time.Since(start), err)
	if err != nil {
		m.config.Logger.Error("failed to store meal", F("user_id", meal.UserID), ErrField(err))
		return nil, err
	}
	meal.ID = mealID

	today := m.Today()
	var (
		next     StreakState
		credited bool
		reset    bool
	)
	start = time.Now()
	_, err = m.storage.UpdateUser(ctx, meal.UserID, UpdateOptions{}, func(rec *UserRecord) error {
		prev := rec.Streak
		next = m.streaks.RecordActivity(prev, today)
		credited = Credited(prev, next)
		reset = prev != nil && prev.StreakLength > 0 && next.StreakLength == 0
		rec.Streak = &next

		rec.Totals.Calories += meal.Calories
		rec.Totals.Protein += meal.Protein
		rec.Totals.Fat += meal.Fat
		rec.Totals.Carbohydrates += meal.Carbohydrates
		rec.Totals.Sugars += meal.Sugars
		rec.LastUpdated = m.now()
		return nil
	})
	m.config.Metrics.RecordStorageOperation("update_user", time.Since(start), err)
	if err != nil {
		// the meal is already stored
		m.config.Logger.Error("failed to update streak after storing meal",
			F("user_id", meal.UserID), F("meal_id", mealID), ErrField(err))
		return nil, err
	}

	m.config.Metrics.RecordMealLogged(credited)
	if reset {
		m.config.Metrics.RecordStreakReset()
	}
	m.config.Logger.Info("meal logged",
		F("user_id", meal.UserID), F("meal_id", mealID),
		F("streak", next.StreakLength), F("meals_today", next.ActivityCountToday))

	return &MealResult{
		MealID:            mealID,
		Streak:            next.StreakLength,
		MealsTrackedToday: next.ActivityCountToday,
		StreakCredited:    credited,
	}, nil
}

// SetPlan assigns a plan to a user, creating the record if needed
func (m *Manager) SetPlan(ctx context.Context, userID, plan string) error {
	if err := validateUserID(userID); err != nil {
		return err
	}
	if plan == "" {
		plan = m.config.DefaultPlan
	}
	premium := plan != m.config.DefaultPlan
	_, err := m.storage.UpdateUser(ctx, userID, UpdateOptions{CreateIfMissing: true}, func(rec *UserRecord) error {
		now := m.now()
		if premium && !rec.Premium {
			rec.SubscriptionDate = &now
		}
		rec.Plan = plan
		rec.Premium = premium
		rec.LastUpdated = now
		return nil
	})
	if err != nil {
		return err
	}
	m.config.Logger.Info("plan updated", F("user_id", userID), F("plan", plan), F("premium", premium))
	return nil
}

// Subscription returns the user's paid plan standing
func (m *Manager) Subscription(ctx context.Context, userID string) (*Subscription, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	rec, err := m.getUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Subscription{
		UserID:    userID,
		Plan:      rec.Plan,
		IsPremium: rec.Premium,
		Since:     cloneTime(rec.SubscriptionDate),
	}, nil
}

func (m *Manager) getUser(ctx context.Context, userID string) (*UserRecord, error) {
	start := time.Now()
	rec, err := m.storage.GetUser(ctx, userID)
	m.config.Metrics.RecordStorageOperation("get_user", time.Since(start), err)
	return rec, err
}

func (m *Manager) report(rec *UserRecord, feature Feature, current UsagePeriod) UsageReport {
	meter := m.Meter(feature, rec.Plan)
	usage := meter.Current(rec, current)
	return UsageReport{
		UserID:    rec.UserID,
		Feature:   feature,
		Period:    current,
		Used:      usage.UnitsConsumed,
		Remaining: meter.Remaining(usage),
		Limit:     meter.Limit,
	}
}

// ReportMalformed logs and counts decode problems. Storage adapters call it
// through the Logger/Metrics they were given; it is exported for them.
func ReportMalformed(logger Logger, metrics Metrics, userID string, errs []error) {
	for _, err := range errs {
		var mse *MalformedStateError
		field := "unknown"
		if errors.As(err, &mse) {
			field = mse.Field
		}
		if metrics != nil {
			metrics.RecordMalformedState(field)
		}
		if logger != nil {
			logger.Warn("treating malformed user state as absent",
				F("user_id", userID), F("field", field), ErrField(err))
		}
	}
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" || len(userID) > maxUserIDLen {
		return ErrInvalidUserID
	}
	return nil
}
