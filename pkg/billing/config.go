package billing

import "github.com/mihaimyh/fitmeter/pkg/fitmeter"

// PremiumPlan is the plan name granted by a paid subscription
const PremiumPlan = "premium"

// Config defines the configuration all providers accept
type Config struct {
	// Plans receives plan changes (required)
	Plans PlanSetter

	// PremiumPlan is granted on a completed checkout (default: "premium")
	PremiumPlan string

	// FreePlan is restored when a subscription ends (default: fitmeter.DefaultPlan)
	FreePlan string

	// WebhookSecret verifies incoming webhook requests
	WebhookSecret string

	// APIKey is used for outbound API calls to the billing provider
	APIKey string

	// OnPlanChange is called after a webhook changed a user's plan (optional)
	OnPlanChange func(WebhookEvent)

	// Logger is used for structured logging (optional)
	Logger fitmeter.Logger

	// Metrics is an optional metrics collector for billing operations.
	// Use billing/metrics/prometheus.NewMetrics for Prometheus metrics.
	Metrics Metrics
}

// WithDefaults returns a copy of c with empty optional fields filled in
func (c Config) WithDefaults() Config {
	if c.PremiumPlan == "" {
		c.PremiumPlan = PremiumPlan
	}
	if c.FreePlan == "" {
		c.FreePlan = fitmeter.DefaultPlan
	}
	if c.Logger == nil {
		c.Logger = &fitmeter.NoopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = &NoopMetrics{}
	}
	return c
}
