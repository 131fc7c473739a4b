// Package stripe sells the premium plan through Stripe Checkout and keeps
// user plans in sync from Stripe webhooks.
package stripe

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fitmeter/pkg/billing"
	"github.com/mihaimyh/fitmeter/pkg/billing/internal"
)

const (
	providerName             = "stripe"
	defaultRateLimitWindow   = time.Minute
	defaultRateLimitRequests = 100
	maxWebhookBody           = 256 * 1024
)

// Config extends billing.Config with Stripe-specific options
type Config struct {
	billing.Config

	// PremiumPriceID is the recurring Stripe Price sold by CheckoutURL (required)
	PremiumPriceID string
}

// checkoutSessions is the part of the Stripe client used to start checkouts
type checkoutSessions interface {
	Create(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

// Provider implements billing.Provider for Stripe
type Provider struct {
	config        Config
	sessions      checkoutSessions
	rateLimiter   *internal.RateLimiter
	webhookSecret string
}

var _ billing.Provider = (*Provider)(nil)

// NewProvider creates a new Stripe billing provider
func NewProvider(config Config) (*Provider, error) {
	if config.Plans == nil {
		return nil, billing.ErrProviderNotConfigured
	}
	apiKey := strings.TrimSpace(config.APIKey)
	if apiKey == "" {
		return nil, billing.ErrProviderNotConfigured
	}
	if strings.TrimSpace(config.PremiumPriceID) == "" {
		return nil, errors.New("stripe: premium price id is required")
	}
	config.Config = config.WithDefaults()

	return &Provider{
		config:        config,
		sessions:      stripe.NewClient(apiKey).V1CheckoutSessions,
		rateLimiter:   internal.NewRateLimiter(defaultRateLimitRequests, defaultRateLimitWindow),
		webhookSecret: strings.TrimSpace(config.WebhookSecret),
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return providerName
}

// WebhookHandler returns the rate-limited HTTP handler for Stripe webhooks
func (p *Provider) WebhookHandler() http.Handler {
	return p.rateLimiter.Middleware(http.HandlerFunc(p.handleWebhook))
}
