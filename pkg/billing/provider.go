package billing

import (
	"context"
	"net/http"
)

// Provider is implemented by payment backends that can sell the premium plan.
type Provider interface {
	// Name returns the provider name (e.g. "stripe")
	Name() string

	// CheckoutURL starts a subscription purchase for userID and returns the
	// hosted page the client should be sent to.
	CheckoutURL(ctx context.Context, userID, successURL, cancelURL string) (string, error)

	// WebhookHandler returns the HTTP handler that receives provider events and
	// moves users between plans.
	WebhookHandler() http.Handler
}

// PlanSetter records a user's plan. *fitmeter.Manager implements it.
type PlanSetter interface {
	SetPlan(ctx context.Context, userID, plan string) error
}
