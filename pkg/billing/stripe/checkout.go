package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"

	"github.com/mihaimyh/fitmeter/pkg/billing"
	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

const checkoutEndpoint = "/checkout/sessions"

// CheckoutURL creates a subscription Checkout Session for the premium price
// and returns its URL. The user id travels as client_reference_id and as
// subscription metadata so both webhook paths can find the user.
func (p *Provider) CheckoutURL(ctx context.Context, userID, successURL, cancelURL string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fitmeter.ErrInvalidUserID
	}
	if successURL == "" || cancelURL == "" {
		return "", fmt.Errorf("stripe: success and cancel URLs are required")
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(p.config.PremiumPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(userID),
		Metadata:          map[string]string{userIDMetadataKey: userID},
	}
	params.SubscriptionData = &stripe.CheckoutSessionCreateSubscriptionDataParams{}
	params.SubscriptionData.AddMetadata(userIDMetadataKey, userID)

	start := time.Now()
	session, err := p.sessions.Create(ctx, params)
	p.config.Metrics.RecordAPICallDuration(providerName, checkoutEndpoint, time.Since(start))
	if err != nil {
		p.config.Metrics.RecordAPICall(providerName, checkoutEndpoint, "error")
		p.config.Logger.Error("failed to create checkout session",
			fitmeter.F("user_id", userID), fitmeter.ErrField(err))
		return "", fmt.Errorf("%w: failed to create checkout session: %v", billing.ErrProviderAPIError, err)
	}
	p.config.Metrics.RecordAPICall(providerName, checkoutEndpoint, "success")

	if session.URL == "" {
		return "", fmt.Errorf("%w: checkout session %s has no URL", billing.ErrProviderAPIError, session.ID)
	}
	return session.URL, nil
}
