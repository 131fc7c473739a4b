package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v83"
	"github.com/stripe/stripe-go/v83/webhook"

	"github.com/mihaimyh/fitmeter/pkg/billing"
	"github.com/mihaimyh/fitmeter/pkg/billing/internal"
	"github.com/mihaimyh/fitmeter/pkg/fitmeter"
)

const userIDMetadataKey = "user_id"

// handleWebhook verifies and processes incoming Stripe webhook events
func (p *Provider) handleWebhook(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	setSecurityHeaders(w)

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if p.webhookSecret == "" {
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := internal.ReadBodyStrict(w, r, maxWebhookBody)
	if err != nil {
		if errors.Is(err, internal.ErrPayloadTooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			p.config.Metrics.RecordWebhookError(providerName, "payload_too_large")
		} else {
			http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
			p.config.Metrics.RecordWebhookError(providerName, "invalid_payload")
		}
		return
	}

	event, err := webhook.ConstructEventWithOptions(body, r.Header.Get("Stripe-Signature"), p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		http.Error(w, billing.ErrInvalidWebhookSignature.Error(), http.StatusUnauthorized)
		p.config.Metrics.RecordWebhookError(providerName, "auth_failed")
		return
	}

	eventType := string(event.Type)
	if eventType == "" {
		eventType = "UNKNOWN"
	}

	err = p.processWebhookEvent(r.Context(), &event)
	p.config.Metrics.RecordWebhookProcessingDuration(providerName, eventType, time.Since(startTime))
	switch {
	case err == nil:
		p.config.Metrics.RecordWebhookEvent(providerName, eventType, "success")
	case errors.Is(err, billing.ErrUserNotFound):
		// retrying cannot help an event without a user; acknowledge it
		p.config.Logger.Warn("ignoring stripe event without user id",
			fitmeter.F("event_id", event.ID), fitmeter.F("event_type", eventType), fitmeter.ErrField(err))
		p.config.Metrics.RecordWebhookError(providerName, "user_not_found")
	case errors.Is(err, billing.ErrInvalidWebhookPayload):
		http.Error(w, err.Error(), http.StatusBadRequest)
		p.config.Metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.config.Metrics.RecordWebhookError(providerName, "invalid_payload")
		return
	default:
		p.config.Logger.Error("failed to process stripe event",
			fitmeter.F("event_id", event.ID), fitmeter.F("event_type", eventType), fitmeter.ErrField(err))
		http.Error(w, "failed to process webhook", http.StatusInternalServerError)
		p.config.Metrics.RecordWebhookEvent(providerName, eventType, "error")
		p.config.Metrics.RecordWebhookError(providerName, "processing_error")
		return
	}

	if err := internal.WriteJSON(w, http.StatusOK, map[string]bool{"received": true}); err != nil {
		p.config.Logger.Warn("failed to write webhook response", fitmeter.ErrField(err))
	}
}

// processWebhookEvent maps Stripe events to plan changes; other events are ignored
func (p *Provider) processWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return p.handleCheckoutSessionCompleted(ctx, event)
	case "customer.subscription.updated":
		return p.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return p.handleSubscriptionDeleted(ctx, event)
	default:
		return nil
	}
}

// handleCheckoutSessionCompleted grants the premium plan for a paid subscription checkout
func (p *Provider) handleCheckoutSessionCompleted(ctx context.Context, event *stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("%w: checkout session: %v", billing.ErrInvalidWebhookPayload, err)
	}
	if session.Mode != stripe.CheckoutSessionModeSubscription {
		return nil
	}

	userID := session.ClientReferenceID
	if userID == "" {
		userID = session.Metadata[userIDMetadataKey]
	}
	if userID == "" {
		return fmt.Errorf("%w: checkout session %s", billing.ErrUserNotFound, session.ID)
	}

	meta := map[string]string{"checkout_session_id": session.ID}
	if session.Customer != nil {
		meta["customer_id"] = session.Customer.ID
	}
	if session.Subscription != nil {
		meta["subscription_id"] = session.Subscription.ID
	}
	return p.applyPlan(ctx, event, userID, p.config.PremiumPlan, meta)
}

// handleSubscriptionUpdated follows status changes of an existing subscription
func (p *Provider) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) error {
	sub, userID, err := p.subscriptionFromEvent(event)
	if err != nil {
		return err
	}

	var plan string
	switch sub.Status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		plan = p.config.PremiumPlan
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		plan = p.config.FreePlan
	default:
		// past_due and incomplete keep the current plan while Stripe retries payment
		return nil
	}
	return p.applyPlan(ctx, event, userID, plan, map[string]string{"subscription_id": sub.ID})
}

// handleSubscriptionDeleted returns the user to the free plan
func (p *Provider) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	sub, userID, err := p.subscriptionFromEvent(event)
	if err != nil {
		return err
	}
	return p.applyPlan(ctx, event, userID, p.config.FreePlan, map[string]string{"subscription_id": sub.ID})
}

func (p *Provider) subscriptionFromEvent(event *stripe.Event) (*stripe.Subscription, string, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, "", fmt.Errorf("%w: subscription: %v", billing.ErrInvalidWebhookPayload, err)
	}
	userID := sub.Metadata[userIDMetadataKey]
	if userID == "" {
		return nil, "", fmt.Errorf("%w: subscription %s", billing.ErrUserNotFound, sub.ID)
	}
	return &sub, userID, nil
}

func (p *Provider) applyPlan(ctx context.Context, event *stripe.Event, userID, plan string,
	meta map[string]string) error {
	if err := p.config.Plans.SetPlan(ctx, userID, plan); err != nil {
		return fmt.Errorf("failed to set plan: %w", err)
	}
	p.config.Metrics.RecordPlanChange(providerName, plan)
	p.config.Logger.Info("plan changed from stripe event",
		fitmeter.F("user_id", userID), fitmeter.F("plan", plan), fitmeter.F("event_type", string(event.Type)))

	if p.config.OnPlanChange != nil {
		p.config.OnPlanChange(billing.WebhookEvent{
			UserID:         userID,
			Plan:           plan,
			Provider:       providerName,
			EventType:      string(event.Type),
			EventTimestamp: time.Unix(event.Created, 0).UTC(),
			Metadata:       meta,
		})
	}
	return nil
}

func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}
