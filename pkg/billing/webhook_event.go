package billing

import "time"

// WebhookEvent describes a plan change applied from a provider event. It is
// passed to Config.OnPlanChange once the new plan has been stored.
type WebhookEvent struct {
	UserID string

	// Plan is the plan now assigned to the user
	Plan string

	// Provider is the billing provider name ("stripe")
	Provider string

	// EventType is the provider-specific event type, e.g. "checkout.session.completed"
	EventType string

	// EventTimestamp is when the event occurred at the provider
	EventTimestamp time.Time

	// Metadata carries provider identifiers such as the customer and subscription ids
	Metadata map[string]string
}
