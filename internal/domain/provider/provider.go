package provider

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// BillingProvider is the payment-provider boundary for the subscription
// lifecycle: customers, checkout sessions, subscription reads, and webhook
// verification. Payment instruments, invoices, and amounts stay on the
// provider's side of this line.
type BillingProvider interface {
	// CreateCustomer creates a provider customer for a user. Implementations
	// send an idempotency key derived from the user id so concurrent calls
	// for one user collapse to a single customer.
	CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*Customer, error)

	// GetCustomer retrieves a provider customer.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// UpdateCustomerMetadata merges metadata keys into a provider customer.
	UpdateCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error

	// CreateCheckoutSession creates a hosted checkout session in
	// subscription mode.
	CreateCheckoutSession(ctx context.Context, req *CreateCheckoutSessionRequest) (*CheckoutSession, error)

	// GetSubscription retrieves a point-in-time subscription snapshot.
	GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)

	// CancelSubscription schedules a subscription for cancellation at period
	// end. The resulting webhook event, not the returned snapshot, updates
	// the profile.
	CancelSubscription(ctx context.Context, subscriptionID string) (*SubscriptionSnapshot, error)

	// CreatePortalSession creates a self-service billing portal session.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)

	// VerifyWebhook checks the payload signature and returns the parsed
	// change event. Signature failures return a ProviderError with code
	// "signature_verification_failed".
	VerifyWebhook(payload []byte, signature string) (*ChangeEvent, error)

	// ParseEvent parses an already verified payload, for replaying stored
	// deliveries.
	ParseEvent(payload []byte) (*ChangeEvent, error)

	// GetProviderName returns the provider name.
	GetProviderName() string
}

// CreateCustomerRequest creates a provider customer linked to a local user.
type CreateCustomerRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// Customer is a provider customer.
type Customer struct {
	ID       string            `json:"id"`
	Email    string            `json:"email,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreateCheckoutSessionRequest creates a hosted subscription checkout.
// UserID is stamped into both the session metadata and the subscription
// metadata so later webhook events resolve without extra lookups.
type CreateCheckoutSessionRequest struct {
	CustomerID      string `json:"customer_id"`
	PriceID         string `json:"price_id"`
	SuccessURL      string `json:"success_url"`
	CancelURL       string `json:"cancel_url"`
	UserID          string `json:"user_id"`
	WantsTrial      bool   `json:"wants_trial"`
	TrialPeriodDays int64  `json:"trial_period_days,omitempty"`
}

// CheckoutSession is the created hosted checkout session.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// PortalSession is a billing portal session.
type PortalSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SubscriptionSnapshot is a provider subscription at one point in time.
// Status carries the provider's raw vocabulary; normalization happens in the
// domain layer.
type SubscriptionSnapshot struct {
	ID                string     `json:"id"`
	CustomerID        string     `json:"customer_id"`
	Status            string     `json:"status"`
	PriceID           string     `json:"price_id,omitempty"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	TrialStart        *time.Time `json:"trial_start,omitempty"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	MetadataUserID    string     `json:"metadata_user_id,omitempty"`
}

// EventKind groups provider event types by how the engine handles them.
type EventKind string

const (
	// EventKindCheckoutCompleted needs its subscription snapshot hydrated
	// before reconciling.
	EventKindCheckoutCompleted EventKind = "checkout_completed"
	// EventKindSubscriptionChange carries a full snapshot (created, updated,
	// deleted).
	EventKindSubscriptionChange EventKind = "subscription_change"
	// EventKindTrialWillEnd is observed and announced, never applied.
	EventKindTrialWillEnd EventKind = "trial_will_end"
	// EventKindPlanCatalog feeds the local plan mirror (price.*, product.*).
	EventKindPlanCatalog EventKind = "plan_catalog"
	// EventKindIgnored is verified but irrelevant to this engine.
	EventKindIgnored EventKind = "ignored"
)

// ChangeEvent is one verified webhook delivery, parsed into provider-agnostic
// form. OccurredAt is the provider-assigned creation time and is the ordering
// key for reconciliation.
type ChangeEvent struct {
	ID             string                `json:"id"`
	Type           string                `json:"type"`
	Kind           EventKind             `json:"kind"`
	APIVersion     string                `json:"api_version,omitempty"`
	OccurredAt     time.Time             `json:"occurred_at"`
	CustomerID     string                `json:"customer_id,omitempty"`
	SubscriptionID string                `json:"subscription_id,omitempty"`
	MetadataUserID string                `json:"metadata_user_id,omitempty"`
	WantsTrial     bool                  `json:"wants_trial,omitempty"`
	Subscription   *SubscriptionSnapshot `json:"subscription,omitempty"`
	ObjectRaw      json.RawMessage       `json:"-"`
}

// ProviderType represents the type of billing provider
type ProviderType string

const (
	ProviderTypeStripe ProviderType = "stripe"
)

// ProviderError carries a provider failure across the boundary.
type ProviderError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// IsNotFound reports whether err is a ProviderError for a missing resource.
// A missing customer is an identity-resolution miss, not a transient failure.
func IsNotFound(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == "resource_missing" || pe.Code == "not_found"
	}
	return false
}

// IsSignatureError reports whether err is a webhook signature failure.
func IsSignatureError(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code == "signature_verification_failed"
	}
	return false
}
