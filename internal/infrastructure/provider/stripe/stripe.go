package stripe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v79"
	portalsession "github.com/stripe/stripe-go/v79/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/customer"
	"github.com/stripe/stripe-go/v79/subscription"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"go.uber.org/zap"
)

// StripeProvider implements the BillingProvider interface for Stripe
type StripeProvider struct {
	webhookSecret string
	logger        *zap.Logger
}

// NewStripeProvider creates a new Stripe provider. The secret key is set on
// the Stripe client globally.
func NewStripeProvider(secretKey, webhookSecret string, logger *zap.Logger) *StripeProvider {
	stripe.Key = secretKey

	return &StripeProvider{
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// GetProviderName returns the provider name
func (s *StripeProvider) GetProviderName() string {
	return string(provider.ProviderTypeStripe)
}

// CreateCustomer creates a Stripe customer tagged with the local user ID.
// The idempotency key is derived from the user ID, so concurrent creates for
// the same user return the same customer instead of minting duplicates.
func (s *StripeProvider) CreateCustomer(ctx context.Context, req *provider.CreateCustomerRequest) (*provider.Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(req.Email),
		Metadata: map[string]string{
			"user_id": req.UserID,
		},
	}
	params.Context = ctx
	params.SetIdempotencyKey("customer-create-" + req.UserID)

	cust, err := customer.New(params)
	if err != nil {
		s.logger.Error("Failed to create Stripe customer",
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return nil, s.wrapError("create customer", err)
	}

	s.logger.Info("Created Stripe customer",
		zap.String("customer_id", cust.ID),
		zap.String("user_id", req.UserID))

	return &provider.Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Metadata: cust.Metadata,
	}, nil
}

// GetCustomer retrieves a Stripe customer
func (s *StripeProvider) GetCustomer(ctx context.Context, customerID string) (*provider.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := customer.Get(customerID, params)
	if err != nil {
		return nil, s.wrapError("get customer", err)
	}

	return &provider.Customer{
		ID:       cust.ID,
		Email:    cust.Email,
		Metadata: cust.Metadata,
	}, nil
}

// UpdateCustomerMetadata merges metadata keys into a Stripe customer
func (s *StripeProvider) UpdateCustomerMetadata(ctx context.Context, customerID string, metadata map[string]string) error {
	params := &stripe.CustomerParams{
		Metadata: metadata,
	}
	params.Context = ctx

	if _, err := customer.Update(customerID, params); err != nil {
		return s.wrapError("update customer metadata", err)
	}

	return nil
}

// CreateCheckoutSession creates a hosted checkout session in subscription
// mode. The user ID rides in both the session metadata and the subscription
// metadata so webhook events resolve back to the user without extra lookups.
func (s *StripeProvider) CreateCheckoutSession(ctx context.Context, req *provider.CreateCheckoutSessionRequest) (*provider.CheckoutSession, error) {
	subscriptionData := &stripe.CheckoutSessionSubscriptionDataParams{
		Metadata: map[string]string{
			"user_id": req.UserID,
		},
	}

	params := &stripe.CheckoutSessionParams{
		Customer:           stripe.String(req.CustomerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		Mode:             stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL:       stripe.String(req.SuccessURL),
		CancelURL:        stripe.String(req.CancelURL),
		SubscriptionData: subscriptionData,
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID)

	if req.WantsTrial {
		params.AddMetadata("wants_trial", "true")
		subscriptionData.Metadata["wants_trial"] = "true"
		if req.TrialPeriodDays > 0 {
			subscriptionData.TrialPeriodDays = stripe.Int64(req.TrialPeriodDays)
		}
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		s.logger.Error("Failed to create checkout session",
			zap.String("customer_id", req.CustomerID),
			zap.String("price_id", req.PriceID),
			zap.Error(err))
		return nil, s.wrapError("create checkout session", err)
	}

	s.logger.Info("Created checkout session",
		zap.String("session_id", sess.ID),
		zap.String("customer_id", req.CustomerID),
		zap.String("price_id", req.PriceID),
		zap.Bool("wants_trial", req.WantsTrial))

	return &provider.CheckoutSession{
		ID:  sess.ID,
		URL: sess.URL,
	}, nil
}

// GetSubscription retrieves a point-in-time snapshot of a Stripe subscription
func (s *StripeProvider) GetSubscription(ctx context.Context, subscriptionID string) (*provider.SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	params.AddExpand("items.data.price")

	sub, err := subscription.Get(subscriptionID, params)
	if err != nil {
		return nil, s.wrapError("get subscription", err)
	}

	return snapshotFromSubscription(sub), nil
}

// CancelSubscription schedules cancellation at period end. The profile is not
// touched here; the customer.subscription.updated event carries the change.
func (s *StripeProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*provider.SubscriptionSnapshot, error) {
	params := &stripe.SubscriptionParams{
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	params.Context = ctx

	sub, err := subscription.Update(subscriptionID, params)
	if err != nil {
		s.logger.Error("Failed to cancel subscription",
			zap.String("subscription_id", subscriptionID),
			zap.Error(err))
		return nil, s.wrapError("cancel subscription", err)
	}

	s.logger.Info("Subscription scheduled for cancellation",
		zap.String("subscription_id", subscriptionID),
		zap.Time("cancel_at", time.Unix(sub.CurrentPeriodEnd, 0)))

	return snapshotFromSubscription(sub), nil
}

// CreatePortalSession creates a Stripe billing portal session
func (s *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*provider.PortalSession, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx

	ps, err := portalsession.New(params)
	if err != nil {
		s.logger.Error("Failed to create portal session",
			zap.String("customer_id", customerID),
			zap.Error(err))
		return nil, s.wrapError("create portal session", err)
	}

	return &provider.PortalSession{
		ID:  ps.ID,
		URL: ps.URL,
	}, nil
}

// snapshotFromSubscription converts a Stripe subscription into the
// provider-agnostic snapshot. Status keeps Stripe's raw vocabulary.
func snapshotFromSubscription(sub *stripe.Subscription) *provider.SubscriptionSnapshot {
	snapshot := &provider.SubscriptionSnapshot{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}

	if sub.Customer != nil {
		snapshot.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		snapshot.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0)
		snapshot.CurrentPeriodEnd = &t
	}
	if sub.TrialStart > 0 {
		t := time.Unix(sub.TrialStart, 0)
		snapshot.TrialStart = &t
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0)
		snapshot.TrialEnd = &t
	}
	if uid, ok := sub.Metadata["user_id"]; ok {
		snapshot.MetadataUserID = uid
	}

	return snapshot
}

// wrapError converts a Stripe error into a ProviderError, keeping Stripe's
// error code so callers can distinguish missing resources from failures.
func (s *StripeProvider) wrapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		code := string(stripeErr.Code)
		if code == "" {
			code = string(stripeErr.Type)
		}
		return &provider.ProviderError{
			Code:    code,
			Message: "stripe: " + op + " failed",
			Details: stripeErr.Msg,
		}
	}

	return fmt.Errorf("stripe: %s failed: %w", op, err)
}
