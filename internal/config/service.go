package config

import (
	pkgconfig "github.com/wxmarkets/billing-service/pkg/config"
)

// ServiceConfig holds service identity and provider credentials.
type ServiceConfig struct {
	Name        string
	Environment string
	Version     string
	ClientURL   string
	Stripe      StripeConfig
	Checkout    CheckoutConfig

	// PlansSeedFile optionally points at a YAML catalog used by
	// cmd/sync-plans to seed plans without a provider round trip.
	PlansSeedFile string
}

// StripeConfig holds the provider credentials.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

// CheckoutConfig holds the redirect targets appended to the client URL.
type CheckoutConfig struct {
	SuccessPath      string
	CancelPath       string
	PortalReturnPath string
}

func newServiceConfig(v pkgconfig.Config) ServiceConfig {
	return ServiceConfig{
		Name:        stringOr(v.GetString("service.name"), "billing"),
		Environment: stringOr(v.GetString("service.environment"), "dev"),
		Version:     stringOr(v.GetString("service.version"), "0.1.0"),
		ClientURL:   stringOr(v.GetString("service.client_url"), "http://localhost:3000"),
		Stripe: StripeConfig{
			SecretKey:     v.GetString("service.stripe_secret_key"),
			WebhookSecret: v.GetString("service.stripe_webhook_secret"),
		},
		Checkout: CheckoutConfig{
			SuccessPath:      stringOr(v.GetString("service.checkout.success_path"), "/billing/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelPath:       stringOr(v.GetString("service.checkout.cancel_path"), "/billing/cancel"),
			PortalReturnPath: stringOr(v.GetString("service.checkout.portal_return_path"), "/account"),
		},
		PlansSeedFile: v.GetString("service.plans_seed_file"),
	}
}
