package provider

import (
	"fmt"

	"github.com/wxmarkets/billing-service/internal/config"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	stripeProvider "github.com/wxmarkets/billing-service/internal/infrastructure/provider/stripe"
	"go.uber.org/zap"
)

// Factory creates billing providers based on the provider type
type Factory struct {
	config *config.Config
	logger *zap.Logger
}

// NewFactory creates a new provider factory
func NewFactory(config *config.Config, logger *zap.Logger) *Factory {
	return &Factory{
		config: config,
		logger: logger,
	}
}

// GetProvider returns a billing provider based on the provider type
func (f *Factory) GetProvider(providerType provider.ProviderType) (provider.BillingProvider, error) {
	switch providerType {
	case provider.ProviderTypeStripe:
		return f.createStripeProvider()
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}

// GetProviderFromString returns a billing provider from a string type
func (f *Factory) GetProviderFromString(providerStr string) (provider.BillingProvider, error) {
	// Default to Stripe if not specified
	if providerStr == "" {
		providerStr = string(provider.ProviderTypeStripe)
	}

	providerType := provider.ProviderType(providerStr)
	return f.GetProvider(providerType)
}

// createStripeProvider creates a new Stripe provider instance
func (f *Factory) createStripeProvider() (provider.BillingProvider, error) {
	if f.config.Service.Stripe.SecretKey == "" {
		return nil, fmt.Errorf("Stripe secret key not configured")
	}
	if f.config.Service.Stripe.WebhookSecret == "" {
		return nil, fmt.Errorf("Stripe webhook secret not configured")
	}

	return stripeProvider.NewStripeProvider(
		f.config.Service.Stripe.SecretKey,
		f.config.Service.Stripe.WebhookSecret,
		f.logger,
	), nil
}
