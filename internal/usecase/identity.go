package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/domain/repository"
	"go.uber.org/zap"
)

// IdentityResolver maps a change event to a local user ID. Resolution walks
// three sources in order: user metadata stamped on the event's object, user
// metadata on the provider customer, and finally the local reverse index of
// customer IDs. A malformed user ID in metadata counts as a miss, not a
// failure; provider outages are failures so the event can be retried.
type IdentityResolver struct {
	profileRepo     repository.ProfileRepository
	billingProvider provider.BillingProvider
	logger          *zap.Logger
}

// NewIdentityResolver creates a new identity resolver
func NewIdentityResolver(
	profileRepo repository.ProfileRepository,
	billingProvider provider.BillingProvider,
	logger *zap.Logger,
) *IdentityResolver {
	return &IdentityResolver{
		profileRepo:     profileRepo,
		billingProvider: billingProvider,
		logger:          logger,
	}
}

// Resolve returns the local user ID for a change event, or
// ErrUnresolvableIdentity when every source misses.
func (r *IdentityResolver) Resolve(ctx context.Context, event *provider.ChangeEvent) (uuid.UUID, error) {
	// Source 1: user ID stamped on the event object at checkout time.
	if userID, ok := parseUserID(event.MetadataUserID); ok {
		return userID, nil
	}
	if event.MetadataUserID != "" {
		r.logger.Warn("Malformed user ID in event metadata",
			zap.String("event_id", event.ID),
			zap.String("metadata_user_id", event.MetadataUserID))
	}

	if event.CustomerID == "" {
		return uuid.Nil, domainErrors.ErrUnresolvableIdentity
	}

	// Source 2: user ID on the provider customer.
	customer, err := r.billingProvider.GetCustomer(ctx, event.CustomerID)
	if err != nil {
		if !provider.IsNotFound(err) {
			return uuid.Nil, fmt.Errorf("failed to get customer %s: %w", event.CustomerID, err)
		}
		r.logger.Warn("Customer no longer exists at provider",
			zap.String("event_id", event.ID),
			zap.String("customer_id", event.CustomerID))
	} else if customer != nil {
		if userID, ok := parseUserID(customer.Metadata["user_id"]); ok {
			return userID, nil
		}
	}

	// Source 3: local reverse lookup by customer ID.
	profile, err := r.profileRepo.FindByCustomerID(ctx, event.CustomerID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up customer %s: %w", event.CustomerID, err)
	}
	if profile == nil {
		return uuid.Nil, domainErrors.ErrUnresolvableIdentity
	}

	// The reverse index knew what the provider didn't; push the user ID back
	// into the customer metadata so the next event resolves at source 2.
	// Best-effort: the resolution stands either way.
	r.backfillCustomerMetadata(ctx, event.CustomerID, profile.UserID)

	return profile.UserID, nil
}

func (r *IdentityResolver) backfillCustomerMetadata(ctx context.Context, customerID string, userID uuid.UUID) {
	err := r.billingProvider.UpdateCustomerMetadata(ctx, customerID, map[string]string{
		"user_id": userID.String(),
	})
	if err != nil {
		r.logger.Warn("Failed to backfill customer metadata",
			zap.String("customer_id", customerID),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	r.logger.Info("Backfilled user ID into customer metadata",
		zap.String("customer_id", customerID),
		zap.String("user_id", userID.String()))
}

// parseUserID validates a metadata value as a user ID
func parseUserID(raw string) (uuid.UUID, bool) {
	if raw == "" {
		return uuid.Nil, false
	}
	userID, err := uuid.Parse(raw)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, false
	}
	return userID, true
}
