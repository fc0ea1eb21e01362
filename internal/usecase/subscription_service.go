package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wxmarkets/billing-service/internal/domain/entity"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	domainRepo "github.com/wxmarkets/billing-service/internal/domain/repository"
	"go.uber.org/zap"
)

// SubscriptionService serves the user-facing subscription surface from the
// local profile store. Reads never call the provider; writes (cancellation)
// go to the provider and come back through the webhook pipeline.
type SubscriptionService struct {
	profileRepo     domainRepo.ProfileRepository
	billingProvider provider.BillingProvider
	logger          *zap.Logger
}

// NewSubscriptionService creates a new subscription service instance
func NewSubscriptionService(
	profileRepo domainRepo.ProfileRepository,
	billingProvider provider.BillingProvider,
	logger *zap.Logger,
) *SubscriptionService {
	return &SubscriptionService{
		profileRepo:     profileRepo,
		billingProvider: billingProvider,
		logger:          logger,
	}
}

// GetSubscriptionView returns the profile-backed subscription state. A user
// without a profile row reads as inactive with no trial consumed.
func (s *SubscriptionService) GetSubscriptionView(ctx context.Context, userID uuid.UUID) (*entity.SubscriptionView, error) {
	profile, err := s.profileRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	if profile == nil {
		return &entity.SubscriptionView{
			Status: string(model.SubscriptionStatusInactive),
		}, nil
	}

	return &entity.SubscriptionView{
		Status:           string(profile.SubscriptionStatus),
		Plan:             profile.Plan,
		SubscriptionID:   profile.BillingSubscriptionID,
		CurrentPeriodEnd: profile.CurrentPeriodEnd,
		TrialUsed:        profile.TrialUsed,
		TrialStartedAt:   profile.TrialStartedAt,
		TrialEndsAt:      profile.TrialEndsAt,
	}, nil
}

// CreatePortalSession opens a billing portal session for the user's provider
// customer.
func (s *SubscriptionService) CreatePortalSession(ctx context.Context, userID uuid.UUID, returnURL string) (*provider.PortalSession, error) {
	profile, err := s.profileRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil || !profile.HasCustomer() {
		return nil, domainErrors.ErrNoCustomer
	}

	session, err := s.billingProvider.CreatePortalSession(ctx, *profile.BillingCustomerID, returnURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create portal session: %w", err)
	}

	s.logger.Info("portal session created",
		zap.String("user_id", userID.String()),
		zap.String("session_id", session.ID))

	return session, nil
}

// CancelCurrentSubscription schedules the user's subscription for
// cancellation at period end. The profile is not written here: the
// customer.subscription.updated event the provider emits carries the change
// through the reconciler like any other.
func (s *SubscriptionService) CancelCurrentSubscription(ctx context.Context, userID uuid.UUID) (*provider.SubscriptionSnapshot, error) {
	profile, err := s.profileRepo.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if profile == nil || profile.BillingSubscriptionID == nil ||
		profile.SubscriptionStatus == model.SubscriptionStatusInactive {
		return nil, domainErrors.ErrNoActiveSubscription
	}

	snapshot, err := s.billingProvider.CancelSubscription(ctx, *profile.BillingSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel subscription: %w", err)
	}

	s.logger.Info("subscription scheduled for cancellation",
		zap.String("user_id", userID.String()),
		zap.String("subscription_id", snapshot.ID),
		zap.Bool("cancel_at_period_end", snapshot.CancelAtPeriodEnd))

	return snapshot, nil
}
