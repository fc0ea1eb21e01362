package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	domainRepo "github.com/wxmarkets/billing-service/internal/domain/repository"
	"go.uber.org/zap"
)

// CheckoutService starts hosted checkout sessions. It owns the synchronous
// side of billing: making sure the user has exactly one provider customer
// and at most one trial, before the provider takes over.
type CheckoutService struct {
	profileRepo     domainRepo.ProfileRepository
	planRepo        repository.PlanRepository
	billingProvider provider.BillingProvider
	logger          *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(
	profileRepo domainRepo.ProfileRepository,
	planRepo repository.PlanRepository,
	billingProvider provider.BillingProvider,
	logger *zap.Logger,
) *CheckoutService {
	return &CheckoutService{
		profileRepo:     profileRepo,
		planRepo:        planRepo,
		billingProvider: billingProvider,
		logger:          logger,
	}
}

// StartCheckoutRequest carries everything needed to open a checkout session
type StartCheckoutRequest struct {
	UserID     uuid.UUID
	Email      string
	PlanID     string // provider price ID from the local catalog
	WantsTrial bool
	SuccessURL string
	CancelURL  string
}

// StartCheckout validates the plan, ensures a provider customer, claims the
// trial when requested, and opens a hosted checkout session.
//
// A claimed trial is not rolled back if session creation fails afterwards:
// the flag is deny-by-default, and handing back a burned claim would open a
// window for double trials under concurrent requests.
func (s *CheckoutService) StartCheckout(ctx context.Context, req *StartCheckoutRequest) (*provider.CheckoutSession, error) {
	plan, err := s.planRepo.GetByPriceID(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate plan: %w", err)
	}
	if plan == nil || !plan.IsActive || !plan.IsSubscription() {
		return nil, domainErrors.ErrPlanNotFound
	}

	profile, err := s.profileRepo.GetOrCreate(ctx, req.UserID, req.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	customerID, err := s.ensureCustomer(ctx, profile, req.Email)
	if err != nil {
		return nil, err
	}

	if req.WantsTrial {
		claimed, err := s.profileRepo.ClaimTrial(ctx, req.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to claim trial: %w", err)
		}
		if !claimed {
			s.logger.Info("trial checkout refused, trial already used",
				zap.String("user_id", req.UserID.String()),
				zap.String("plan_id", req.PlanID))
			return nil, domainErrors.ErrTrialAlreadyUsed
		}
	}

	session, err := s.billingProvider.CreateCheckoutSession(ctx, &provider.CreateCheckoutSessionRequest{
		CustomerID:      customerID,
		PriceID:         plan.ProviderPriceID,
		SuccessURL:      req.SuccessURL,
		CancelURL:       req.CancelURL,
		UserID:          req.UserID.String(),
		WantsTrial:      req.WantsTrial,
		TrialPeriodDays: plan.TrialPeriodDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	s.logger.Info("checkout session started",
		zap.String("user_id", req.UserID.String()),
		zap.String("session_id", session.ID),
		zap.String("plan_id", req.PlanID),
		zap.Bool("wants_trial", req.WantsTrial))

	return session, nil
}

// ensureCustomer returns the user's provider customer ID, creating and
// attaching one when the profile has none. The provider call is idempotent
// per user and the attach is set-if-null, so concurrent callers settle on a
// single persisted customer ID.
func (s *CheckoutService) ensureCustomer(ctx context.Context, profile *model.Profile, email string) (string, error) {
	if profile.HasCustomer() {
		return *profile.BillingCustomerID, nil
	}

	customer, err := s.billingProvider.CreateCustomer(ctx, &provider.CreateCustomerRequest{
		UserID: profile.UserID.String(),
		Email:  email,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}

	attached, err := s.profileRepo.AttachCustomerID(ctx, profile.UserID, customer.ID)
	if err != nil {
		return "", fmt.Errorf("failed to attach customer: %w", err)
	}
	if attached {
		return customer.ID, nil
	}

	// Lost the attach race; the winner's customer ID is the one that counts.
	current, err := s.profileRepo.Get(ctx, profile.UserID)
	if err != nil {
		return "", fmt.Errorf("failed to re-read profile: %w", err)
	}
	if current != nil && current.HasCustomer() {
		s.logger.Info("customer already attached by concurrent checkout",
			zap.String("user_id", profile.UserID.String()),
			zap.String("customer_id", *current.BillingCustomerID))
		return *current.BillingCustomerID, nil
	}

	return customer.ID, nil
}
