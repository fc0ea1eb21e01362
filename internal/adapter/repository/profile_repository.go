package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	domainRepo "github.com/wxmarkets/billing-service/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// profileRepository implements the ProfileRepository interface
type profileRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository instance
func NewProfileRepository(db *gorm.DB, logger *zap.Logger) domainRepo.ProfileRepository {
	return &profileRepository{
		db:     db,
		logger: logger,
	}
}

// Get loads a profile by user ID
func (r *profileRepository) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	var profile model.Profile

	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get profile",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return &profile, nil
}

// GetOrCreate inserts an empty profile row for the user if none exists and
// returns the current row. Concurrent callers converge on a single row.
func (r *profileRepository) GetOrCreate(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error) {
	profile := &model.Profile{
		UserID:             userID,
		Email:              email,
		SubscriptionStatus: model.SubscriptionStatusInactive,
	}

	// ON CONFLICT DO NOTHING keeps the existing row untouched; the re-read
	// below picks up whichever writer won.
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(profile).Error

	if err != nil {
		r.logger.Error("Failed to create profile",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}

	existing, err := r.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("profile missing after upsert: %s", userID)
	}

	return existing, nil
}

// FindByCustomerID looks up a profile by its provider customer ID
func (r *profileRepository) FindByCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	var profile model.Profile

	err := r.db.WithContext(ctx).
		Where("billing_customer_id = ?", customerID).
		First(&profile).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to find profile by customer ID",
			zap.String("customer_id", customerID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to find profile by customer ID: %w", err)
	}

	return &profile, nil
}

// AttachCustomerID links a provider customer to the profile only when no
// customer is linked yet. Returns true when this call set the value.
func (r *profileRepository) AttachCustomerID(ctx context.Context, userID uuid.UUID, customerID string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ? AND billing_customer_id IS NULL", userID).
		Update("billing_customer_id", customerID)

	if result.Error != nil {
		r.logger.Error("Failed to attach customer ID",
			zap.String("user_id", userID.String()),
			zap.String("customer_id", customerID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to attach customer ID: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// ClaimTrial flips trial_used from false to true. Returns true when this
// call performed the flip, false when the trial was already claimed.
func (r *profileRepository) ClaimTrial(ctx context.Context, userID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ? AND trial_used = false", userID).
		Update("trial_used", true)

	if result.Error != nil {
		r.logger.Error("Failed to claim trial",
			zap.String("user_id", userID.String()),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to claim trial: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// CompareAndSet applies the update in a single guarded UPDATE. The guard
// matches only when last_event_time still holds expectedEventTime (NULL-safe
// via IS NOT DISTINCT FROM); zero rows affected means another writer moved
// the row first and the caller must re-read and retry.
func (r *profileRepository) CompareAndSet(ctx context.Context, userID uuid.UUID, expectedEventTime *time.Time, update domainRepo.ProfileUpdate) error {
	values := map[string]interface{}{
		"subscription_status": update.Status,
		"last_event_time":     update.EventTime,
	}

	if update.SubscriptionID != nil {
		values["billing_subscription_id"] = *update.SubscriptionID
	}
	if update.Plan != nil {
		values["plan"] = *update.Plan
	}
	if update.CurrentPeriodEnd != nil {
		values["current_period_end"] = *update.CurrentPeriodEnd
	}
	if update.CustomerID != nil {
		// Set-once: never overwrite an already linked customer.
		values["billing_customer_id"] = gorm.Expr("COALESCE(billing_customer_id, ?)", *update.CustomerID)
	}
	if update.TrialUsed {
		// Monotonic: written only as true, never cleared.
		values["trial_used"] = true
	}
	if update.TrialStartedAt != nil {
		values["trial_started_at"] = gorm.Expr("COALESCE(trial_started_at, ?)", *update.TrialStartedAt)
	}
	if update.TrialEndsAt != nil {
		values["trial_ends_at"] = *update.TrialEndsAt
	}

	result := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("user_id = ? AND last_event_time IS NOT DISTINCT FROM ?", userID, expectedEventTime).
		Updates(values)

	if result.Error != nil {
		r.logger.Error("Failed to update profile",
			zap.String("user_id", userID.String()),
			zap.Error(result.Error))
		return fmt.Errorf("failed to update profile: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return domainErrors.ErrStoreConflict
	}

	return nil
}
