package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wxmarkets/billing-service/internal/domain/model"
)

// ProfileUpdate is one reconciled event folded into a profile. It is applied
// as a single guarded UPDATE; optional fields stay untouched when nil.
type ProfileUpdate struct {
	// Status is the normalized subscription status to store.
	Status model.SubscriptionStatus

	// EventTime becomes the new last_event_time.
	EventTime time.Time

	// SubscriptionID overwrites billing_subscription_id when non-nil.
	SubscriptionID *string

	// Plan overwrites the plan identifier when non-nil.
	Plan *string

	// CurrentPeriodEnd overwrites the period end when non-nil.
	CurrentPeriodEnd *time.Time

	// CustomerID backfills billing_customer_id, set-if-null only.
	CustomerID *string

	// TrialUsed marks the trial spent. Never unset; false means "leave as is".
	TrialUsed bool

	// TrialStartedAt records the first trial start, set-if-null only.
	TrialStartedAt *time.Time

	// TrialEndsAt overwrites the trial end when non-nil (explicit event data).
	TrialEndsAt *time.Time
}

// ProfileRepository is the profile store. Lookups return (nil, nil) when no
// row exists; every write is a single SQL statement so concurrent writers
// only ever race on row versions, never on read-modify-write windows.
type ProfileRepository interface {
	// Get loads one profile by user id.
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)

	// GetOrCreate upserts an empty profile row and returns the current row.
	GetOrCreate(ctx context.Context, userID uuid.UUID, email string) (*model.Profile, error)

	// FindByCustomerID reverse-looks-up a profile by provider customer id.
	FindByCustomerID(ctx context.Context, customerID string) (*model.Profile, error)

	// AttachCustomerID links a provider customer, set-if-null. Returns true
	// when this call performed the attach, false when another id was already
	// linked.
	AttachCustomerID(ctx context.Context, userID uuid.UUID, customerID string) (bool, error)

	// ClaimTrial flips trial_used false→true. Returns true when this call
	// claimed the trial, false when it was already spent.
	ClaimTrial(ctx context.Context, userID uuid.UUID) (bool, error)

	// CompareAndSet applies update iff last_event_time still equals
	// expectedEventTime (nil matches a never-written row). A lost race
	// returns domain errors.ErrStoreConflict.
	CompareAndSet(ctx context.Context, userID uuid.UUID, expectedEventTime *time.Time, update ProfileUpdate) error
}
