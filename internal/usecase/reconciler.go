package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	"github.com/wxmarkets/billing-service/internal/domain/entity"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	domainRepo "github.com/wxmarkets/billing-service/internal/domain/repository"
	"go.uber.org/zap"
)

// Outcome classifies what reconciliation did with an event.
type Outcome string

const (
	// OutcomeApplied means the profile row was updated.
	OutcomeApplied Outcome = "applied"
	// OutcomeDropped means the event was discarded on purpose (stale, or no
	// owner could be found) and must not be retried.
	OutcomeDropped Outcome = "dropped"
	// OutcomeObserved means the event was valid but carried nothing to apply.
	OutcomeObserved Outcome = "observed"
)

// ReconcileResult reports how one event landed.
type ReconcileResult struct {
	Outcome Outcome
	Reason  string
	UserID  uuid.UUID
	Status  model.SubscriptionStatus
}

const (
	// applyAttempts bounds the re-read/retry loop when concurrent events race
	// on one profile row.
	applyAttempts = 3
	// applyRetryDelay is the base backoff between attempts; it doubles each
	// time a race is lost.
	applyRetryDelay = 50 * time.Millisecond
)

// Reconciler folds provider change events into user profiles. Events arrive
// at least once and in any order; the profile's last_event_time decides
// whether an event still has something to say, and a guarded UPDATE makes
// each application atomic. Replaying any event sequence converges on the
// state implied by the newest event.
type Reconciler struct {
	profileRepo   domainRepo.ProfileRepository
	planRepo      repository.PlanRepository
	provider      provider.BillingProvider
	identity      *IdentityResolver
	notifications *NotificationService
	logger        *zap.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(
	profileRepo domainRepo.ProfileRepository,
	planRepo repository.PlanRepository,
	billingProvider provider.BillingProvider,
	identity *IdentityResolver,
	notifications *NotificationService,
	logger *zap.Logger,
) *Reconciler {
	return &Reconciler{
		profileRepo:   profileRepo,
		planRepo:      planRepo,
		provider:      billingProvider,
		identity:      identity,
		notifications: notifications,
		logger:        logger,
	}
}

// Process reconciles one verified change event. A non-nil error means the
// event should be retried later; every other path returns a terminal result.
func (r *Reconciler) Process(ctx context.Context, event *provider.ChangeEvent) (*ReconcileResult, error) {
	switch event.Kind {
	case provider.EventKindCheckoutCompleted:
		hydrated, result, err := r.hydrateCheckout(ctx, event)
		if err != nil || result != nil {
			return result, err
		}
		return r.apply(ctx, hydrated)

	case provider.EventKindSubscriptionChange:
		return r.apply(ctx, event)

	case provider.EventKindTrialWillEnd:
		return r.observeTrialWillEnd(ctx, event)

	default:
		return &ReconcileResult{
			Outcome: OutcomeObserved,
			Reason:  "event type not handled",
		}, nil
	}
}

// hydrateCheckout fetches the subscription snapshot a checkout event points
// at. Checkout events name a subscription but don't carry its state, so the
// snapshot comes from the provider; it may be newer than the event, which is
// fine since reconciliation orders by event time, not snapshot content.
func (r *Reconciler) hydrateCheckout(ctx context.Context, event *provider.ChangeEvent) (*provider.ChangeEvent, *ReconcileResult, error) {
	if event.SubscriptionID == "" {
		// One-time payment checkouts have no subscription to reconcile.
		return nil, &ReconcileResult{
			Outcome: OutcomeObserved,
			Reason:  "checkout without subscription",
		}, nil
	}

	snapshot, err := r.provider.GetSubscription(ctx, event.SubscriptionID)
	if err != nil {
		if provider.IsNotFound(err) {
			// Subscription already gone; the deletion event carries the
			// terminal state on its own.
			r.logger.Warn("Checkout subscription no longer exists",
				zap.String("event_id", event.ID),
				zap.String("subscription_id", event.SubscriptionID))
			return nil, &ReconcileResult{
				Outcome: OutcomeObserved,
				Reason:  "subscription no longer exists",
			}, nil
		}
		return nil, nil, fmt.Errorf("failed to hydrate checkout event %s: %w", event.ID, err)
	}

	event.Subscription = snapshot
	if event.CustomerID == "" {
		event.CustomerID = snapshot.CustomerID
	}
	if event.MetadataUserID == "" {
		event.MetadataUserID = snapshot.MetadataUserID
	}

	return event, nil, nil
}

// apply folds a subscription-bearing event into its owner's profile.
func (r *Reconciler) apply(ctx context.Context, event *provider.ChangeEvent) (*ReconcileResult, error) {
	userID, err := r.identity.Resolve(ctx, event)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUnresolvableIdentity) {
			r.logger.Warn("Dropping event with unresolvable identity",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.String("customer_id", event.CustomerID))
			return &ReconcileResult{
				Outcome: OutcomeDropped,
				Reason:  "unresolvable identity",
			}, nil
		}
		return nil, err
	}

	update := r.buildUpdate(ctx, event)

	for attempt := 0; attempt < applyAttempts; attempt++ {
		profile, err := r.profileRepo.GetOrCreate(ctx, userID, "")
		if err != nil {
			return nil, err
		}

		// Ordering guard: strictly older events drop out. Equal times pass,
		// so reapplying an event rewrites the same values instead of
		// failing a redelivery.
		if profile.LastEventTime != nil && event.OccurredAt.Before(*profile.LastEventTime) {
			return &ReconcileResult{
				Outcome: OutcomeDropped,
				Reason:  "stale event",
				UserID:  userID,
				Status:  profile.SubscriptionStatus,
			}, nil
		}

		err = r.profileRepo.CompareAndSet(ctx, userID, profile.LastEventTime, update)
		if err == nil {
			r.logger.Info("Applied change event",
				zap.String("event_id", event.ID),
				zap.String("event_type", event.Type),
				zap.String("user_id", userID.String()),
				zap.String("status", string(update.Status)),
				zap.Time("event_time", event.OccurredAt))

			r.notifications.PublishSubscriptionChanged(ctx, &entity.SubscriptionChanged{
				UserID:         userID.String(),
				Status:         string(update.Status),
				Plan:           update.Plan,
				SubscriptionID: event.SubscriptionID,
				EventID:        event.ID,
				EventType:      event.Type,
				OccurredAt:     event.OccurredAt,
			})

			return &ReconcileResult{
				Outcome: OutcomeApplied,
				UserID:  userID,
				Status:  update.Status,
			}, nil
		}

		if !errors.Is(err, domainErrors.ErrStoreConflict) {
			return nil, err
		}

		// Lost the race; back off, re-read, re-check staleness.
		r.logger.Debug("Profile update lost a write race",
			zap.String("event_id", event.ID),
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt+1))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(applyRetryDelay << attempt):
		}
	}

	return nil, fmt.Errorf("event %s lost %d write races on profile %s: %w",
		event.ID, applyAttempts, userID, domainErrors.ErrStoreConflict)
}

// buildUpdate translates a change event into the profile mutation it implies
func (r *Reconciler) buildUpdate(ctx context.Context, event *provider.ChangeEvent) domainRepo.ProfileUpdate {
	snapshot := event.Subscription

	update := domainRepo.ProfileUpdate{
		Status:    model.NormalizeSubscriptionStatus(snapshot.Status),
		EventTime: event.OccurredAt,
	}

	if snapshot.ID != "" {
		update.SubscriptionID = &snapshot.ID
	}
	if event.CustomerID != "" {
		update.CustomerID = &event.CustomerID
	} else if snapshot.CustomerID != "" {
		update.CustomerID = &snapshot.CustomerID
	}
	if snapshot.CurrentPeriodEnd != nil {
		update.CurrentPeriodEnd = snapshot.CurrentPeriodEnd
	}
	if snapshot.PriceID != "" {
		plan := r.resolvePlanName(ctx, snapshot.PriceID)
		update.Plan = &plan
	}

	facts := trialFactsFromEvent(event)
	update.TrialUsed = facts.Claimed
	update.TrialStartedAt = facts.StartedAt
	update.TrialEndsAt = facts.EndsAt

	return update
}

// resolvePlanName maps a provider price ID to its display name through the
// local plan mirror, falling back to the raw price ID when the mirror
// doesn't know it yet. Naming is cosmetic; a lookup failure never blocks
// the event.
func (r *Reconciler) resolvePlanName(ctx context.Context, priceID string) string {
	plan, err := r.planRepo.GetByPriceID(ctx, priceID)
	if err != nil {
		r.logger.Warn("Failed to resolve plan name",
			zap.String("price_id", priceID),
			zap.Error(err))
		return priceID
	}
	if plan == nil || plan.DisplayName == "" {
		return priceID
	}
	return plan.DisplayName
}

// observeTrialWillEnd announces an approaching trial end without touching
// the profile; the status transition arrives in its own subscription event.
func (r *Reconciler) observeTrialWillEnd(ctx context.Context, event *provider.ChangeEvent) (*ReconcileResult, error) {
	userID, err := r.identity.Resolve(ctx, event)
	if err != nil {
		if errors.Is(err, domainErrors.ErrUnresolvableIdentity) {
			return &ReconcileResult{
				Outcome: OutcomeDropped,
				Reason:  "unresolvable identity",
			}, nil
		}
		return nil, err
	}

	var trialEndsAt *time.Time
	if event.Subscription != nil {
		trialEndsAt = event.Subscription.TrialEnd
	}

	r.notifications.PublishTrialWillEnd(ctx, &entity.TrialWillEnd{
		UserID:      userID.String(),
		TrialEndsAt: trialEndsAt,
	})

	r.logger.Info("Observed trial ending soon",
		zap.String("event_id", event.ID),
		zap.String("user_id", userID.String()))

	return &ReconcileResult{
		Outcome: OutcomeObserved,
		Reason:  "trial ending announced",
		UserID:  userID,
	}, nil
}
