package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"go.uber.org/zap"
)

// EventProcessor owns the persist-claim-dispatch-mark pipeline around the
// reconciler. The live webhook path and the retry worker both run through
// it, so an event is processed by at most one holder at a time and a
// completed event is never dispatched twice.
type EventProcessor struct {
	webhookRepo     repository.WebhookRepository
	reconciler      *Reconciler
	planSync        *PlanSyncService
	billingProvider provider.BillingProvider
	claimTTL        time.Duration
	logger          *zap.Logger
}

// NewEventProcessor creates a new event processor. claimTTL bounds how long
// a crashed holder blocks an event from being retried.
func NewEventProcessor(
	webhookRepo repository.WebhookRepository,
	reconciler *Reconciler,
	planSync *PlanSyncService,
	billingProvider provider.BillingProvider,
	claimTTL time.Duration,
	logger *zap.Logger,
) *EventProcessor {
	if claimTTL <= 0 {
		claimTTL = 5 * time.Minute
	}
	return &EventProcessor{
		webhookRepo:     webhookRepo,
		reconciler:      reconciler,
		planSync:        planSync,
		billingProvider: billingProvider,
		claimTTL:        claimTTL,
		logger:          logger,
	}
}

// HandleDelivery processes one live webhook delivery: verify the signature,
// persist the event, claim it, dispatch, and mark the result. A non-nil
// error asks the provider to redeliver; the retry worker sweeps the stored
// copy regardless.
func (p *EventProcessor) HandleDelivery(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	event, err := p.billingProvider.VerifyWebhook(payload, signature)
	if err != nil {
		return nil, err
	}

	if err := p.webhookRepo.SaveEvent(ctx, event.ID, event.Type, event.APIVersion, payload); err != nil {
		return nil, err
	}

	claimed, err := p.webhookRepo.MarkProcessing(ctx, event.ID, p.claimTTL)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// Already completed, or another holder is on it right now. Either
		// way this delivery is done.
		p.logger.Info("Skipping duplicate delivery",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		return &ReconcileResult{
			Outcome: OutcomeObserved,
			Reason:  "duplicate delivery",
		}, nil
	}

	return p.dispatchClaimed(ctx, event)
}

// ReprocessStored re-runs one stored event that the retry worker swept up.
// The claim was already taken by the caller.
func (p *EventProcessor) ReprocessStored(ctx context.Context, stored *model.WebhookEvent) (*ReconcileResult, error) {
	payload, err := json.Marshal(stored.Data)
	if err != nil {
		markErr := p.webhookRepo.MarkFailed(ctx, stored.ProviderEventID, err)
		if markErr != nil {
			p.logger.Error("Failed to mark unparseable event as failed",
				zap.String("event_id", stored.ProviderEventID),
				zap.Error(markErr))
		}
		return nil, fmt.Errorf("failed to re-encode stored event %s: %w", stored.ProviderEventID, err)
	}

	event, err := p.billingProvider.ParseEvent(payload)
	if err != nil {
		markErr := p.webhookRepo.MarkFailed(ctx, stored.ProviderEventID, err)
		if markErr != nil {
			p.logger.Error("Failed to mark unparseable event as failed",
				zap.String("event_id", stored.ProviderEventID),
				zap.Error(markErr))
		}
		return nil, err
	}

	return p.dispatchClaimed(ctx, event)
}

// dispatchClaimed routes a claimed event to the reconciler or the plan
// mirror and records the terminal mark. Dropped and observed outcomes are
// terminal successes; only errors leave the event claimable again.
func (p *EventProcessor) dispatchClaimed(ctx context.Context, event *provider.ChangeEvent) (*ReconcileResult, error) {
	var result *ReconcileResult
	var err error

	if event.Kind == provider.EventKindPlanCatalog {
		err = p.planSync.SyncCatalogEvent(ctx, event.Type, event.ObjectRaw)
		if err == nil {
			result = &ReconcileResult{
				Outcome: OutcomeObserved,
				Reason:  "plan catalog synced",
			}
		}
	} else {
		result, err = p.reconciler.Process(ctx, event)
	}

	if err != nil {
		p.logger.Error("Event processing failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type),
			zap.Error(err))
		if markErr := p.webhookRepo.MarkFailed(ctx, event.ID, err); markErr != nil {
			p.logger.Error("Failed to mark event as failed",
				zap.String("event_id", event.ID),
				zap.Error(markErr))
		}
		return nil, err
	}

	if markErr := p.webhookRepo.MarkProcessed(ctx, event.ID); markErr != nil {
		// The work is done and reapplying is idempotent; a missed mark only
		// means the worker may run this event once more.
		p.logger.Error("Failed to mark event as processed",
			zap.String("event_id", event.ID),
			zap.Error(markErr))
	}

	return result, nil
}

// ClaimTTL exposes the processor's claim window to the retry worker
func (p *EventProcessor) ClaimTTL() time.Duration {
	return p.claimTTL
}
