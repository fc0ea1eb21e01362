package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wxmarkets/billing-service/internal/domain/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WebhookRepository handles webhook event storage and processing
type WebhookRepository interface {
	SaveEvent(ctx context.Context, eventID, eventType, apiVersion string, data json.RawMessage) error
	GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error)
	MarkProcessing(ctx context.Context, eventID string, claimTTL time.Duration) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
	MarkFailed(ctx context.Context, eventID string, err error) error
	GetPendingEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error)
}

type webhookRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewWebhookRepository creates a new webhook repository
func NewWebhookRepository(db *gorm.DB, logger *zap.Logger) WebhookRepository {
	return &webhookRepository{
		db:     db,
		logger: logger,
	}
}

// SaveEvent saves a new webhook event. Duplicate provider event IDs are
// silently ignored so redelivered events collapse onto the first row.
func (r *webhookRepository) SaveEvent(ctx context.Context, eventID, eventType, apiVersion string, data json.RawMessage) error {
	// Parse created timestamp from event data
	var eventData map[string]interface{}
	if err := json.Unmarshal(data, &eventData); err != nil {
		r.logger.Warn("Failed to parse event data for timestamp",
			zap.String("event_id", eventID),
			zap.Error(err))
	}

	var providerCreatedAt *time.Time
	if created, ok := eventData["created"].(float64); ok {
		t := time.Unix(int64(created), 0)
		providerCreatedAt = &t
	}

	var apiVer *string
	if apiVersion != "" {
		apiVer = &apiVersion
	}

	event := &model.WebhookEvent{
		ProviderEventID:   eventID,
		EventType:         eventType,
		Status:            model.WebhookStatusPending,
		Data:              model.JSONB(eventData),
		APIVersion:        apiVer,
		ProviderCreatedAt: providerCreatedAt,
	}

	// Use ON CONFLICT to handle duplicate events
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(event).Error

	if err != nil {
		r.logger.Error("Failed to save webhook event",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
			zap.Error(err))
		return fmt.Errorf("failed to save webhook event: %w", err)
	}

	return nil
}

// GetEvent retrieves a webhook event by ID
func (r *webhookRepository) GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	var event model.WebhookEvent

	err := r.db.WithContext(ctx).
		Where("provider_event_id = ?", eventID).
		First(&event).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logger.Error("Failed to get webhook event",
			zap.String("event_id", eventID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get webhook event: %w", err)
	}

	return &event, nil
}

// MarkProcessing claims an event for processing. The claim succeeds for
// pending or failed events whose retry time has come, and for processing
// events whose previous claim expired (the holder crashed). While held,
// next_retry_at doubles as the claim deadline, so a crashed worker's event
// becomes claimable again after claimTTL. Returns false when another worker
// holds the event or it is already completed.
func (r *webhookRepository) MarkProcessing(ctx context.Context, eventID string, claimTTL time.Duration) (bool, error) {
	now := time.Now()
	deadline := now.Add(claimTTL)

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Where(
			r.db.Where("status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)",
				model.WebhookStatusPending, model.WebhookStatusFailed, now).
				Or("status = ? AND next_retry_at <= ?", model.WebhookStatusProcessing, now),
		).
		Updates(map[string]interface{}{
			"status":        model.WebhookStatusProcessing,
			"next_retry_at": &deadline,
		})

	if result.Error != nil {
		r.logger.Error("Failed to claim webhook event",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return false, fmt.Errorf("failed to claim webhook event: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// MarkProcessed marks a webhook event as processed
func (r *webhookRepository) MarkProcessed(ctx context.Context, eventID string) error {
	now := time.Now()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":       model.WebhookStatusCompleted,
			"processed_at": &now,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as processed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as processed: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("webhook event not found: %s", eventID)
	}

	return nil
}

// MarkFailed marks a webhook event as failed
func (r *webhookRepository) MarkFailed(ctx context.Context, eventID string, err error) error {
	// Get current event to increment attempts
	var event model.WebhookEvent
	if dbErr := r.db.WithContext(ctx).
		Where("provider_event_id = ?", eventID).
		First(&event).Error; dbErr != nil {
		r.logger.Error("Failed to get webhook event for failure update",
			zap.String("event_id", eventID),
			zap.Error(dbErr))
		return fmt.Errorf("failed to get webhook event: %w", dbErr)
	}

	// Calculate next retry time with exponential backoff
	attempts := event.ProcessingAttempts + 1
	retryMinutes := 5 * (1 << attempts) // 5, 10, 20, 40, etc.
	if retryMinutes > 1440 {            // Cap at 24 hours
		retryMinutes = 1440
	}
	nextRetry := time.Now().Add(time.Duration(retryMinutes) * time.Minute)

	errorMsg := err.Error()

	result := r.db.WithContext(ctx).
		Model(&model.WebhookEvent{}).
		Where("provider_event_id = ?", eventID).
		Updates(map[string]interface{}{
			"status":              model.WebhookStatusFailed,
			"processing_attempts": attempts,
			"last_error":          &errorMsg,
			"next_retry_at":       &nextRetry,
		})

	if result.Error != nil {
		r.logger.Error("Failed to mark webhook as failed",
			zap.String("event_id", eventID),
			zap.Error(result.Error))
		return fmt.Errorf("failed to mark webhook as failed: %w", result.Error)
	}

	return nil
}

// GetPendingEvents retrieves events due for processing: pending and failed
// events whose retry time has come, plus processing events whose claim
// expired without a terminal mark.
func (r *webhookRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent
	now := time.Now()

	query := r.db.WithContext(ctx).
		Where(
			r.db.Where("status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)",
				model.WebhookStatusPending, model.WebhookStatusFailed, now).
				Or("status = ? AND next_retry_at <= ?", model.WebhookStatusProcessing, now),
		).
		Order("created_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&events).Error
	if err != nil {
		r.logger.Error("Failed to get pending webhook events",
			zap.Error(err))
		return nil, fmt.Errorf("failed to get pending webhook events: %w", err)
	}

	return events, nil
}
