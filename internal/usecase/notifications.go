package usecase

import (
	"context"

	"github.com/wxmarkets/billing-service/internal/domain/entity"
	"github.com/wxmarkets/billing-service/pkg/messaging"
	"go.uber.org/zap"
)

// Pub/sub channels other services subscribe to.
const (
	ChannelSubscriptionChanged = "billing.subscription.changed"
	ChannelTrialWillEnd        = "billing.trial.will_end"
)

// NotificationService announces billing state changes over Redis pub/sub.
// Publishing is best-effort: the profile store is the source of truth and a
// missed announcement never fails the event that caused it.
type NotificationService struct {
	client messaging.RedisClient
	logger *zap.Logger
}

// NewNotificationService creates a new notification service. A nil client
// disables publishing.
func NewNotificationService(client messaging.RedisClient, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		client: client,
		logger: logger,
	}
}

// PublishSubscriptionChanged announces an applied profile change
func (s *NotificationService) PublishSubscriptionChanged(ctx context.Context, change *entity.SubscriptionChanged) {
	if s.client == nil {
		return
	}

	if err := s.client.Publish(ctx, ChannelSubscriptionChanged, change); err != nil {
		s.logger.Error("Failed to publish subscription change",
			zap.String("user_id", change.UserID),
			zap.String("event_id", change.EventID),
			zap.Error(err))
		return
	}

	s.logger.Debug("Published subscription change",
		zap.String("user_id", change.UserID),
		zap.String("status", change.Status))
}

// PublishTrialWillEnd announces an upcoming trial expiry
func (s *NotificationService) PublishTrialWillEnd(ctx context.Context, notice *entity.TrialWillEnd) {
	if s.client == nil {
		return
	}

	if err := s.client.Publish(ctx, ChannelTrialWillEnd, notice); err != nil {
		s.logger.Error("Failed to publish trial expiry notice",
			zap.String("user_id", notice.UserID),
			zap.Error(err))
		return
	}

	s.logger.Debug("Published trial expiry notice",
		zap.String("user_id", notice.UserID))
}
