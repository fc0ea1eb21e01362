package usecase_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/usecase"
)

// MockWebhookRepository is a mock implementation of repository.WebhookRepository
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) SaveEvent(ctx context.Context, eventID, eventType, apiVersion string, data json.RawMessage) error {
	args := m.Called(ctx, eventID, eventType, apiVersion, data)
	return args.Error(0)
}

func (m *MockWebhookRepository) GetEvent(ctx context.Context, eventID string) (*model.WebhookEvent, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.WebhookEvent), args.Error(1)
}

func (m *MockWebhookRepository) MarkProcessing(ctx context.Context, eventID string, claimTTL time.Duration) (bool, error) {
	args := m.Called(ctx, eventID, claimTTL)
	return args.Bool(0), args.Error(1)
}

func (m *MockWebhookRepository) MarkProcessed(ctx context.Context, eventID string) error {
	args := m.Called(ctx, eventID)
	return args.Error(0)
}

func (m *MockWebhookRepository) MarkFailed(ctx context.Context, eventID string, err error) error {
	args := m.Called(ctx, eventID, err)
	return args.Error(0)
}

func (m *MockWebhookRepository) GetPendingEvents(ctx context.Context, limit int) ([]*model.WebhookEvent, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.WebhookEvent), args.Error(1)
}

var _ repository.WebhookRepository = (*MockWebhookRepository)(nil)

func newProcessorUnderTest(
	webhookRepo repository.WebhookRepository,
	store *fakeProfileStore,
	plans *fakePlanCatalog,
	billingProvider provider.BillingProvider,
) *usecase.EventProcessor {
	logger := zap.NewNop()
	reconciler := usecase.NewReconciler(
		store,
		plans,
		billingProvider,
		usecase.NewIdentityResolver(store, billingProvider, logger),
		usecase.NewNotificationService(nil, logger),
		logger,
	)
	planSync := usecase.NewPlanSyncService(plans, logger)
	return usecase.NewEventProcessor(webhookRepo, reconciler, planSync, billingProvider, 5*time.Minute, logger)
}

func TestEventProcessor_HandleDelivery(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"id":"evt_1","type":"customer.subscription.updated"}`)
	eventTime := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("verifies, stores, claims, dispatches, and marks", func(t *testing.T) {
		userID := uuid.New()
		event := subscriptionEvent("evt_1", userID, eventTime, &provider.SubscriptionSnapshot{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     "active",
		})
		event.APIVersion = "2024-06-20"

		mockProvider := new(MockBillingProvider)
		mockProvider.On("VerifyWebhook", payload, "sig").Return(event, nil)

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("SaveEvent", mock.Anything, "evt_1", "customer.subscription.updated", "2024-06-20", mock.Anything).Return(nil)
		webhookRepo.On("MarkProcessing", mock.Anything, "evt_1", 5*time.Minute).Return(true, nil)
		webhookRepo.On("MarkProcessed", mock.Anything, "evt_1").Return(nil)

		store := newFakeProfileStore()
		processor := newProcessorUnderTest(webhookRepo, store, newFakePlanCatalog(), mockProvider)

		result, err := processor.HandleDelivery(ctx, payload, "sig")

		assert.NoError(t, err)
		assert.Equal(t, usecase.OutcomeApplied, result.Outcome)

		profile, _ := store.Get(ctx, userID)
		assert.Equal(t, model.SubscriptionStatusActive, profile.SubscriptionStatus)
		webhookRepo.AssertExpectations(t)
		mockProvider.AssertExpectations(t)
	})

	t.Run("a duplicate delivery is acknowledged without dispatch", func(t *testing.T) {
		event := subscriptionEvent("evt_1", uuid.New(), eventTime, &provider.SubscriptionSnapshot{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     "active",
		})

		mockProvider := new(MockBillingProvider)
		mockProvider.On("VerifyWebhook", payload, "sig").Return(event, nil)

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("SaveEvent", mock.Anything, "evt_1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		webhookRepo.On("MarkProcessing", mock.Anything, "evt_1", mock.Anything).Return(false, nil)

		store := newFakeProfileStore()
		processor := newProcessorUnderTest(webhookRepo, store, newFakePlanCatalog(), mockProvider)

		result, err := processor.HandleDelivery(ctx, payload, "sig")

		assert.NoError(t, err)
		assert.Equal(t, usecase.OutcomeObserved, result.Outcome)
		assert.Equal(t, "duplicate delivery", result.Reason)
		assert.Empty(t, store.profiles, "the claimed holder owns the write")
		webhookRepo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("a signature failure stores nothing", func(t *testing.T) {
		mockProvider := new(MockBillingProvider)
		mockProvider.On("VerifyWebhook", payload, "bad-sig").Return(nil, &provider.ProviderError{
			Code:    "signature_verification_failed",
			Message: "signature mismatch",
		})

		webhookRepo := new(MockWebhookRepository)
		processor := newProcessorUnderTest(webhookRepo, newFakeProfileStore(), newFakePlanCatalog(), mockProvider)

		result, err := processor.HandleDelivery(ctx, payload, "bad-sig")

		assert.Error(t, err)
		assert.True(t, provider.IsSignatureError(err))
		assert.Nil(t, result)
		webhookRepo.AssertNotCalled(t, "SaveEvent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("a failed dispatch marks the event for retry", func(t *testing.T) {
		// No user metadata, and the customer lookup hits an outage: the
		// reconciler cannot decide, so the event must stay retryable.
		event := &provider.ChangeEvent{
			ID:         "evt_1",
			Type:       "customer.subscription.updated",
			Kind:       provider.EventKindSubscriptionChange,
			OccurredAt: eventTime,
			CustomerID: "cus_1",
			Subscription: &provider.SubscriptionSnapshot{
				ID:         "sub_1",
				CustomerID: "cus_1",
				Status:     "active",
			},
		}

		mockProvider := new(MockBillingProvider)
		mockProvider.On("VerifyWebhook", payload, "sig").Return(event, nil)
		mockProvider.On("GetCustomer", mock.Anything, "cus_1").Return(nil, &provider.ProviderError{
			Code:    "api_error",
			Message: "provider is down",
		})

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("SaveEvent", mock.Anything, "evt_1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		webhookRepo.On("MarkProcessing", mock.Anything, "evt_1", mock.Anything).Return(true, nil)
		webhookRepo.On("MarkFailed", mock.Anything, "evt_1", mock.Anything).Return(nil)

		processor := newProcessorUnderTest(webhookRepo, newFakeProfileStore(), newFakePlanCatalog(), mockProvider)

		result, err := processor.HandleDelivery(ctx, payload, "sig")

		assert.Error(t, err)
		assert.Nil(t, result)
		webhookRepo.AssertExpectations(t)
		webhookRepo.AssertNotCalled(t, "MarkProcessed", mock.Anything, mock.Anything)
	})

	t.Run("catalog events feed the plan mirror, not the reconciler", func(t *testing.T) {
		event := &provider.ChangeEvent{
			ID:         "evt_price",
			Type:       "price.deleted",
			Kind:       provider.EventKindPlanCatalog,
			OccurredAt: eventTime,
			ObjectRaw:  json.RawMessage(`{"id":"price_a"}`),
		}

		mockProvider := new(MockBillingProvider)
		mockProvider.On("VerifyWebhook", payload, "sig").Return(event, nil)

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("SaveEvent", mock.Anything, "evt_price", mock.Anything, mock.Anything, mock.Anything).Return(nil)
		webhookRepo.On("MarkProcessing", mock.Anything, "evt_price", mock.Anything).Return(true, nil)
		webhookRepo.On("MarkProcessed", mock.Anything, "evt_price").Return(nil)

		store := newFakeProfileStore()
		plans := newFakePlanCatalog(&model.BillingPlan{
			ProviderPriceID: "price_a",
			DisplayName:     "Plan A",
			Type:            model.PlanTypeSubscription,
			IsActive:        true,
		})
		processor := newProcessorUnderTest(webhookRepo, store, plans, mockProvider)

		result, err := processor.HandleDelivery(ctx, payload, "sig")

		assert.NoError(t, err)
		assert.Equal(t, usecase.OutcomeObserved, result.Outcome)
		assert.Equal(t, "plan catalog synced", result.Reason)

		plan, _ := plans.GetByPriceID(ctx, "price_a")
		assert.False(t, plan.IsActive)
		assert.Empty(t, store.profiles)
		webhookRepo.AssertExpectations(t)
	})

	t.Run("a store failure propagates before any claim", func(t *testing.T) {
		event := subscriptionEvent("evt_1", uuid.New(), eventTime, &provider.SubscriptionSnapshot{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     "active",
		})

		mockProvider := new(MockBillingProvider)
		mockProvider.On("VerifyWebhook", payload, "sig").Return(event, nil)

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("SaveEvent", mock.Anything, "evt_1", mock.Anything, mock.Anything, mock.Anything).
			Return(assert.AnError)

		processor := newProcessorUnderTest(webhookRepo, newFakeProfileStore(), newFakePlanCatalog(), mockProvider)

		result, err := processor.HandleDelivery(ctx, payload, "sig")

		assert.Error(t, err)
		assert.Nil(t, result)
		webhookRepo.AssertNotCalled(t, "MarkProcessing", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestEventProcessor_ReprocessStored(t *testing.T) {
	ctx := context.Background()
	eventTime := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("replays a stored delivery through the parser", func(t *testing.T) {
		userID := uuid.New()
		stored := &model.WebhookEvent{
			ProviderEventID: "evt_1",
			EventType:       "customer.subscription.updated",
			Status:          model.WebhookStatusFailed,
			Data:            model.JSONB{"id": "evt_1", "type": "customer.subscription.updated"},
		}

		event := subscriptionEvent("evt_1", userID, eventTime, &provider.SubscriptionSnapshot{
			ID:         "sub_1",
			CustomerID: "cus_1",
			Status:     "active",
		})

		mockProvider := new(MockBillingProvider)
		mockProvider.On("ParseEvent", mock.Anything).Return(event, nil)

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("MarkProcessed", mock.Anything, "evt_1").Return(nil)

		store := newFakeProfileStore()
		processor := newProcessorUnderTest(webhookRepo, store, newFakePlanCatalog(), mockProvider)

		result, err := processor.ReprocessStored(ctx, stored)

		assert.NoError(t, err)
		assert.Equal(t, usecase.OutcomeApplied, result.Outcome)

		profile, _ := store.Get(ctx, userID)
		assert.Equal(t, model.SubscriptionStatusActive, profile.SubscriptionStatus)
		webhookRepo.AssertExpectations(t)
	})

	t.Run("an unparseable stored delivery is marked failed", func(t *testing.T) {
		stored := &model.WebhookEvent{
			ProviderEventID: "evt_broken",
			EventType:       "customer.subscription.updated",
			Data:            model.JSONB{"id": "evt_broken"},
		}

		mockProvider := new(MockBillingProvider)
		mockProvider.On("ParseEvent", mock.Anything).Return(nil, &provider.ProviderError{
			Code:    "invalid_payload",
			Message: "cannot parse event",
		})

		webhookRepo := new(MockWebhookRepository)
		webhookRepo.On("MarkFailed", mock.Anything, "evt_broken", mock.Anything).Return(nil)

		processor := newProcessorUnderTest(webhookRepo, newFakeProfileStore(), newFakePlanCatalog(), mockProvider)

		result, err := processor.ReprocessStored(ctx, stored)

		assert.Error(t, err)
		assert.Nil(t, result)
		webhookRepo.AssertExpectations(t)
	})
}
