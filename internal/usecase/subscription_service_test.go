package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	domainRepo "github.com/wxmarkets/billing-service/internal/domain/repository"
	"github.com/wxmarkets/billing-service/internal/usecase"
)

// seedActiveProfile writes an active subscription into the store the same way
// a reconciled event would.
func seedActiveProfile(t *testing.T, store *fakeProfileStore, userID uuid.UUID, customerID string) {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetOrCreate(ctx, userID, "user@example.com")
	assert.NoError(t, err)
	if customerID != "" {
		_, err = store.AttachCustomerID(ctx, userID, customerID)
		assert.NoError(t, err)
	}

	subID := "sub_1"
	plan := "Pro Monthly"
	periodEnd := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	err = store.CompareAndSet(ctx, userID, nil, domainRepo.ProfileUpdate{
		Status:           model.SubscriptionStatusActive,
		EventTime:        time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		SubscriptionID:   &subID,
		Plan:             &plan,
		CurrentPeriodEnd: &periodEnd,
	})
	assert.NoError(t, err)
}

func TestSubscriptionService_GetSubscriptionView(t *testing.T) {
	ctx := context.Background()

	t.Run("a user without a profile reads as inactive", func(t *testing.T) {
		mockProvider := new(MockBillingProvider)
		service := usecase.NewSubscriptionService(newFakeProfileStore(), mockProvider, zap.NewNop())

		view, err := service.GetSubscriptionView(ctx, uuid.New())

		assert.NoError(t, err)
		assert.Equal(t, "inactive", view.Status)
		assert.Nil(t, view.Plan)
		assert.False(t, view.TrialUsed)
	})

	t.Run("reads come from the local store, never the provider", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		seedActiveProfile(t, store, userID, "cus_1")

		mockProvider := new(MockBillingProvider)
		service := usecase.NewSubscriptionService(store, mockProvider, zap.NewNop())

		view, err := service.GetSubscriptionView(ctx, userID)

		assert.NoError(t, err)
		assert.Equal(t, "active", view.Status)
		assert.Equal(t, "Pro Monthly", *view.Plan)
		assert.Equal(t, "sub_1", *view.SubscriptionID)
		assert.NotNil(t, view.CurrentPeriodEnd)
		mockProvider.AssertNotCalled(t, "GetSubscription", mock.Anything, mock.Anything)
	})
}

func TestSubscriptionService_CreatePortalSession(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a linked customer", func(t *testing.T) {
		service := usecase.NewSubscriptionService(newFakeProfileStore(), new(MockBillingProvider), zap.NewNop())

		_, err := service.CreatePortalSession(ctx, uuid.New(), "https://app.example.com/billing")

		assert.ErrorIs(t, err, domainErrors.ErrNoCustomer)
	})

	t.Run("opens a portal for the linked customer", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		seedActiveProfile(t, store, userID, "cus_1")

		mockProvider := new(MockBillingProvider)
		mockProvider.On("CreatePortalSession", mock.Anything, "cus_1", "https://app.example.com/billing").
			Return(&provider.PortalSession{ID: "bps_1", URL: "https://portal.example.com/bps_1"}, nil)

		service := usecase.NewSubscriptionService(store, mockProvider, zap.NewNop())

		session, err := service.CreatePortalSession(ctx, userID, "https://app.example.com/billing")

		assert.NoError(t, err)
		assert.Equal(t, "https://portal.example.com/bps_1", session.URL)
		mockProvider.AssertExpectations(t)
	})
}

func TestSubscriptionService_CancelCurrentSubscription(t *testing.T) {
	ctx := context.Background()

	t.Run("requires an active subscription", func(t *testing.T) {
		service := usecase.NewSubscriptionService(newFakeProfileStore(), new(MockBillingProvider), zap.NewNop())

		_, err := service.CancelCurrentSubscription(ctx, uuid.New())

		assert.ErrorIs(t, err, domainErrors.ErrNoActiveSubscription)
	})

	t.Run("an inactive profile cannot cancel", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		_, err := store.GetOrCreate(ctx, userID, "")
		assert.NoError(t, err)

		// The profile keeps the subscription id of a dead subscription.
		subID := "sub_old"
		err = store.CompareAndSet(ctx, userID, nil, domainRepo.ProfileUpdate{
			Status:         model.SubscriptionStatusInactive,
			EventTime:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
			SubscriptionID: &subID,
		})
		assert.NoError(t, err)

		service := usecase.NewSubscriptionService(store, new(MockBillingProvider), zap.NewNop())

		_, err = service.CancelCurrentSubscription(ctx, userID)

		assert.ErrorIs(t, err, domainErrors.ErrNoActiveSubscription)
	})

	t.Run("schedules cancellation without writing the profile", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		seedActiveProfile(t, store, userID, "cus_1")

		periodEnd := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
		mockProvider := new(MockBillingProvider)
		mockProvider.On("CancelSubscription", mock.Anything, "sub_1").Return(&provider.SubscriptionSnapshot{
			ID:                "sub_1",
			CustomerID:        "cus_1",
			Status:            "active",
			CancelAtPeriodEnd: true,
			CurrentPeriodEnd:  &periodEnd,
		}, nil)

		service := usecase.NewSubscriptionService(store, mockProvider, zap.NewNop())

		snapshot, err := service.CancelCurrentSubscription(ctx, userID)

		assert.NoError(t, err)
		assert.True(t, snapshot.CancelAtPeriodEnd)

		// The change lands through the webhook pipeline, not here.
		profile, _ := store.Get(ctx, userID)
		assert.Equal(t, model.SubscriptionStatusActive, profile.SubscriptionStatus)
		mockProvider.AssertExpectations(t)
	})
}
