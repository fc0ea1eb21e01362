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
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/usecase"
)

func identityEvent(metadataUserID, customerID string) *provider.ChangeEvent {
	return &provider.ChangeEvent{
		ID:             "evt_1",
		Type:           "customer.subscription.updated",
		Kind:           provider.EventKindSubscriptionChange,
		OccurredAt:     time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
		CustomerID:     customerID,
		MetadataUserID: metadataUserID,
	}
}

func TestIdentityResolver_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("event metadata wins without provider calls", func(t *testing.T) {
		userID := uuid.New()
		mockProvider := new(MockBillingProvider)
		resolver := usecase.NewIdentityResolver(newFakeProfileStore(), mockProvider, zap.NewNop())

		resolved, err := resolver.Resolve(ctx, identityEvent(userID.String(), "cus_1"))

		assert.NoError(t, err)
		assert.Equal(t, userID, resolved)
		mockProvider.AssertNotCalled(t, "GetCustomer", mock.Anything, mock.Anything)
	})

	t.Run("malformed metadata falls through to the customer", func(t *testing.T) {
		userID := uuid.New()
		mockProvider := new(MockBillingProvider)
		mockProvider.On("GetCustomer", mock.Anything, "cus_1").Return(&provider.Customer{
			ID:       "cus_1",
			Metadata: map[string]string{"user_id": userID.String()},
		}, nil)

		resolver := usecase.NewIdentityResolver(newFakeProfileStore(), mockProvider, zap.NewNop())

		resolved, err := resolver.Resolve(ctx, identityEvent("not-a-uuid", "cus_1"))

		assert.NoError(t, err)
		assert.Equal(t, userID, resolved)
		mockProvider.AssertExpectations(t)
	})

	t.Run("the reverse index resolves and backfills the customer", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		_, err := store.GetOrCreate(ctx, userID, "user@example.com")
		assert.NoError(t, err)
		_, err = store.AttachCustomerID(ctx, userID, "cus_1")
		assert.NoError(t, err)

		mockProvider := new(MockBillingProvider)
		mockProvider.On("GetCustomer", mock.Anything, "cus_1").Return(&provider.Customer{ID: "cus_1"}, nil)
		mockProvider.On("UpdateCustomerMetadata", mock.Anything, "cus_1", map[string]string{
			"user_id": userID.String(),
		}).Return(nil)

		resolver := usecase.NewIdentityResolver(store, mockProvider, zap.NewNop())

		resolved, err := resolver.Resolve(ctx, identityEvent("", "cus_1"))

		assert.NoError(t, err)
		assert.Equal(t, userID, resolved)
		mockProvider.AssertExpectations(t)
	})

	t.Run("a deleted provider customer still resolves locally", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		_, err := store.GetOrCreate(ctx, userID, "")
		assert.NoError(t, err)
		_, err = store.AttachCustomerID(ctx, userID, "cus_gone")
		assert.NoError(t, err)

		mockProvider := new(MockBillingProvider)
		mockProvider.On("GetCustomer", mock.Anything, "cus_gone").Return(nil, &provider.ProviderError{
			Code:    "resource_missing",
			Message: "no such customer",
		})
		// The backfill fails against a deleted customer; resolution stands.
		mockProvider.On("UpdateCustomerMetadata", mock.Anything, "cus_gone", mock.Anything).Return(&provider.ProviderError{
			Code:    "resource_missing",
			Message: "no such customer",
		})

		resolver := usecase.NewIdentityResolver(store, mockProvider, zap.NewNop())

		resolved, err := resolver.Resolve(ctx, identityEvent("", "cus_gone"))

		assert.NoError(t, err)
		assert.Equal(t, userID, resolved)
	})

	t.Run("a provider outage is an error, not a miss", func(t *testing.T) {
		mockProvider := new(MockBillingProvider)
		mockProvider.On("GetCustomer", mock.Anything, "cus_1").Return(nil, &provider.ProviderError{
			Code:    "api_error",
			Message: "provider is down",
		})

		resolver := usecase.NewIdentityResolver(newFakeProfileStore(), mockProvider, zap.NewNop())

		_, err := resolver.Resolve(ctx, identityEvent("", "cus_1"))

		assert.Error(t, err)
		assert.NotErrorIs(t, err, domainErrors.ErrUnresolvableIdentity)
	})

	t.Run("every source missing is unresolvable", func(t *testing.T) {
		mockProvider := new(MockBillingProvider)
		mockProvider.On("GetCustomer", mock.Anything, "cus_unknown").Return(&provider.Customer{ID: "cus_unknown"}, nil)

		resolver := usecase.NewIdentityResolver(newFakeProfileStore(), mockProvider, zap.NewNop())

		_, err := resolver.Resolve(ctx, identityEvent("", "cus_unknown"))

		assert.ErrorIs(t, err, domainErrors.ErrUnresolvableIdentity)
	})

	t.Run("an event without any identity is unresolvable", func(t *testing.T) {
		resolver := usecase.NewIdentityResolver(newFakeProfileStore(), new(MockBillingProvider), zap.NewNop())

		_, err := resolver.Resolve(ctx, identityEvent("", ""))

		assert.ErrorIs(t, err, domainErrors.ErrUnresolvableIdentity)
	})

	t.Run("the nil uuid counts as a miss", func(t *testing.T) {
		resolver := usecase.NewIdentityResolver(newFakeProfileStore(), new(MockBillingProvider), zap.NewNop())

		_, err := resolver.Resolve(ctx, identityEvent(uuid.Nil.String(), ""))

		assert.ErrorIs(t, err, domainErrors.ErrUnresolvableIdentity)
	})
}
