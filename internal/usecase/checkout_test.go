package usecase_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/usecase"
)

func proPlan() *model.BillingPlan {
	return &model.BillingPlan{
		ProviderPriceID:   "price_pro_monthly",
		ProviderProductID: "prod_pro",
		DisplayName:       "Pro Monthly",
		Type:              model.PlanTypeSubscription,
		TrialPeriodDays:   14,
		IsActive:          true,
	}
}

func TestCheckoutService_StartCheckout(t *testing.T) {
	ctx := context.Background()

	t.Run("creates a customer and opens a session", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		mockProvider := new(MockBillingProvider)
		mockProvider.On("CreateCustomer", mock.Anything, mock.MatchedBy(func(req *provider.CreateCustomerRequest) bool {
			return req.UserID == userID.String() && req.Email == "user@example.com"
		})).Return(&provider.Customer{ID: "cus_1"}, nil)
		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req *provider.CreateCheckoutSessionRequest) bool {
			return req.CustomerID == "cus_1" &&
				req.PriceID == "price_pro_monthly" &&
				req.TrialPeriodDays == 14 &&
				!req.WantsTrial
		})).Return(&provider.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil)

		service := usecase.NewCheckoutService(store, newFakePlanCatalog(proPlan()), mockProvider, zap.NewNop())

		session, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			Email:      "user@example.com",
			PlanID:     "price_pro_monthly",
			SuccessURL: "https://app.example.com/success",
			CancelURL:  "https://app.example.com/cancel",
		})

		assert.NoError(t, err)
		assert.Equal(t, "cs_1", session.ID)
		assert.Equal(t, "https://pay.example.com/cs_1", session.URL)

		profile, _ := store.Get(ctx, userID)
		assert.Equal(t, "cus_1", *profile.BillingCustomerID)
		mockProvider.AssertExpectations(t)
	})

	t.Run("reuses an already linked customer", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		_, err := store.GetOrCreate(ctx, userID, "user@example.com")
		assert.NoError(t, err)
		attached, err := store.AttachCustomerID(ctx, userID, "cus_existing")
		assert.NoError(t, err)
		assert.True(t, attached)

		mockProvider := new(MockBillingProvider)
		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.MatchedBy(func(req *provider.CreateCheckoutSessionRequest) bool {
			return req.CustomerID == "cus_existing"
		})).Return(&provider.CheckoutSession{ID: "cs_2", URL: "https://pay.example.com/cs_2"}, nil)

		service := usecase.NewCheckoutService(store, newFakePlanCatalog(proPlan()), mockProvider, zap.NewNop())

		_, err = service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID: userID,
			Email:  "user@example.com",
			PlanID: "price_pro_monthly",
		})

		assert.NoError(t, err)
		mockProvider.AssertExpectations(t)
		mockProvider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("rejects a plan the catalog does not know", func(t *testing.T) {
		store := newFakeProfileStore()
		service := usecase.NewCheckoutService(store, newFakePlanCatalog(), new(MockBillingProvider), zap.NewNop())

		_, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID: uuid.New(),
			PlanID: "price_nope",
		})

		assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)
	})

	t.Run("rejects an inactive plan", func(t *testing.T) {
		retired := proPlan()
		retired.IsActive = false
		service := usecase.NewCheckoutService(newFakeProfileStore(), newFakePlanCatalog(retired), new(MockBillingProvider), zap.NewNop())

		_, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID: uuid.New(),
			PlanID: retired.ProviderPriceID,
		})

		assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)
	})

	t.Run("rejects a one-time plan", func(t *testing.T) {
		oneTime := &model.BillingPlan{
			ProviderPriceID: "price_lifetime",
			DisplayName:     "Lifetime",
			Type:            model.PlanTypeOneTime,
			IsActive:        true,
		}
		service := usecase.NewCheckoutService(newFakeProfileStore(), newFakePlanCatalog(oneTime), new(MockBillingProvider), zap.NewNop())

		_, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID: uuid.New(),
			PlanID: "price_lifetime",
		})

		assert.ErrorIs(t, err, domainErrors.ErrPlanNotFound)
	})
}

func TestCheckoutService_TrialGate(t *testing.T) {
	ctx := context.Background()

	newTrialService := func(store *fakeProfileStore) (*usecase.CheckoutService, *MockBillingProvider) {
		mockProvider := new(MockBillingProvider)
		mockProvider.On("CreateCustomer", mock.Anything, mock.Anything).Return(&provider.Customer{ID: "cus_1"}, nil)
		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(&provider.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil)
		return usecase.NewCheckoutService(store, newFakePlanCatalog(proPlan()), mockProvider, zap.NewNop()), mockProvider
	}

	t.Run("the first trial checkout claims the trial", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		service, _ := newTrialService(store)

		session, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			PlanID:     "price_pro_monthly",
			WantsTrial: true,
		})

		assert.NoError(t, err)
		assert.NotNil(t, session)

		profile, _ := store.Get(ctx, userID)
		assert.True(t, profile.TrialUsed)
	})

	t.Run("a second trial checkout is refused", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		service, mockProvider := newTrialService(store)

		_, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			PlanID:     "price_pro_monthly",
			WantsTrial: true,
		})
		assert.NoError(t, err)

		_, err = service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			PlanID:     "price_pro_monthly",
			WantsTrial: true,
		})

		assert.ErrorIs(t, err, domainErrors.ErrTrialAlreadyUsed)
		mockProvider.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
	})

	t.Run("a trial spent by a webhook event blocks checkout too", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		_, err := store.GetOrCreate(ctx, userID, "")
		assert.NoError(t, err)
		claimed, err := store.ClaimTrial(ctx, userID)
		assert.NoError(t, err)
		assert.True(t, claimed)

		service, _ := newTrialService(store)

		_, err = service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			PlanID:     "price_pro_monthly",
			WantsTrial: true,
		})

		assert.ErrorIs(t, err, domainErrors.ErrTrialAlreadyUsed)
	})

	t.Run("a paid checkout is allowed after the trial is spent", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		service, _ := newTrialService(store)

		_, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			PlanID:     "price_pro_monthly",
			WantsTrial: true,
		})
		assert.NoError(t, err)

		session, err := service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
			UserID:     userID,
			PlanID:     "price_pro_monthly",
			WantsTrial: false,
		})

		assert.NoError(t, err)
		assert.NotNil(t, session)
	})
}

func TestCheckoutService_ConcurrentCheckouts(t *testing.T) {
	ctx := context.Background()
	const goroutines = 8

	t.Run("concurrent checkouts settle on one customer", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		mockProvider := new(MockBillingProvider)
		// The provider sends an idempotency key per user, so every call
		// yields the same customer.
		mockProvider.On("CreateCustomer", mock.Anything, mock.Anything).Return(&provider.Customer{ID: "cus_1"}, nil)
		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(&provider.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil)

		service := usecase.NewCheckoutService(store, newFakePlanCatalog(proPlan()), mockProvider, zap.NewNop())

		var wg sync.WaitGroup
		errs := make([]error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
					UserID: userID,
					PlanID: "price_pro_monthly",
				})
			}(i)
		}
		wg.Wait()

		for i := 0; i < goroutines; i++ {
			assert.NoError(t, errs[i])
		}

		profile, _ := store.Get(ctx, userID)
		assert.Equal(t, "cus_1", *profile.BillingCustomerID)
	})

	t.Run("concurrent trial checkouts grant exactly one trial", func(t *testing.T) {
		userID := uuid.New()
		store := newFakeProfileStore()
		mockProvider := new(MockBillingProvider)
		mockProvider.On("CreateCustomer", mock.Anything, mock.Anything).Return(&provider.Customer{ID: "cus_1"}, nil)
		mockProvider.On("CreateCheckoutSession", mock.Anything, mock.Anything).Return(&provider.CheckoutSession{ID: "cs_1", URL: "https://pay.example.com/cs_1"}, nil)

		service := usecase.NewCheckoutService(store, newFakePlanCatalog(proPlan()), mockProvider, zap.NewNop())

		var wg sync.WaitGroup
		errs := make([]error, goroutines)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = service.StartCheckout(ctx, &usecase.StartCheckoutRequest{
					UserID:     userID,
					PlanID:     "price_pro_monthly",
					WantsTrial: true,
				})
			}(i)
		}
		wg.Wait()

		granted := 0
		for i := 0; i < goroutines; i++ {
			if errs[i] == nil {
				granted++
			} else {
				assert.ErrorIs(t, errs[i], domainErrors.ErrTrialAlreadyUsed)
			}
		}
		assert.Equal(t, 1, granted)

		profile, _ := store.Get(ctx, userID)
		assert.True(t, profile.TrialUsed)
	})
}
