package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/middleware/auth"
	"github.com/wxmarkets/billing-service/internal/usecase"
	"go.uber.org/zap"
)

type SubscriptionHandler struct {
	subscriptionService *usecase.SubscriptionService
	logger              *zap.Logger
}

func NewSubscriptionHandler(subscriptionService *usecase.SubscriptionService, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger,
	}
}

// GetCurrentSubscription handles GET /api/v1/subscriptions/current
//
// The view is read from the local profile, never from a live provider call.
// A user who has never checked out gets the inactive default, not a 404.
func (h *SubscriptionHandler) GetCurrentSubscription(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	view, err := h.subscriptionService.GetSubscriptionView(c.Request().Context(), userID)
	if err != nil {
		h.logger.Error("failed to read subscription view",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read subscription"})
	}

	return c.JSON(http.StatusOK, view)
}

// CancelCurrentSubscription handles DELETE /api/v1/subscriptions/current
//
// Cancellation is scheduled at period end. The profile is updated by the
// resulting webhook event, so the response reflects the provider's answer,
// not a local write.
func (h *SubscriptionHandler) CancelCurrentSubscription(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	snapshot, err := h.subscriptionService.CancelCurrentSubscription(c.Request().Context(), userID)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNoActiveSubscription) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no active subscription"})
		}

		var provErr *provider.ProviderError
		if errors.As(err, &provErr) {
			h.logger.Error("provider rejected cancellation",
				zap.String("user_id", user.UserID),
				zap.Error(err))
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
		}

		h.logger.Error("failed to cancel subscription",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel subscription"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"status":               "cancellation scheduled",
		"cancel_at_period_end": snapshot.CancelAtPeriodEnd,
		"current_period_end":   snapshot.CurrentPeriodEnd,
	})
}
