package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/wxmarkets/billing-service/internal/config"
	domainErrors "github.com/wxmarkets/billing-service/internal/domain/errors"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/middleware/auth"
	"github.com/wxmarkets/billing-service/internal/usecase"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	checkoutService     *usecase.CheckoutService
	subscriptionService *usecase.SubscriptionService
	serviceConfig       config.ServiceConfig
	logger              *zap.Logger
}

func NewCheckoutHandler(
	checkoutService *usecase.CheckoutService,
	subscriptionService *usecase.SubscriptionService,
	serviceConfig config.ServiceConfig,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		checkoutService:     checkoutService,
		subscriptionService: subscriptionService,
		serviceConfig:       serviceConfig,
		logger:              logger,
	}
}

type createCheckoutRequest struct {
	PlanID     string `json:"plan_id" validate:"required"`
	WantsTrial bool   `json:"wants_trial"`
}

type createCheckoutResponse struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
}

// CreateCheckout handles POST /api/v1/checkout
func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	var req createCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan_id is required"})
	}

	session, err := h.checkoutService.StartCheckout(c.Request().Context(), &usecase.StartCheckoutRequest{
		UserID:     userID,
		Email:      user.Email,
		PlanID:     req.PlanID,
		WantsTrial: req.WantsTrial,
		SuccessURL: h.serviceConfig.ClientURL + h.serviceConfig.Checkout.SuccessPath,
		CancelURL:  h.serviceConfig.ClientURL + h.serviceConfig.Checkout.CancelPath,
	})
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrPlanNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "plan not found"})
		case errors.Is(err, domainErrors.ErrTrialAlreadyUsed):
			return c.JSON(http.StatusConflict, echo.Map{"error": "trial already used"})
		}

		var provErr *provider.ProviderError
		if errors.As(err, &provErr) {
			h.logger.Error("provider rejected checkout session",
				zap.String("user_id", user.UserID),
				zap.String("plan_id", req.PlanID),
				zap.Error(err))
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
		}

		h.logger.Error("failed to start checkout",
			zap.String("user_id", user.UserID),
			zap.String("plan_id", req.PlanID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start checkout"})
	}

	return c.JSON(http.StatusCreated, createCheckoutResponse{
		ID:          session.ID,
		CheckoutURL: session.URL,
	})
}

// CreatePortalSession handles POST /api/v1/checkout/portal
func (h *CheckoutHandler) CreatePortalSession(c echo.Context) error {
	user, err := auth.GetUserFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	userID, err := uuid.Parse(user.UserID)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user ID"})
	}

	returnURL := h.serviceConfig.ClientURL + h.serviceConfig.Checkout.PortalReturnPath

	portal, err := h.subscriptionService.CreatePortalSession(c.Request().Context(), userID, returnURL)
	if err != nil {
		if errors.Is(err, domainErrors.ErrNoCustomer) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "no billing account for user"})
		}

		var provErr *provider.ProviderError
		if errors.As(err, &provErr) {
			h.logger.Error("provider rejected portal session",
				zap.String("user_id", user.UserID),
				zap.Error(err))
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
		}

		h.logger.Error("failed to create portal session",
			zap.String("user_id", user.UserID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create portal session"})
	}

	return c.JSON(http.StatusOK, echo.Map{"url": portal.URL})
}
