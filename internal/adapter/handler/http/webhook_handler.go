package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"github.com/wxmarkets/billing-service/internal/usecase"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	processor *usecase.EventProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(processor *usecase.EventProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		processor: processor,
		logger:    logger,
	}
}

// HandleWebhook handles POST /webhook.
//
// The status code steers the provider's redelivery: 200 acknowledges the
// event whether it was applied, dropped, or observed; 400 rejects a payload
// that will never verify; 5xx asks the provider to deliver it again.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		h.logger.Error("Error reading webhook body", zap.Error(err))
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "error reading request body"})
	}

	signature := c.Request().Header.Get("Stripe-Signature")

	result, err := h.processor.HandleDelivery(c.Request().Context(), body, signature)
	if err != nil {
		if provider.IsSignatureError(err) {
			h.logger.Error("Webhook signature verification failed", zap.Error(err))
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "signature verification failed"})
		}

		// The event is already stored; the retry worker will pick it up even
		// if the provider gives up on redelivery.
		h.logger.Error("Webhook processing failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "event processing failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"received": true,
		"outcome":  string(result.Outcome),
	})
}
