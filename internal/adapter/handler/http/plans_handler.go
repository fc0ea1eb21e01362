package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	"github.com/wxmarkets/billing-service/internal/domain/entity"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"go.uber.org/zap"
)

type PlansHandler struct {
	planRepo repository.PlanRepository
	logger   *zap.Logger
}

func NewPlansHandler(planRepo repository.PlanRepository, logger *zap.Logger) *PlansHandler {
	return &PlansHandler{
		planRepo: planRepo,
		logger:   logger,
	}
}

// GetPlans handles GET /api/v1/plans
//
// Plans are served from the local catalog mirror, not from a live provider
// listing. cmd/sync-plans and price/product webhook events keep it current.
func (h *PlansHandler) GetPlans(c echo.Context) error {
	plans, err := h.planRepo.GetByType(c.Request().Context(), model.PlanTypeSubscription)
	if err != nil {
		h.logger.Error("Failed to load plan catalog", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load plans"})
	}

	result := make([]entity.Plan, 0, len(plans))
	for _, p := range plans {
		result = append(result, entity.Plan{
			ID:              p.ProviderPriceID,
			Name:            p.DisplayName,
			Description:     p.Description,
			Amount:          p.Amount,
			AmountDisplay:   p.AmountDecimal().StringFixed(2),
			Currency:        p.Currency,
			Interval:        p.Interval,
			IntervalCount:   p.IntervalCount,
			TrialPeriodDays: p.TrialPeriodDays,
		})
	}

	return c.JSON(http.StatusOK, echo.Map{"plans": result})
}
