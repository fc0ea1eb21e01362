package http

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	handlers "github.com/wxmarkets/billing-service/internal/adapter/handler/http"
	"github.com/wxmarkets/billing-service/internal/config"
	"github.com/wxmarkets/billing-service/internal/infrastructure/database"
	"github.com/wxmarkets/billing-service/internal/middleware/auth"
	"github.com/wxmarkets/billing-service/internal/usecase"
	pkgerrors "github.com/wxmarkets/billing-service/pkg/errors"
	pkglogger "github.com/wxmarkets/billing-service/pkg/logger"
	"go.uber.org/zap"
)

// Services groups the usecases served over HTTP. main wires them once so the
// webhook route and the retry worker share a single event processor.
type Services struct {
	Checkout     *usecase.CheckoutService
	Subscription *usecase.SubscriptionService
	Processor    *usecase.EventProcessor
}

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	echo     *echo.Echo
	repos    *database.Repositories
	services *Services
}

// CustomValidator adapts go-playground/validator to echo's c.Validate.
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

func NewServer(cfg *config.Config, logger *zap.Logger, repos *database.Repositories, services *Services) *Server {
	e := echo.New()

	pkglogger.WithEchoLogger(e, logger)
	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = newHTTPErrorHandler(e, logger)

	// Middleware
	e.Use(pkglogger.NewEchoRequestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{cfg.Service.ClientURL},
		AllowMethods: []string{echo.GET, echo.POST, echo.PUT, echo.DELETE},
	}))

	return &Server{
		config:   cfg,
		logger:   logger,
		echo:     e,
		repos:    repos,
		services: services,
	}
}

// newHTTPErrorHandler maps errors that escape a handler (route misses,
// middleware failures, AppError returns) onto the shared code table before
// delegating to echo's default rendering.
func newHTTPErrorHandler(e *echo.Echo, logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		httpErr := pkgerrors.ToHTTPError(err)
		if httpErr.Code >= http.StatusInternalServerError {
			pkgerrors.LogError(logger, err, "Unhandled request error",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path))
		}
		e.DefaultHTTPErrorHandler(httpErr, c)
	}
}

func (s *Server) Start() error {
	// Setup routes
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.config.Server.HTTP.Host, s.config.Server.HTTP.Port)
	s.logger.Info("Starting HTTP server", zap.String("address", addr))

	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "healthy",
			"service": s.config.Service.Name,
		})
	})

	// Initialize handlers
	plansHandler := handlers.NewPlansHandler(s.repos.Plan, s.logger)
	checkoutHandler := handlers.NewCheckoutHandler(s.services.Checkout, s.services.Subscription, s.config.Service, s.logger)
	subscriptionHandler := handlers.NewSubscriptionHandler(s.services.Subscription, s.logger)
	webhookHandler := handlers.NewWebhookHandler(s.services.Processor, s.logger)

	// JWT middleware configuration
	jwtConfig := auth.JWTConfig{
		Secret: s.config.JWT.Secret,
		Logger: s.logger,
		SkipPaths: []string{
			"/health",
			"/webhook",
			"/api/v1/plans",
		},
	}

	// API v1 routes
	v1 := s.echo.Group("/api/v1")

	// Public routes (no authentication required)
	// Plans & Pricing - public for browsing
	v1.GET("/plans", plansHandler.GetPlans)

	// Protected routes (require JWT authentication)
	protected := v1.Group("", auth.JWTMiddleware(jwtConfig))

	// Checkout & portal
	protected.POST("/checkout", checkoutHandler.CreateCheckout)
	protected.POST("/checkout/portal", checkoutHandler.CreatePortalSession)

	// Subscriptions - read and cancel the caller's current subscription
	subscriptions := protected.Group("/subscriptions")
	subscriptions.GET("/current", subscriptionHandler.GetCurrentSubscription)
	subscriptions.DELETE("/current", subscriptionHandler.CancelCurrentSubscription)

	// Webhook route (outside API versioning)
	s.echo.POST("/webhook", webhookHandler.HandleWebhook)
}
