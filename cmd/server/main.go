package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/wxmarkets/billing-service/internal/config"
	"github.com/wxmarkets/billing-service/internal/infrastructure/database"
	grpcServer "github.com/wxmarkets/billing-service/internal/infrastructure/grpc"
	httpServer "github.com/wxmarkets/billing-service/internal/infrastructure/http"
	providerFactory "github.com/wxmarkets/billing-service/internal/infrastructure/provider"
	"github.com/wxmarkets/billing-service/internal/infrastructure/worker"
	"github.com/wxmarkets/billing-service/internal/usecase"
	pkglogger "github.com/wxmarkets/billing-service/pkg/logger"
	"github.com/wxmarkets/billing-service/pkg/messaging"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger, err := pkglogger.NewZapLogger(pkglogger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Output:      cfg.Log.Output,
		FilePath:    cfg.Log.FilePath,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize database connection
	db, err := database.NewConnection(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := database.Close(db, logger); err != nil {
			logger.Error("Failed to close database connection", zap.Error(err))
		}
	}()

	// Run database migrations
	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, logger)

	// Initialize billing provider
	factory := providerFactory.NewFactory(cfg, logger)
	billingProvider, err := factory.GetProviderFromString("")
	if err != nil {
		logger.Fatal("Failed to initialize billing provider", zap.Error(err))
	}

	// Optional notification transport. Reconciliation works without it; the
	// notification service degrades to a no-op on a nil client.
	var redisClient messaging.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = messaging.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, notifications disabled", zap.Error(err))
			redisClient = nil
		} else {
			defer redisClient.Close()
		}
	}

	// Wire usecases
	notifications := usecase.NewNotificationService(redisClient, logger)
	identity := usecase.NewIdentityResolver(repos.Profile, billingProvider, logger)
	reconciler := usecase.NewReconciler(repos.Profile, repos.Plan, billingProvider, identity, notifications, logger)
	planSync := usecase.NewPlanSyncService(repos.Plan, logger)
	processor := usecase.NewEventProcessor(repos.Webhook, reconciler, planSync, billingProvider, cfg.Worker.ClaimTTL, logger)
	checkout := usecase.NewCheckoutService(repos.Profile, repos.Plan, billingProvider, logger)
	subscription := usecase.NewSubscriptionService(repos.Profile, billingProvider, logger)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize servers
	grpcSrv := grpcServer.NewServer(cfg, logger)
	httpSrv := httpServer.NewServer(cfg, logger, repos, &httpServer.Services{
		Checkout:     checkout,
		Subscription: subscription,
		Processor:    processor,
	})

	// Background sweep for stored webhook events the provider gave up on
	var retryWorker *worker.RetryWorker
	if cfg.Worker.Enabled {
		retryWorker = worker.NewRetryWorker(repos.Webhook, processor, cfg.Worker, logger)
		retryWorker.Start(ctx)
	}

	// Start servers
	go func() {
		if err := grpcSrv.Start(); err != nil {
			logger.Fatal("Failed to start gRPC server", zap.Error(err))
		}
	}()

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down servers...")

	if retryWorker != nil {
		retryWorker.Stop()
	}

	// Shutdown servers
	if err := grpcSrv.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown gRPC server", zap.Error(err))
	}

	if err := httpSrv.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	logger.Info("Servers shut down successfully")
}
