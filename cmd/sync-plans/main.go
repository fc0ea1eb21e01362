package main

import (
	"context"
	"log"

	"github.com/stripe/stripe-go/v79"
	"github.com/wxmarkets/billing-service/internal/config"
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/infrastructure/database"
	"github.com/wxmarkets/billing-service/internal/usecase"
	pkglogger "github.com/wxmarkets/billing-service/pkg/logger"
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

	// Initialize Stripe
	stripe.Key = cfg.Service.Stripe.SecretKey

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

	// Run migrations
	if err := database.Migrate(db, logger); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Initialize repositories
	repos := database.NewRepositories(db, logger)

	// Create plan sync service
	planSync := usecase.NewPlanSyncService(repos.Plan, logger)

	ctx := context.Background()

	productsSynced := 0
	if cfg.Service.Stripe.SecretKey != "" {
		productsSynced, err = syncStripePlans(ctx, planSync, logger)
		if err != nil {
			logger.Fatal("Failed to sync Stripe plans", zap.Error(err))
		}
	} else {
		logger.Warn("Stripe secret key not configured, skipping live sync")
	}

	seededPlans := 0
	if cfg.Service.PlansSeedFile != "" {
		logger.Info("Seeding plans from YAML",
			zap.String("path", cfg.Service.PlansSeedFile))

		plans, err := loadPlansFromYAML(cfg.Service.PlansSeedFile)
		if err != nil {
			logger.Fatal("Failed to load plans seed file", zap.Error(err))
		}

		for _, plan := range plans {
			if plan.Features == nil {
				plan.Features = make(model.Features)
			}
			if err := repos.Plan.Upsert(ctx, plan); err != nil {
				logger.Error("Failed to upsert seeded plan",
					zap.String("provider_price_id", plan.ProviderPriceID),
					zap.Error(err))
				continue
			}
			seededPlans++
		}
	}

	if seededPlans > 0 {
		logger.Info("Seed plans synced",
			zap.Int("plans_synced", seededPlans))
	}

	logger.Info("Initial sync completed",
		zap.Int("stripe_products_synced", productsSynced),
		zap.Int("seeded_plans", seededPlans))
}
