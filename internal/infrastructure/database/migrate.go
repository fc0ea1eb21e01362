package database

import (
	"github.com/wxmarkets/billing-service/internal/domain/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate(db *gorm.DB, logger *zap.Logger) error {
	logger.Info("Running database migrations...")

	// Create extensions first
	if err := createExtensions(db); err != nil {
		logger.Error("Failed to create extensions", zap.Error(err))
		return err
	}

	// Create custom types BEFORE auto-migrate
	if err := createCustomTypes(db); err != nil {
		logger.Error("Failed to create custom types", zap.Error(err))
		return err
	}

	// Auto-migrate all models
	err := db.AutoMigrate(
		&model.Profile{},
		&model.WebhookEvent{},
		&model.BillingPlan{},
	)
	if err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return err
	}

	// Create custom indexes and constraints
	if err := createCustomIndexes(db); err != nil {
		logger.Error("Failed to create custom indexes", zap.Error(err))
		return err
	}

	logger.Info("Database migrations completed successfully")
	return nil
}

// createCustomIndexes creates custom indexes that GORM doesn't handle automatically
func createCustomIndexes(db *gorm.DB) error {
	// Partial index backing the retry-worker sweep: unfinished events ordered
	// by arrival.
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_billing_webhook_events_unfinished ON billing_webhook_events (created_at) WHERE status IN ('pending', 'processing', 'failed')`).Error; err != nil {
		return err
	}

	// Reverse lookup used by identity resolution when event metadata and
	// customer metadata both miss.
	if err := db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS unique_profile_billing_customer_id ON profiles (billing_customer_id) WHERE billing_customer_id IS NOT NULL`).Error; err != nil {
		return err
	}

	return nil
}

// createExtensions creates required PostgreSQL extensions
func createExtensions(db *gorm.DB) error {
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`).Error; err != nil {
		return err
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error; err != nil {
		return err
	}
	return nil
}

// createCustomTypes creates custom PostgreSQL types
func createCustomTypes(db *gorm.DB) error {
	// Check if subscription_status type exists
	var exists bool
	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'subscription_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE subscription_status AS ENUM ('inactive', 'trialing', 'active')`).Error; err != nil {
			return err
		}
	} else {
		// Databases created before trials shipped carry a two-value enum.
		var hasTrialing bool
		db.Raw(`SELECT EXISTS (
			SELECT 1 FROM pg_enum
			WHERE enumlabel = 'trialing'
			AND enumtypid = (SELECT oid FROM pg_type WHERE typname = 'subscription_status')
		)`).Scan(&hasTrialing)

		if !hasTrialing {
			// ALTER TYPE ADD VALUE cannot run inside a transaction block in
			// some PostgreSQL versions.
			if err := db.Exec(`ALTER TYPE subscription_status ADD VALUE IF NOT EXISTS 'trialing'`).Error; err != nil {
				_ = db.Exec(`COMMIT`).Error // Ignore error, might not be in a transaction
				if err := db.Exec(`ALTER TYPE subscription_status ADD VALUE IF NOT EXISTS 'trialing'`).Error; err != nil {
					return err
				}
			}
		}
	}

	// Check if webhook_status exists
	db.Raw(`SELECT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'webhook_status')`).Scan(&exists)
	if !exists {
		if err := db.Exec(`CREATE TYPE webhook_status AS ENUM ('pending', 'processing', 'completed', 'failed')`).Error; err != nil {
			return err
		}
	}

	return nil
}
