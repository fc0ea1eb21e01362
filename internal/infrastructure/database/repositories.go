package database

import (
	"github.com/wxmarkets/billing-service/internal/adapter/repository"
	domainRepo "github.com/wxmarkets/billing-service/internal/domain/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Repositories holds all repository instances
type Repositories struct {
	Profile domainRepo.ProfileRepository
	Webhook repository.WebhookRepository
	Plan    repository.PlanRepository
}

// NewRepositories creates new repository instances with database connection
func NewRepositories(db *gorm.DB, logger *zap.Logger) *Repositories {
	return &Repositories{
		Profile: repository.NewProfileRepository(db, logger),
		Webhook: repository.NewWebhookRepository(db, logger),
		Plan:    repository.NewPlanRepository(db, logger),
	}
}
