package model

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is the normalized local subscription state
type SubscriptionStatus string

const (
	SubscriptionStatusInactive SubscriptionStatus = "inactive"
	SubscriptionStatusTrialing SubscriptionStatus = "trialing"
	SubscriptionStatusActive   SubscriptionStatus = "active"
)

// Scan implements sql.Scanner interface
func (s *SubscriptionStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = SubscriptionStatus(v)
	case []byte:
		*s = SubscriptionStatus(v)
	default:
		*s = SubscriptionStatusInactive
	}
	return nil
}

// Value implements driver.Valuer interface
func (s SubscriptionStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// NormalizeSubscriptionStatus collapses a raw provider status into the local
// enum. Unrecognized or delinquent statuses (past_due, unpaid, canceled,
// incomplete, paused, anything unknown) map to inactive: a status this
// service does not recognize must never grant access.
func NormalizeSubscriptionStatus(raw string) SubscriptionStatus {
	switch raw {
	case "active":
		return SubscriptionStatusActive
	case "trialing":
		return SubscriptionStatusTrialing
	default:
		return SubscriptionStatusInactive
	}
}

// Profile is the billing-visible state for one user. It is the single local
// source of truth the rest of the product reads; only the reconciler and the
// checkout flow write to it.
type Profile struct {
	UserID                uuid.UUID          `gorm:"type:uuid;primaryKey" json:"user_id"`
	Email                 string             `gorm:"size:255" json:"email"`
	BillingCustomerID     *string            `gorm:"unique;size:100" json:"billing_customer_id,omitempty"`
	BillingSubscriptionID *string            `gorm:"size:100;index" json:"billing_subscription_id,omitempty"`
	SubscriptionStatus    SubscriptionStatus `gorm:"type:subscription_status;not null;default:'inactive'" json:"subscription_status"`
	Plan                  *string            `gorm:"size:100" json:"plan,omitempty"`
	CurrentPeriodEnd      *time.Time         `json:"current_period_end,omitempty"`
	TrialUsed             bool               `gorm:"not null;default:false" json:"trial_used"`
	TrialStartedAt        *time.Time         `json:"trial_started_at,omitempty"`
	TrialEndsAt           *time.Time         `json:"trial_ends_at,omitempty"`
	LastEventTime         *time.Time         `gorm:"index" json:"last_event_time,omitempty"`
	CreatedAt             time.Time          `gorm:"default:now()" json:"created_at"`
	UpdatedAt             time.Time          `gorm:"default:now()" json:"updated_at"`
}

// HasCustomer reports whether a provider customer is linked.
func (p *Profile) HasCustomer() bool {
	return p.BillingCustomerID != nil && *p.BillingCustomerID != ""
}

// TableName specifies the table name for GORM
func (Profile) TableName() string {
	return "profiles"
}
