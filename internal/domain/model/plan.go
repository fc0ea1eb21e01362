package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Plan type constants
const (
	PlanTypeSubscription = "subscription"
	PlanTypeOneTime      = "one_time"
)

// BillingPlan is a locally mirrored provider price. Checkout validates
// against this catalog instead of listing prices from the provider on every
// request; cmd/sync-plans and price/product webhook events keep it fresh.
type BillingPlan struct {
	ID                int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderPriceID   string    `gorm:"column:provider_price_id;unique;not null;size:100" json:"provider_price_id"`
	ProviderProductID string    `gorm:"column:provider_product_id;not null;size:100" json:"provider_product_id"`
	DisplayName       string    `gorm:"not null;size:200" json:"display_name"`
	Description       string    `gorm:"size:500" json:"description"`
	Type              string    `gorm:"not null;size:20;default:'subscription'" json:"type"` // 'subscription' or 'one_time'
	Amount            int64     `gorm:"not null;default:0" json:"amount"`                    // minor currency units
	Currency          string    `gorm:"size:10" json:"currency"`
	Interval          string    `gorm:"size:20" json:"interval"`
	IntervalCount     int64     `gorm:"default:1" json:"interval_count"`
	TrialPeriodDays   int64     `gorm:"default:0" json:"trial_period_days"`
	Features          Features  `gorm:"type:jsonb;default:'{}'" json:"features"`
	SortOrder         int       `gorm:"default:0" json:"sort_order"`
	IsActive          bool      `gorm:"default:true" json:"is_active"`
	CreatedAt         time.Time `gorm:"default:now()" json:"created_at"`
	UpdatedAt         time.Time `gorm:"default:now()" json:"updated_at"`
}

// AmountDecimal returns the plan price in major currency units.
// Zero-decimal currencies are not carried by this catalog.
func (p *BillingPlan) AmountDecimal() decimal.Decimal {
	return decimal.NewFromInt(p.Amount).Div(decimal.NewFromInt(100))
}

// IsSubscription reports whether the plan can be checked out as a subscription.
func (p *BillingPlan) IsSubscription() bool {
	return p.Type == PlanTypeSubscription
}

// Features represents plan features as JSONB
type Features map[string]interface{}

// Value implements driver.Valuer interface
func (f Features) Value() (driver.Value, error) {
	return json.Marshal(f)
}

// Scan implements sql.Scanner interface
func (f *Features) Scan(src interface{}) error {
	if src == nil {
		*f = make(Features)
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		*f = make(Features)
		return nil
	}
}

// TableName specifies the table name for GORM
func (BillingPlan) TableName() string {
	return "billing_plans"
}
