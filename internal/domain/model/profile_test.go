package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wxmarkets/billing-service/internal/domain/model"
)

func TestNormalizeSubscriptionStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want model.SubscriptionStatus
	}{
		{"active", model.SubscriptionStatusActive},
		{"trialing", model.SubscriptionStatusTrialing},
		{"past_due", model.SubscriptionStatusInactive},
		{"unpaid", model.SubscriptionStatusInactive},
		{"canceled", model.SubscriptionStatusInactive},
		{"incomplete", model.SubscriptionStatusInactive},
		{"incomplete_expired", model.SubscriptionStatusInactive},
		{"paused", model.SubscriptionStatusInactive},
		{"", model.SubscriptionStatusInactive},
		{"something_new", model.SubscriptionStatusInactive},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, model.NormalizeSubscriptionStatus(tt.raw))
		})
	}
}

func TestProfile_HasCustomer(t *testing.T) {
	customerID := "cus_1"
	empty := ""

	assert.False(t, (&model.Profile{}).HasCustomer())
	assert.False(t, (&model.Profile{BillingCustomerID: &empty}).HasCustomer())
	assert.True(t, (&model.Profile{BillingCustomerID: &customerID}).HasCustomer())
}
