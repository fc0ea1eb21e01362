package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/wxmarkets/billing-service/internal/domain/model"
	"gopkg.in/yaml.v3"
)

type plansSeedFile struct {
	Plans []planSeedEntry `yaml:"plans"`
}

type planSeedEntry struct {
	ProviderPriceID   string                 `yaml:"provider_price_id"`
	ProviderProductID string                 `yaml:"provider_product_id"`
	DisplayName       string                 `yaml:"display_name"`
	Description       string                 `yaml:"description"`
	Type              string                 `yaml:"type"`
	Amount            int64                  `yaml:"amount"`
	Currency          string                 `yaml:"currency"`
	Interval          string                 `yaml:"interval"`
	IntervalCount     int64                  `yaml:"interval_count"`
	TrialPeriodDays   int64                  `yaml:"trial_period_days"`
	Features          map[string]interface{} `yaml:"features"`
	SortOrder         int                    `yaml:"sort_order"`
	IsActive          *bool                  `yaml:"is_active"`
}

// loadPlansFromYAML reads a seed catalog. Environments without a reachable
// provider (local dev, CI) get their plans from here instead of a live sync.
func loadPlansFromYAML(path string) ([]*model.BillingPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans seed file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var file plansSeedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal plans seed yaml: %w", err)
	}

	plans := make([]*model.BillingPlan, 0, len(file.Plans))
	for i, entry := range file.Plans {
		if entry.ProviderPriceID == "" {
			return nil, fmt.Errorf("plans[%d]: provider_price_id is required", i)
		}
		if entry.ProviderProductID == "" {
			return nil, fmt.Errorf("plans[%d]: provider_product_id is required", i)
		}
		if entry.DisplayName == "" {
			return nil, fmt.Errorf("plans[%d]: display_name is required", i)
		}

		planType := entry.Type
		if planType == "" {
			planType = model.PlanTypeSubscription
		}

		intervalCount := entry.IntervalCount
		if intervalCount == 0 && planType == model.PlanTypeSubscription {
			intervalCount = 1
		}

		isActive := true
		if entry.IsActive != nil {
			isActive = *entry.IsActive
		}

		features := make(model.Features, len(entry.Features))
		for k, v := range entry.Features {
			features[k] = v
		}

		currency := strings.ToLower(strings.TrimSpace(entry.Currency))
		if currency == "" {
			currency = "usd"
		}

		plans = append(plans, &model.BillingPlan{
			ProviderPriceID:   entry.ProviderPriceID,
			ProviderProductID: entry.ProviderProductID,
			DisplayName:       entry.DisplayName,
			Description:       entry.Description,
			Type:              planType,
			Amount:            entry.Amount,
			Currency:          currency,
			Interval:          entry.Interval,
			IntervalCount:     intervalCount,
			TrialPeriodDays:   entry.TrialPeriodDays,
			Features:          features,
			SortOrder:         entry.SortOrder,
			IsActive:          isActive,
		})
	}

	return plans, nil
}
