package entity

import "time"

// SubscriptionView is the profile-backed subscription state returned to the
// client. It is read straight from the local profile row, never from a live
// provider call.
type SubscriptionView struct {
	Status           string     `json:"status"`
	Plan             *string    `json:"plan,omitempty"`
	SubscriptionID   *string    `json:"subscription_id,omitempty"`
	CurrentPeriodEnd *time.Time `json:"current_period_end,omitempty"`
	TrialUsed        bool       `json:"trial_used"`
	TrialStartedAt   *time.Time `json:"trial_started_at,omitempty"`
	TrialEndsAt      *time.Time `json:"trial_ends_at,omitempty"`
}

// Plan is a catalog entry shaped for the public plans API.
type Plan struct {
	ID              string `json:"id"` // provider price id
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	Amount          int64  `json:"amount"`
	AmountDisplay   string `json:"amount_display"`
	Currency        string `json:"currency"`
	Interval        string `json:"interval,omitempty"`
	IntervalCount   int64  `json:"interval_count,omitempty"`
	TrialPeriodDays int64  `json:"trial_period_days,omitempty"`
}

// SubscriptionChanged is published after an event is applied to a profile.
type SubscriptionChanged struct {
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	Plan           *string   `json:"plan,omitempty"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// TrialWillEnd is published when the provider announces an approaching trial
// end. Observation only; no profile write is attached to it.
type TrialWillEnd struct {
	UserID      string     `json:"user_id"`
	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty"`
}
