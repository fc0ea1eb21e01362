package usecase

import (
	"time"

	"github.com/wxmarkets/billing-service/internal/domain/model"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
)

// trialFacts are the trial assertions a single change event makes. They are
// derived from the event alone; profile state decides how they land, not
// what they say.
type trialFacts struct {
	// Claimed marks the user's one trial as consumed.
	Claimed bool
	// StartedAt lands set-once; replays and late events cannot move it.
	StartedAt *time.Time
	// EndsAt overwrites, since the provider may extend or shorten a trial.
	EndsAt *time.Time
}

// trialFactsFromEvent reads trial evidence out of a change event. A checkout
// that requested a trial claims it even before the subscription snapshot
// carries trial dates; a snapshot with trial dates or a trialing status
// claims it regardless of how the subscription was created.
func trialFactsFromEvent(event *provider.ChangeEvent) trialFacts {
	facts := trialFacts{
		Claimed: event.WantsTrial,
	}

	snapshot := event.Subscription
	if snapshot == nil {
		return facts
	}

	hasTrialData := snapshot.TrialStart != nil || snapshot.TrialEnd != nil
	isTrialing := model.NormalizeSubscriptionStatus(snapshot.Status) == model.SubscriptionStatusTrialing

	if hasTrialData || isTrialing {
		facts.Claimed = true
		facts.StartedAt = snapshot.TrialStart
		facts.EndsAt = snapshot.TrialEnd
	}

	return facts
}
