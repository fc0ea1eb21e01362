package stripe

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
	"github.com/wxmarkets/billing-service/internal/domain/provider"
	"go.uber.org/zap"
)

// VerifyWebhook checks the Stripe-Signature header against the payload and
// parses the event. Events arrive at least once and in no guaranteed order;
// this only vouches for authenticity, never for freshness.
func (s *StripeProvider) VerifyWebhook(payload []byte, signature string) (*provider.ChangeEvent, error) {
	event, err := webhook.ConstructEventWithOptions(
		payload,
		signature,
		s.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)

	if err != nil {
		s.logger.Warn("Webhook signature verification failed", zap.Error(err))
		return nil, &provider.ProviderError{
			Code:    "signature_verification_failed",
			Message: "webhook signature verification failed",
			Details: err.Error(),
		}
	}

	return s.parseEvent(&event)
}

// ParseEvent parses a stored payload without signature verification, for
// replaying deliveries that already passed VerifyWebhook once.
func (s *StripeProvider) ParseEvent(payload []byte) (*provider.ChangeEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, &provider.ProviderError{
			Code:    "invalid_payload",
			Message: "failed to parse stored event payload",
			Details: err.Error(),
		}
	}

	return s.parseEvent(&event)
}

// parseEvent converts a Stripe event into the provider-agnostic ChangeEvent.
// Subscription payloads are read from the raw object rather than the typed
// struct so events produced under older API versions still parse.
func (s *StripeProvider) parseEvent(event *stripe.Event) (*provider.ChangeEvent, error) {
	ce := &provider.ChangeEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		Kind:       classifyEventType(string(event.Type)),
		APIVersion: event.APIVersion,
		OccurredAt: time.Unix(event.Created, 0),
	}
	if event.Data != nil {
		ce.ObjectRaw = event.Data.Raw
	}

	switch ce.Kind {
	case provider.EventKindCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			s.logger.Error("Error parsing checkout session",
				zap.String("event_id", event.ID),
				zap.Error(err))
			return nil, &provider.ProviderError{
				Code:    "invalid_payload",
				Message: "failed to parse checkout session",
				Details: err.Error(),
			}
		}

		if session.Customer != nil {
			ce.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			ce.SubscriptionID = session.Subscription.ID
		}
		ce.MetadataUserID = session.Metadata["user_id"]
		ce.WantsTrial = session.Metadata["wants_trial"] == "true"

	case provider.EventKindSubscriptionChange, provider.EventKindTrialWillEnd:
		snapshot, err := snapshotFromRawObject(event.Data.Raw)
		if err != nil {
			s.logger.Error("Error parsing subscription payload",
				zap.String("event_id", event.ID),
				zap.String("event_type", string(event.Type)),
				zap.Error(err))
			return nil, &provider.ProviderError{
				Code:    "invalid_payload",
				Message: "failed to parse subscription payload",
				Details: err.Error(),
			}
		}

		ce.CustomerID = snapshot.CustomerID
		ce.SubscriptionID = snapshot.ID
		ce.MetadataUserID = snapshot.MetadataUserID
		ce.Subscription = snapshot
	}

	return ce, nil
}

// classifyEventType groups Stripe event types by how the engine handles them
func classifyEventType(eventType string) provider.EventKind {
	switch {
	case eventType == string(stripe.EventTypeCheckoutSessionCompleted):
		return provider.EventKindCheckoutCompleted
	case eventType == string(stripe.EventTypeCustomerSubscriptionCreated),
		eventType == string(stripe.EventTypeCustomerSubscriptionUpdated),
		eventType == string(stripe.EventTypeCustomerSubscriptionDeleted):
		return provider.EventKindSubscriptionChange
	case eventType == string(stripe.EventTypeCustomerSubscriptionTrialWillEnd):
		return provider.EventKindTrialWillEnd
	case strings.HasPrefix(eventType, "price.") || strings.HasPrefix(eventType, "product."):
		return provider.EventKindPlanCatalog
	default:
		return provider.EventKindIgnored
	}
}

// snapshotFromRawObject reads a subscription object from raw event data
func snapshotFromRawObject(raw json.RawMessage) (*provider.SubscriptionSnapshot, error) {
	var rawData map[string]interface{}
	if err := json.Unmarshal(raw, &rawData); err != nil {
		return nil, err
	}

	snapshot := &provider.SubscriptionSnapshot{}
	snapshot.ID, _ = rawData["id"].(string)
	snapshot.Status, _ = rawData["status"].(string)
	snapshot.CustomerID, _ = rawData["customer"].(string)

	if cpe, ok := rawData["current_period_end"].(float64); ok && cpe > 0 {
		t := time.Unix(int64(cpe), 0)
		snapshot.CurrentPeriodEnd = &t
	}
	if ts, ok := rawData["trial_start"].(float64); ok && ts > 0 {
		t := time.Unix(int64(ts), 0)
		snapshot.TrialStart = &t
	}
	if te, ok := rawData["trial_end"].(float64); ok && te > 0 {
		t := time.Unix(int64(te), 0)
		snapshot.TrialEnd = &t
	}
	if cape, ok := rawData["cancel_at_period_end"].(bool); ok {
		snapshot.CancelAtPeriodEnd = cape
	}
	if metadata, ok := rawData["metadata"].(map[string]interface{}); ok {
		if uid, ok := metadata["user_id"].(string); ok {
			snapshot.MetadataUserID = uid
		}
	}

	// First price on the subscription; one price per subscription is the
	// checkout contract.
	if items, ok := rawData["items"].(map[string]interface{}); ok {
		if data, ok := items["data"].([]interface{}); ok && len(data) > 0 {
			if item, ok := data[0].(map[string]interface{}); ok {
				if price, ok := item["price"].(map[string]interface{}); ok {
					snapshot.PriceID, _ = price["id"].(string)
				}
			}
		}
	}

	return snapshot, nil
}
