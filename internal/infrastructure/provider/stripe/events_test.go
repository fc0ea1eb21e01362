package stripe_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/wxmarkets/billing-service/internal/domain/provider"
	stripeprovider "github.com/wxmarkets/billing-service/internal/infrastructure/provider/stripe"
)

const (
	testWebhookSecret = "whsec_test_secret"
	// 2025-03-10T12:00:00Z
	testEventCreated = int64(1741608000)
)

// signPayload builds a Stripe-Signature header for payload, the same scheme
// Stripe uses: v1 = HMAC-SHA256(secret, "<timestamp>.<payload>").
func signPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", at.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func newProviderUnderTest() *stripeprovider.StripeProvider {
	return stripeprovider.NewStripeProvider("sk_test_123", testWebhookSecret, zap.NewNop())
}

func subscriptionPayload(userID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"api_version": "2024-06-20",
		"created": %d,
		"data": {
			"object": {
				"id": "sub_1",
				"object": "subscription",
				"customer": "cus_1",
				"status": "trialing",
				"current_period_end": %d,
				"trial_start": %d,
				"trial_end": %d,
				"cancel_at_period_end": false,
				"metadata": {"user_id": %q},
				"items": {"data": [{"price": {"id": "price_pro_monthly"}}]}
			}
		}
	}`, testEventCreated, testEventCreated+2419200, testEventCreated, testEventCreated+1209600, userID))
}

func TestStripeProvider_VerifyWebhook(t *testing.T) {
	userID := uuid.New().String()
	payload := subscriptionPayload(userID)

	t.Run("accepts a correctly signed payload", func(t *testing.T) {
		p := newProviderUnderTest()

		event, err := p.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, time.Now()))

		assert.NoError(t, err)
		assert.Equal(t, "evt_1", event.ID)
		assert.Equal(t, "customer.subscription.updated", event.Type)
		assert.Equal(t, provider.EventKindSubscriptionChange, event.Kind)
		assert.Equal(t, "2024-06-20", event.APIVersion)
		assert.True(t, event.OccurredAt.Equal(time.Unix(testEventCreated, 0)))
		assert.Equal(t, "cus_1", event.CustomerID)
		assert.Equal(t, "sub_1", event.SubscriptionID)
		assert.Equal(t, userID, event.MetadataUserID)

		snapshot := event.Subscription
		assert.Equal(t, "trialing", snapshot.Status)
		assert.Equal(t, "price_pro_monthly", snapshot.PriceID)
		assert.False(t, snapshot.CancelAtPeriodEnd)
		assert.True(t, snapshot.CurrentPeriodEnd.Equal(time.Unix(testEventCreated+2419200, 0)))
		assert.True(t, snapshot.TrialStart.Equal(time.Unix(testEventCreated, 0)))
		assert.True(t, snapshot.TrialEnd.Equal(time.Unix(testEventCreated+1209600, 0)))
	})

	t.Run("rejects a tampered payload", func(t *testing.T) {
		p := newProviderUnderTest()
		signature := signPayload(payload, testWebhookSecret, time.Now())
		tampered := subscriptionPayload(uuid.New().String())

		event, err := p.VerifyWebhook(tampered, signature)

		assert.Error(t, err)
		assert.True(t, provider.IsSignatureError(err))
		assert.Nil(t, event)
	})

	t.Run("rejects the wrong signing secret", func(t *testing.T) {
		p := newProviderUnderTest()

		_, err := p.VerifyWebhook(payload, signPayload(payload, "whsec_other", time.Now()))

		assert.True(t, provider.IsSignatureError(err))
	})

	t.Run("rejects a stale signature timestamp", func(t *testing.T) {
		p := newProviderUnderTest()

		_, err := p.VerifyWebhook(payload, signPayload(payload, testWebhookSecret, time.Now().Add(-2*time.Hour)))

		assert.True(t, provider.IsSignatureError(err))
	})
}

func TestStripeProvider_ParseEvent(t *testing.T) {
	t.Run("parses a checkout session event", func(t *testing.T) {
		userID := uuid.New().String()
		payload := []byte(fmt.Sprintf(`{
			"id": "evt_2",
			"type": "checkout.session.completed",
			"created": %d,
			"data": {
				"object": {
					"id": "cs_1",
					"object": "checkout.session",
					"customer": "cus_1",
					"subscription": "sub_1",
					"metadata": {"user_id": %q, "wants_trial": "true"}
				}
			}
		}`, testEventCreated, userID))

		p := newProviderUnderTest()
		event, err := p.ParseEvent(payload)

		assert.NoError(t, err)
		assert.Equal(t, provider.EventKindCheckoutCompleted, event.Kind)
		assert.Equal(t, "cus_1", event.CustomerID)
		assert.Equal(t, "sub_1", event.SubscriptionID)
		assert.Equal(t, userID, event.MetadataUserID)
		assert.True(t, event.WantsTrial)
		// Checkout events carry no snapshot; the reconciler hydrates them.
		assert.Nil(t, event.Subscription)
	})

	t.Run("parses a trial ending notice with its snapshot", func(t *testing.T) {
		payload := []byte(fmt.Sprintf(`{
			"id": "evt_3",
			"type": "customer.subscription.trial_will_end",
			"created": %d,
			"data": {
				"object": {
					"id": "sub_1",
					"object": "subscription",
					"customer": "cus_1",
					"status": "trialing",
					"trial_end": %d
				}
			}
		}`, testEventCreated, testEventCreated+259200))

		p := newProviderUnderTest()
		event, err := p.ParseEvent(payload)

		assert.NoError(t, err)
		assert.Equal(t, provider.EventKindTrialWillEnd, event.Kind)
		assert.NotNil(t, event.Subscription)
		assert.True(t, event.Subscription.TrialEnd.Equal(time.Unix(testEventCreated+259200, 0)))
	})

	t.Run("classifies event types", func(t *testing.T) {
		tests := []struct {
			eventType string
			want      provider.EventKind
		}{
			{"checkout.session.completed", provider.EventKindCheckoutCompleted},
			{"customer.subscription.created", provider.EventKindSubscriptionChange},
			{"customer.subscription.updated", provider.EventKindSubscriptionChange},
			{"customer.subscription.deleted", provider.EventKindSubscriptionChange},
			{"customer.subscription.trial_will_end", provider.EventKindTrialWillEnd},
			{"price.created", provider.EventKindPlanCatalog},
			{"price.deleted", provider.EventKindPlanCatalog},
			{"product.updated", provider.EventKindPlanCatalog},
			{"invoice.payment_succeeded", provider.EventKindIgnored},
			{"payment_intent.succeeded", provider.EventKindIgnored},
		}

		p := newProviderUnderTest()
		for _, tt := range tests {
			t.Run(tt.eventType, func(t *testing.T) {
				payload := []byte(fmt.Sprintf(`{
					"id": "evt_x",
					"type": %q,
					"created": %d,
					"data": {"object": {"id": "obj_1"}}
				}`, tt.eventType, testEventCreated))

				event, err := p.ParseEvent(payload)

				assert.NoError(t, err)
				assert.Equal(t, tt.want, event.Kind)
			})
		}
	})

	t.Run("rejects payloads that are not json", func(t *testing.T) {
		p := newProviderUnderTest()

		_, err := p.ParseEvent([]byte("not json"))

		assert.Error(t, err)
	})
}
