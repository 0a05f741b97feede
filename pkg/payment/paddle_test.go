package payment_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditkit/creditkit/pkg/ledger"
	"github.com/creditkit/creditkit/pkg/payment"
	"github.com/creditkit/creditkit/pkg/plan"
)

const paddleTestSecret = "pdl_ntfset_test_secret"

// signPaddlePayload builds a valid Paddle-Signature header: the signed
// message is "<ts>:<body>" and the digest lands in h1.
func signPaddlePayload(t *testing.T, payload []byte) string {
	t.Helper()

	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(paddleTestSecret))
	mac.Write([]byte(fmt.Sprintf("%d:%s", ts, payload)))
	return fmt.Sprintf("ts=%d;h1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newPaddleProvider(t *testing.T) *payment.PaddleProvider {
	t.Helper()

	p, err := payment.NewPaddleProvider(payment.PaddleConfig{WebhookSecret: paddleTestSecret})
	require.NoError(t, err)
	return p
}

func TestNewPaddleProvider(t *testing.T) {
	t.Parallel()

	_, err := payment.NewPaddleProvider(payment.PaddleConfig{})
	assert.ErrorIs(t, err, payment.ErrMissingWebhookSecret)
}

func TestPaddleProvider_ParseWebhook(t *testing.T) {
	t.Parallel()

	t.Run("rejects bad signature", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		_, err := p.ParseWebhook(context.Background(), []byte(`{}`), "ts=1;h1=deadbeef")
		assert.ErrorIs(t, err, payment.ErrSignatureInvalid)
	})

	t.Run("subscription checkout transaction", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		payload := []byte(`{
			"event_id": "evt_1",
			"event_type": "transaction.completed",
			"data": {
				"id": "txn_1",
				"status": "completed",
				"origin": "web",
				"subscription_id": "sub_1",
				"customer_id": "ctm_1",
				"custom_data": {"user_id": "user_1"},
				"items": [{"price": {"id": "pri_pro_monthly"}}]
			}
		}`)

		ev, err := p.ParseWebhook(context.Background(), payload, signPaddlePayload(t, payload))
		require.NoError(t, err)
		assert.Equal(t, payment.EventCheckoutCompleted, ev.Type)
		assert.Equal(t, payment.ModeSubscription, ev.Mode)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.Equal(t, "user_1", ev.UserID)
		assert.Equal(t, "pri_pro_monthly", ev.PriceID)
		assert.Empty(t, ev.Status, "transaction lifecycle is not a subscription status")
	})

	t.Run("recurring transaction maps to invoice paid", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		payload := []byte(`{
			"event_id": "evt_2",
			"event_type": "transaction.completed",
			"data": {
				"id": "txn_2",
				"origin": "subscription_recurring",
				"subscription_id": "sub_1",
				"customer_id": "ctm_1"
			}
		}`)

		ev, err := p.ParseWebhook(context.Background(), payload, signPaddlePayload(t, payload))
		require.NoError(t, err)
		assert.Equal(t, payment.EventInvoicePaid, ev.Type)
		assert.Equal(t, "txn_2", ev.InvoiceID, "the transaction stands in for the invoice")
		assert.Equal(t, "sub_1", ev.SubscriptionID)
		assert.NotEqual(t, payment.BillingReasonSubscriptionCreate, ev.BillingReason)
	})

	t.Run("one-time transaction", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		payload := []byte(`{
			"event_id": "evt_3",
			"event_type": "transaction.completed",
			"data": {
				"id": "txn_3",
				"origin": "web",
				"customer_id": "ctm_1",
				"custom_data": {"user_id": "user_1"},
				"items": [{"price": {"id": "pri_credits_1k"}}]
			}
		}`)

		ev, err := p.ParseWebhook(context.Background(), payload, signPaddlePayload(t, payload))
		require.NoError(t, err)
		assert.Equal(t, payment.EventCheckoutCompleted, ev.Type)
		assert.Equal(t, payment.ModePayment, ev.Mode)
		assert.Equal(t, "txn_3", ev.PaymentID)
	})

	t.Run("subscription updated with scheduled cancel", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		payload := []byte(`{
			"event_id": "evt_4",
			"event_type": "subscription.updated",
			"data": {
				"id": "sub_1",
				"status": "active",
				"customer_id": "ctm_1",
				"scheduled_change": {"action": "cancel"},
				"current_billing_period": {
					"starts_at": "2025-06-01T00:00:00Z",
					"ends_at": "2025-07-01T00:00:00Z"
				},
				"items": [{"price": {"id": "pri_pro_monthly"}}]
			}
		}`)

		ev, err := p.ParseWebhook(context.Background(), payload, signPaddlePayload(t, payload))
		require.NoError(t, err)
		assert.Equal(t, payment.EventSubscriptionUpdated, ev.Type)
		assert.Equal(t, "active", ev.Status)
		assert.True(t, ev.CancelAtPeriodEnd)
		require.NotNil(t, ev.PeriodEnd)
		assert.Equal(t, time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC), *ev.PeriodEnd)
	})

	t.Run("subscription canceled", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		payload := []byte(`{
			"event_id": "evt_5",
			"event_type": "subscription.canceled",
			"data": {"id": "sub_1", "status": "canceled", "customer_id": "ctm_1"}
		}`)

		ev, err := p.ParseWebhook(context.Background(), payload, signPaddlePayload(t, payload))
		require.NoError(t, err)
		assert.Equal(t, payment.EventSubscriptionDeleted, ev.Type)
		assert.Equal(t, "sub_1", ev.SubscriptionID)
	})

	t.Run("unhandled event type normalized to unknown", func(t *testing.T) {
		t.Parallel()

		p := newPaddleProvider(t)
		payload := []byte(`{"event_id": "evt_6", "event_type": "address.created", "data": {}}`)

		ev, err := p.ParseWebhook(context.Background(), payload, signPaddlePayload(t, payload))
		require.NoError(t, err)
		assert.Equal(t, payment.EventUnknown, ev.Type)
	})
}

// A completed checkout transaction arrives with the transaction's own
// status "completed"; the record it creates must still start out active.
func TestPaddleProvider_CheckoutCreatesActiveRecord(t *testing.T) {
	t.Parallel()

	catalog, err := plan.NewCatalog(context.Background(), plan.NewInMemSource(plan.Plan{
		ID:       "pro",
		Tier:     1,
		PriceIDs: map[plan.BillingInterval]string{plan.IntervalMonth: "pri_pro_monthly"},
		Grants:   plan.CreditGrants{OnSubscribe: 500},
	}))
	require.NoError(t, err)

	store := payment.NewMemoryStore()
	proc := payment.NewProcessor(newPaddleProvider(t), store, catalog,
		ledger.NewService(ledger.NewMemoryStore()))

	payload := []byte(`{
		"event_id": "evt_7",
		"event_type": "transaction.completed",
		"data": {
			"id": "txn_7",
			"status": "completed",
			"origin": "web",
			"subscription_id": "sub_1",
			"customer_id": "ctm_1",
			"custom_data": {"user_id": "user_1"},
			"items": [{"price": {"id": "pri_pro_monthly"}}]
		}
	}`)
	require.NoError(t, proc.Handle(context.Background(), payload, signPaddlePayload(t, payload)))

	rec, err := store.GetRecord(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusActive, rec.Status)
	assert.True(t, rec.IsActive())
}
