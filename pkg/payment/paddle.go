package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleConfig holds configuration for the Paddle provider.
type PaddleConfig struct {
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET,required"`
}

// PaddleProvider implements Provider for Paddle. Paddle has no invoice
// objects; renewal charges arrive as transaction.completed with origin
// subscription_recurring, and the transaction ID doubles as the invoice
// ID in renewal reference keys.
type PaddleProvider struct {
	verifier *paddle.WebhookVerifier
}

// NewPaddleProvider creates a Paddle provider.
func NewPaddleProvider(cfg PaddleConfig) (*PaddleProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}
	return &PaddleProvider{
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
	}, nil
}

func (p *PaddleProvider) Name() string { return "paddle" }

func (p *PaddleProvider) SignatureHeader() string { return "Paddle-Signature" }

type paddlePayload struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Data      struct {
		ID             string `json:"id"`
		Status         string `json:"status"`
		Origin         string `json:"origin"`
		SubscriptionID string `json:"subscription_id"`
		CustomerID     string `json:"customer_id"`
		CustomData     struct {
			UserID string `json:"user_id"`
		} `json:"custom_data"`
		CurrentBillingPeriod struct {
			StartsAt string `json:"starts_at"`
			EndsAt   string `json:"ends_at"`
		} `json:"current_billing_period"`
		ScheduledChange *struct {
			Action string `json:"action"`
		} `json:"scheduled_change"`
		Items []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"items"`
	} `json:"data"`
}

// ParseWebhook verifies the Paddle-Signature header and normalizes the
// event. The SDK verifier works on an http.Request, so one is
// reconstructed around the payload.
func (p *PaddleProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhook", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Paddle-Signature", signature)

	valid, err := p.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var pe paddlePayload
	if err := json.Unmarshal(payload, &pe); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	ev := &WebhookEvent{
		ID:            pe.EventID,
		ProviderEvent: pe.EventType,
		Provider:      p.Name(),
		CustomerID:    pe.Data.CustomerID,
		UserID:        pe.Data.CustomData.UserID,
		Raw:           payload,
	}
	if len(pe.Data.Items) > 0 {
		ev.PriceID = pe.Data.Items[0].Price.ID
	}
	ev.PeriodStart = rfc3339Time(pe.Data.CurrentBillingPeriod.StartsAt)
	ev.PeriodEnd = rfc3339Time(pe.Data.CurrentBillingPeriod.EndsAt)

	// data.status is a subscription status only on subscription.* events.
	// On transaction.* events it is the transaction's own lifecycle
	// ("completed", "billed") and must not leak into payment records.
	switch pe.EventType {
	case "subscription.created":
		ev.Type = EventSubscriptionCreated
		ev.SubscriptionID = pe.Data.ID
		ev.Status = pe.Data.Status

	case "subscription.updated", "subscription.activated", "subscription.resumed", "subscription.past_due":
		ev.Type = EventSubscriptionUpdated
		ev.SubscriptionID = pe.Data.ID
		ev.Status = pe.Data.Status
		ev.CancelAtPeriodEnd = pe.Data.ScheduledChange != nil && pe.Data.ScheduledChange.Action == "cancel"

	case "subscription.canceled":
		ev.Type = EventSubscriptionDeleted
		ev.SubscriptionID = pe.Data.ID
		ev.Status = pe.Data.Status

	case "transaction.completed":
		switch {
		case pe.Data.Origin == "subscription_recurring":
			// A renewal charge: the transaction stands in for the invoice.
			ev.Type = EventInvoicePaid
			ev.SubscriptionID = pe.Data.SubscriptionID
			ev.InvoiceID = pe.Data.ID
			ev.BillingReason = "subscription_cycle"
		case pe.Data.SubscriptionID != "":
			ev.Type = EventCheckoutCompleted
			ev.Mode = ModeSubscription
			ev.SubscriptionID = pe.Data.SubscriptionID
		default:
			ev.Type = EventCheckoutCompleted
			ev.Mode = ModePayment
			ev.PaymentID = pe.Data.ID
		}

	case "transaction.payment_failed":
		ev.Type = EventInvoicePaymentFailed
		ev.SubscriptionID = pe.Data.SubscriptionID
		ev.InvoiceID = pe.Data.ID

	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}

func rfc3339Time(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
