package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds configuration for the Stripe provider.
type StripeConfig struct {
	APIKey        string `env:"STRIPE_API_KEY,required"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// SubscriptionDetail is the expanded subscription state fetched from the
// provider API when the webhook payload does not carry it.
type SubscriptionDetail struct {
	ID                string
	CustomerID        string
	Status            string
	PriceID           string
	CancelAtPeriodEnd bool
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	Metadata          map[string]string
}

// CheckoutSessionDetail is the expanded checkout session with line-item
// pricing.
type CheckoutSessionDetail struct {
	ID                string
	Mode              string
	SubscriptionID    string
	PaymentIntentID   string
	CustomerID        string
	PriceID           string
	ClientReferenceID string
	Metadata          map[string]string
}

// StripeAPI covers the resource fetches used to expand webhook payloads.
// Extracted as an interface so tests can stub the provider's API.
type StripeAPI interface {
	RetrieveSubscription(ctx context.Context, id string) (*SubscriptionDetail, error)
	RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSessionDetail, error)
}

// StripeProvider implements Provider for Stripe.
type StripeProvider struct {
	webhookSecret string
	api           StripeAPI
}

// StripeOption configures a StripeProvider.
type StripeOption func(*StripeProvider)

// WithStripeAPI overrides the API client, mainly for tests.
func WithStripeAPI(api StripeAPI) StripeOption {
	return func(p *StripeProvider) {
		if api != nil {
			p.api = api
		}
	}
}

// NewStripeProvider creates a Stripe provider.
func NewStripeProvider(cfg StripeConfig, opts ...StripeOption) (*StripeProvider, error) {
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	p := &StripeProvider{webhookSecret: cfg.WebhookSecret}
	for _, opt := range opts {
		opt(p)
	}

	if p.api == nil {
		if cfg.APIKey == "" {
			return nil, ErrMissingAPIKey
		}
		sc := &client.API{}
		sc.Init(cfg.APIKey, nil)
		p.api = &stripeAPI{client: sc}
	}

	return p, nil
}

func (p *StripeProvider) Name() string { return "stripe" }

func (p *StripeProvider) SignatureHeader() string { return "Stripe-Signature" }

// Local payload structs instead of SDK event types: the webhook shape
// depends on the account's pinned API version, so we decode only the
// fields we rely on and tolerate everything else.
type stripeCheckoutSession struct {
	ID                string            `json:"id"`
	Mode              string            `json:"mode"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	PaymentIntent     string            `json:"payment_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

type stripeSubscription struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	TrialStart         int64  `json:"trial_start"`
	TrialEnd           int64  `json:"trial_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

type stripeInvoice struct {
	ID            string `json:"id"`
	Customer      string `json:"customer"`
	Subscription  string `json:"subscription"`
	BillingReason string `json:"billing_reason"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// ParseWebhook verifies the Stripe-Signature header and normalizes the
// event. Checkout events are expanded through the API because the
// webhook payload does not include line items.
func (p *StripeProvider) ParseWebhook(ctx context.Context, payload []byte, signature string) (*WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}

	ev := &WebhookEvent{
		ID:            event.ID,
		ProviderEvent: string(event.Type),
		Provider:      p.Name(),
		Raw:           payload,
	}

	switch event.Type {
	case "checkout.session.completed":
		return p.parseCheckoutSession(ctx, ev, event.Data.Raw)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		switch event.Type {
		case "customer.subscription.created":
			ev.Type = EventSubscriptionCreated
		case "customer.subscription.updated":
			ev.Type = EventSubscriptionUpdated
		default:
			ev.Type = EventSubscriptionDeleted
		}
		applyStripeSubscription(ev, &sub)
		return ev, nil

	case "invoice.paid", "invoice.payment_succeeded", "invoice.payment_failed":
		var inv stripeInvoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, errors.Join(ErrMalformedPayload, err)
		}
		switch event.Type {
		case "invoice.paid":
			ev.Type = EventInvoicePaid
		case "invoice.payment_succeeded":
			ev.Type = EventInvoicePaymentSucceeded
		default:
			ev.Type = EventInvoicePaymentFailed
		}
		ev.InvoiceID = inv.ID
		ev.CustomerID = inv.Customer
		ev.BillingReason = inv.BillingReason
		ev.SubscriptionID = inv.Subscription
		if ev.SubscriptionID == "" {
			// Newer API versions nest the subscription under parent.
			ev.SubscriptionID = inv.Parent.SubscriptionDetails.Subscription
		}
		return ev, nil

	default:
		ev.Type = EventUnknown
		return ev, nil
	}
}

func (p *StripeProvider) parseCheckoutSession(ctx context.Context, ev *WebhookEvent, raw []byte) (*WebhookEvent, error) {
	var session stripeCheckoutSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	ev.Type = EventCheckoutCompleted
	ev.Mode = CheckoutMode(session.Mode)
	ev.CustomerID = session.Customer
	ev.SubscriptionID = session.Subscription
	ev.PaymentID = session.PaymentIntent
	ev.UserID = session.Metadata["user_id"]
	if ev.UserID == "" {
		ev.UserID = session.ClientReferenceID
	}

	switch ev.Mode {
	case ModeSubscription:
		if session.Subscription == "" {
			return ev, nil
		}
		detail, err := p.api.RetrieveSubscription(ctx, session.Subscription)
		if err != nil {
			return nil, errors.Join(ErrProviderFailure, fmt.Errorf("retrieve subscription %s: %w", session.Subscription, err))
		}
		ev.PriceID = detail.PriceID
		ev.Status = detail.Status
		ev.CancelAtPeriodEnd = detail.CancelAtPeriodEnd
		ev.PeriodStart = detail.PeriodStart
		ev.PeriodEnd = detail.PeriodEnd
		ev.TrialStart = detail.TrialStart
		ev.TrialEnd = detail.TrialEnd
		if ev.UserID == "" {
			ev.UserID = detail.Metadata["user_id"]
		}

	case ModePayment:
		detail, err := p.api.RetrieveCheckoutSession(ctx, session.ID)
		if err != nil {
			return nil, errors.Join(ErrProviderFailure, fmt.Errorf("retrieve checkout session %s: %w", session.ID, err))
		}
		ev.PriceID = detail.PriceID
		if ev.PaymentID == "" {
			ev.PaymentID = detail.PaymentIntentID
		}
	}

	return ev, nil
}

func applyStripeSubscription(ev *WebhookEvent, sub *stripeSubscription) {
	ev.SubscriptionID = sub.ID
	ev.CustomerID = sub.Customer
	ev.Status = sub.Status
	ev.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	ev.PeriodStart = unixTime(sub.CurrentPeriodStart)
	ev.PeriodEnd = unixTime(sub.CurrentPeriodEnd)
	ev.TrialStart = unixTime(sub.TrialStart)
	ev.TrialEnd = unixTime(sub.TrialEnd)
	if ev.UserID == "" {
		ev.UserID = sub.Metadata["user_id"]
	}

	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		ev.PriceID = item.Price.ID
		// Current API versions carry the billing period on the item.
		if item.CurrentPeriodStart > 0 {
			ev.PeriodStart = unixTime(item.CurrentPeriodStart)
		}
		if item.CurrentPeriodEnd > 0 {
			ev.PeriodEnd = unixTime(item.CurrentPeriodEnd)
		}
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// stripeAPI is the default StripeAPI backed by the official SDK.
type stripeAPI struct {
	client *client.API
}

func (a *stripeAPI) RetrieveSubscription(ctx context.Context, id string) (*SubscriptionDetail, error) {
	params := &stripe.SubscriptionParams{Params: stripe.Params{Context: ctx}}
	sub, err := a.client.Subscriptions.Get(id, params)
	if err != nil {
		return nil, err
	}

	detail := &SubscriptionDetail{
		ID:                sub.ID,
		Status:            string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		TrialStart:        unixTime(sub.TrialStart),
		TrialEnd:          unixTime(sub.TrialEnd),
		Metadata:          sub.Metadata,
	}
	if sub.Customer != nil {
		detail.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item.Price != nil {
			detail.PriceID = item.Price.ID
		}
		detail.PeriodStart = unixTime(item.CurrentPeriodStart)
		detail.PeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return detail, nil
}

func (a *stripeAPI) RetrieveCheckoutSession(ctx context.Context, id string) (*CheckoutSessionDetail, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	params.AddExpand("line_items")
	sess, err := a.client.CheckoutSessions.Get(id, params)
	if err != nil {
		return nil, err
	}

	detail := &CheckoutSessionDetail{
		ID:                sess.ID,
		Mode:              string(sess.Mode),
		ClientReferenceID: sess.ClientReferenceID,
		Metadata:          sess.Metadata,
	}
	if sess.Subscription != nil {
		detail.SubscriptionID = sess.Subscription.ID
	}
	if sess.PaymentIntent != nil {
		detail.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.Customer != nil {
		detail.CustomerID = sess.Customer.ID
	}
	if sess.LineItems != nil && len(sess.LineItems.Data) > 0 && sess.LineItems.Data[0].Price != nil {
		detail.PriceID = sess.LineItems.Data[0].Price.ID
	}
	return detail, nil
}
