package payment

import (
	"time"

	"github.com/google/uuid"
)

// Event is the append-only audit and idempotency row persisted for every
// processed webhook delivery. ProviderEventID is globally unique; the
// uniqueness constraint on it is what makes reprocessing safe.
type Event struct {
	ID              uuid.UUID
	RecordID        string // affected payment record, empty when no record matched
	EventType       string // original provider event name
	ProviderEventID string
	RawPayload      []byte
	CreatedAt       time.Time
}

// EventType is the normalized webhook event type. Each provider
// implementation maps its own event names onto these.
type EventType string

const (
	EventCheckoutCompleted       EventType = "checkout_completed"
	EventSubscriptionCreated     EventType = "subscription_created"
	EventSubscriptionUpdated     EventType = "subscription_updated"
	EventSubscriptionDeleted     EventType = "subscription_deleted"
	EventInvoicePaid             EventType = "invoice_paid"
	EventInvoicePaymentSucceeded EventType = "invoice_payment_succeeded"
	EventInvoicePaymentFailed    EventType = "invoice_payment_failed"
	EventUnknown                 EventType = "unknown"
)

// CheckoutMode distinguishes subscription checkouts from one-time
// purchases.
type CheckoutMode string

const (
	ModeSubscription CheckoutMode = "subscription"
	ModePayment      CheckoutMode = "payment"
)

// BillingReasonSubscriptionCreate marks the invoice that created a
// subscription. Renewal credits are granted only for later invoices.
const BillingReasonSubscriptionCreate = "subscription_create"

// WebhookEvent is a verified, normalized webhook event from a billing
// provider. Fields are populated per event type; absent values stay
// zero.
type WebhookEvent struct {
	ID            string    // provider event ID, the idempotency key
	Type          EventType // normalized event type
	ProviderEvent string    // original provider event name
	Provider      string    // provider name, e.g. "stripe"

	SubscriptionID string
	PaymentID      string // one-time payment/transaction ID
	CustomerID     string // provider's customer ID
	UserID         string // internal user ID from checkout metadata
	PriceID        string
	Status         string // provider's subscription status
	Mode           CheckoutMode
	InvoiceID      string
	BillingReason  string

	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool

	Raw []byte // full verified payload, persisted for audit
}
