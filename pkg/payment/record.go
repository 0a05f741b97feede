package payment

import (
	"time"

	"github.com/creditkit/creditkit/pkg/plan"
)

// Kind distinguishes recurring subscriptions from one-time purchases.
type Kind string

const (
	KindSubscription Kind = "subscription"
	KindOneTime      Kind = "one_time"
)

// Status is the lifecycle state of a payment record. The payment
// provider is the source of truth for the current status; the transition
// table below only flags deliveries that arrive out of order.
type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired" // terminal
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled" // terminal
)

// StatusFromProvider normalizes a provider status string. Unknown values
// pass through untouched so new provider states surface in the data
// rather than being silently collapsed.
func StatusFromProvider(s string) Status {
	switch s {
	case "trialing":
		return StatusTrialing
	case "active":
		return StatusActive
	case "past_due":
		return StatusPastDue
	case "canceled", "cancelled":
		return StatusCanceled
	case "incomplete":
		return StatusIncomplete
	case "incomplete_expired":
		return StatusIncompleteExpired
	}
	return Status(s)
}

// ValidTransition reports whether moving from one status to another is
// an expected lifecycle step. Terminal states accept no transitions;
// every state may re-assert itself (duplicate deliveries).
func ValidTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusIncomplete:
		return to == StatusTrialing || to == StatusActive || to == StatusIncompleteExpired || to == StatusCanceled
	case StatusTrialing:
		return to == StatusActive || to == StatusPastDue || to == StatusCanceled
	case StatusActive:
		return to == StatusPastDue || to == StatusCanceled
	case StatusPastDue:
		return to == StatusActive || to == StatusCanceled
	}
	return false
}

// Record is the current lifecycle state of one subscription or one-time
// payment, keyed by the provider's subscription or payment ID. Records
// are upserted by ID and never hard-deleted; cancellation is a status.
type Record struct {
	ID                string // provider subscription ID or payment ID
	PriceID           string
	Kind              Kind
	BillingInterval   plan.BillingInterval
	UserID            string
	CustomerID        string
	SubscriptionID    string // empty for one-time payments
	Status            Status
	PeriodStart       *time.Time
	PeriodEnd         *time.Time
	TrialStart        *time.Time
	TrialEnd          *time.Time
	CancelAtPeriodEnd bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the record entitles the user to service.
func (r *Record) IsActive() bool {
	return r.Status == StatusActive || r.Status == StatusTrialing
}

// IsCanceled reports whether the record reached a terminal state.
func (r *Record) IsCanceled() bool {
	return r.Status == StatusCanceled || r.Status == StatusIncompleteExpired
}
