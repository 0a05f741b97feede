package payment

import "context"

// Store defines persistence for payment records and the webhook audit
// log.
//
// The uniqueness constraint behind InsertEvent is the idempotency
// guarantee for webhook processing: IsEventProcessed is an optimization
// that skips work for obvious redeliveries, but only the constraint
// violation on the eventual insert is authoritative under concurrent
// delivery.
type Store interface {
	// GetRecord returns ErrRecordNotFound if no record has this ID.
	GetRecord(ctx context.Context, id string) (*Record, error)

	// GetRecordBySubscriptionID looks a record up by its provider
	// subscription ID. Returns ErrRecordNotFound when absent.
	GetRecordBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error)

	// UpsertRecord inserts or updates a record keyed by ID. Concurrent
	// duplicate inserts for the same ID must collapse into one row.
	UpsertRecord(ctx context.Context, rec *Record) error

	// InsertEvent appends an audit event. A second insert with the same
	// ProviderEventID returns ErrEventAlreadyProcessed.
	InsertEvent(ctx context.Context, ev *Event) error

	// IsEventProcessed reports whether a provider event ID was already
	// recorded.
	IsEventProcessed(ctx context.Context, providerEventID string) (bool, error)

	// ListEvents returns the audit events for a record, newest first.
	ListEvents(ctx context.Context, recordID string, limit int) ([]Event, error)
}
