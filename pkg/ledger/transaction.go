package ledger

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType classifies a ledger entry for audit filtering.
type TransactionType string

const (
	TypeEarn        TransactionType = "earn"
	TypeSpend       TransactionType = "spend"
	TypeRefund      TransactionType = "refund"
	TypeAdminAdjust TransactionType = "admin_adjust"
)

// Valid reports whether the type is one of the known values.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeEarn, TypeSpend, TypeRefund, TypeAdminAdjust:
		return true
	}
	return false
}

// Source names the subsystem that produced a ledger entry.
type Source string

const (
	SourceSubscription Source = "subscription"
	SourceBonus        Source = "bonus"
	SourceAPICall      Source = "api_call"
	SourceStorage      Source = "storage"
	SourceAdmin        Source = "admin"
)

// Transaction is an append-only ledger entry. Amount is always a positive
// magnitude; the direction follows from Type (and, for admin adjustments,
// from the running BalanceAfter chain). Entries are never updated or
// deleted.
type Transaction struct {
	ID           uuid.UUID
	UserID       string
	Type         TransactionType
	Amount       int64
	Source       Source
	Description  string
	ReferenceID  string // semantic idempotency key, e.g. "sub_1_inv_2"
	BalanceAfter int64  // account balance snapshot after this entry committed
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Entry carries the caller-supplied fields for a ledger operation.
type Entry struct {
	UserID      string
	Amount      int64 // positive magnitude; AdminAdjust accepts either sign
	Source      Source
	Description string
	ReferenceID string
	Metadata    map[string]string
}
