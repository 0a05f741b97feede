package ledger

import "errors"

var (
	ErrAccountNotFound     = errors.New("credit account not found")
	ErrInsufficientBalance = errors.New("insufficient credit balance")
	ErrDuplicateReference  = errors.New("ledger entry with this reference ID already exists")
	ErrInvalidAmount       = errors.New("ledger amount must be positive")
	ErrMissingUserID       = errors.New("user ID is required")
	ErrInvalidSource       = errors.New("unknown ledger source")
	ErrStoreFailure        = errors.New("ledger store failure")
)
