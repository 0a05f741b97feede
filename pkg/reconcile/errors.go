package reconcile

import "errors"

var (
	ErrStoreNil     = errors.New("reconcile store is required")
	ErrLedgerNil    = errors.New("ledger service is required")
	ErrStoreFailure = errors.New("reconcile store failure")
)
