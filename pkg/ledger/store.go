package ledger

import "context"

// Store defines the persistence contract for the ledger. It is the only
// place balance fields are ever written.
//
// Apply must execute the balance adjustment and the transaction append as
// one atomic unit: two concurrent calls for the same user must never read
// the same starting balance. Implementations either run a single
// read-modify-write statement (Postgres) or hold a per-store lock
// (memory).
type Store interface {
	// CreateAccount inserts the account if none exists for the user and
	// returns the stored account. Concurrent creation attempts for the
	// same user are safe; later ones are no-ops. The service always
	// passes a zero-balance account.
	CreateAccount(ctx context.Context, acc *Account) (*Account, error)

	// GetAccount returns ErrAccountNotFound if the user has no account.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// Apply atomically adjusts the account by delta (signed), appends txn
	// with BalanceAfter set to the post-adjustment balance, and returns
	// the updated account.
	//
	// Contract:
	//   - delta > 0 with no existing account lazily creates one;
	//   - delta < 0 with no existing account returns ErrAccountNotFound;
	//   - delta < 0 exceeding the available balance returns
	//     ErrInsufficientBalance and writes nothing;
	//   - an earn txn whose non-empty ReferenceID was already recorded
	//     returns ErrDuplicateReference and writes nothing;
	//   - TotalEarned/TotalSpent are maintained so that
	//     balance == totalEarned - totalSpent always holds.
	Apply(ctx context.Context, delta int64, txn *Transaction) (*Account, error)

	// ListTransactions returns the user's entries newest first.
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
}
