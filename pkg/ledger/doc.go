// Package ledger owns per-user credit balances and the append-only
// transaction log behind them. It is the only component allowed to
// mutate balance fields; every mutation appends exactly one Transaction
// carrying a BalanceAfter snapshot, so replaying a user's entries in
// creation order reproduces the current balance.
//
// Invariants maintained by every Store implementation:
//
//   - balance == totalEarned - totalSpent at all times
//   - frozenBalance <= balance, and spends are checked against the
//     available balance (balance - frozen)
//   - the transaction log is append-only: entries are never updated or
//     deleted
//   - an earn with a previously-seen non-empty ReferenceID is rejected
//     with ErrDuplicateReference, which makes reference IDs usable as
//     idempotency keys ("signup_u1", "sub_1_inv_2", ...)
//
// Concurrent operations for the same user serialize inside Store.Apply:
// the Postgres store runs the adjustment as a single UPDATE inside one
// transaction, the memory store holds a mutex. Callers never do a
// read-then-write against the balance themselves.
//
//	svc := ledger.NewService(ledger.NewPostgresStore(pool))
//	_, err := svc.Earn(ctx, ledger.Entry{
//		UserID:      "u1",
//		Amount:      500,
//		Source:      ledger.SourceSubscription,
//		Description: "monthly renewal",
//		ReferenceID: "sub_1_inv_2",
//	})
package ledger
