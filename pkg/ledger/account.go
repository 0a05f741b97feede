package ledger

import "time"

// Account holds a user's credit balance. Exactly one account exists per
// user; it is created lazily the first time the user earns credits.
//
// Balance always equals TotalEarned - TotalSpent. FrozenBalance is the
// portion reserved by in-flight operations and never exceeds Balance.
type Account struct {
	UserID        string
	Balance       int64
	TotalEarned   int64
	TotalSpent    int64
	FrozenBalance int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AvailableBalance returns the spendable portion of the balance.
func (a *Account) AvailableBalance() int64 {
	return a.Balance - a.FrozenBalance
}
