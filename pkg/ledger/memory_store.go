package ledger

import (
	"context"
	"maps"
	"sync"
)

type memoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	txns     map[string][]Transaction
	earnRefs map[string]struct{}
}

// NewMemoryStore returns an in-memory Store. Intended for tests and
// single-process deployments; the mutex gives it the same per-user
// serialization guarantee the Postgres store gets from row locking.
func NewMemoryStore() Store {
	return &memoryStore{
		accounts: make(map[string]Account),
		txns:     make(map[string][]Transaction),
		earnRefs: make(map[string]struct{}),
	}
}

func (s *memoryStore) CreateAccount(ctx context.Context, acc *Account) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accounts[acc.UserID]; ok {
		out := existing
		return &out, nil
	}

	stored := *acc
	s.accounts[acc.UserID] = stored
	out := stored
	return &out, nil
}

func (s *memoryStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.accounts[userID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	out := acc
	return &out, nil
}

func (s *memoryStore) Apply(ctx context.Context, delta int64, txn *Transaction) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if txn.Type == TypeEarn && txn.ReferenceID != "" {
		if _, seen := s.earnRefs[txn.ReferenceID]; seen {
			return nil, ErrDuplicateReference
		}
	}

	acc, ok := s.accounts[txn.UserID]
	if !ok {
		if delta < 0 {
			return nil, ErrAccountNotFound
		}
		acc = Account{
			UserID:    txn.UserID,
			CreatedAt: txn.CreatedAt,
			UpdatedAt: txn.CreatedAt,
		}
	}

	if delta < 0 && acc.AvailableBalance() < -delta {
		return nil, ErrInsufficientBalance
	}

	acc.Balance += delta
	switch txn.Type {
	case TypeEarn:
		acc.TotalEarned += txn.Amount
	case TypeSpend:
		acc.TotalSpent += txn.Amount
	case TypeRefund:
		acc.TotalSpent -= txn.Amount
	case TypeAdminAdjust:
		if delta >= 0 {
			acc.TotalEarned += txn.Amount
		} else {
			acc.TotalSpent += txn.Amount
		}
	}
	acc.UpdatedAt = txn.CreatedAt

	txn.BalanceAfter = acc.Balance
	s.accounts[txn.UserID] = acc

	stored := *txn
	stored.Metadata = maps.Clone(txn.Metadata)
	s.txns[txn.UserID] = append(s.txns[txn.UserID], stored)

	if txn.Type == TypeEarn && txn.ReferenceID != "" {
		s.earnRefs[txn.ReferenceID] = struct{}{}
	}

	out := acc
	return &out, nil
}

func (s *memoryStore) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.txns[userID]
	out := make([]Transaction, 0, limit)
	// Newest first: walk the append-ordered slice backwards.
	for i := len(all) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
