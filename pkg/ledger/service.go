package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the public interface for the credit ledger.
type Service interface {
	// CreateAccount creates a zero-balance account for the user.
	// Idempotent: if the account already exists it is returned unchanged.
	CreateAccount(ctx context.Context, userID string) (*Account, error)

	// GetAccount returns ErrAccountNotFound if the user has no account.
	GetAccount(ctx context.Context, userID string) (*Account, error)

	// Earn credits the user's balance. Requires Amount > 0. The account
	// is created lazily if it does not exist yet. A non-empty ReferenceID
	// that was already used by a previous earn returns
	// ErrDuplicateReference without any state change.
	Earn(ctx context.Context, e Entry) (*Transaction, error)

	// Spend debits the user's balance. Fails with ErrInsufficientBalance
	// when the available balance (balance minus frozen) is below Amount.
	Spend(ctx context.Context, e Entry) (*Transaction, error)

	// Refund returns previously spent credits to the balance.
	Refund(ctx context.Context, e Entry) (*Transaction, error)

	// AdminAdjust applies a manual correction. Amount may carry either
	// sign; the entry is recorded with type admin_adjust and a positive
	// magnitude.
	AdminAdjust(ctx context.Context, e Entry) (*Transaction, error)

	// ListTransactions returns the user's ledger entries newest first.
	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error)
}

type service struct {
	store Store
	now   func() time.Time
}

// ServiceOption configures a ledger Service instance.
type ServiceOption func(*service)

// WithNowFunc overrides the clock, mainly for tests that need
// deterministic timestamps.
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a ledger Service backed by the given store.
// Panics if store is nil to fail fast during initialization.
func NewService(store Store, opts ...ServiceOption) Service {
	if store == nil {
		panic("ledger: Store is required")
	}

	s := &service{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) CreateAccount(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}

	now := s.now()
	return s.store.CreateAccount(ctx, &Account{
		UserID:    userID,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

func (s *service) GetAccount(ctx context.Context, userID string) (*Account, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	return s.store.GetAccount(ctx, userID)
}

func (s *service) Earn(ctx context.Context, e Entry) (*Transaction, error) {
	txn, err := s.buildTransaction(TypeEarn, e)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, e.Amount, txn)
}

func (s *service) Spend(ctx context.Context, e Entry) (*Transaction, error) {
	txn, err := s.buildTransaction(TypeSpend, e)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, -e.Amount, txn)
}

func (s *service) Refund(ctx context.Context, e Entry) (*Transaction, error) {
	txn, err := s.buildTransaction(TypeRefund, e)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, e.Amount, txn)
}

func (s *service) AdminAdjust(ctx context.Context, e Entry) (*Transaction, error) {
	delta := e.Amount
	if e.Amount < 0 {
		e.Amount = -e.Amount
	}
	txn, err := s.buildTransaction(TypeAdminAdjust, e)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, delta, txn)
}

func (s *service) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ListTransactions(ctx, userID, limit, offset)
}

func (s *service) buildTransaction(t TransactionType, e Entry) (*Transaction, error) {
	if e.UserID == "" {
		return nil, ErrMissingUserID
	}
	if e.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if e.Source != "" {
		switch e.Source {
		case SourceSubscription, SourceBonus, SourceAPICall, SourceStorage, SourceAdmin:
		default:
			return nil, ErrInvalidSource
		}
	}

	return &Transaction{
		ID:          uuid.New(),
		UserID:      e.UserID,
		Type:        t,
		Amount:      e.Amount,
		Source:      e.Source,
		Description: e.Description,
		ReferenceID: e.ReferenceID,
		Metadata:    e.Metadata,
		CreatedAt:   s.now(),
	}, nil
}

func (s *service) apply(ctx context.Context, delta int64, txn *Transaction) (*Transaction, error) {
	if _, err := s.store.Apply(ctx, delta, txn); err != nil {
		return nil, err
	}
	return txn, nil
}
