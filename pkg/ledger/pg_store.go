package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditkit/creditkit/pkg/pg"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the credit_account and
// credit_transaction tables.
//
// Balance adjustments run as a single UPDATE statement inside one
// transaction per ledger operation, so concurrent grants for the same
// user serialize on the row lock instead of racing a read-then-write.
// The partial unique index on credit_transaction.reference_id backs the
// ErrDuplicateReference guarantee.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	if pool == nil {
		panic("ledger: pgxpool.Pool is required")
	}
	return &pgStore{pool: pool}
}

const accountColumns = `user_id, balance, total_earned, total_spent, frozen_balance, created_at, updated_at`

func (s *pgStore) CreateAccount(ctx context.Context, acc *Account) (*Account, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO credit_account (user_id, balance, total_earned, total_spent, frozen_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (user_id) DO NOTHING`,
		acc.UserID, acc.Balance, acc.TotalEarned, acc.TotalSpent, acc.FrozenBalance, acc.CreatedAt)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return s.GetAccount(ctx, acc.UserID)
}

func (s *pgStore) GetAccount(ctx context.Context, userID string) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM credit_account WHERE user_id = $1`, userID)
	return scanAccount(row)
}

func (s *pgStore) Apply(ctx context.Context, delta int64, txn *Transaction) (*Account, error) {
	var acc *Account

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if delta > 0 {
			// Lazy account creation for balance-increasing entries.
			if _, err := tx.Exec(ctx, `
				INSERT INTO credit_account (user_id, balance, total_earned, total_spent, frozen_balance, created_at, updated_at)
				VALUES ($1, 0, 0, 0, 0, $2, $2)
				ON CONFLICT (user_id) DO NOTHING`,
				txn.UserID, txn.CreatedAt); err != nil {
				return err
			}
		}

		row := tx.QueryRow(ctx, adjustSQL(txn.Type, delta), txn.UserID, txn.Amount, txn.CreatedAt)
		updated, err := scanAccount(row)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return s.classifyMissingRow(ctx, tx, txn.UserID, delta)
			}
			return err
		}

		txn.BalanceAfter = updated.Balance

		meta, err := json.Marshal(txn.Metadata)
		if err != nil {
			return fmt.Errorf("encode transaction metadata: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO credit_transaction (id, user_id, type, amount, source, description, reference_id, balance_after, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			txn.ID, txn.UserID, txn.Type, txn.Amount, txn.Source, txn.Description,
			txn.ReferenceID, txn.BalanceAfter, meta, txn.CreatedAt); err != nil {
			if pg.IsDuplicateKeyError(err) {
				return ErrDuplicateReference
			}
			return err
		}

		acc = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInsufficientBalance) || errors.Is(err, ErrDuplicateReference) {
			return nil, err
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}

	return acc, nil
}

// adjustSQL picks the single-statement balance adjustment for an entry.
// $2 is always the positive magnitude; the statement carries the sign.
// Debits guard on the available balance so an oversized spend matches no
// row instead of driving the balance negative.
func adjustSQL(t TransactionType, delta int64) string {
	credit := delta >= 0

	switch {
	case t == TypeSpend, t == TypeAdminAdjust && !credit:
		return `UPDATE credit_account
			SET balance = balance - $2, total_spent = total_spent + $2, updated_at = $3
			WHERE user_id = $1 AND balance - frozen_balance >= $2
			RETURNING ` + accountColumns
	case t == TypeRefund:
		return `UPDATE credit_account
			SET balance = balance + $2, total_spent = total_spent - $2, updated_at = $3
			WHERE user_id = $1
			RETURNING ` + accountColumns
	default: // earn, positive admin adjustment
		return `UPDATE credit_account
			SET balance = balance + $2, total_earned = total_earned + $2, updated_at = $3
			WHERE user_id = $1
			RETURNING ` + accountColumns
	}
}

// classifyMissingRow distinguishes "no account" from "account exists but
// failed the available-balance guard" after an adjustment matched no row.
func (s *pgStore) classifyMissingRow(ctx context.Context, tx pgx.Tx, userID string, delta int64) error {
	if delta >= 0 {
		return ErrAccountNotFound
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM credit_account WHERE user_id = $1)`, userID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrInsufficientBalance
	}
	return ErrAccountNotFound
}

func (s *pgStore) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]Transaction, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, type, amount, source, description, reference_id, balance_after, metadata, created_at
		FROM credit_transaction
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var txn Transaction
		var meta []byte
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Type, &txn.Amount, &txn.Source,
			&txn.Description, &txn.ReferenceID, &txn.BalanceAfter, &meta, &txn.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &txn.Metadata); err != nil {
				return nil, errors.Join(ErrStoreFailure, err)
			}
		}
		out = append(out, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var acc Account
	err := row.Scan(&acc.UserID, &acc.Balance, &acc.TotalEarned, &acc.TotalSpent,
		&acc.FrozenBalance, &acc.CreatedAt, &acc.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrAccountNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &acc, nil
}
