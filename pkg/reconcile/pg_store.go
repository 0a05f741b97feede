package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/google/uuid"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the credit_posting and
// credit_posting_dlq tables. ClaimDue uses FOR UPDATE SKIP LOCKED so
// multiple workers can drain the queue without double-claiming.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	if pool == nil {
		panic("reconcile: pgxpool.Pool is required")
	}
	return &pgStore{pool: pool}
}

func (s *pgStore) Enqueue(ctx context.Context, p *Posting) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("encode posting metadata: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO credit_posting (id, user_id, amount, source, description, reference_id, metadata,
			attempts, max_attempts, last_error, next_attempt_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.UserID, p.Amount, p.Source, p.Description, p.ReferenceID, meta,
		p.Attempts, p.MaxAttempts, p.LastError, p.NextAttemptAt, p.CreatedAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *pgStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Posting, error) {
	var out []Posting

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, user_id, amount, source, description, reference_id, metadata,
				attempts, max_attempts, last_error, next_attempt_at, created_at
			FROM credit_posting
			WHERE next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED`,
			now, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		var ids []uuid.UUID
		for rows.Next() {
			var p Posting
			var meta []byte
			if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Source, &p.Description,
				&p.ReferenceID, &meta, &p.Attempts, &p.MaxAttempts, &p.LastError,
				&p.NextAttemptAt, &p.CreatedAt); err != nil {
				return err
			}
			if len(meta) > 0 {
				if err := json.Unmarshal(meta, &p.Metadata); err != nil {
					return err
				}
			}
			out = append(out, p)
			ids = append(ids, p.ID)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE credit_posting SET next_attempt_at = $1 WHERE id = ANY($2)`,
			now.Add(lease), ids)
		return err
	})
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func (s *pgStore) Complete(ctx context.Context, p *Posting) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM credit_posting WHERE id = $1`, p.ID)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *pgStore) Reschedule(ctx context.Context, p *Posting, lastError string, nextAttemptAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE credit_posting SET attempts = $2, last_error = $3, next_attempt_at = $4
		WHERE id = $1`,
		p.ID, p.Attempts, lastError, nextAttemptAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *pgStore) MoveToDeadLetter(ctx context.Context, p *Posting, lastError string) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM credit_posting WHERE id = $1`, p.ID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO credit_posting_dlq (id, posting_id, user_id, amount, source, reference_id,
				last_error, attempts, failed_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), p.ID, p.UserID, p.Amount, p.Source, p.ReferenceID,
			lastError, p.Attempts, time.Now().UTC(), p.CreatedAt)
		return err
	})
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *pgStore) ListDeadLetters(ctx context.Context, limit int) ([]DeadPosting, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, posting_id, user_id, amount, source, reference_id, last_error, attempts, failed_at, created_at
		FROM credit_posting_dlq
		ORDER BY failed_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []DeadPosting
	for rows.Next() {
		var d DeadPosting
		if err := rows.Scan(&d.ID, &d.PostingID, &d.UserID, &d.Amount, &d.Source,
			&d.ReferenceID, &d.LastError, &d.Attempts, &d.FailedAt, &d.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}
