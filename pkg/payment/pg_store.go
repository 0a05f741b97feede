package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/creditkit/creditkit/pkg/pg"
)

type pgStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore returns a Store backed by the payment_record and
// payment_event tables. Record upserts use INSERT ... ON CONFLICT so
// concurrent duplicate checkout deliveries collapse into one row; the
// unique index on payment_event.provider_event_id backs the idempotency
// guarantee.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	if pool == nil {
		panic("payment: pgxpool.Pool is required")
	}
	return &pgStore{pool: pool}
}

const recordColumns = `id, price_id, kind, billing_interval, user_id, customer_id, subscription_id,
	status, period_start, period_end, trial_start, trial_end, cancel_at_period_end, created_at, updated_at`

func (s *pgStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payment_record WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *pgStore) GetRecordBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM payment_record WHERE subscription_id = $1`, subscriptionID)
	return scanRecord(row)
}

func (s *pgStore) UpsertRecord(ctx context.Context, rec *Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_record (id, price_id, kind, billing_interval, user_id, customer_id, subscription_id,
			status, period_start, period_end, trial_start, trial_end, cancel_at_period_end, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			price_id = EXCLUDED.price_id,
			status = EXCLUDED.status,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.PriceID, rec.Kind, rec.BillingInterval, rec.UserID, rec.CustomerID, rec.SubscriptionID,
		rec.Status, rec.PeriodStart, rec.PeriodEnd, rec.TrialStart, rec.TrialEnd,
		rec.CancelAtPeriodEnd, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *pgStore) InsertEvent(ctx context.Context, ev *Event) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_event (id, payment_record_id, event_type, provider_event_id, raw_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ev.ID, ev.RecordID, ev.EventType, ev.ProviderEventID, ev.RawPayload, ev.CreatedAt)
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEventAlreadyProcessed
		}
		return errors.Join(ErrStoreFailure, err)
	}
	return nil
}

func (s *pgStore) IsEventProcessed(ctx context.Context, providerEventID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM payment_event WHERE provider_event_id = $1)`,
		providerEventID).Scan(&exists)
	if err != nil {
		return false, errors.Join(ErrStoreFailure, err)
	}
	return exists, nil
}

func (s *pgStore) ListEvents(ctx context.Context, recordID string, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, payment_record_id, event_type, provider_event_id, raw_payload, created_at
		FROM payment_event
		WHERE payment_record_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`,
		recordID, limit)
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.RecordID, &ev.EventType, &ev.ProviderEventID,
			&ev.RawPayload, &ev.CreatedAt); err != nil {
			return nil, errors.Join(ErrStoreFailure, err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.PriceID, &rec.Kind, &rec.BillingInterval, &rec.UserID,
		&rec.CustomerID, &rec.SubscriptionID, &rec.Status, &rec.PeriodStart, &rec.PeriodEnd,
		&rec.TrialStart, &rec.TrialEnd, &rec.CancelAtPeriodEnd, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrRecordNotFound
		}
		return nil, errors.Join(ErrStoreFailure, err)
	}
	return &rec, nil
}
