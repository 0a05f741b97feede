package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/creditkit/creditkit/pkg/ledger"
)

// Queue accepts failed credit grants from webhook handlers. It
// implements the processor's CreditRetryQueue interface.
type Queue struct {
	store       Store
	maxAttempts int
	backoff     Backoff
	log         *slog.Logger
	now         func() time.Time
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxAttempts sets how many times a posting is retried before it
// moves to the dead-letter log.
func WithMaxAttempts(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

// WithQueueBackoff sets the retry delay schedule.
func WithQueueBackoff(b Backoff) QueueOption {
	return func(q *Queue) { q.backoff = b }
}

// WithQueueLogger sets the structured logger. Nil loggers are ignored.
func WithQueueLogger(log *slog.Logger) QueueOption {
	return func(q *Queue) {
		if log != nil {
			q.log = log
		}
	}
}

// NewQueue creates a posting queue on top of the given store.
func NewQueue(store Store, opts ...QueueOption) (*Queue, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	q := &Queue{
		store:       store,
		maxAttempts: 5,
		log:         slog.Default(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Defer stores a failed credit grant for out-of-band retry. The first
// retry is delayed by the backoff's initial interval; there is no point
// retrying immediately against a store that just failed.
func (q *Queue) Defer(ctx context.Context, e ledger.Entry, cause error) error {
	now := q.now()
	p := &Posting{
		ID:            uuid.New(),
		UserID:        e.UserID,
		Amount:        e.Amount,
		Source:        e.Source,
		Description:   e.Description,
		ReferenceID:   e.ReferenceID,
		Metadata:      e.Metadata,
		MaxAttempts:   q.maxAttempts,
		LastError:     cause.Error(),
		NextAttemptAt: now.Add(q.backoff.NextInterval(1)),
		CreatedAt:     now,
	}

	if err := q.store.Enqueue(ctx, p); err != nil {
		return err
	}

	q.log.InfoContext(ctx, "credit posting queued for retry",
		slog.String("posting_id", p.ID.String()),
		slog.String("reference_id", p.ReferenceID),
		slog.String("user_id", p.UserID))
	return nil
}
