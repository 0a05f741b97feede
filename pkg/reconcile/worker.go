package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/creditkit/creditkit/pkg/ledger"
)

// Worker drains the posting queue in the background, applying each
// posting through the ledger. A posting that hits ErrDuplicateReference
// is complete: the grant landed on an earlier attempt or through a
// concurrent webhook redelivery.
type Worker struct {
	store  Store
	ledger ledger.Service

	pollInterval time.Duration
	batchSize    int
	lease        time.Duration
	backoff      Backoff
	log          *slog.Logger
	now          func() time.Time
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

// WithPollInterval sets how often the worker checks for due postings.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithBatchSize caps how many postings one poll claims.
func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

// WithWorkerBackoff sets the retry delay schedule.
func WithWorkerBackoff(b Backoff) WorkerOption {
	return func(w *Worker) { w.backoff = b }
}

// WithWorkerLogger sets the structured logger. Nil loggers are ignored.
func WithWorkerLogger(log *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if log != nil {
			w.log = log
		}
	}
}

// NewWorker creates a reconciliation worker.
func NewWorker(store Store, ledgerSvc ledger.Service, opts ...WorkerOption) (*Worker, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if ledgerSvc == nil {
		return nil, ErrLedgerNil
	}

	w := &Worker{
		store:        store,
		ledger:       ledgerSvc,
		pollInterval: 30 * time.Second,
		batchSize:    50,
		lease:        5 * time.Minute,
		log:          slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run polls until the context is cancelled. Cancellation is the normal
// shutdown path and returns nil; other context errors surface.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			w.ProcessDue(ctx)
		}
	}
}

// ProcessDue claims and applies one batch of due postings. Exposed so
// tests and admin tooling can drive the queue without the polling loop.
func (w *Worker) ProcessDue(ctx context.Context) {
	postings, err := w.store.ClaimDue(ctx, w.now(), w.batchSize, w.lease)
	if err != nil {
		w.log.ErrorContext(ctx, "failed to claim due credit postings", slog.Any("error", err))
		return
	}

	for i := range postings {
		w.process(ctx, &postings[i])
	}
}

func (w *Worker) process(ctx context.Context, p *Posting) {
	log := w.log.With(
		slog.String("posting_id", p.ID.String()),
		slog.String("reference_id", p.ReferenceID),
		slog.String("user_id", p.UserID))

	_, err := w.ledger.Earn(ctx, p.Entry())
	if err == nil || errors.Is(err, ledger.ErrDuplicateReference) {
		if err != nil {
			log.DebugContext(ctx, "credit posting already applied")
		} else {
			log.InfoContext(ctx, "credit posting applied", slog.Int64("amount", p.Amount))
		}
		if cerr := w.store.Complete(ctx, p); cerr != nil {
			log.ErrorContext(ctx, "failed to complete credit posting", slog.Any("error", cerr))
		}
		return
	}

	p.Attempts++
	if p.Attempts >= p.MaxAttempts {
		log.ErrorContext(ctx, "credit posting exhausted retries, moving to dead letter",
			slog.Int("attempts", p.Attempts),
			slog.Any("error", err))
		if derr := w.store.MoveToDeadLetter(ctx, p, err.Error()); derr != nil {
			log.ErrorContext(ctx, "failed to dead-letter credit posting", slog.Any("error", derr))
		}
		return
	}

	next := w.now().Add(w.backoff.NextInterval(p.Attempts + 1))
	log.WarnContext(ctx, "credit posting retry failed, rescheduling",
		slog.Int("attempts", p.Attempts),
		slog.Time("next_attempt_at", next),
		slog.Any("error", err))
	if rerr := w.store.Reschedule(ctx, p, err.Error(), next); rerr != nil {
		log.ErrorContext(ctx, "failed to reschedule credit posting", slog.Any("error", rerr))
	}
}
