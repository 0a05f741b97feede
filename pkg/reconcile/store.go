package reconcile

import (
	"context"
	"time"
)

// Store persists pending postings and the dead-letter log.
type Store interface {
	// Enqueue adds a posting to the retry queue.
	Enqueue(ctx context.Context, p *Posting) error

	// ClaimDue atomically claims up to limit postings whose
	// NextAttemptAt is at or before now, pushing their NextAttemptAt
	// forward by lease so concurrent workers do not double-process.
	ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Posting, error)

	// Complete removes a posting that was applied (or turned out to be a
	// duplicate).
	Complete(ctx context.Context, p *Posting) error

	// Reschedule records a failed attempt and the next retry time.
	Reschedule(ctx context.Context, p *Posting, lastError string, nextAttemptAt time.Time) error

	// MoveToDeadLetter removes the posting and records it in the DLQ
	// after retries are exhausted.
	MoveToDeadLetter(ctx context.Context, p *Posting, lastError string) error

	// ListDeadLetters returns dead postings newest first, for admin
	// tooling and audits.
	ListDeadLetters(ctx context.Context, limit int) ([]DeadPosting, error)
}
