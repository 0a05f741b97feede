package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/creditkit/creditkit/pkg/ledger"
)

// Posting is a credit grant that failed inside a webhook handler and
// awaits out-of-band retry. The webhook was already acknowledged, so the
// billing provider will not redeliver it; this queue is the only path
// that completes the grant.
type Posting struct {
	ID            uuid.UUID
	UserID        string
	Amount        int64
	Source        ledger.Source
	Description   string
	ReferenceID   string
	Metadata      map[string]string
	Attempts      int
	MaxAttempts   int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
}

// Entry converts the posting back into the ledger entry it carries.
func (p *Posting) Entry() ledger.Entry {
	return ledger.Entry{
		UserID:      p.UserID,
		Amount:      p.Amount,
		Source:      p.Source,
		Description: p.Description,
		ReferenceID: p.ReferenceID,
		Metadata:    p.Metadata,
	}
}

// DeadPosting is a posting that exhausted all retries, kept for manual
// inspection and recovery.
type DeadPosting struct {
	ID          uuid.UUID
	PostingID   uuid.UUID
	UserID      string
	Amount      int64
	Source      ledger.Source
	ReferenceID string
	LastError   string
	Attempts    int
	FailedAt    time.Time
	CreatedAt   time.Time
}
