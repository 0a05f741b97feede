package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu       sync.Mutex
	postings map[uuid.UUID]Posting
	dead     []DeadPosting
}

// NewMemoryStore returns an in-memory Store for tests and
// single-process deployments.
func NewMemoryStore() Store {
	return &memoryStore{
		postings: make(map[uuid.UUID]Posting),
	}
}

func (s *memoryStore) Enqueue(ctx context.Context, p *Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.postings[p.ID] = *p
	return nil
}

func (s *memoryStore) ClaimDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]Posting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Posting
	for id, p := range s.postings {
		if len(out) >= limit {
			break
		}
		if p.NextAttemptAt.After(now) {
			continue
		}
		claimed := p
		p.NextAttemptAt = now.Add(lease)
		s.postings[id] = p
		out = append(out, claimed)
	}
	return out, nil
}

func (s *memoryStore) Complete(ctx context.Context, p *Posting) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.postings, p.ID)
	return nil
}

func (s *memoryStore) Reschedule(ctx context.Context, p *Posting, lastError string, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.postings[p.ID]
	if !ok {
		return nil
	}
	stored.Attempts = p.Attempts
	stored.LastError = lastError
	stored.NextAttemptAt = nextAttemptAt
	s.postings[p.ID] = stored
	return nil
}

func (s *memoryStore) MoveToDeadLetter(ctx context.Context, p *Posting, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.postings, p.ID)
	now := time.Now().UTC()
	s.dead = append(s.dead, DeadPosting{
		ID:          uuid.New(),
		PostingID:   p.ID,
		UserID:      p.UserID,
		Amount:      p.Amount,
		Source:      p.Source,
		ReferenceID: p.ReferenceID,
		LastError:   lastError,
		Attempts:    p.Attempts,
		FailedAt:    now,
		CreatedAt:   p.CreatedAt,
	})
	return nil
}

func (s *memoryStore) ListDeadLetters(ctx context.Context, limit int) ([]DeadPosting, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]DeadPosting, 0, limit)
	for i := len(s.dead) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.dead[i])
	}
	return out, nil
}
