package payment

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.Mutex
	records  map[string]Record
	events   []Event
	eventIDs map[string]struct{}
}

// NewMemoryStore returns an in-memory Store for tests and single-process
// deployments.
func NewMemoryStore() Store {
	return &memoryStore{
		records:  make(map[string]Record),
		eventIDs: make(map[string]struct{}),
	}
}

func (s *memoryStore) GetRecord(ctx context.Context, id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	out := rec
	return &out, nil
}

func (s *memoryStore) GetRecordBySubscriptionID(ctx context.Context, subscriptionID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.records {
		if rec.SubscriptionID == subscriptionID && rec.SubscriptionID != "" {
			out := rec
			return &out, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (s *memoryStore) UpsertRecord(ctx context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.ID]; ok {
		rec.CreatedAt = existing.CreatedAt
	}
	s.records[rec.ID] = *rec
	return nil
}

func (s *memoryStore) InsertEvent(ctx context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, seen := s.eventIDs[ev.ProviderEventID]; seen {
		return ErrEventAlreadyProcessed
	}
	s.eventIDs[ev.ProviderEventID] = struct{}{}
	s.events = append(s.events, *ev)
	return nil
}

func (s *memoryStore) IsEventProcessed(ctx context.Context, providerEventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, seen := s.eventIDs[providerEventID]
	return seen, nil
}

func (s *memoryStore) ListEvents(ctx context.Context, recordID string, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Event, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if s.events[i].RecordID == recordID {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}
