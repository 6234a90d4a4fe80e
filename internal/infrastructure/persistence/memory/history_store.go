package memory

import (
	"context"
	"sync"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
)

// HistoryStore is an append-only in-memory audit trail
type HistoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]entity.TransitionRecord
}

// NewHistoryStore creates an empty history store
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{records: make(map[string][]entity.TransitionRecord)}
}

func (s *HistoryStore) Append(ctx context.Context, record *entity.TransitionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.add(record)
	return nil
}

// add stores a copy of record and assigns its id
func (s *HistoryStore) add(record *entity.TransitionRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	record.ID = s.nextID

	stored := *record
	stored.ActorRoles = append([]string(nil), record.ActorRoles...)
	s.records[record.OfferID] = append(s.records[record.OfferID], stored)
}

func (s *HistoryStore) GetByOfferID(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.TransitionRecord, 0, len(s.records[offerID]))
	for _, r := range s.records[offerID] {
		r := r
		r.ActorRoles = append([]string(nil), r.ActorRoles...)
		out = append(out, &r)
	}
	return out, nil
}

var _ port.HistoryRepository = (*HistoryStore)(nil)
