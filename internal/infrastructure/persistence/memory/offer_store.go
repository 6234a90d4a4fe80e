// Package memory holds process-local stores used by tests and the "memory" database driver.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// OfferStore keeps offers in a map. Every read returns a clone, and Update
// checks and writes the version inside one critical section.
//
// A store built by NewLinkedStores also records history inside that section,
// so CreateWithHistory and UpdateWithHistory land both writes or neither.
// Lock order is offers before history.
type OfferStore struct {
	mu      sync.RWMutex
	offers  map[string]*entity.Offer
	history *HistoryStore
}

// NewOfferStore creates an empty store
func NewOfferStore() *OfferStore {
	return &OfferStore{offers: make(map[string]*entity.Offer)}
}

// NewLinkedStores creates an offer store that writes history into the returned history store
func NewLinkedStores() (*OfferStore, *HistoryStore) {
	history := NewHistoryStore()
	offers := NewOfferStore()
	offers.history = history
	return offers, history
}

func (s *OfferStore) Create(ctx context.Context, offer *entity.Offer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offers[offer.ID]; exists {
		return fmt.Errorf("%w: %s", port.ErrAlreadyExists, offer.ID)
	}
	s.offers[offer.ID] = offer.Clone()
	return nil
}

func (s *OfferStore) GetByID(ctx context.Context, id string) (*entity.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.offers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrNotFound, id)
	}
	return o.Clone(), nil
}

func (s *OfferStore) Update(ctx context.Context, offer *entity.Offer, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.offers[offer.ID]
	if !ok {
		return fmt.Errorf("%w: %s", port.ErrNotFound, offer.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: offer %s is at version %d, not %d",
			port.ErrConcurrentModification, offer.ID, current.Version, expectedVersion)
	}
	s.offers[offer.ID] = offer.Clone()
	return nil
}

func (s *OfferStore) CreateWithHistory(ctx context.Context, offer *entity.Offer, record *entity.TransitionRecord) error {
	if s.history == nil {
		return errNoHistory
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.offers[offer.ID]; exists {
		return fmt.Errorf("%w: %s", port.ErrAlreadyExists, offer.ID)
	}
	s.history.add(record)
	s.offers[offer.ID] = offer.Clone()
	return nil
}

func (s *OfferStore) UpdateWithHistory(ctx context.Context, offer *entity.Offer, expectedVersion int64, record *entity.TransitionRecord) error {
	if s.history == nil {
		return errNoHistory
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.offers[offer.ID]
	if !ok {
		return fmt.Errorf("%w: %s", port.ErrNotFound, offer.ID)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: offer %s is at version %d, not %d",
			port.ErrConcurrentModification, offer.ID, current.Version, expectedVersion)
	}
	s.history.add(record)
	s.offers[offer.ID] = offer.Clone()
	return nil
}

func (s *OfferStore) List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filter = filter.Normalize()

	s.mu.RLock()
	matched := make([]*entity.Offer, 0, len(s.offers))
	for _, o := range s.offers {
		if filter.Matches(o) {
			matched = append(matched, o.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	page := &port.OfferPage{
		Offers:   []*entity.Offer{},
		Total:    len(matched),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if start := filter.Offset(); start >= 0 && start < len(matched) {
		end := start + filter.PageSize
		if end > len(matched) {
			end = len(matched)
		}
		page.Offers = matched[start:end]
	}
	return page, nil
}

func (s *OfferStore) CountByStatus(ctx context.Context, status workflow.State) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, o := range s.offers {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

func (s *OfferStore) ListExpirable(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := []*entity.Offer{}
	for id, o := range s.offers {
		if id <= afterID || !expirable(o, asOf) {
			continue
		}
		out = append(out, o.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func expirable(o *entity.Offer, asOf time.Time) bool {
	if o.Status != workflow.StateSent && o.Status != workflow.StateUnderReview {
		return false
	}
	exp := o.ExpiresAt()
	return exp != nil && exp.Before(asOf)
}

var errNoHistory = errors.New("offer store has no linked history store")

var (
	_ port.OfferRepository = (*OfferStore)(nil)
	_ port.AtomicWriter    = (*OfferStore)(nil)
)
