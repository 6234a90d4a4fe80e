package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
)

// RequestStore keeps upstream offer requests for the memory driver
type RequestStore struct {
	mu       sync.RWMutex
	requests map[string]entity.OfferRequest
	now      func() time.Time
}

// NewRequestStore creates an empty request store
func NewRequestStore() *RequestStore {
	return &RequestStore{
		requests: make(map[string]entity.OfferRequest),
		now:      time.Now,
	}
}

// Create inserts a new offer request
func (s *RequestStore) Create(ctx context.Context, req *entity.OfferRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("offer request %s already exists", req.ID)
	}
	now := s.now().UTC()
	if req.Status == "" {
		req.Status = entity.RequestStatusOpen
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	s.requests[req.ID] = *req
	return nil
}

// GetByID retrieves an offer request by ID
func (s *RequestStore) GetByID(ctx context.Context, id string) (*entity.OfferRequest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", port.ErrRequestNotFound, id)
	}
	return &req, nil
}

// MarkReady records that offerID answering requestID has been sent
func (s *RequestStore) MarkReady(ctx context.Context, requestID, offerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return fmt.Errorf("%w: %s", port.ErrRequestNotFound, requestID)
	}
	req.Status = entity.RequestStatusReady
	req.OfferID = offerID
	req.UpdatedAt = s.now().UTC()
	s.requests[requestID] = req
	return nil
}

var _ port.RequestStatusSyncer = (*RequestStore)(nil)
