package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// Mock implementations

type mockOfferRepo struct {
	mu        sync.Mutex
	offers    map[string]*entity.Offer
	updateErr error
	block     bool
	updates   int
}

func newMockOfferRepo() *mockOfferRepo {
	return &mockOfferRepo{offers: make(map[string]*entity.Offer)}
}

func (m *mockOfferRepo) seed(o *entity.Offer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offers[o.ID] = o.Clone()
}

func (m *mockOfferRepo) stored(id string) *entity.Offer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offers[id].Clone()
}

func (m *mockOfferRepo) Create(ctx context.Context, offer *entity.Offer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.offers[offer.ID]; exists {
		return port.ErrAlreadyExists
	}
	m.offers[offer.ID] = offer.Clone()
	return nil
}

func (m *mockOfferRepo) GetByID(ctx context.Context, id string) (*entity.Offer, error) {
	m.mu.Lock()
	block := m.block
	m.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	o, exists := m.offers[id]
	if !exists {
		return nil, port.ErrNotFound
	}
	return o.Clone(), nil
}

func (m *mockOfferRepo) Update(ctx context.Context, offer *entity.Offer, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	current, exists := m.offers[offer.ID]
	if !exists {
		return port.ErrNotFound
	}
	if current.Version != expectedVersion {
		return port.ErrConcurrentModification
	}
	m.offers[offer.ID] = offer.Clone()
	m.updates++
	return nil
}

func (m *mockOfferRepo) List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	page := &port.OfferPage{Page: filter.Page, PageSize: filter.PageSize}
	for _, o := range m.offers {
		if filter.Matches(o) {
			page.Offers = append(page.Offers, o.Clone())
		}
	}
	page.Total = len(page.Offers)
	return page, nil
}

func (m *mockOfferRepo) CountByStatus(ctx context.Context, status domainwf.State) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, o := range m.offers {
		if o.Status == status {
			count++
		}
	}
	return count, nil
}

func (m *mockOfferRepo) ListExpirable(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Offer
	for _, o := range m.offers {
		if o.Status != domainwf.StateSent && o.Status != domainwf.StateUnderReview {
			continue
		}
		if exp := o.ExpiresAt(); exp != nil && exp.Before(asOf) && o.ID > afterID {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type mockHistoryRepo struct {
	mu        sync.Mutex
	records   []*entity.TransitionRecord
	appendErr error
}

func (m *mockHistoryRepo) Append(ctx context.Context, record *entity.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockHistoryRepo) GetByOfferID(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*entity.TransitionRecord
	for _, r := range m.records {
		if r.OfferID == offerID {
			result = append(result, r)
		}
	}
	return result, nil
}

// mockAtomicWriter applies writes to repo and keeps the records it was handed
type mockAtomicWriter struct {
	mu      sync.Mutex
	repo    *mockOfferRepo
	calls   []string
	records []*entity.TransitionRecord
	err     error
}

func (m *mockAtomicWriter) CreateWithHistory(ctx context.Context, offer *entity.Offer, record *entity.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, "create "+offer.ID)
	if m.err != nil {
		return m.err
	}
	if err := m.repo.Create(ctx, offer); err != nil {
		return err
	}
	m.records = append(m.records, record)
	return nil
}

func (m *mockAtomicWriter) UpdateWithHistory(ctx context.Context, offer *entity.Offer, expectedVersion int64, record *entity.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fmt.Sprintf("update %s@%d", offer.ID, expectedVersion))
	if m.err != nil {
		return m.err
	}
	if err := m.repo.Update(ctx, offer, expectedVersion); err != nil {
		return err
	}
	m.records = append(m.records, record)
	return nil
}

type mockTxManager struct {
	commitErr error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	return fn(ctx)
}

type mockDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockDispatcher) Subscribe(eventType event.Type, name string, handler dispatcher.Handler) {}

func (m *mockDispatcher) Unsubscribe(eventType event.Type, name string) {}

func (m *mockDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	m.DispatchAsync(ctx, evt)
	return nil
}

func (m *mockDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockDispatcher) ListHandlers(eventType event.Type) []dispatcher.HandlerInfo {
	return nil
}

func (m *mockDispatcher) Close() error {
	return nil
}

func (m *mockDispatcher) ofType(t event.Type) []*event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*event.Event
	for _, e := range m.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockRequestSync struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (m *mockRequestSync) MarkReady(ctx context.Context, requestID, offerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, requestID+"->"+offerID)
	return m.err
}

type mockMetrics struct {
	mu           sync.Mutex
	transitions  int
	rejections   map[string]int
	syncFailures int
}

func newMockMetrics() *mockMetrics {
	return &mockMetrics{rejections: make(map[string]int)}
}

func (m *mockMetrics) RecordTransition(trigger, from, to string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions++
}

func (m *mockMetrics) RecordRejection(trigger, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejections[code]++
}

func (m *mockMetrics) RecordRequestSyncFailure() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncFailures++
}

func (m *mockMetrics) RecordSweep(expired, skipped, failed int, duration time.Duration) {}
