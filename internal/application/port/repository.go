package port

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

var (
	// ErrNotFound is returned when no offer exists for the given id
	ErrNotFound = errors.New("offer not found")
	// ErrConcurrentModification is returned when a write targets a stale version
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrTimeout is returned when a store call exceeds its deadline
	ErrTimeout = errors.New("store operation timed out")
	// ErrAlreadyExists is returned when an offer id is inserted twice
	ErrAlreadyExists = errors.New("offer already exists")
	// ErrRequestNotFound is returned when an offer request id is unknown
	ErrRequestNotFound = errors.New("offer request not found")
)

const (
	DefaultPage     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100

	// MaxPage keeps (Page-1)*PageSize inside an int for any allowed page size
	MaxPage = math.MaxInt32 / MaxPageSize
)

// OfferFilter narrows List queries. Zero values mean "any".
type OfferFilter struct {
	Status     workflow.State
	AssignedTo string
	// CreatedAtOrBefore pins a multi-page walk to the offers that existed when it began
	CreatedAtOrBefore time.Time
	Page              int
	PageSize          int
}

// Normalize applies paging defaults and clamps the page size
func (f OfferFilter) Normalize() OfferFilter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Page > MaxPage {
		f.Page = MaxPage
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// Offset returns the number of rows to skip for the filter's page
func (f OfferFilter) Offset() int {
	return (f.Page - 1) * f.PageSize
}

// Matches reports whether an offer satisfies the filter predicates
func (f OfferFilter) Matches(o *entity.Offer) bool {
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	if f.AssignedTo != "" && o.AssignedTo != f.AssignedTo {
		return false
	}
	if !f.CreatedAtOrBefore.IsZero() && o.CreatedAt.After(f.CreatedAtOrBefore) {
		return false
	}
	return true
}

// OfferPage is one page of a List result
type OfferPage struct {
	Offers   []*entity.Offer `json:"offers"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}

// OfferRepository defines persistence operations for Offer.
// Update is a compare-and-swap: it succeeds only while the stored version equals expectedVersion.
type OfferRepository interface {
	Create(ctx context.Context, offer *entity.Offer) error
	GetByID(ctx context.Context, id string) (*entity.Offer, error)
	Update(ctx context.Context, offer *entity.Offer, expectedVersion int64) error
	List(ctx context.Context, filter OfferFilter) (*OfferPage, error)
	CountByStatus(ctx context.Context, status workflow.State) (int, error)

	// ListExpirable returns Sent or UnderReview offers whose latest validUntil is before asOf,
	// ordered by id and starting after afterID
	ListExpirable(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error)
}

// HistoryRepository defines persistence operations for the transition audit trail
type HistoryRepository interface {
	Append(ctx context.Context, record *entity.TransitionRecord) error
	GetByOfferID(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error)
}

// AtomicWriter persists an offer write together with its history record as one unit:
// either both land or neither does. Stores without multi-statement transactions
// implement it in place of TransactionManager.
type AtomicWriter interface {
	CreateWithHistory(ctx context.Context, offer *entity.Offer, record *entity.TransitionRecord) error
	UpdateWithHistory(ctx context.Context, offer *entity.Offer, expectedVersion int64, record *entity.TransitionRecord) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
