package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

const (
	DefaultStoreTimeout       = 5 * time.Second
	DefaultRequestSyncTimeout = 10 * time.Second
	DefaultCandidateLimit     = 100
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EngineOption configures the lifecycle engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithRequestSync sets the OfferRequest syncer notified after sendToSalesman
func WithRequestSync(s port.RequestStatusSyncer) EngineOption {
	return func(e *engineImpl) {
		e.requestSync = s
	}
}

// WithAtomicWriter routes offer writes and their history records through w,
// for stores that cannot offer a TransactionManager
func WithAtomicWriter(w port.AtomicWriter) EngineOption {
	return func(e *engineImpl) {
		e.writer = w
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m port.MetricsRecorder) EngineOption {
	return func(e *engineImpl) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger sets the engine logger
func WithLogger(l Logger) EngineOption {
	return func(e *engineImpl) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now, mostly for tests
func WithClock(clock func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.clock = clock
	}
}

// WithIDGenerator overrides the offer id generator
func WithIDGenerator(gen func() string) EngineOption {
	return func(e *engineImpl) {
		e.newID = gen
	}
}

// WithGuard replaces the offer rules table
func WithGuard(g domainwf.Guard) EngineOption {
	return func(e *engineImpl) {
		e.guard = g
	}
}

// WithStoreTimeout bounds every store call
func WithStoreTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		if d > 0 {
			e.storeTimeout = d
		}
	}
}

// WithRequestSyncTimeout bounds the background OfferRequest update
func WithRequestSyncTimeout(d time.Duration) EngineOption {
	return func(e *engineImpl) {
		if d > 0 {
			e.requestSyncTimeout = d
		}
	}
}

// WithManagerApproval makes Create request manager approval right away
func WithManagerApproval(required bool) EngineOption {
	return func(e *engineImpl) {
		e.managerApprovalRequired = required
	}
}

// NewEngine creates a new lifecycle engine. historyRepo and txManager may be nil.
// Without a transaction manager or atomic writer, a transition whose history write
// fails is reverted by a second compare-and-swap.
func NewEngine(
	offerRepo port.OfferRepository,
	historyRepo port.HistoryRepository,
	txManager port.TransactionManager,
	opts ...EngineOption,
) LifecycleEngine {
	e := &engineImpl{
		offerRepo:          offerRepo,
		historyRepo:        historyRepo,
		txManager:          txManager,
		guard:              domainwf.NewOfferGuard(),
		metrics:            nopMetrics{},
		logger:             nopLogger{},
		clock:              time.Now,
		newID:              uuid.NewString,
		storeTimeout:       DefaultStoreTimeout,
		requestSyncTimeout: DefaultRequestSyncTimeout,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type nopMetrics struct{}

func (nopMetrics) RecordTransition(string, string, string)  {}
func (nopMetrics) RecordRejection(string, string)           {}
func (nopMetrics) RecordRequestSyncFailure()                {}
func (nopMetrics) RecordSweep(int, int, int, time.Duration) {}
