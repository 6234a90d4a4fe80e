package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func sentOffer(id string, version int64, validUntil ...time.Time) *entity.Offer {
	created := time.Now().Add(-30 * 24 * time.Hour)
	return &entity.Offer{
		ID:          id,
		ClientID:    "client-1",
		CreatedBy:   "u-support",
		Status:      domainwf.StateSent,
		TotalAmount: 100,
		ValidUntil:  validUntil,
		Version:     version,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestExpirySweeper_ExpiresOnlyElapsedOffers(t *testing.T) {
	ctx := context.Background()
	offers := memory.NewOfferStore()
	history := memory.NewHistoryStore()
	engine := workflow.NewEngine(offers, history, nil)
	defer engine.Close()

	yesterday := time.Now().Add(-24 * time.Hour)
	nextWeek := time.Now().Add(7 * 24 * time.Hour)
	require.NoError(t, offers.Create(ctx, sentOffer("a", 2, yesterday)))
	require.NoError(t, offers.Create(ctx, sentOffer("b", 2, nextWeek)))

	s := NewExpirySweeper(engine, SweeperConfig{}, nil, zap.NewNop())
	result, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Expired)

	a, err := offers.GetByID(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateExpired, a.Status)
	assert.Equal(t, int64(3), a.Version)

	b, err := offers.GetByID(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSent, b.Status)
	assert.Equal(t, int64(2), b.Version)

	records, err := history.GetByOfferID(ctx, "a")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domainwf.TriggerSweepExpire, records[0].Trigger)
	assert.Equal(t, "system", records[0].ActorID)

	// A second run finds nothing left to do
	result, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
}

// fakeEngine serves candidates from a fixed list and answers Transition from a script
type fakeEngine struct {
	mu         sync.Mutex
	candidates []*entity.Offer
	respond    func(cmd workflow.TransitionCommand, attempt int) error
	attempts   map[string]int
	listCalls  int
	listErr    error
	inFlight   atomic.Int32
	maxFlight  atomic.Int32
	started    chan struct{}
}

func (f *fakeEngine) ExpiryCandidates(_ context.Context, _ time.Time, afterID string, limit int) ([]*entity.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.started != nil && f.listCalls == 1 {
		close(f.started)
	}
	if f.listErr != nil {
		return nil, f.listErr
	}

	var out []*entity.Offer
	for _, o := range f.candidates {
		if o.ID > afterID && len(out) < limit {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeEngine) Transition(_ context.Context, cmd workflow.TransitionCommand) (*entity.Offer, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		max := f.maxFlight.Load()
		if n <= max || f.maxFlight.CompareAndSwap(max, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)

	f.mu.Lock()
	if f.attempts == nil {
		f.attempts = make(map[string]int)
	}
	f.attempts[cmd.OfferID]++
	attempt := f.attempts[cmd.OfferID]
	f.mu.Unlock()

	if f.respond != nil {
		if err := f.respond(cmd, attempt); err != nil {
			return nil, err
		}
	}
	return &entity.Offer{ID: cmd.OfferID, Status: domainwf.StateExpired}, nil
}

type recordedSweep struct {
	expired, skipped, failed int
}

type fakeMetrics struct {
	port.MetricsRecorder
	sweeps []recordedSweep
}

func (m *fakeMetrics) RecordSweep(expired, skipped, failed int, _ time.Duration) {
	m.sweeps = append(m.sweeps, recordedSweep{expired, skipped, failed})
}

func candidates(n int) []*entity.Offer {
	out := make([]*entity.Offer, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, &entity.Offer{ID: fmt.Sprintf("offer-%03d", i), Version: 5})
	}
	return out
}

func TestExpirySweeper_Outcomes(t *testing.T) {
	engine := &fakeEngine{
		candidates: candidates(5),
		respond: func(cmd workflow.TransitionCommand, attempt int) error {
			switch cmd.OfferID {
			case "offer-001":
				return fmt.Errorf("%w: stale", port.ErrConcurrentModification)
			case "offer-002":
				return &domainwf.TransitionError{From: domainwf.StateAccepted, Trigger: domainwf.TriggerSweepExpire, Reason: "terminal"}
			case "offer-003":
				if attempt == 1 {
					return port.ErrTimeout
				}
				if cmd.ExpectedVersion != nil {
					return errors.New("retry must drop the version check")
				}
				return nil
			case "offer-004":
				return errors.New("disk full")
			}
			if cmd.ExpectedVersion == nil || *cmd.ExpectedVersion != 5 {
				return errors.New("expected version 5")
			}
			if cmd.Actor.ID != entity.SystemActor.ID || cmd.Trigger != domainwf.TriggerSweepExpire {
				return errors.New("unexpected command")
			}
			return nil
		},
	}
	metrics := &fakeMetrics{}

	s := NewExpirySweeper(engine, SweeperConfig{BatchSize: 2, Concurrency: 2}, metrics, zap.NewNop())
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, result.Scanned)
	assert.Equal(t, 2, result.Expired)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, 1, result.Failed)
	// Batches of 2, 2 and 1; the short batch ends the run
	assert.Equal(t, 3, engine.listCalls)
	assert.Equal(t, 2, engine.attempts["offer-003"])
	require.Len(t, metrics.sweeps, 1)
	assert.Equal(t, recordedSweep{2, 2, 1}, metrics.sweeps[0])
}

func TestExpirySweeper_TimeoutTwiceFails(t *testing.T) {
	engine := &fakeEngine{
		candidates: candidates(1),
		respond: func(workflow.TransitionCommand, int) error {
			return port.ErrTimeout
		},
	}

	s := NewExpirySweeper(engine, SweeperConfig{}, nil, zap.NewNop())
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, engine.attempts["offer-000"])
}

func TestExpirySweeper_BoundsConcurrency(t *testing.T) {
	engine := &fakeEngine{candidates: candidates(20)}

	s := NewExpirySweeper(engine, SweeperConfig{BatchSize: 20, Concurrency: 3}, nil, zap.NewNop())
	result, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, result.Expired)
	assert.LessOrEqual(t, engine.maxFlight.Load(), int32(3))
}

func TestExpirySweeper_ListErrorStopsRun(t *testing.T) {
	engine := &fakeEngine{listErr: errors.New("db down")}
	metrics := &fakeMetrics{}

	s := NewExpirySweeper(engine, SweeperConfig{}, metrics, zap.NewNop())
	_, err := s.RunOnce(context.Background())
	assert.ErrorContains(t, err, "db down")
	assert.Len(t, metrics.sweeps, 1)
}

func TestExpirySweeper_RejectsOverlappingRuns(t *testing.T) {
	s := NewExpirySweeper(&fakeEngine{}, SweeperConfig{}, nil, zap.NewNop())
	s.running.Lock()
	defer s.running.Unlock()

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)
}

func TestExpirySweeper_StartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	engine := &fakeEngine{candidates: candidates(1), started: make(chan struct{})}
	s := NewExpirySweeper(engine, SweeperConfig{Schedule: "@hourly", RunOnStart: true}, nil, zap.NewNop())

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	select {
	case <-engine.started:
	case <-time.After(2 * time.Second):
		t.Fatal("sweep did not run on start")
	}

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestExpirySweeper_InvalidSchedule(t *testing.T) {
	s := NewExpirySweeper(&fakeEngine{}, SweeperConfig{Schedule: "not a schedule"}, nil, zap.NewNop())
	assert.Error(t, s.Start(context.Background()))
}
