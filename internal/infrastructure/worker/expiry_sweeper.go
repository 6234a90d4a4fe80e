package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/application/workflow"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultSweepSchedule    = "@hourly"
	DefaultSweepBatchSize   = 100
	DefaultSweepConcurrency = 4
)

// ErrSweepInProgress is returned by RunOnce while another run holds the sweeper
var ErrSweepInProgress = errors.New("expiry sweep already running")

// SweepEngine is the part of the lifecycle engine the sweeper drives
type SweepEngine interface {
	ExpiryCandidates(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error)
	Transition(ctx context.Context, cmd workflow.TransitionCommand) (*entity.Offer, error)
}

// SweeperConfig holds expiry sweep settings
type SweeperConfig struct {
	Schedule    string
	BatchSize   int
	Concurrency int
	RunOnStart  bool
}

// SweepResult summarizes one run
type SweepResult struct {
	Scanned  int
	Expired  int
	Skipped  int
	Failed   int
	Duration time.Duration
}

type sweepOutcome int

const (
	outcomeExpired sweepOutcome = iota
	outcomeSkipped
	outcomeFailed
)

// ExpirySweeper periodically moves stale Sent and UnderReview offers to Expired
// through the engine, so the guard and history apply as for any other caller.
type ExpirySweeper struct {
	engine  SweepEngine
	config  SweeperConfig
	metrics port.MetricsRecorder
	logger  *zap.Logger
	now     func() time.Time

	running sync.Mutex
	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewExpirySweeper creates a sweeper; metrics may be nil
func NewExpirySweeper(engine SweepEngine, cfg SweeperConfig, metrics port.MetricsRecorder, logger *zap.Logger) *ExpirySweeper {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSweepSchedule
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweepBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultSweepConcurrency
	}

	return &ExpirySweeper{
		engine:  engine,
		config:  cfg,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Name returns the worker name
func (s *ExpirySweeper) Name() string {
	return "expiry-sweeper"
}

// Start schedules the sweep. Overlapping cron ticks are skipped.
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	schedule, err := cron.ParseStandard(s.config.Schedule)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.config.Schedule, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	cronLogger := &cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(schedule, cron.FuncJob(func() { s.runScheduled(runCtx) }))
	c.Start()

	s.cron = c
	s.cancel = cancel

	if s.config.RunOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runScheduled(runCtx)
		}()
	}

	s.logger.Info("Expiry sweeper started",
		zap.String("schedule", s.config.Schedule),
		zap.Int("batch_size", s.config.BatchSize),
		zap.Int("concurrency", s.config.Concurrency))
	return nil
}

// Stop cancels any running sweep and waits for it to return
func (s *ExpirySweeper) Stop() error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return nil
	}

	cancel()
	<-c.Stop().Done()
	s.wg.Wait()

	s.logger.Info("Expiry sweeper stopped")
	return nil
}

func (s *ExpirySweeper) runScheduled(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
		s.logger.Error("Expiry sweep failed", zap.Error(err))
	}
}

// RunOnce expires every candidate whose validity ended before now. Candidates are
// read in id order one batch at a time; each batch is transitioned with bounded
// concurrency. Per-offer failures are counted and never stop the run.
func (s *ExpirySweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	if !s.running.TryLock() {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.running.Unlock()

	start := s.now()
	var (
		result  SweepResult
		mu      sync.Mutex
		afterID string
		runErr  error
	)

	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		candidates, err := s.engine.ExpiryCandidates(ctx, start, afterID, s.config.BatchSize)
		if err != nil {
			runErr = fmt.Errorf("failed to list expiry candidates: %w", err)
			break
		}
		if len(candidates) == 0 {
			break
		}
		result.Scanned += len(candidates)

		var g errgroup.Group
		g.SetLimit(s.config.Concurrency)
		for _, offer := range candidates {
			offer := offer
			g.Go(func() error {
				outcome := s.expire(ctx, offer)
				mu.Lock()
				defer mu.Unlock()
				switch outcome {
				case outcomeExpired:
					result.Expired++
				case outcomeSkipped:
					result.Skipped++
				default:
					result.Failed++
				}
				return nil
			})
		}
		_ = g.Wait()

		afterID = candidates[len(candidates)-1].ID
		if len(candidates) < s.config.BatchSize {
			break
		}
	}

	result.Duration = s.now().Sub(start)
	if s.metrics != nil {
		s.metrics.RecordSweep(result.Expired, result.Skipped, result.Failed, result.Duration)
	}

	s.logger.Info("Expiry sweep finished",
		zap.Int("scanned", result.Scanned),
		zap.Int("expired", result.Expired),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))

	return result, runErr
}

// expire fires sweepExpire at the version the candidate was read at. A timeout
// is retried once without the version check.
func (s *ExpirySweeper) expire(ctx context.Context, offer *entity.Offer) sweepOutcome {
	cmd := workflow.TransitionCommand{
		OfferID:         offer.ID,
		Trigger:         domainwf.TriggerSweepExpire,
		Actor:           entity.SystemActor,
		ExpectedVersion: workflow.Version(offer.Version),
	}

	_, err := s.engine.Transition(ctx, cmd)
	if errors.Is(err, port.ErrTimeout) {
		s.logger.Warn("Expiry timed out, retrying", zap.String("offer_id", offer.ID))
		cmd.ExpectedVersion = nil
		_, err = s.engine.Transition(ctx, cmd)
		if errors.Is(err, port.ErrTimeout) {
			s.logger.Error("Expiry retry timed out", zap.String("offer_id", offer.ID))
			return outcomeFailed
		}
	}

	switch {
	case err == nil:
		return outcomeExpired
	case lostRace(err):
		s.logger.Debug("Offer changed before expiry, skipped",
			zap.String("offer_id", offer.ID),
			zap.Error(err))
		return outcomeSkipped
	default:
		s.logger.Error("Failed to expire offer",
			zap.String("offer_id", offer.ID),
			zap.Error(err))
		return outcomeFailed
	}
}

// lostRace reports errors caused by a user acting on the offer first
func lostRace(err error) bool {
	return errors.Is(err, port.ErrConcurrentModification) || errors.Is(err, domainwf.ErrInvalidTransition)
}

// cronLogger adapts zap to cron.Logger
type cronLogger struct {
	logger *zap.Logger
}

func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}

var _ Worker = (*ExpirySweeper)(nil)
