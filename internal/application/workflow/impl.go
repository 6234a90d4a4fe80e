package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// triggerCreate labels the first history record of an offer
const triggerCreate domainwf.Trigger = "create"

// engineImpl is the concrete implementation of LifecycleEngine
type engineImpl struct {
	offerRepo   port.OfferRepository
	historyRepo port.HistoryRepository
	txManager   port.TransactionManager
	writer      port.AtomicWriter
	guard       domainwf.Guard
	dispatcher  dispatcher.Dispatcher
	requestSync port.RequestStatusSyncer
	metrics     port.MetricsRecorder
	logger      Logger
	clock       func() time.Time
	newID       func() string

	storeTimeout            time.Duration
	requestSyncTimeout      time.Duration
	managerApprovalRequired bool

	// In-flight request syncs. syncMu orders wg.Add against Close.
	syncMu sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// Create validates and stores a new Draft offer
func (e *engineImpl) Create(ctx context.Context, cmd CreateCommand) (*entity.Offer, error) {
	if !cmd.Actor.IsStaff() {
		return nil, &domainwf.UnauthorizedError{Trigger: triggerCreate, Roles: cmd.Actor.Roles}
	}
	if err := entity.ValidateClientID(cmd.ClientID); err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	contents, err := cmd.Contents.Normalize(now)
	if err != nil {
		return nil, err
	}

	offer := &entity.Offer{
		ID:              e.newID(),
		ClientID:        strings.TrimSpace(cmd.ClientID),
		CreatedBy:       cmd.Actor.ID,
		AssignedTo:      strings.TrimSpace(cmd.AssignedTo),
		Status:          domainwf.StateDraft,
		LinkedRequestID: strings.TrimSpace(cmd.LinkedRequestID),
		Version:         0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	contents.Apply(offer)

	record := &entity.TransitionRecord{
		OfferID:    offer.ID,
		Trigger:    triggerCreate,
		ToStatus:   domainwf.StateDraft,
		ActorID:    cmd.Actor.ID,
		ActorRoles: cmd.Actor.Roles.Strings(),
		Version:    0,
		OccurredAt: now,
	}

	err = e.withStore(ctx, func(sctx context.Context) error {
		return e.persistCreate(sctx, offer, record)
	})
	if err != nil {
		e.logger.Error("Failed to create offer", "client_id", offer.ClientID, "error", err)
		return nil, err
	}

	e.logger.Info("Offer created",
		"offer_id", offer.ID,
		"client_id", offer.ClientID,
		"total_amount", offer.TotalAmount,
	)

	evt := event.NewEvent(event.TypeOfferCreated, offer.ID, offer.Status, offer.Version, now).
		WithActor(cmd.Actor.ID, cmd.Actor.Roles.Strings())
	e.emit(ctx, withOfferPayload(evt, offer))

	if !e.managerApprovalRequired {
		return offer, nil
	}

	pending, err := e.Transition(ctx, TransitionCommand{
		OfferID:         offer.ID,
		Trigger:         domainwf.TriggerRequestApproval,
		Actor:           entity.SystemActor,
		ExpectedVersion: Version(offer.Version),
	})
	if err != nil {
		// The Draft is stored; staff can request approval by hand
		e.logger.Error("Failed to request manager approval", "offer_id", offer.ID, "error", err)
		return offer, nil
	}
	return pending, nil
}

// Transition fires a trigger on an offer
func (e *engineImpl) Transition(ctx context.Context, cmd TransitionCommand) (*entity.Offer, error) {
	if !cmd.Trigger.IsValid() {
		return nil, &entity.ValidationError{Field: "event", Message: fmt.Sprintf("unknown event %q", cmd.Trigger)}
	}

	current, err := e.Get(ctx, cmd.OfferID)
	if err != nil {
		return nil, err
	}

	if cmd.ExpectedVersion != nil && *cmd.ExpectedVersion != current.Version {
		err := fmt.Errorf("%w: offer %s is at version %d, expected %d",
			port.ErrConcurrentModification, current.ID, current.Version, *cmd.ExpectedVersion)
		e.metrics.RecordRejection(cmd.Trigger.String(), ErrorCode(err))
		return nil, err
	}

	now := e.clock().UTC()
	outcome, err := e.guard.Evaluate(e.input(current, cmd.Trigger, cmd.Actor, now, cmd.Payload, false))
	if err != nil {
		e.metrics.RecordRejection(cmd.Trigger.String(), ErrorCode(err))
		return nil, err
	}

	if outcome.NoOp {
		e.logger.Info("Transition is a no-op",
			"offer_id", current.ID,
			"trigger", cmd.Trigger,
			"status", current.Status,
		)
		return current, nil
	}

	next, err := applyEffects(current, outcome, cmd, now)
	if err != nil {
		e.metrics.RecordRejection(cmd.Trigger.String(), ErrorCode(err))
		return nil, err
	}

	record := &entity.TransitionRecord{
		OfferID:    next.ID,
		Trigger:    outcome.Trigger,
		FromStatus: outcome.From,
		ToStatus:   outcome.To,
		ActorID:    cmd.Actor.ID,
		ActorRoles: cmd.Actor.Roles.Strings(),
		Reason:     strings.TrimSpace(cmd.Payload.Reason),
		Version:    next.Version,
		OccurredAt: now,
	}

	err = e.withStore(ctx, func(sctx context.Context) error {
		return e.persistTransition(sctx, current, next, record)
	})
	if err != nil {
		e.metrics.RecordRejection(cmd.Trigger.String(), ErrorCode(err))
		e.logger.Error("Failed to persist transition",
			"offer_id", current.ID,
			"trigger", cmd.Trigger,
			"error", err,
		)
		return nil, err
	}

	e.metrics.RecordTransition(outcome.Trigger.String(), outcome.From.String(), outcome.To.String())
	e.logger.Info("Offer transitioned",
		"offer_id", next.ID,
		"trigger", outcome.Trigger,
		"from", outcome.From,
		"to", outcome.To,
		"version", next.Version,
		"actor_id", cmd.Actor.ID,
	)

	evt := event.NewTransitioned(next.ID, outcome.From, outcome.To, outcome.Trigger, next.Version, now).
		WithActor(cmd.Actor.ID, cmd.Actor.Roles.Strings()).
		WithReason(record.Reason)
	e.emit(ctx, withOfferPayload(evt, next))

	if outcome.Trigger == domainwf.TriggerSendToSalesman && next.LinkedRequestID != "" {
		e.syncRequest(ctx, next.LinkedRequestID, next.ID)
	}

	return next, nil
}

// Annotate appends a note under the same compare-and-swap as a transition
func (e *engineImpl) Annotate(ctx context.Context, offerID string, actor entity.Actor, note string) (*entity.Offer, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, &entity.ValidationError{Field: "note", Message: "is required"}
	}
	if !actor.IsStaff() && !actor.Roles.Has(domainwf.RoleSystem) {
		return nil, &domainwf.UnauthorizedError{Trigger: "annotate", Roles: actor.Roles}
	}

	current, err := e.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}

	now := e.clock().UTC()
	next := current.Clone()
	next.Annotations = append(next.Annotations, entity.Annotation{By: actor.ID, At: now, Note: note})
	next.Version = current.Version + 1
	next.UpdatedAt = now

	err = e.withStore(ctx, func(sctx context.Context) error {
		return e.offerRepo.Update(sctx, next, current.Version)
	})
	if err != nil {
		return nil, err
	}

	evt := event.NewEvent(event.TypeOfferAnnotated, next.ID, next.Status, next.Version, now).
		WithActor(actor.ID, actor.Roles.Strings()).
		WithPayload("note", note)
	e.emit(ctx, withOfferPayload(evt, next))

	return next, nil
}

func (e *engineImpl) Get(ctx context.Context, offerID string) (*entity.Offer, error) {
	if strings.TrimSpace(offerID) == "" {
		return nil, fmt.Errorf("%w: empty id", port.ErrNotFound)
	}

	var offer *entity.Offer
	err := e.withStore(ctx, func(sctx context.Context) error {
		var err error
		offer, err = e.offerRepo.GetByID(sctx, offerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if offer == nil {
		return nil, fmt.Errorf("%w: %s", port.ErrNotFound, offerID)
	}
	return offer, nil
}

func (e *engineImpl) List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, &entity.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)}
	}
	filter = filter.Normalize()

	var page *port.OfferPage
	err := e.withStore(ctx, func(sctx context.Context) error {
		var err error
		page, err = e.offerRepo.List(sctx, filter)
		return err
	})
	return page, err
}

func (e *engineImpl) CountByStatus(ctx context.Context, status domainwf.State) (int, error) {
	if !status.IsValid() {
		return 0, &entity.ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}

	var count int
	err := e.withStore(ctx, func(sctx context.Context) error {
		var err error
		count, err = e.offerRepo.CountByStatus(sctx, status)
		return err
	})
	return count, err
}

func (e *engineImpl) History(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error) {
	if _, err := e.Get(ctx, offerID); err != nil {
		return nil, err
	}
	if e.historyRepo == nil {
		return []*entity.TransitionRecord{}, nil
	}

	var records []*entity.TransitionRecord
	err := e.withStore(ctx, func(sctx context.Context) error {
		var err error
		records, err = e.historyRepo.GetByOfferID(sctx, offerID)
		return err
	})
	return records, err
}

func (e *engineImpl) CanTransition(offer *entity.Offer, trigger domainwf.Trigger, actor entity.Actor) bool {
	if offer == nil {
		return false
	}
	return e.guard.CanFire(e.input(offer, trigger, actor, e.clock().UTC(), Payload{}, true))
}

func (e *engineImpl) PermittedTriggers(offer *entity.Offer, actor entity.Actor) []domainwf.Trigger {
	if offer == nil {
		return []domainwf.Trigger{}
	}
	return e.guard.PermittedTriggers(e.input(offer, "", actor, e.clock().UTC(), Payload{}, true))
}

func (e *engineImpl) ExpiryCandidates(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error) {
	if limit <= 0 {
		limit = DefaultCandidateLimit
	}

	var offers []*entity.Offer
	err := e.withStore(ctx, func(sctx context.Context) error {
		var err error
		offers, err = e.offerRepo.ListExpirable(sctx, asOf.UTC(), afterID, limit)
		return err
	})
	return offers, err
}

func (e *engineImpl) Close() error {
	e.syncMu.Lock()
	if e.closed {
		e.syncMu.Unlock()
		return nil
	}
	e.closed = true
	e.syncMu.Unlock()

	e.wg.Wait()
	return nil
}

func (e *engineImpl) input(o *entity.Offer, trigger domainwf.Trigger, actor entity.Actor, now time.Time, p Payload, dryRun bool) domainwf.Input {
	return domainwf.Input{
		From:        o.Status,
		Trigger:     trigger,
		Roles:       actor.Roles,
		Approved:    o.Approved(),
		ExpiresAt:   o.ExpiresAt(),
		Now:         now,
		Reason:      p.Reason,
		AssignedTo:  p.AssignedTo,
		HasRevision: p.Revision != nil,
		DryRun:      dryRun,
	}
}

// withStore runs op under the store timeout and reports an expired deadline as port.ErrTimeout
func (e *engineImpl) withStore(ctx context.Context, op func(ctx context.Context) error) error {
	sctx, cancel := context.WithTimeout(ctx, e.storeTimeout)
	defer cancel()

	err := op(sctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
		if !errors.Is(err, port.ErrTimeout) {
			return fmt.Errorf("%w: %v", port.ErrTimeout, err)
		}
	}
	return err
}

// persistCreate stores a new offer and its first history record so that both land or neither does
func (e *engineImpl) persistCreate(ctx context.Context, offer *entity.Offer, record *entity.TransitionRecord) error {
	switch {
	case e.writer != nil:
		return e.writer.CreateWithHistory(ctx, offer, record)
	case e.txManager != nil:
		return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.offerRepo.Create(txCtx, offer); err != nil {
				return err
			}
			return e.appendHistory(txCtx, record)
		})
	}

	// History first: a record whose offer never landed is unreachable, since History looks the offer up
	if err := e.appendHistory(ctx, record); err != nil {
		return err
	}
	return e.offerRepo.Create(ctx, offer)
}

// persistTransition writes next over current by compare-and-swap together with its history record
func (e *engineImpl) persistTransition(ctx context.Context, current, next *entity.Offer, record *entity.TransitionRecord) error {
	switch {
	case e.writer != nil:
		return e.writer.UpdateWithHistory(ctx, next, current.Version, record)
	case e.txManager != nil:
		return e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			if err := e.offerRepo.Update(txCtx, next, current.Version); err != nil {
				return err
			}
			return e.appendHistory(txCtx, record)
		})
	}

	if err := e.offerRepo.Update(ctx, next, current.Version); err != nil {
		return err
	}
	if err := e.appendHistory(ctx, record); err != nil {
		return e.revert(ctx, current, next, err)
	}
	return nil
}

// revert puts current back after its successor was stored without a history record.
// It runs detached from ctx, which may already be past its deadline.
func (e *engineImpl) revert(ctx context.Context, current, next *entity.Offer, cause error) error {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.storeTimeout)
	defer cancel()

	if err := e.offerRepo.Update(rctx, current, next.Version); err != nil {
		e.logger.Error("Failed to revert offer after history write failed",
			"offer_id", current.ID,
			"version", next.Version,
			"error", err,
		)
		return errors.Join(cause, fmt.Errorf("failed to revert offer %s to version %d: %w", current.ID, current.Version, err))
	}
	return cause
}

func (e *engineImpl) appendHistory(ctx context.Context, record *entity.TransitionRecord) error {
	if e.historyRepo == nil {
		return nil
	}
	if err := e.historyRepo.Append(ctx, record); err != nil {
		return fmt.Errorf("failed to append history: %w", err)
	}
	return nil
}

func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.DispatchAsync(context.WithoutCancel(ctx), evt)
}

// syncRequest marks the OfferRequest Ready in the background. Failures never roll back the offer.
func (e *engineImpl) syncRequest(ctx context.Context, requestID, offerID string) {
	if e.requestSync == nil {
		return
	}

	e.syncMu.Lock()
	if e.closed {
		e.syncMu.Unlock()
		e.logger.Info("Engine closed, skipping offer request sync", "request_id", requestID, "offer_id", offerID)
		return
	}
	e.wg.Add(1)
	e.syncMu.Unlock()

	go func() {
		defer e.wg.Done()

		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.requestSyncTimeout)
		defer cancel()

		if err := e.requestSync.MarkReady(sctx, requestID, offerID); err != nil {
			e.metrics.RecordRequestSyncFailure()
			e.logger.Error("Failed to mark offer request ready",
				"request_id", requestID,
				"offer_id", offerID,
				"error", err,
			)
			return
		}
		e.logger.Info("Offer request marked ready", "request_id", requestID, "offer_id", offerID)
	}()
}

func withOfferPayload(evt *event.Event, o *entity.Offer) *event.Event {
	return evt.
		WithPayload("client_id", o.ClientID).
		WithPayload("created_by", o.CreatedBy).
		WithPayload("assigned_to", o.AssignedTo).
		WithPayload("total_amount", o.TotalAmount).
		WithPayload("modification_reason", o.ModificationReason)
}
