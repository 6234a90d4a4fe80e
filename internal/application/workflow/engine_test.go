package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

var (
	fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	supportActor = entity.Actor{ID: "support-1", Roles: domainwf.RoleSet{domainwf.RoleSalesSupport}}
	managerActor = entity.Actor{ID: "manager-1", Roles: domainwf.RoleSet{domainwf.RoleSalesManager}}
	adminActor   = entity.Actor{ID: "admin-1", Roles: domainwf.RoleSet{domainwf.RoleSuperAdmin}}
)

type testEnv struct {
	repo     *mockOfferRepo
	history  *mockHistoryRepo
	tx       *mockTxManager
	events   *mockDispatcher
	sync     *mockRequestSync
	metrics  *mockMetrics
	engine   LifecycleEngine
	idSerial int
}

func newTestEnv(t *testing.T, opts ...EngineOption) *testEnv {
	t.Helper()
	env := &testEnv{
		repo:    newMockOfferRepo(),
		history: &mockHistoryRepo{},
		tx:      &mockTxManager{},
		events:  &mockDispatcher{},
		sync:    &mockRequestSync{},
		metrics: newMockMetrics(),
	}

	base := []EngineOption{
		WithDispatcher(env.events),
		WithRequestSync(env.sync),
		WithMetrics(env.metrics),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(func() string {
			env.idSerial++
			return "offer-" + string(rune('a'+env.idSerial-1))
		}),
	}
	env.engine = NewEngine(env.repo, env.history, env.tx, append(base, opts...)...)
	t.Cleanup(func() { _ = env.engine.Close() })
	return env
}

func (env *testEnv) fire(t *testing.T, id string, trigger domainwf.Trigger, actor entity.Actor, p Payload) (*entity.Offer, error) {
	t.Helper()
	return env.engine.Transition(context.Background(), TransitionCommand{
		OfferID: id,
		Trigger: trigger,
		Actor:   actor,
		Payload: p,
	})
}

func createCommand() CreateCommand {
	return CreateCommand{
		ClientID: "42",
		Contents: entity.Contents{LineItems: []entity.LineItem{{Description: "pump", Price: 1000}}},
		Actor:    supportActor,
	}
}

func seededOffer(id string, status domainwf.State, version int64) *entity.Offer {
	return &entity.Offer{
		ID:          id,
		ClientID:    "42",
		CreatedBy:   supportActor.ID,
		Status:      status,
		LineItems:   []entity.LineItem{{Price: 500, Quantity: 1}},
		TotalAmount: 500,
		Version:     version,
		CreatedAt:   fixedNow.Add(-72 * time.Hour),
		UpdatedAt:   fixedNow.Add(-72 * time.Hour),
	}
}

func TestNewEngine(t *testing.T) {
	engine := NewEngine(newMockOfferRepo(), nil, nil)
	require.NotNil(t, engine)
	assert.NoError(t, engine.Close())
	assert.NoError(t, engine.Close())
}

func TestEngineCreate(t *testing.T) {
	env := newTestEnv(t)

	offer, err := env.engine.Create(context.Background(), createCommand())
	require.NoError(t, err)

	assert.Equal(t, domainwf.StateDraft, offer.Status)
	assert.Equal(t, int64(0), offer.Version)
	assert.Equal(t, 1000.0, offer.TotalAmount)
	assert.Equal(t, "support-1", offer.CreatedBy)
	assert.Equal(t, fixedNow, offer.CreatedAt)

	created := env.events.ofType(event.TypeOfferCreated)
	require.Len(t, created, 1)
	assert.Equal(t, offer.ID, created[0].OfferID)
	assert.Equal(t, "42", created[0].GetPayloadString("client_id"))

	history, err := env.engine.History(context.Background(), offer.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domainwf.StateDraft, history[0].ToStatus)
}

func TestEngineCreateValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cmd *CreateCommand)
		field  string
	}{
		{"missing client", func(cmd *CreateCommand) { cmd.ClientID = " " }, "client_id"},
		{"no items and no description", func(cmd *CreateCommand) { cmd.Contents = entity.Contents{TotalAmount: 10} }, "line_items"},
		{"negative price", func(cmd *CreateCommand) { cmd.Contents.LineItems[0].Price = -1 }, "line_items[0].price"},
		{"validUntil in the past", func(cmd *CreateCommand) {
			cmd.Contents.ValidUntil = []time.Time{fixedNow.Add(-48 * time.Hour)}
		}, "valid_until[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			cmd := createCommand()
			tt.mutate(&cmd)

			_, err := env.engine.Create(context.Background(), cmd)

			var ve *entity.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Empty(t, env.repo.offers)
			assert.Empty(t, env.events.events)
		})
	}
}

func TestEngineCreateUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	cmd := createCommand()
	cmd.Actor = entity.Actor{ID: "client-portal", Roles: domainwf.RoleSet{"Client"}}

	_, err := env.engine.Create(context.Background(), cmd)
	assert.ErrorIs(t, err, domainwf.ErrUnauthorized)
}

func TestEngineCreateWithManagerApproval(t *testing.T) {
	env := newTestEnv(t, WithManagerApproval(true))

	offer, err := env.engine.Create(context.Background(), createCommand())
	require.NoError(t, err)

	assert.Equal(t, domainwf.StatePendingManagerApproval, offer.Status)
	assert.Equal(t, int64(1), offer.Version)

	transitioned := env.events.ofType(event.TypeOfferTransitioned)
	require.Len(t, transitioned, 1)
	assert.Equal(t, "system", transitioned[0].ActorID)

	count, err := env.engine.CountByStatus(context.Background(), domainwf.StatePendingManagerApproval)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEngineHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	offer, err := env.engine.Create(ctx, createCommand())
	require.NoError(t, err)
	require.Equal(t, 1000.0, offer.TotalAmount)

	offer, err = env.fire(t, offer.ID, domainwf.TriggerApprove, managerActor, Payload{Comments: "ok"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateDraft, offer.Status)
	require.True(t, offer.Approved())
	assert.Equal(t, "manager-1", offer.Approval.ApprovedBy)

	offer, err = env.fire(t, offer.ID, domainwf.TriggerSendToSalesman, supportActor, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSent, offer.Status)
	require.NotNil(t, offer.SentAt)

	offer, err = env.fire(t, offer.ID, domainwf.TriggerClientAccepted, supportActor, Payload{ClientResponse: "signed"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateAccepted, offer.Status)
	assert.Equal(t, "signed", offer.ClientResponse)
	assert.Equal(t, int64(3), offer.Version)

	_, err = env.fire(t, offer.ID, domainwf.TriggerMarkNeedsModification, managerActor, Payload{Reason: "late"})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	assert.Equal(t, int64(3), env.repo.stored(offer.ID).Version)
}

func TestEngineApprovalGate(t *testing.T) {
	env := newTestEnv(t)

	offer, err := env.engine.Create(context.Background(), createCommand())
	require.NoError(t, err)

	_, err = env.fire(t, offer.ID, domainwf.TriggerSendToSalesman, supportActor, Payload{})
	require.ErrorIs(t, err, domainwf.ErrApprovalRequired)
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
	assert.Equal(t, CodeApprovalRequired, ErrorCode(err))
	assert.Equal(t, int64(0), env.repo.stored(offer.ID).Version)

	_, err = env.fire(t, offer.ID, domainwf.TriggerRequestApproval, supportActor, Payload{})
	require.NoError(t, err)
	_, err = env.fire(t, offer.ID, domainwf.TriggerApprove, adminActor, Payload{})
	require.NoError(t, err)

	sent, err := env.fire(t, offer.ID, domainwf.TriggerSendToSalesman, supportActor, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSent, sent.Status)
	assert.Equal(t, 1, env.metrics.rejections[CodeApprovalRequired])
}

func TestEngineRejectionLoop(t *testing.T) {
	env := newTestEnv(t)

	offer, err := env.engine.Create(context.Background(), createCommand())
	require.NoError(t, err)
	_, err = env.fire(t, offer.ID, domainwf.TriggerApprove, managerActor, Payload{})
	require.NoError(t, err)
	_, err = env.fire(t, offer.ID, domainwf.TriggerSendToSalesman, supportActor, Payload{})
	require.NoError(t, err)

	modified, err := env.fire(t, offer.ID, domainwf.TriggerMarkNeedsModification, managerActor, Payload{Reason: "price too high"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateNeedsModification, modified.Status)
	assert.Nil(t, modified.Approval)
	assert.Equal(t, "price too high", modified.ModificationReason)

	revision := &entity.Contents{LineItems: []entity.LineItem{{Description: "pump", Price: 900}}}
	edited, err := env.fire(t, offer.ID, domainwf.TriggerEdited, supportActor, Payload{Revision: revision})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateDraft, edited.Status)
	assert.Equal(t, 900.0, edited.TotalAmount)
	assert.False(t, edited.Approved())

	_, err = env.fire(t, offer.ID, domainwf.TriggerSendToSalesman, supportActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrApprovalRequired)

	decisions := env.repo.stored(offer.ID).ApprovalHistory
	require.Len(t, decisions, 2)
	assert.Equal(t, entity.DecisionApproved, decisions[0].Decision)
	assert.Equal(t, entity.DecisionCleared, decisions[1].Decision)
}

func TestEngineEditedRequiresSalesSupport(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateNeedsModification, 2))

	_, err := env.fire(t, "o1", domainwf.TriggerEdited, managerActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrUnauthorized)
	assert.Equal(t, CodeUnauthorized, ErrorCode(err))
}

func TestEngineInvalidRevisionWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateDraft, 1))

	_, err := env.fire(t, "o1", domainwf.TriggerRevise, supportActor, Payload{
		Revision: &entity.Contents{LineItems: []entity.LineItem{{Price: 100}}, TotalAmount: 150},
	})
	assert.ErrorIs(t, err, entity.ErrValidation)
	assert.Equal(t, int64(1), env.repo.stored("o1").Version)
	assert.Empty(t, env.events.events)
}

func TestEngineReviseClearsApproval(t *testing.T) {
	env := newTestEnv(t)
	seed := seededOffer("o1", domainwf.StateDraft, 1)
	approvedAt := fixedNow
	seed.Approval = &entity.Approval{ApprovedBy: "manager-1", ApprovedAt: &approvedAt}
	env.repo.seed(seed)

	revised, err := env.fire(t, "o1", domainwf.TriggerRevise, supportActor, Payload{
		Revision: &entity.Contents{ProductDescription: "service contract", TotalAmount: 700, DiscountAmount: 50},
	})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateDraft, revised.Status)
	assert.Equal(t, 700.0, revised.TotalAmount)
	assert.False(t, revised.Approved())
	assert.Equal(t, int64(2), revised.Version)
}

func TestEngineMarkUnderReviewIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateSent, 2))

	first, err := env.fire(t, "o1", domainwf.TriggerMarkUnderReview, managerActor, Payload{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), first.Version)

	second, err := env.fire(t, "o1", domainwf.TriggerMarkUnderReview, managerActor, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateUnderReview, second.Status)
	assert.Equal(t, int64(3), second.Version)

	assert.Len(t, env.events.ofType(event.TypeOfferTransitioned), 1)
	assert.Equal(t, 1, env.repo.updates)
}

func TestEngineNoOpStillChecksRole(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateUnderReview, 2))

	_, err := env.fire(t, "o1", domainwf.TriggerMarkUnderReview, supportActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrUnauthorized)
}

func TestEngineConcurrentTransitions(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateSent, 3))

	triggers := []struct {
		trigger domainwf.Trigger
		actor   entity.Actor
	}{
		{domainwf.TriggerClientAccepted, supportActor},
		{domainwf.TriggerMarkNeedsModification, managerActor},
	}

	var wg sync.WaitGroup
	results := make([]error, len(triggers))
	offers := make([]*entity.Offer, len(triggers))
	for i, tr := range triggers {
		wg.Add(1)
		go func(i int, trigger domainwf.Trigger, actor entity.Actor) {
			defer wg.Done()
			offers[i], results[i] = env.engine.Transition(context.Background(), TransitionCommand{
				OfferID:         "o1",
				Trigger:         trigger,
				Actor:           actor,
				ExpectedVersion: Version(3),
			})
		}(i, tr.trigger, tr.actor)
	}
	wg.Wait()

	succeeded, conflicted := 0, 0
	for i, err := range results {
		switch {
		case err == nil:
			succeeded++
			assert.Equal(t, int64(4), offers[i].Version)
		case errors.Is(err, port.ErrConcurrentModification):
			conflicted++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, conflicted)
	assert.Equal(t, int64(4), env.repo.stored("o1").Version)
	assert.Len(t, env.events.ofType(event.TypeOfferTransitioned), 1)
}

func TestEngineStaleExpectedVersion(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateSent, 5))

	_, err := env.engine.Transition(context.Background(), TransitionCommand{
		OfferID:         "o1",
		Trigger:         domainwf.TriggerMarkUnderReview,
		Actor:           managerActor,
		ExpectedVersion: Version(4),
	})
	assert.ErrorIs(t, err, port.ErrConcurrentModification)
	assert.Equal(t, 0, env.repo.updates)
}

func TestEngineTerminalStatesAreImmutable(t *testing.T) {
	everyone := entity.Actor{ID: "root", Roles: domainwf.RoleSet{
		domainwf.RoleSalesSupport, domainwf.RoleSalesManager, domainwf.RoleSuperAdmin, domainwf.RoleSystem,
	}}
	allTriggers := []domainwf.Trigger{
		domainwf.TriggerRequestApproval, domainwf.TriggerApprove, domainwf.TriggerReject,
		domainwf.TriggerSendToSalesman, domainwf.TriggerMarkUnderReview, domainwf.TriggerResumeToSent,
		domainwf.TriggerMarkNeedsModification, domainwf.TriggerEdited, domainwf.TriggerClientAccepted,
		domainwf.TriggerClientRejected, domainwf.TriggerSweepExpire, domainwf.TriggerAssign, domainwf.TriggerRevise,
	}

	for _, state := range []domainwf.State{domainwf.StateAccepted, domainwf.StateRejected, domainwf.StateExpired} {
		t.Run(state.String(), func(t *testing.T) {
			env := newTestEnv(t)
			env.repo.seed(seededOffer("o1", state, 7))

			for _, trigger := range allTriggers {
				_, err := env.fire(t, "o1", trigger, everyone, Payload{Reason: "r", AssignedTo: "a"})
				assert.ErrorIs(t, err, domainwf.ErrInvalidTransition, "trigger %s", trigger)
			}

			assert.Equal(t, int64(7), env.repo.stored("o1").Version)
			assert.Empty(t, env.events.events)
		})
	}
}

func TestEngineSweepExpire(t *testing.T) {
	env := newTestEnv(t)
	yesterday := fixedNow.Add(-24 * time.Hour)
	nextWeek := fixedNow.Add(7 * 24 * time.Hour)

	stale := seededOffer("o1", domainwf.StateSent, 2)
	stale.ValidUntil = []time.Time{yesterday}
	fresh := seededOffer("o2", domainwf.StateUnderReview, 2)
	fresh.ValidUntil = []time.Time{nextWeek}
	env.repo.seed(stale)
	env.repo.seed(fresh)

	candidates, err := env.engine.ExpiryCandidates(context.Background(), fixedNow, "", 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "o1", candidates[0].ID)

	expired, err := env.fire(t, "o1", domainwf.TriggerSweepExpire, entity.SystemActor, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateExpired, expired.Status)

	_, err = env.fire(t, "o2", domainwf.TriggerSweepExpire, entity.SystemActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	_, err = env.fire(t, "o2", domainwf.TriggerSweepExpire, adminActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrUnauthorized)
}

func TestEngineTransactionFailureWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateSent, 2))
	env.tx.commitErr = errors.New("disk full")

	_, err := env.fire(t, "o1", domainwf.TriggerMarkUnderReview, managerActor, Payload{})
	require.Error(t, err)
	assert.Equal(t, domainwf.StateSent, env.repo.stored("o1").Status)
	assert.Empty(t, env.events.events)
	assert.Equal(t, 0, env.metrics.transitions)
}

func TestEngineHistoryFailureWithoutTransactionRevertsOffer(t *testing.T) {
	repo := newMockOfferRepo()
	repo.seed(seededOffer("o1", domainwf.StateDraft, 0))
	events := &mockDispatcher{}
	engine := NewEngine(repo, &mockHistoryRepo{appendErr: errors.New("history table gone")}, nil,
		WithDispatcher(events),
		WithClock(func() time.Time { return fixedNow }),
	)
	t.Cleanup(func() { _ = engine.Close() })

	_, err := engine.Transition(context.Background(), TransitionCommand{
		OfferID: "o1",
		Trigger: domainwf.TriggerApprove,
		Actor:   managerActor,
	})
	require.Error(t, err)

	stored := repo.stored("o1")
	assert.Equal(t, int64(0), stored.Version)
	assert.False(t, stored.Approved())
	assert.Empty(t, events.events)
}

func TestEngineHistoryFailureWithoutTransactionSkipsCreate(t *testing.T) {
	repo := newMockOfferRepo()
	engine := NewEngine(repo, &mockHistoryRepo{appendErr: errors.New("history table gone")}, nil,
		WithIDGenerator(func() string { return "o1" }),
	)
	t.Cleanup(func() { _ = engine.Close() })

	_, err := engine.Create(context.Background(), createCommand())
	require.Error(t, err)

	_, err = repo.GetByID(context.Background(), "o1")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestEngineUsesAtomicWriter(t *testing.T) {
	writer := &mockAtomicWriter{repo: newMockOfferRepo()}
	writer.repo.seed(seededOffer("o1", domainwf.StateDraft, 0))
	history := &mockHistoryRepo{}
	engine := NewEngine(writer.repo, history, nil,
		WithAtomicWriter(writer),
		WithClock(func() time.Time { return fixedNow }),
	)
	t.Cleanup(func() { _ = engine.Close() })

	approved, err := engine.Transition(context.Background(), TransitionCommand{
		OfferID: "o1",
		Trigger: domainwf.TriggerApprove,
		Actor:   managerActor,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), approved.Version)

	assert.Equal(t, []string{"update o1@0"}, writer.calls)
	require.Len(t, writer.records, 1)
	assert.Equal(t, domainwf.TriggerApprove, writer.records[0].Trigger)
	assert.Empty(t, history.records)

	writer.err = errors.New("transaction cancelled")
	_, err = engine.Transition(context.Background(), TransitionCommand{
		OfferID: "o1",
		Trigger: domainwf.TriggerSendToSalesman,
		Actor:   supportActor,
	})
	require.Error(t, err)
	assert.Equal(t, int64(1), writer.repo.stored("o1").Version)
}

func TestEngineCloseStopsRequestSync(t *testing.T) {
	env := newTestEnv(t)
	seed := seededOffer("o1", domainwf.StateDraft, 1)
	seed.Approval = &entity.Approval{ApprovedBy: "manager-1"}
	seed.LinkedRequestID = "req-9"
	env.repo.seed(seed)
	require.NoError(t, env.engine.Close())

	sent, err := env.fire(t, "o1", domainwf.TriggerSendToSalesman, supportActor, Payload{})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateSent, sent.Status)
	assert.Empty(t, env.sync.calls)
}

func TestEngineStoreTimeout(t *testing.T) {
	env := newTestEnv(t, WithStoreTimeout(20*time.Millisecond))
	env.repo.block = true

	_, err := env.engine.Get(context.Background(), "o1")
	assert.ErrorIs(t, err, port.ErrTimeout)
	assert.Equal(t, CodeTimeout, ErrorCode(err))
}

func TestEngineNotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.fire(t, "missing", domainwf.TriggerApprove, managerActor, Payload{})
	assert.ErrorIs(t, err, port.ErrNotFound)

	_, err = env.engine.History(context.Background(), "missing")
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestEngineUnknownTrigger(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateDraft, 0))

	_, err := env.fire(t, "o1", domainwf.Trigger("archive"), adminActor, Payload{})
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestEngineRequestSync(t *testing.T) {
	t.Run("marks request ready after send", func(t *testing.T) {
		env := newTestEnv(t)
		seed := seededOffer("o1", domainwf.StateDraft, 1)
		seed.Approval = &entity.Approval{ApprovedBy: "manager-1"}
		seed.LinkedRequestID = "req-9"
		env.repo.seed(seed)

		_, err := env.fire(t, "o1", domainwf.TriggerSendToSalesman, supportActor, Payload{})
		require.NoError(t, err)
		require.NoError(t, env.engine.Close())

		assert.Equal(t, []string{"req-9->o1"}, env.sync.calls)
	})

	t.Run("failure keeps the offer sent", func(t *testing.T) {
		env := newTestEnv(t)
		env.sync.err = errors.New("request service down")
		seed := seededOffer("o1", domainwf.StateDraft, 1)
		seed.Approval = &entity.Approval{ApprovedBy: "manager-1"}
		seed.LinkedRequestID = "req-9"
		env.repo.seed(seed)

		sent, err := env.fire(t, "o1", domainwf.TriggerSendToSalesman, supportActor, Payload{})
		require.NoError(t, err)
		require.NoError(t, env.engine.Close())

		assert.Equal(t, domainwf.StateSent, sent.Status)
		assert.Equal(t, domainwf.StateSent, env.repo.stored("o1").Status)
		assert.Equal(t, 1, env.metrics.syncFailures)
	})

	t.Run("no linked request", func(t *testing.T) {
		env := newTestEnv(t)
		seed := seededOffer("o1", domainwf.StateDraft, 1)
		seed.Approval = &entity.Approval{ApprovedBy: "manager-1"}
		env.repo.seed(seed)

		_, err := env.fire(t, "o1", domainwf.TriggerSendToSalesman, supportActor, Payload{})
		require.NoError(t, err)
		require.NoError(t, env.engine.Close())
		assert.Empty(t, env.sync.calls)
	})
}

func TestEngineAnnotate(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateExpired, 4))

	offer, err := env.engine.Annotate(context.Background(), "o1", managerActor, "client called after expiry")
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateExpired, offer.Status)
	assert.Equal(t, int64(5), offer.Version)
	require.Len(t, offer.Annotations, 1)
	assert.Equal(t, "manager-1", offer.Annotations[0].By)
	assert.Len(t, env.events.ofType(event.TypeOfferAnnotated), 1)

	_, err = env.engine.Annotate(context.Background(), "o1", managerActor, "  ")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestEngineAssign(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StateDraft, 0))

	_, err := env.fire(t, "o1", domainwf.TriggerAssign, supportActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	assigned, err := env.fire(t, "o1", domainwf.TriggerAssign, supportActor, Payload{AssignedTo: "salesman-7"})
	require.NoError(t, err)
	assert.Equal(t, "salesman-7", assigned.AssignedTo)
	assert.Equal(t, domainwf.StateDraft, assigned.Status)
	assert.Equal(t, int64(1), assigned.Version)
}

func TestEngineRejectRequiresReason(t *testing.T) {
	env := newTestEnv(t)
	env.repo.seed(seededOffer("o1", domainwf.StatePendingManagerApproval, 1))

	_, err := env.fire(t, "o1", domainwf.TriggerReject, managerActor, Payload{})
	assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)

	rejected, err := env.fire(t, "o1", domainwf.TriggerReject, managerActor, Payload{Reason: "margin too low"})
	require.NoError(t, err)
	assert.Equal(t, domainwf.StateRejected, rejected.Status)
	assert.Equal(t, "margin too low", rejected.Approval.RejectionReason)

	history, err := env.engine.History(context.Background(), "o1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "margin too low", history[0].Reason)
	assert.Equal(t, []string{"SalesManager"}, history[0].ActorRoles)
}

func TestEngineQueries(t *testing.T) {
	env := newTestEnv(t)
	draft := seededOffer("o1", domainwf.StateDraft, 0)
	env.repo.seed(draft)
	env.repo.seed(seededOffer("o2", domainwf.StateSent, 2))

	assert.False(t, env.engine.CanTransition(draft, domainwf.TriggerSendToSalesman, supportActor))
	assert.True(t, env.engine.CanTransition(draft, domainwf.TriggerRequestApproval, supportActor))
	assert.True(t, env.engine.CanTransition(draft, domainwf.TriggerAssign, supportActor))
	assert.False(t, env.engine.CanTransition(nil, domainwf.TriggerAssign, supportActor))

	assert.Equal(t,
		[]domainwf.Trigger{domainwf.TriggerRequestApproval, domainwf.TriggerAssign, domainwf.TriggerRevise},
		env.engine.PermittedTriggers(draft, supportActor))

	page, err := env.engine.List(context.Background(), port.OfferFilter{Status: domainwf.StateSent, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, port.MaxPageSize, page.PageSize)
	assert.Equal(t, 1, page.Page)

	_, err = env.engine.List(context.Background(), port.OfferFilter{Status: "Archived"})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = env.engine.CountByStatus(context.Background(), "")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&entity.ValidationError{Field: "x"}, CodeValidation},
		{&domainwf.UnauthorizedError{Trigger: domainwf.TriggerApprove}, CodeUnauthorized},
		{&domainwf.TransitionError{Cause: domainwf.ErrApprovalRequired}, CodeApprovalRequired},
		{&domainwf.TransitionError{}, CodeInvalidTransition},
		{port.ErrConcurrentModification, CodeConcurrentModification},
		{port.ErrNotFound, CodeNotFound},
		{port.ErrTimeout, CodeTimeout},
		{errors.New("boom"), CodeInternal},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorCode(tt.err))
	}
}
