package workflow

import (
	"context"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// LifecycleEngine owns every status change of an offer
type LifecycleEngine interface {
	// Create validates and stores a new Draft offer
	Create(ctx context.Context, cmd CreateCommand) (*entity.Offer, error)

	// Transition fires a trigger on an offer and returns the stored result
	Transition(ctx context.Context, cmd TransitionCommand) (*entity.Offer, error)

	// Annotate appends a note; allowed in every state
	Annotate(ctx context.Context, offerID string, actor entity.Actor, note string) (*entity.Offer, error)

	Get(ctx context.Context, offerID string) (*entity.Offer, error)
	List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error)
	CountByStatus(ctx context.Context, status domainwf.State) (int, error)
	History(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error)

	// CanTransition and PermittedTriggers answer what-if questions without a payload
	CanTransition(offer *entity.Offer, trigger domainwf.Trigger, actor entity.Actor) bool
	PermittedTriggers(offer *entity.Offer, actor entity.Actor) []domainwf.Trigger

	// ExpiryCandidates lists Sent and UnderReview offers past their validity, ordered by id
	ExpiryCandidates(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error)

	// Close waits for in-flight background request syncs
	Close() error
}

// CreateCommand carries the input of Create. It is what the OfferRequest producer supplies.
type CreateCommand struct {
	ClientID        string
	Contents        entity.Contents
	AssignedTo      string
	LinkedRequestID string
	Actor           entity.Actor
}

// Payload holds the trigger-specific data of a transition request
type Payload struct {
	Reason         string           `json:"reason,omitempty"`
	Comments       string           `json:"comments,omitempty"`
	ClientResponse string           `json:"client_response,omitempty"`
	AssignedTo     string           `json:"assigned_to,omitempty"`
	Revision       *entity.Contents `json:"revision,omitempty"`
}

// TransitionCommand carries the input of Transition.
// ExpectedVersion, when set, must equal the stored version or nothing is written.
type TransitionCommand struct {
	OfferID         string
	Trigger         domainwf.Trigger
	Actor           entity.Actor
	Payload         Payload
	ExpectedVersion *int64
}

// Version is a convenience for building TransitionCommand.ExpectedVersion
func Version(v int64) *int64 {
	return &v
}
