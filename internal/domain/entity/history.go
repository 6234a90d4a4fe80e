package entity

import (
	"time"

	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// TransitionRecord is the append-only audit trail of an offer
type TransitionRecord struct {
	ID         int64            `json:"id"`
	OfferID    string           `json:"offer_id"`
	Trigger    workflow.Trigger `json:"trigger"`
	FromStatus workflow.State   `json:"from_status"`
	ToStatus   workflow.State   `json:"to_status"`
	ActorID    string           `json:"actor_id"`
	ActorRoles []string         `json:"actor_roles"`
	Reason     string           `json:"reason,omitempty"`
	Version    int64            `json:"version"`
	OccurredAt time.Time        `json:"occurred_at"`
}
