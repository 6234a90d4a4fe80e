package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// Event is emitted once per successful lifecycle write
type Event struct {
	ID         string                 `json:"id"`
	Type       Type                   `json:"type"`
	OfferID    string                 `json:"offer_id"`
	FromStatus workflow.State         `json:"from_status,omitempty"`
	ToStatus   workflow.State         `json:"to_status"`
	Trigger    workflow.Trigger       `json:"trigger,omitempty"`
	ActorID    string                 `json:"actor_id"`
	ActorRoles []string               `json:"actor_roles,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Version    int64                  `json:"version"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// NewEvent creates a lifecycle event with a generated ID
func NewEvent(eventType Type, offerID string, to workflow.State, version int64, at time.Time) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		OfferID:   offerID,
		ToStatus:  to,
		Version:   version,
		Payload:   map[string]interface{}{},
		Timestamp: at,
	}
}

// NewTransitioned builds the offer.transitioned event for a status change
func NewTransitioned(offerID string, from, to workflow.State, trigger workflow.Trigger, version int64, at time.Time) *Event {
	e := NewEvent(TypeOfferTransitioned, offerID, to, version, at)
	e.FromStatus = from
	e.Trigger = trigger
	return e
}

// WithActor returns a copy carrying the acting identity
func (e *Event) WithActor(id string, roles []string) *Event {
	c := e.clone()
	c.ActorID = id
	c.ActorRoles = append([]string(nil), roles...)
	return c
}

// WithReason returns a copy carrying the transition reason
func (e *Event) WithReason(reason string) *Event {
	c := e.clone()
	c.Reason = reason
	return c
}

// WithPayload returns a new Event with an added payload key-value pair (immutable operation)
func (e *Event) WithPayload(key string, value interface{}) *Event {
	c := e.clone()
	c.Payload[key] = value
	return c
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetPayloadFloat retrieves a float64 value from the payload
func (e *Event) GetPayloadFloat(key string) float64 {
	if val, ok := e.Payload[key]; ok {
		switch v := val.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		case int:
			return float64(v)
		}
	}
	return 0.0
}

// IsStatusChange reports whether the event moved the offer to another status
func (e *Event) IsStatusChange() bool {
	return e.Type == TypeOfferTransitioned && e.FromStatus != e.ToStatus
}

func (e *Event) clone() *Event {
	c := *e
	c.ActorRoles = append([]string(nil), e.ActorRoles...)
	c.Payload = make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		c.Payload[k] = v
	}
	return &c
}
