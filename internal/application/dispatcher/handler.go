package dispatcher

import (
	"context"

	"github.com/garyjia/offer-lifecycle/internal/domain/event"
)

// Handler processes lifecycle events
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}

// AnyType subscribes a handler to every event type
const AnyType event.Type = "*"
