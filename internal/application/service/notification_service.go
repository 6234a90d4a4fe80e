package service

import (
	"context"
	"fmt"

	"github.com/garyjia/offer-lifecycle/internal/application/dispatcher"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/event"
	domainwf "github.com/garyjia/offer-lifecycle/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// NotificationConfig routes lifecycle messages
type NotificationConfig struct {
	// ManagerChatID receives approval requests and client decisions
	ManagerChatID string
	// UserIDType is the receive_id_type used for creators and salesmen
	UserIDType string
}

// NotificationService turns lifecycle events into chat messages
type NotificationService interface {
	// Register subscribes the service to the dispatcher
	Register(d dispatcher.Dispatcher)

	// HandleTransition sends the messages owed for a single transition event
	HandleTransition(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	sender port.MessageSender
	config NotificationConfig
	logger Logger
}

type recipient struct {
	idType string
	id     string
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(sender port.MessageSender, cfg NotificationConfig, logger Logger) NotificationService {
	if cfg.UserIDType == "" {
		cfg.UserIDType = port.ReceiveIDTypeUserID
	}
	return &notificationServiceImpl{
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeOfferTransitioned, "lark-notifier", s.HandleTransition)
}

// HandleTransition sends every message for the event and returns the first delivery error
func (s *notificationServiceImpl) HandleTransition(ctx context.Context, evt *event.Event) error {
	if evt == nil || evt.Type != event.TypeOfferTransitioned {
		return nil
	}

	message, recipients := s.route(evt)
	if message == "" || len(recipients) == 0 {
		return nil
	}

	var firstErr error
	for _, r := range recipients {
		if err := s.sender.SendMessage(ctx, r.idType, r.id, message); err != nil {
			s.logger.Error("Failed to send lifecycle notification",
				"offer_id", evt.OfferID,
				"trigger", evt.Trigger,
				"receive_id", r.id,
				"error", err,
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("send message: %w", err)
			}
			continue
		}
	}

	if firstErr == nil {
		s.logger.Info("Lifecycle notification sent",
			"offer_id", evt.OfferID,
			"trigger", evt.Trigger,
			"recipients", len(recipients),
		)
	}
	return firstErr
}

// route decides the text and the audience of a transition
func (s *notificationServiceImpl) route(evt *event.Event) (string, []recipient) {
	client := evt.GetPayloadString("client_id")
	amount := evt.GetPayloadFloat("total_amount")
	creator := s.user(evt.GetPayloadString("created_by"))
	managers := s.managers()

	switch evt.Trigger {
	case domainwf.TriggerRequestApproval:
		return fmt.Sprintf("Offer %s for client %s (%.2f) is waiting for manager approval.", evt.OfferID, client, amount),
			managers

	case domainwf.TriggerApprove:
		return fmt.Sprintf("Offer %s for client %s was approved by %s and can be sent.", evt.OfferID, client, evt.ActorID),
			creator

	case domainwf.TriggerReject:
		return fmt.Sprintf("Offer %s for client %s was rejected: %s", evt.OfferID, client, evt.Reason),
			creator

	case domainwf.TriggerSendToSalesman:
		salesman := s.user(evt.GetPayloadString("assigned_to"))
		if len(salesman) == 0 {
			salesman = creator
		}
		return fmt.Sprintf("Offer %s for client %s (%.2f) has been sent to you.", evt.OfferID, client, amount),
			salesman

	case domainwf.TriggerMarkNeedsModification:
		return fmt.Sprintf("Offer %s for client %s needs changes: %s", evt.OfferID, client, evt.GetPayloadString("modification_reason")),
			creator

	case domainwf.TriggerClientAccepted:
		return fmt.Sprintf("Client %s accepted offer %s (%.2f).", client, evt.OfferID, amount),
			append(managers, creator...)

	case domainwf.TriggerClientRejected:
		return fmt.Sprintf("Client %s rejected offer %s.", client, evt.OfferID),
			append(managers, creator...)

	case domainwf.TriggerSweepExpire:
		return fmt.Sprintf("Offer %s for client %s expired without a client decision.", evt.OfferID, client),
			creator
	}

	return "", nil
}

func (s *notificationServiceImpl) user(id string) []recipient {
	if id == "" || id == "system" {
		return nil
	}
	return []recipient{{idType: s.config.UserIDType, id: id}}
}

func (s *notificationServiceImpl) managers() []recipient {
	if s.config.ManagerChatID == "" {
		return nil
	}
	return []recipient{{idType: port.ReceiveIDTypeChatID, id: s.config.ManagerChatID}}
}
