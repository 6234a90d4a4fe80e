package lark

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const msgTypeText = "text"

// Lark caps message sends per app; stay under it when a sweep expires many offers at once
const (
	defaultSendRate  = 5
	defaultSendBurst = 5
)

// createMessageFunc matches the SDK's im/v1 message create call
type createMessageFunc func(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)

// Messenger implements port.MessageSender with Lark text messages
type Messenger struct {
	create  createMessageFunc
	limiter *rate.Limiter // nil means unlimited
	logger  *zap.Logger
}

// NewMessenger creates a new Lark message sender adapter
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		create:  sdk.GetClient().Im.Message.Create,
		limiter: rate.NewLimiter(rate.Limit(defaultSendRate), defaultSendBurst),
		logger:  logger,
	}
}

// SendMessage sends a plain text message to a user or chat
func (m *Messenger) SendMessage(ctx context.Context, receiveIDType, receiveID, content string) error {
	if receiveID == "" {
		return fmt.Errorf("receiveID cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}
	if receiveIDType == "" {
		receiveIDType = port.ReceiveIDTypeUserID
	}

	text, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(msgTypeText).
			Content(string(text)).
			Build()).
		Build()

	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("send rate limit: %w", err)
		}
	}

	resp, err := m.create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", receiveID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", receiveID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Debug("Message sent",
		zap.String("message_id", messageID),
		zap.String("receive_id_type", receiveIDType),
		zap.String("receive_id", receiveID))

	return nil
}

var _ port.MessageSender = (*Messenger)(nil)
