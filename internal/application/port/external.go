package port

import (
	"context"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
)

// Receive id types understood by the message sender
const (
	ReceiveIDTypeOpenID = "open_id"
	ReceiveIDTypeUserID = "user_id"
	ReceiveIDTypeChatID = "chat_id"
)

// MessageSender defines message sending operations
type MessageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, content string) error
}

// RequestStatusSyncer marks the originating OfferRequest Ready once its offer is sent
type RequestStatusSyncer interface {
	MarkReady(ctx context.Context, requestID, offerID string) error
}

// MetricsRecorder receives lifecycle measurements
type MetricsRecorder interface {
	RecordTransition(trigger, from, to string)
	RecordRejection(trigger, code string)
	RecordRequestSyncFailure()
	RecordSweep(expired, skipped, failed int, duration time.Duration)
}

// OfferExporter renders a list of offers into a downloadable document
type OfferExporter interface {
	Export(ctx context.Context, offers []*entity.Offer) ([]byte, error)
	ContentType() string
	FileExtension() string
}
