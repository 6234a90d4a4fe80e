package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
)

// Positions of the two puts inside a lifecycle transaction
const (
	offerPutIndex   = 0
	historyPutIndex = 1
)

// Writer implements port.AtomicWriter with TransactWriteItems: the conditional
// offer put and the history put commit together or not at all.
type Writer struct {
	api     API
	offers  *OfferStore
	history *HistoryStore
	logger  *zap.Logger
}

// NewWriter creates a transactional writer over the two stores' tables
func NewWriter(api API, offers *OfferStore, history *HistoryStore, logger *zap.Logger) *Writer {
	return &Writer{
		api:     api,
		offers:  offers,
		history: history,
		logger:  logger,
	}
}

func (w *Writer) CreateWithHistory(ctx context.Context, offer *entity.Offer, record *entity.TransitionRecord) error {
	offerPut, err := w.offers.createPut(offer)
	if err != nil {
		return err
	}

	reasons, err := w.transact(ctx, offerPut, record)
	switch {
	case conditionFailedAt(reasons, offerPutIndex):
		return fmt.Errorf("%w: %s", port.ErrAlreadyExists, offer.ID)
	case conditionFailedAt(reasons, historyPutIndex):
		return duplicateRecord(record)
	case err != nil:
		w.logger.Error("Failed to create offer", zap.String("offer_id", offer.ID), zap.Error(err))
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (w *Writer) UpdateWithHistory(ctx context.Context, offer *entity.Offer, expectedVersion int64, record *entity.TransitionRecord) error {
	offerPut, err := w.offers.updatePut(offer, expectedVersion)
	if err != nil {
		return err
	}

	reasons, err := w.transact(ctx, offerPut, record)
	switch {
	case conditionFailedAt(reasons, offerPutIndex):
		return w.offers.staleWrite(ctx, offer.ID, expectedVersion)
	case conditionFailedAt(reasons, historyPutIndex):
		return duplicateRecord(record)
	case err != nil:
		w.logger.Error("Failed to update offer",
			zap.String("offer_id", offer.ID),
			zap.Int64("version", offer.Version),
			zap.Error(err))
		return fmt.Errorf("failed to update offer: %w", err)
	}
	return nil
}

// transact commits offerPut with the history put for record. A cancelled transaction
// also returns its per-item reasons.
func (w *Writer) transact(ctx context.Context, offerPut *types.Put, record *entity.TransitionRecord) ([]types.CancellationReason, error) {
	historyPut, err := w.history.recordPut(record)
	if err != nil {
		return nil, err
	}

	_, err = w.api.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			offerPutIndex:   {Put: offerPut},
			historyPutIndex: {Put: historyPut},
		},
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			return canceled.CancellationReasons, err
		}
		return nil, err
	}

	record.ID = record.Version
	return nil, nil
}

func conditionFailedAt(reasons []types.CancellationReason, i int) bool {
	return i < len(reasons) && aws.ToString(reasons[i].Code) == "ConditionalCheckFailed"
}

var _ port.AtomicWriter = (*Writer)(nil)
