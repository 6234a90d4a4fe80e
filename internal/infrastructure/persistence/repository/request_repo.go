package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// ErrRequestNotFound is returned when an offer request id is unknown
var ErrRequestNotFound = port.ErrRequestNotFound

// RequestRepository stores upstream offer requests and marks them Ready
type RequestRepository struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewRequestRepository creates a new offer request repository
func NewRequestRepository(db *sql.DB, logger *zap.Logger) *RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Create inserts a new offer request
func (r *RequestRepository) Create(ctx context.Context, req *entity.OfferRequest) error {
	now := r.now().UTC()
	if req.Status == "" {
		req.Status = entity.RequestStatusOpen
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = now

	query := `
		INSERT INTO offer_requests (
			id, client_id, requested_by, requested_products, status,
			offer_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		req.ID,
		req.ClientID,
		req.RequestedBy,
		req.RequestedProducts,
		req.Status,
		nullString(req.OfferID),
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create offer request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create offer request: %w", err)
	}

	return nil
}

// GetByID retrieves an offer request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.OfferRequest, error) {
	query := `
		SELECT id, client_id, requested_by, requested_products, status,
			offer_id, created_at, updated_at
		FROM offer_requests
		WHERE id = ?
	`

	var (
		req     entity.OfferRequest
		offerID sql.NullString
	)
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.ClientID,
		&req.RequestedBy,
		&req.RequestedProducts,
		&req.Status,
		&offerID,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get offer request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get offer request: %w", err)
	}

	req.OfferID = offerID.String
	return &req, nil
}

// MarkReady records that offerID answering requestID has been sent
func (r *RequestRepository) MarkReady(ctx context.Context, requestID, offerID string) error {
	query := `
		UPDATE offer_requests
		SET status = ?, offer_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		entity.RequestStatusReady,
		offerID,
		r.now().UTC(),
		requestID,
	)
	if err != nil {
		r.logger.Error("Failed to mark offer request ready",
			zap.String("request_id", requestID),
			zap.String("offer_id", offerID),
			zap.Error(err))
		return fmt.Errorf("failed to update offer request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}

	return nil
}

// Verify interface compliance
var _ port.RequestStatusSyncer = (*RequestRepository)(nil)
