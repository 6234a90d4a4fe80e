package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/sqlite"
	sqlite3 "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const offerColumns = `
	id, client_id, created_by, assigned_to, status,
	line_items, product_description, total_amount, discount_amount, valid_until,
	approval, approval_history, modification_reason, client_response, annotations,
	linked_request_id, version, created_at, updated_at, sent_at
`

// OfferRepository implements port.OfferRepository on SQLite.
// JSON columns hold the nested parts of an offer.
type OfferRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOfferRepository creates a new offer repository
func NewOfferRepository(db *sql.DB, logger *zap.Logger) port.OfferRepository {
	return &OfferRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new offer
func (r *OfferRepository) Create(ctx context.Context, offer *entity.Offer) error {
	cols, err := encodeOffer(offer)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO offers (` + offerColumns + `, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		offer.ID,
		offer.ClientID,
		offer.CreatedBy,
		offer.AssignedTo,
		string(offer.Status),
		cols.lineItems,
		offer.ProductDescription,
		offer.TotalAmount,
		offer.DiscountAmount,
		cols.validUntil,
		cols.approval,
		cols.approvalHistory,
		offer.ModificationReason,
		offer.ClientResponse,
		cols.annotations,
		nullString(offer.LinkedRequestID),
		offer.Version,
		offer.CreatedAt.UTC(),
		offer.UpdatedAt.UTC(),
		nullTime(offer.SentAt),
		cols.expiresAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return fmt.Errorf("%w: %s", port.ErrAlreadyExists, offer.ID)
		}
		r.logger.Error("Failed to create offer", zap.String("offer_id", offer.ID), zap.Error(err))
		return fmt.Errorf("failed to create offer: %w", err)
	}

	return nil
}

// GetByID retrieves an offer by ID
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*entity.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = ?`

	offer, err := scanOffer(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", port.ErrNotFound, id)
	}
	if err != nil {
		r.logger.Error("Failed to get offer by ID", zap.String("offer_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	return offer, nil
}

// Update writes the offer only while the stored version still equals expectedVersion
func (r *OfferRepository) Update(ctx context.Context, offer *entity.Offer, expectedVersion int64) error {
	cols, err := encodeOffer(offer)
	if err != nil {
		return err
	}

	query := `
		UPDATE offers SET
			assigned_to = ?, status = ?, line_items = ?, product_description = ?,
			total_amount = ?, discount_amount = ?, valid_until = ?, expires_at = ?,
			approval = ?, approval_history = ?, modification_reason = ?,
			client_response = ?, annotations = ?, version = ?, updated_at = ?, sent_at = ?
		WHERE id = ? AND version = ?
	`

	exec := sqlite.ExecutorFor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		offer.AssignedTo,
		string(offer.Status),
		cols.lineItems,
		offer.ProductDescription,
		offer.TotalAmount,
		offer.DiscountAmount,
		cols.validUntil,
		cols.expiresAt,
		cols.approval,
		cols.approvalHistory,
		offer.ModificationReason,
		offer.ClientResponse,
		cols.annotations,
		offer.Version,
		offer.UpdatedAt.UTC(),
		nullTime(offer.SentAt),
		offer.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update offer", zap.String("offer_id", offer.ID), zap.Error(err))
		return fmt.Errorf("failed to update offer: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Nothing matched: tell a missing row apart from a stale version
	var exists int
	err = exec.QueryRowContext(ctx, `SELECT 1 FROM offers WHERE id = ?`, offer.ID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", port.ErrNotFound, offer.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to check offer: %w", err)
	}
	return fmt.Errorf("%w: offer %s is no longer at version %d", port.ErrConcurrentModification, offer.ID, expectedVersion)
}

// List returns one page of offers ordered by creation time, newest first
func (r *OfferRepository) List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error) {
	filter = filter.Normalize()

	var (
		where []string
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.AssignedTo != "" {
		where = append(where, "assigned_to = ?")
		args = append(args, filter.AssignedTo)
	}
	if !filter.CreatedAtOrBefore.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, filter.CreatedAtOrBefore.UTC())
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	exec := sqlite.ExecutorFor(ctx, r.db)

	var total int
	if err := exec.QueryRowContext(ctx, `SELECT COUNT(*) FROM offers`+clause, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count offers", zap.Error(err))
		return nil, fmt.Errorf("failed to count offers: %w", err)
	}

	query := `SELECT ` + offerColumns + ` FROM offers` + clause + ` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := exec.QueryContext(ctx, query, append(args, filter.PageSize, filter.Offset())...)
	if err != nil {
		r.logger.Error("Failed to list offers", zap.Error(err))
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}
	defer rows.Close()

	offers, err := scanOffers(rows)
	if err != nil {
		return nil, err
	}

	return &port.OfferPage{
		Offers:   offers,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// CountByStatus counts offers currently in status
func (r *OfferRepository) CountByStatus(ctx context.Context, status workflow.State) (int, error) {
	var count int
	err := sqlite.ExecutorFor(ctx, r.db).
		QueryRowContext(ctx, `SELECT COUNT(*) FROM offers WHERE status = ?`, string(status)).
		Scan(&count)
	if err != nil {
		r.logger.Error("Failed to count offers by status", zap.String("status", string(status)), zap.Error(err))
		return 0, fmt.Errorf("failed to count offers: %w", err)
	}
	return count, nil
}

// ListExpirable returns Sent and UnderReview offers whose expiry is before asOf, keyset-paged by id
func (r *OfferRepository) ListExpirable(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM offers
		WHERE status IN (?, ?)
			AND expires_at IS NOT NULL
			AND expires_at < ?
			AND id > ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query,
		string(workflow.StateSent),
		string(workflow.StateUnderReview),
		asOf.UTC().UnixNano(),
		afterID,
		limit,
	)
	if err != nil {
		r.logger.Error("Failed to list expirable offers", zap.Error(err))
		return nil, fmt.Errorf("failed to list expirable offers: %w", err)
	}
	defer rows.Close()

	return scanOffers(rows)
}

type encodedColumns struct {
	lineItems       string
	validUntil      string
	approval        sql.NullString
	approvalHistory string
	annotations     string
	expiresAt       sql.NullInt64
}

func encodeOffer(o *entity.Offer) (*encodedColumns, error) {
	cols := &encodedColumns{}
	var err error

	if cols.lineItems, err = encodeJSON(o.LineItems, "[]"); err != nil {
		return nil, fmt.Errorf("failed to encode line items: %w", err)
	}
	if cols.validUntil, err = encodeJSON(o.ValidUntil, "[]"); err != nil {
		return nil, fmt.Errorf("failed to encode valid until: %w", err)
	}
	if cols.approvalHistory, err = encodeJSON(o.ApprovalHistory, "[]"); err != nil {
		return nil, fmt.Errorf("failed to encode approval history: %w", err)
	}
	if cols.annotations, err = encodeJSON(o.Annotations, "[]"); err != nil {
		return nil, fmt.Errorf("failed to encode annotations: %w", err)
	}
	if o.Approval != nil {
		approval, err := json.Marshal(o.Approval)
		if err != nil {
			return nil, fmt.Errorf("failed to encode approval: %w", err)
		}
		cols.approval = sql.NullString{String: string(approval), Valid: true}
	}
	if exp := o.ExpiresAt(); exp != nil {
		cols.expiresAt = sql.NullInt64{Int64: exp.UTC().UnixNano(), Valid: true}
	}

	return cols, nil
}

func encodeJSON[T any](values []T, empty string) (string, error) {
	if len(values) == 0 {
		return empty, nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOffer(row rowScanner) (*entity.Offer, error) {
	var (
		o               entity.Offer
		status          string
		lineItems       string
		validUntil      string
		approval        sql.NullString
		approvalHistory string
		annotations     string
		linkedRequestID sql.NullString
		sentAt          sql.NullTime
	)

	err := row.Scan(
		&o.ID,
		&o.ClientID,
		&o.CreatedBy,
		&o.AssignedTo,
		&status,
		&lineItems,
		&o.ProductDescription,
		&o.TotalAmount,
		&o.DiscountAmount,
		&validUntil,
		&approval,
		&approvalHistory,
		&o.ModificationReason,
		&o.ClientResponse,
		&annotations,
		&linkedRequestID,
		&o.Version,
		&o.CreatedAt,
		&o.UpdatedAt,
		&sentAt,
	)
	if err != nil {
		return nil, err
	}

	o.Status = workflow.State(status)
	o.LinkedRequestID = linkedRequestID.String
	if sentAt.Valid {
		t := sentAt.Time.UTC()
		o.SentAt = &t
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()

	if err := json.Unmarshal([]byte(lineItems), &o.LineItems); err != nil {
		return nil, fmt.Errorf("failed to decode line items of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(validUntil), &o.ValidUntil); err != nil {
		return nil, fmt.Errorf("failed to decode valid until of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(approvalHistory), &o.ApprovalHistory); err != nil {
		return nil, fmt.Errorf("failed to decode approval history of %s: %w", o.ID, err)
	}
	if err := json.Unmarshal([]byte(annotations), &o.Annotations); err != nil {
		return nil, fmt.Errorf("failed to decode annotations of %s: %w", o.ID, err)
	}
	if approval.Valid {
		o.Approval = &entity.Approval{}
		if err := json.Unmarshal([]byte(approval.String), o.Approval); err != nil {
			return nil, fmt.Errorf("failed to decode approval of %s: %w", o.ID, err)
		}
	}

	return &o, nil
}

func scanOffers(rows *sql.Rows) ([]*entity.Offer, error) {
	offers := []*entity.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Verify interface compliance
var _ port.OfferRepository = (*OfferRepository)(nil)
