package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
	"github.com/garyjia/offer-lifecycle/internal/infrastructure/persistence/sqlite"
	"go.uber.org/zap"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Append adds a transition record and sets its ID
func (r *HistoryRepository) Append(ctx context.Context, record *entity.TransitionRecord) error {
	roles, err := json.Marshal(record.ActorRoles)
	if err != nil {
		return fmt.Errorf("failed to encode actor roles: %w", err)
	}
	if record.ActorRoles == nil {
		roles = []byte("[]")
	}

	query := `
		INSERT INTO offer_history (
			offer_id, event, from_status, to_status, actor_id,
			actor_roles, reason, version, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		record.OfferID,
		string(record.Trigger),
		string(record.FromStatus),
		string(record.ToStatus),
		record.ActorID,
		string(roles),
		record.Reason,
		record.Version,
		record.OccurredAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append history record",
			zap.String("offer_id", record.OfferID),
			zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// GetByOfferID retrieves the records of an offer in the order they were written
func (r *HistoryRepository) GetByOfferID(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error) {
	query := `
		SELECT id, offer_id, event, from_status, to_status, actor_id,
			actor_roles, reason, version, occurred_at
		FROM offer_history
		WHERE offer_id = ?
		ORDER BY id ASC
	`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, offerID)
	if err != nil {
		r.logger.Error("Failed to get history by offer ID", zap.String("offer_id", offerID), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	records := []*entity.TransitionRecord{}
	for rows.Next() {
		var (
			record        entity.TransitionRecord
			trigger, from string
			to, roles     string
		)
		err := rows.Scan(
			&record.ID,
			&record.OfferID,
			&trigger,
			&from,
			&to,
			&record.ActorID,
			&roles,
			&record.Reason,
			&record.Version,
			&record.OccurredAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if err := json.Unmarshal([]byte(roles), &record.ActorRoles); err != nil {
			return nil, fmt.Errorf("failed to decode actor roles: %w", err)
		}
		record.Trigger = workflow.Trigger(trigger)
		record.FromStatus = workflow.State(from)
		record.ToStatus = workflow.State(to)
		record.OccurredAt = record.OccurredAt.UTC()
		records = append(records, &record)
	}

	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
