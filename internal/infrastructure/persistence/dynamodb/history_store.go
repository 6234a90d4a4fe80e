package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
	"github.com/garyjia/offer-lifecycle/internal/domain/workflow"
	"go.uber.org/zap"
)

type historyItem struct {
	OfferID    string   `dynamodbav:"offer_id"`
	Version    int64    `dynamodbav:"version"`
	Event      string   `dynamodbav:"event"`
	FromStatus string   `dynamodbav:"from_status"`
	ToStatus   string   `dynamodbav:"to_status"`
	ActorID    string   `dynamodbav:"actor_id"`
	ActorRoles []string `dynamodbav:"actor_roles"`
	Reason     string   `dynamodbav:"reason,omitempty"`
	OccurredAt string   `dynamodbav:"occurred_at"`
}

// HistoryStore keeps transition records in a table keyed by offer.
//
// Table requirements:
//   - PK: offer_id (string)
//   - SK: version (number)
//
// Each status write produces exactly one record at its new version, so the
// version doubles as the record id.
type HistoryStore struct {
	api       API
	tableName string
	logger    *zap.Logger
}

// NewHistoryStore creates a DynamoDB history store
func NewHistoryStore(api API, tableName string, logger *zap.Logger) *HistoryStore {
	if tableName == "" {
		tableName = DefaultHistoryTable
	}
	return &HistoryStore{
		api:       api,
		tableName: tableName,
		logger:    logger,
	}
}

func (s *HistoryStore) Append(ctx context.Context, record *entity.TransitionRecord) error {
	put, err := s.recordPut(record)
	if err != nil {
		return err
	}

	_, err = s.api.PutItem(ctx, putItemInput(put))
	if isConditionFailed(err) {
		return duplicateRecord(record)
	}
	if err != nil {
		s.logger.Error("Failed to append history", zap.String("offer_id", record.OfferID), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	record.ID = record.Version
	return nil
}

// recordPut writes one record per offer version; a second write at the same version fails
func (s *HistoryStore) recordPut(record *entity.TransitionRecord) (*types.Put, error) {
	av, err := attributevalue.MarshalMap(historyItem{
		OfferID:    record.OfferID,
		Version:    record.Version,
		Event:      string(record.Trigger),
		FromStatus: string(record.FromStatus),
		ToStatus:   string(record.ToStatus),
		ActorID:    record.ActorID,
		ActorRoles: record.ActorRoles,
		Reason:     record.Reason,
		OccurredAt: record.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal history item: %w", err)
	}

	return &types.Put{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#version)"),
		ExpressionAttributeNames: map[string]string{
			"#version": "version",
		},
	}, nil
}

func duplicateRecord(record *entity.TransitionRecord) error {
	return fmt.Errorf("%w: history of %s at version %d", port.ErrConcurrentModification, record.OfferID, record.Version)
}

func (s *HistoryStore) GetByOfferID(ctx context.Context, offerID string) ([]*entity.TransitionRecord, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("#offer_id = :offer_id"),
		ExpressionAttributeNames: map[string]string{
			"#offer_id": "offer_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":offer_id": &types.AttributeValueMemberS{Value: offerID},
		},
		ScanIndexForward: aws.Bool(true),
		ConsistentRead:   aws.Bool(true),
	}

	records := []*entity.TransitionRecord{}
	for {
		out, err := s.api.Query(ctx, input)
		if err != nil {
			s.logger.Error("Failed to query history", zap.String("offer_id", offerID), zap.Error(err))
			return nil, fmt.Errorf("failed to get history: %w", err)
		}

		var items []historyItem
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &items); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history: %w", err)
		}
		for _, it := range items {
			occurredAt, _ := time.Parse(time.RFC3339Nano, it.OccurredAt)
			records = append(records, &entity.TransitionRecord{
				ID:         it.Version,
				OfferID:    it.OfferID,
				Trigger:    workflow.Trigger(it.Event),
				FromStatus: workflow.State(it.FromStatus),
				ToStatus:   workflow.State(it.ToStatus),
				ActorID:    it.ActorID,
				ActorRoles: it.ActorRoles,
				Reason:     it.Reason,
				Version:    it.Version,
				OccurredAt: occurredAt,
			})
		}

		if len(out.LastEvaluatedKey) == 0 {
			return records, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

var _ port.HistoryRepository = (*HistoryStore)(nil)
