package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/garyjia/offer-lifecycle/internal/application/port"
	"github.com/garyjia/offer-lifecycle/internal/domain/entity"
)

type requestItem struct {
	ID                string `dynamodbav:"id"`
	ClientID          string `dynamodbav:"client_id"`
	RequestedBy       string `dynamodbav:"requested_by"`
	RequestedProducts string `dynamodbav:"requested_products,omitempty"`
	Status            string `dynamodbav:"status"`
	OfferID           string `dynamodbav:"offer_id,omitempty"`
	CreatedAt         string `dynamodbav:"created_at"`
	UpdatedAt         string `dynamodbav:"updated_at"`
}

// RequestStore marks upstream offer requests Ready.
//
// Table requirements:
//   - PK: id (string)
type RequestStore struct {
	api       API
	tableName string
	logger    *zap.Logger
	now       func() time.Time
}

// NewRequestStore creates a DynamoDB offer request store
func NewRequestStore(api API, tableName string, logger *zap.Logger) *RequestStore {
	if tableName == "" {
		tableName = DefaultRequestsTable
	}
	return &RequestStore{
		api:       api,
		tableName: tableName,
		logger:    logger,
		now:       time.Now,
	}
}

// GetByID retrieves an offer request by ID
func (s *RequestStore) GetByID(ctx context.Context, id string) (*entity.OfferRequest, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		s.logger.Error("Failed to get offer request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get offer request: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", port.ErrRequestNotFound, id)
	}

	var item requestItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offer request: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, item.CreatedAt)
	updatedAt, _ := time.Parse(time.RFC3339Nano, item.UpdatedAt)
	return &entity.OfferRequest{
		ID:                item.ID,
		ClientID:          item.ClientID,
		RequestedBy:       item.RequestedBy,
		RequestedProducts: item.RequestedProducts,
		Status:            item.Status,
		OfferID:           item.OfferID,
		CreatedAt:         createdAt,
		UpdatedAt:         updatedAt,
	}, nil
}

// MarkReady records that offerID answering requestID has been sent
func (s *RequestStore) MarkReady(ctx context.Context, requestID, offerID string) error {
	_, err := s.api.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: requestID},
		},
		UpdateExpression:    aws.String("SET #status = :status, #offer_id = :offer_id, #updated_at = :updated_at"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id":         "id",
			"#status":     "status",
			"#offer_id":   "offer_id",
			"#updated_at": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":     &types.AttributeValueMemberS{Value: entity.RequestStatusReady},
			":offer_id":   &types.AttributeValueMemberS{Value: offerID},
			":updated_at": &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339Nano)},
		},
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", port.ErrRequestNotFound, requestID)
	}
	if err != nil {
		s.logger.Error("Failed to mark offer request ready",
			zap.String("request_id", requestID),
			zap.String("offer_id", offerID),
			zap.Error(err))
		return fmt.Errorf("failed to update offer request: %w", err)
	}
	return nil
}

var _ port.RequestStatusSyncer = (*RequestStore)(nil)
