package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
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

// offerItem is the table row. Filterable fields are top-level attributes;
// the full offer travels in document.
type offerItem struct {
	ID         string `dynamodbav:"id"`
	Status     string `dynamodbav:"status"`
	AssignedTo string `dynamodbav:"assigned_to"`
	Version    int64  `dynamodbav:"version"`
	ExpiresAt  *int64 `dynamodbav:"expires_at,omitempty"`
	CreatedAt  string `dynamodbav:"created_at"`
	Document   string `dynamodbav:"document"`
}

// OfferStore implements port.OfferRepository on DynamoDB.
//
// Table requirements:
//   - PK: id (string)
type OfferStore struct {
	api       API
	tableName string
	logger    *zap.Logger
}

// NewOfferStore creates a DynamoDB offer store
func NewOfferStore(api API, tableName string, logger *zap.Logger) *OfferStore {
	if tableName == "" {
		tableName = DefaultOffersTable
	}
	return &OfferStore{
		api:       api,
		tableName: tableName,
		logger:    logger,
	}
}

func (s *OfferStore) Create(ctx context.Context, offer *entity.Offer) error {
	put, err := s.createPut(offer)
	if err != nil {
		return err
	}

	_, err = s.api.PutItem(ctx, putItemInput(put))
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", port.ErrAlreadyExists, offer.ID)
	}
	if err != nil {
		s.logger.Error("Failed to put offer", zap.String("offer_id", offer.ID), zap.Error(err))
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

func (s *OfferStore) GetByID(ctx context.Context, id string) (*entity.Offer, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		s.logger.Error("Failed to get offer", zap.String("offer_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, fmt.Errorf("%w: %s", port.ErrNotFound, id)
	}
	return unmarshalOffer(out.Item)
}

// Update replaces the item only while its version attribute equals expectedVersion
func (s *OfferStore) Update(ctx context.Context, offer *entity.Offer, expectedVersion int64) error {
	put, err := s.updatePut(offer, expectedVersion)
	if err != nil {
		return err
	}

	_, err = s.api.PutItem(ctx, putItemInput(put))
	if isConditionFailed(err) {
		return s.staleWrite(ctx, offer.ID, expectedVersion)
	}
	if err != nil {
		s.logger.Error("Failed to update offer", zap.String("offer_id", offer.ID), zap.Error(err))
		return fmt.Errorf("failed to update offer: %w", err)
	}
	return nil
}

// staleWrite tells a missing offer apart from one that moved past expectedVersion
func (s *OfferStore) staleWrite(ctx context.Context, id string, expectedVersion int64) error {
	if _, err := s.GetByID(ctx, id); errors.Is(err, port.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: offer %s is no longer at version %d", port.ErrConcurrentModification, id, expectedVersion)
}

func (s *OfferStore) createPut(offer *entity.Offer) (*types.Put, error) {
	av, err := marshalOffer(offer)
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id": "id",
		},
	}, nil
}

func (s *OfferStore) updatePut(offer *entity.Offer, expectedVersion int64) (*types.Put, error) {
	av, err := marshalOffer(offer)
	if err != nil {
		return nil, err
	}
	return &types.Put{
		TableName:           aws.String(s.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_exists(#id) AND #version = :expected"),
		ExpressionAttributeNames: map[string]string{
			"#id":      "id",
			"#version": "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expectedVersion, 10)},
		},
	}, nil
}

func putItemInput(put *types.Put) *dynamodb.PutItemInput {
	return &dynamodb.PutItemInput{
		TableName:                 put.TableName,
		Item:                      put.Item,
		ConditionExpression:       put.ConditionExpression,
		ExpressionAttributeNames:  put.ExpressionAttributeNames,
		ExpressionAttributeValues: put.ExpressionAttributeValues,
	}
}

// List scans the table and pages in memory, newest first
func (s *OfferStore) List(ctx context.Context, filter port.OfferFilter) (*port.OfferPage, error) {
	filter = filter.Normalize()

	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName)}
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var expr string
	if filter.Status != "" {
		expr = "#status = :status"
		names["#status"] = "status"
		values[":status"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
	}
	if filter.AssignedTo != "" {
		if expr != "" {
			expr += " AND "
		}
		expr += "#assigned_to = :assigned_to"
		names["#assigned_to"] = "assigned_to"
		values[":assigned_to"] = &types.AttributeValueMemberS{Value: filter.AssignedTo}
	}
	if expr != "" {
		input.FilterExpression = aws.String(expr)
		input.ExpressionAttributeNames = names
		input.ExpressionAttributeValues = values
	}

	offers, err := s.scan(ctx, input, filter.Matches)
	if err != nil {
		return nil, err
	}

	sort.Slice(offers, func(i, j int) bool {
		if !offers[i].CreatedAt.Equal(offers[j].CreatedAt) {
			return offers[i].CreatedAt.After(offers[j].CreatedAt)
		}
		return offers[i].ID < offers[j].ID
	})

	page := &port.OfferPage{
		Offers:   []*entity.Offer{},
		Total:    len(offers),
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}
	if start := filter.Offset(); start >= 0 && start < len(offers) {
		end := start + filter.PageSize
		if end > len(offers) {
			end = len(offers)
		}
		page.Offers = offers[start:end]
	}
	return page, nil
}

func (s *OfferStore) CountByStatus(ctx context.Context, status workflow.State) (int, error) {
	input := &dynamodb.ScanInput{
		TableName:                aws.String(s.tableName),
		FilterExpression:         aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{"#status": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	}

	offers, err := s.scan(ctx, input, func(o *entity.Offer) bool { return o.Status == status })
	if err != nil {
		return 0, err
	}
	return len(offers), nil
}

func (s *OfferStore) ListExpirable(ctx context.Context, asOf time.Time, afterID string, limit int) ([]*entity.Offer, error) {
	input := &dynamodb.ScanInput{
		TableName:        aws.String(s.tableName),
		FilterExpression: aws.String("#status IN (:sent, :review) AND #expires_at < :as_of AND #id > :after"),
		ExpressionAttributeNames: map[string]string{
			"#status":     "status",
			"#expires_at": "expires_at",
			"#id":         "id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":sent":   &types.AttributeValueMemberS{Value: string(workflow.StateSent)},
			":review": &types.AttributeValueMemberS{Value: string(workflow.StateUnderReview)},
			":as_of":  &types.AttributeValueMemberN{Value: strconv.FormatInt(asOf.UTC().UnixNano(), 10)},
			":after":  &types.AttributeValueMemberS{Value: afterID},
		},
	}

	offers, err := s.scan(ctx, input, func(o *entity.Offer) bool {
		if o.ID <= afterID {
			return false
		}
		if o.Status != workflow.StateSent && o.Status != workflow.StateUnderReview {
			return false
		}
		exp := o.ExpiresAt()
		return exp != nil && exp.Before(asOf)
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(offers, func(i, j int) bool { return offers[i].ID < offers[j].ID })
	if limit > 0 && len(offers) > limit {
		offers = offers[:limit]
	}
	return offers, nil
}

// scan walks every page of input. keep re-checks each decoded offer so results
// stay exact whatever the filter expression support of the endpoint.
func (s *OfferStore) scan(ctx context.Context, input *dynamodb.ScanInput, keep func(*entity.Offer) bool) ([]*entity.Offer, error) {
	offers := []*entity.Offer{}
	for {
		out, err := s.api.Scan(ctx, input)
		if err != nil {
			s.logger.Error("Failed to scan offers", zap.String("table", s.tableName), zap.Error(err))
			return nil, fmt.Errorf("failed to scan offers: %w", err)
		}
		for _, item := range out.Items {
			o, err := unmarshalOffer(item)
			if err != nil {
				return nil, err
			}
			if keep(o) {
				offers = append(offers, o)
			}
		}
		if len(out.LastEvaluatedKey) == 0 {
			return offers, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

func marshalOffer(o *entity.Offer) (map[string]types.AttributeValue, error) {
	doc, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("failed to encode offer: %w", err)
	}

	item := offerItem{
		ID:         o.ID,
		Status:     string(o.Status),
		AssignedTo: o.AssignedTo,
		Version:    o.Version,
		CreatedAt:  o.CreatedAt.UTC().Format(time.RFC3339Nano),
		Document:   string(doc),
	}
	if exp := o.ExpiresAt(); exp != nil {
		n := exp.UTC().UnixNano()
		item.ExpiresAt = &n
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal offer item: %w", err)
	}
	return av, nil
}

func unmarshalOffer(av map[string]types.AttributeValue) (*entity.Offer, error) {
	var item offerItem
	if err := attributevalue.UnmarshalMap(av, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offer item: %w", err)
	}

	var o entity.Offer
	if err := json.Unmarshal([]byte(item.Document), &o); err != nil {
		return nil, fmt.Errorf("failed to decode offer %s: %w", item.ID, err)
	}
	return &o, nil
}

func isConditionFailed(err error) bool {
	var cfe *types.ConditionalCheckFailedException
	return errors.As(err, &cfe)
}

var _ port.OfferRepository = (*OfferStore)(nil)
