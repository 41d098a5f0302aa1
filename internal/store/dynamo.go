package store

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/mossy-p/webrtc-collab/config"
	"github.com/mossy-p/webrtc-collab/internal/models"
)

const (
	batchWriteLimit   = 25
	batchWriteRetries = 5
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// strokeItem is one row of the stroke table: partition key roomId, sort key seq
type strokeItem struct {
	RoomID string        `dynamodbav:"roomId"`
	Seq    string        `dynamodbav:"seq"`
	Stroke models.Stroke `dynamodbav:"stroke"`
}

// DynamoStore keeps stroke logs in a DynamoDB table
type DynamoStore struct {
	svc   DynamoAPI
	table string
	now   func() time.Time
	last  atomic.Int64
}

// NewDynamoStore builds an AWS client from cfg. Static credentials are used
// when both key id and secret are set, the default chain otherwise.
func NewDynamoStore(ctx context.Context, cfg config.DynamoDBConfig) (*DynamoStore, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	if cfg.KeyID != "" && cfg.Secret != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(cfg.KeyID, cfg.Secret, cfg.Token)),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	clientOpts := []func(*dynamodb.Options){}
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	return NewDynamoStoreWithClient(dynamodb.NewFromConfig(awsCfg, clientOpts...), cfg.Table), nil
}

// NewDynamoStoreWithClient uses svc as is, for tests and custom endpoints
func NewDynamoStoreWithClient(svc DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{svc: svc, table: table, now: time.Now}
}

// nextSeq returns a strictly increasing, lexically sortable sequence key
func (s *DynamoStore) nextSeq() string {
	for {
		last := s.last.Load()
		next := s.now().UnixNano()
		if next <= last {
			next = last + 1
		}
		if s.last.CompareAndSwap(last, next) {
			return fmt.Sprintf("%020d", next)
		}
	}
}

// Append writes stroke as a new row keyed by room and sequence
func (s *DynamoStore) Append(ctx context.Context, roomID string, stroke models.Stroke) error {
	av, err := attributevalue.MarshalMap(strokeItem{RoomID: roomID, Seq: s.nextSeq(), Stroke: stroke})
	if err != nil {
		return fmt.Errorf("marshal stroke: %w", err)
	}

	_, err = s.svc.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put stroke %s: %w", s.table, err)
	}
	return nil
}

// Strokes queries the room's rows in sequence order
func (s *DynamoStore) Strokes(ctx context.Context, roomID string) ([]models.Stroke, error) {
	items, err := s.queryRoom(ctx, roomID, nil)
	if err != nil {
		return nil, err
	}

	var rows []strokeItem
	if err := attributevalue.UnmarshalListOfMaps(items, &rows); err != nil {
		return nil, fmt.Errorf("unmarshal strokes: %w", err)
	}

	strokes := make([]models.Stroke, 0, len(rows))
	for _, row := range rows {
		strokes = append(strokes, row.Stroke)
	}
	return strokes, nil
}

// Clear deletes every row of the room in batches
func (s *DynamoStore) Clear(ctx context.Context, roomID string) error {
	keys, err := s.queryRoom(ctx, roomID, aws.String("roomId, seq"))
	if err != nil {
		return err
	}

	for start := 0; start < len(keys); start += batchWriteLimit {
		end := start + batchWriteLimit
		if end > len(keys) {
			end = len(keys)
		}

		requests := make([]types.WriteRequest, 0, end-start)
		for _, key := range keys[start:end] {
			requests = append(requests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{Key: key},
			})
		}
		if err := s.batchWriteWithRetry(ctx, requests); err != nil {
			return err
		}
	}
	return nil
}

// queryRoom reads every row of a room in seq order, following pagination
func (s *DynamoStore) queryRoom(ctx context.Context, roomID string, projection *string) ([]map[string]types.AttributeValue, error) {
	var allItems []map[string]types.AttributeValue
	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("roomId = :roomId"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":roomId": &types.AttributeValueMemberS{Value: roomID},
			},
			ScanIndexForward:     aws.Bool(true),
			ProjectionExpression: projection,
		}
		if lastEvaluatedKey != nil {
			input.ExclusiveStartKey = lastEvaluatedKey
		}

		result, err := s.svc.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query strokes %s: %w", s.table, err)
		}

		allItems = append(allItems, result.Items...)

		if len(result.LastEvaluatedKey) == 0 {
			break
		}
		lastEvaluatedKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

func (s *DynamoStore) batchWriteWithRetry(ctx context.Context, requests []types.WriteRequest) error {
	pending := map[string][]types.WriteRequest{s.table: requests}
	backoff := 50 * time.Millisecond

	for attempt := 0; attempt < batchWriteRetries; attempt++ {
		out, err := s.svc.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{RequestItems: pending})
		if err != nil {
			return fmt.Errorf("batch delete %s: %w", s.table, err)
		}
		if len(out.UnprocessedItems) == 0 {
			return nil
		}
		pending = out.UnprocessedItems

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return fmt.Errorf("batch delete %s: %d items unprocessed after %d attempts",
		s.table, len(pending[s.table]), batchWriteRetries)
}

// Close is a no-op, the AWS client holds no connections that need releasing
func (s *DynamoStore) Close() error {
	return nil
}
