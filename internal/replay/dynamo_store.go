package replay

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/booking-webhook/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps replay records in a DynamoDB table keyed by replayKey.
// Table TTL should be enabled on expiresAt; since TTL deletion is lazy,
// expired items are also treated as absent on read and overwritten on
// reserve.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	opts      Options
	logger    *logging.Logger
	now       func() time.Time
}

var _ Store = (*DynamoStore)(nil)

func NewDynamoStore(client dynamoAPI, tableName string, opts Options, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("replay: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("replay: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		opts:      opts.withDefaults(),
		logger:    logger,
		now:       time.Now,
	}
}

func (s *DynamoStore) Reserve(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, errors.New("replay: key required")
	}
	now := s.now()
	item, err := attributevalue.MarshalMap(newRecord(key, StatusPending, s.opts.PendingTTL, now))
	if err != nil {
		return nil, fmt.Errorf("replay: failed to marshal record: %w", err)
	}

	for attempt := 0; attempt < 2; attempt++ {
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.tableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(replayKey) OR expiresAt < :now"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			},
		})
		if err == nil {
			return nil, nil
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, fmt.Errorf("replay: failed to reserve key: %w", err)
		}

		rec, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return rec, nil
		}
		s.logger.Debug("replay record vanished after conditional failure, retrying")
	}
	return nil, fmt.Errorf("replay: reserve %s: record kept changing", key)
}

func (s *DynamoStore) Complete(ctx context.Context, key string, statusCode int, body []byte) error {
	if key == "" {
		return errors.New("replay: key required")
	}
	now := s.now()
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"replayKey": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression: aws.String("SET #status = :status, statusCode = :code, #body = :body, expiresAt = :expires"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
			"#body":   "body",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(StatusCompleted)},
			":code":    &types.AttributeValueMemberN{Value: strconv.Itoa(statusCode)},
			":body":    &types.AttributeValueMemberS{Value: string(body)},
			":expires": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.opts.TTL).Unix(), 10)},
		},
		ConditionExpression: aws.String("attribute_exists(replayKey)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotReserved
		}
		return fmt.Errorf("replay: failed to complete key: %w", err)
	}
	return nil
}

func (s *DynamoStore) Release(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"replayKey": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return fmt.Errorf("replay: failed to release key: %w", err)
	}
	return nil
}

// get returns nil when the item is missing or already expired.
func (s *DynamoStore) get(ctx context.Context, key string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"replayKey": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("replay: failed to fetch record: %w", err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("replay: failed to decode record: %w", err)
	}
	if rec.ExpiresAt < s.now().Unix() {
		return nil, nil
	}
	return &rec, nil
}
