package replay

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/booking-webhook/pkg/logging"
)

func TestDynamoStore_ReserveCompleteReplay(t *testing.T) {
	mock := newMockDynamo()
	store := newTestDynamoStore(mock)
	ctx := context.Background()
	key := Key("", "token-1")

	rec, err := store.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.Len(t, mock.putInputs, 1)
	assert.Equal(t, "booking_replays", aws.ToString(mock.putInputs[0].TableName))
	assert.Equal(t, "attribute_not_exists(replayKey) OR expiresAt < :now", aws.ToString(mock.putInputs[0].ConditionExpression))

	var stored Record
	require.NoError(t, attributevalue.UnmarshalMap(mock.putInputs[0].Item, &stored))
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, store.now().Add(time.Minute).Unix(), stored.ExpiresAt)

	rec, err = store.Reserve(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusPending, rec.Status)

	require.NoError(t, store.Complete(ctx, key, 200, []byte(`{"success":true}`)))
	require.Len(t, mock.updateInputs, 1)
	update := mock.updateInputs[0]
	assert.Equal(t, "status", update.ExpressionAttributeNames["#status"])
	assert.Equal(t, "body", update.ExpressionAttributeNames["#body"])

	rec, err = store.Reserve(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Equal(t, 200, rec.StatusCode)
	assert.Equal(t, `{"success":true}`, rec.Body)
}

func TestDynamoStore_ExpiredRecordIsReclaimed(t *testing.T) {
	mock := newMockDynamo()
	store := newTestDynamoStore(mock)
	ctx := context.Background()
	key := Key("idem-1", "")

	_, err := store.Reserve(ctx, key)
	require.NoError(t, err)

	start := store.now()
	store.now = func() time.Time { return start.Add(5 * time.Minute) }

	rec, err := store.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDynamoStore_Release(t *testing.T) {
	mock := newMockDynamo()
	store := newTestDynamoStore(mock)
	ctx := context.Background()
	key := Key("idem-2", "")

	_, err := store.Reserve(ctx, key)
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, key))
	assert.Empty(t, mock.items)

	rec, err := store.Reserve(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDynamoStore_CompleteWithoutReservation(t *testing.T) {
	store := newTestDynamoStore(newMockDynamo())
	err := store.Complete(context.Background(), Key("idem-3", ""), 200, nil)
	assert.ErrorIs(t, err, ErrNotReserved)
}

func TestDynamoStore_PropagatesErrors(t *testing.T) {
	mock := newMockDynamo()
	mock.putErr = errors.New("dynamo down")
	store := newTestDynamoStore(mock)

	_, err := store.Reserve(context.Background(), Key("idem-4", ""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dynamo down")
}

func TestNewDynamoStore_Panics(t *testing.T) {
	assert.Panics(t, func() { NewDynamoStore(nil, "t", Options{}, nil) })
	assert.Panics(t, func() { NewDynamoStore(newMockDynamo(), "", Options{}, nil) })
}

func newTestDynamoStore(mock *mockDynamo) *DynamoStore {
	store := NewDynamoStore(mock, "booking_replays", Options{TTL: time.Hour, PendingTTL: time.Minute}, logging.Default())
	fixed := time.Date(2025, 8, 3, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }
	return store
}

// mockDynamo evaluates the handful of conditions the store issues.
type mockDynamo struct {
	mu           sync.Mutex
	items        map[string]map[string]types.AttributeValue
	putInputs    []*dynamodb.PutItemInput
	updateInputs []*dynamodb.UpdateItemInput
	putErr       error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func keyOf(attrs map[string]types.AttributeValue) string {
	if s, ok := attrs["replayKey"].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func numberOf(v types.AttributeValue) int64 {
	if n, ok := v.(*types.AttributeValueMemberN); ok {
		parsed, _ := strconv.ParseInt(n.Value, 10, 64)
		return parsed
	}
	return 0
}

func (m *mockDynamo) PutItem(_ context.Context, input *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putInputs = append(m.putInputs, input)
	if m.putErr != nil {
		return nil, m.putErr
	}
	key := keyOf(input.Item)
	if existing, ok := m.items[key]; ok {
		if numberOf(existing["expiresAt"]) >= numberOf(input.ExpressionAttributeValues[":now"]) {
			return nil, conditionFailed()
		}
	}
	m.items[key] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, input *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &dynamodb.GetItemOutput{Item: m.items[keyOf(input.Key)]}, nil
}

func (m *mockDynamo) UpdateItem(_ context.Context, input *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateInputs = append(m.updateInputs, input)
	key := keyOf(input.Key)
	existing, ok := m.items[key]
	if !ok {
		return nil, conditionFailed()
	}
	updated := make(map[string]types.AttributeValue, len(existing)+3)
	for k, v := range existing {
		updated[k] = v
	}
	values := input.ExpressionAttributeValues
	updated["status"] = values[":status"]
	updated["statusCode"] = values[":code"]
	updated["body"] = values[":body"]
	updated["expiresAt"] = values[":expires"]
	m.items[key] = updated
	return &dynamodb.UpdateItemOutput{}, nil
}

func (m *mockDynamo) DeleteItem(_ context.Context, input *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, keyOf(input.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}
