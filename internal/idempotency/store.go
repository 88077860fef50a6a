package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
)

// Store encapsulates idempotency operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // default TTL window when creating entries
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
// tableName: DynamoDB table name for idempotency entries.
// ttlWindow: default TTL window (e.g., 24*time.Hour)
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Begin claims key for a new attempt.
// Returns (rec, true, nil) when the caller owns the attempt: the key was new,
// or its previous attempt FAILED and has been reclaimed.
// Returns (existing, false, nil) when another attempt is in progress or done;
// the caller should replay or reject based on existing.Status.
func (s *Store) Begin(ctx context.Context, key, requestHash string) (*IdempotencyRecord, bool, error) {
	now := s.nowFunc().UTC()
	rec := IdempotencyRecord{
		IdempotencyKey: key,
		Status:         StatusInProgress,
		RequestHash:    requestHash,
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiresAt:      now.Add(s.ttlWindow).Unix(),
	}
	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
		// Only create when attribute_not_exists(idempotency_key)
		ConditionExpression: ddb.Str("attribute_not_exists(idempotency_key)"),
	})
	if err == nil {
		return &rec, true, nil
	}
	if !ddb.IsConditionFailed(err) {
		return nil, false, ddb.StorageError("begin idempotent request", err)
	}

	existing, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// expired and removed between the two calls
		return s.Begin(ctx, key, requestHash)
	}
	if existing.Status != StatusFailed && existing.ExpiresAt > now.Unix() {
		return existing, false, nil
	}
	return s.reclaim(ctx, existing, requestHash)
}

// reclaim moves a FAILED or expired record back to IN_PROGRESS. Losing the
// race to another reclaimer yields (current, false).
func (s *Store) reclaim(ctx context.Context, existing *IdempotencyRecord, requestHash string) (*IdempotencyRecord, bool, error) {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              ddb.Key("idempotency_key", existing.IdempotencyKey),
		UpdateExpression: ddb.Str("SET #s = :inprog, #rh = :rh, #ua = :ua, #exp = :exp REMOVE #rb, #rs, #rid"),
		ExpressionAttributeNames: map[string]string{
			"#s":   "status",
			"#rh":  "request_hash",
			"#ua":  "updated_at",
			"#exp": "expires_at",
			"#rb":  "response_body",
			"#rs":  "response_status",
			"#rid": "resource_id",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":inprog":   &types.AttributeValueMemberS{Value: StatusInProgress},
			":rh":       &types.AttributeValueMemberS{Value: requestHash},
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":exp":      &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Add(s.ttlWindow).Unix(), 10)},
			":previous": &types.AttributeValueMemberS{Value: existing.Status},
		},
		ConditionExpression: ddb.Str("#s = :previous"),
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			current, gerr := s.Get(ctx, existing.IdempotencyKey)
			if gerr != nil {
				return nil, false, gerr
			}
			return current, false, nil
		}
		return nil, false, ddb.StorageError("reclaim idempotency key", err)
	}
	rec := *existing
	rec.Status = StatusInProgress
	rec.RequestHash = requestHash
	rec.ResponseBody, rec.ResponseStatus, rec.ResourceID = "", 0, ""
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttlWindow).Unix()
	return &rec, true, nil
}

// Get retrieves an idempotency record by key. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, key string) (*IdempotencyRecord, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            ddb.Key("idempotency_key", key),
		ConsistentRead: sdkBool(true),
	})
	if err != nil {
		return nil, ddb.StorageError("get idempotency record", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec IdempotencyRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// MarkDone sets status to DONE and stores the response so that retries can
// replay it. Only an IN_PROGRESS record can be completed.
func (s *Store) MarkDone(ctx context.Context, key, resourceID, responseBody string, responseStatus int) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              ddb.Key("idempotency_key", key),
		UpdateExpression: ddb.Str("SET #s = :done, #rid = :rid, #rb = :rb, #rs = :rs, #ua = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s":   "status",
			"#rid": "resource_id",
			"#rb":  "response_body",
			"#rs":  "response_status",
			"#ua":  "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":   &types.AttributeValueMemberS{Value: StatusDone},
			":rid":    &types.AttributeValueMemberS{Value: resourceID},
			":rb":     &types.AttributeValueMemberS{Value: responseBody},
			":rs":     &types.AttributeValueMemberN{Value: strconv.Itoa(responseStatus)},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":inprog": &types.AttributeValueMemberS{Value: StatusInProgress},
		},
		ConditionExpression: ddb.Str("#s = :inprog"),
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return fmt.Errorf("mark done %s: record is not in progress", key)
		}
		return ddb.StorageError("mark idempotency done", err)
	}
	return nil
}

// MarkFailed marks the idempotency record as FAILED and stores a note. A
// later Begin with the same key reclaims it.
func (s *Store) MarkFailed(ctx context.Context, key, note string) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              ddb.Key("idempotency_key", key),
		UpdateExpression: ddb.Str("SET #s = :failed, #n = :n, #ua = :ua"),
		ExpressionAttributeNames: map[string]string{
			"#s":  "status",
			"#n":  "note",
			"#ua": "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
			":n":      &types.AttributeValueMemberS{Value: note},
			":ua":     &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
		ConditionExpression: ddb.Str("attribute_exists(idempotency_key)"),
	})
	if err != nil && !ddb.IsConditionFailed(err) {
		return ddb.StorageError("mark idempotency failed", err)
	}
	return nil
}

func sdkBool(b bool) *bool { return &b }
