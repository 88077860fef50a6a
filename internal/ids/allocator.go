// Package ids allocates sequential, human-readable identifiers from atomic
// DynamoDB counters.
package ids

import (
	"context"
	"fmt"
	"strconv"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
)

// Counter scopes.
const (
	ScopeUser     = "user"
	ScopeCategory = "category"
	ScopeProduct  = "product"
	ScopeOrder    = "order"
	ScopePayment  = "payment"
	ScopeReview   = "review"
)

// CartScope is the per-user scope for cart item ids.
func CartScope(userID string) string { return "cart#" + userID }

type Allocator struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewAllocator(client aws.DynamoDBAPI, tableName string) *Allocator {
	return &Allocator{client: client, tableName: tableName, nowFunc: time.Now}
}

// Next atomically increments the scope's counter and returns the new value.
// Values are unique and strictly increasing per scope; a value whose insert
// later fails is not reused.
func (a *Allocator) Next(ctx context.Context, scope string) (int64, error) {
	out, err := a.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &a.tableName,
		Key:              ddb.Key("counter_name", scope),
		UpdateExpression: ddb.Str("SET #ua = :ua ADD #seq :one"),
		ExpressionAttributeNames: map[string]string{
			"#seq": "seq",
			"#ua":  "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
			":ua":  &types.AttributeValueMemberS{Value: a.nowFunc().UTC().Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, ddb.StorageError("allocate "+scope, err)
	}
	seq, ok := out.Attributes["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("allocate %s: counter missing from response", scope)
	}
	v, err := strconv.ParseInt(seq.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("allocate %s: parse counter: %w", scope, err)
	}
	return v, nil
}

// NextString is Next rendered in decimal, the form used on the wire.
func (a *Allocator) NextString(ctx context.Context, scope string) (string, error) {
	v, err := a.Next(ctx, scope)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(v, 10), nil
}

// Less orders decimal identifiers numerically, falling back to string order
// for anything that does not parse.
func Less(a, b string) bool {
	x, errA := strconv.ParseInt(a, 10, 64)
	y, errB := strconv.ParseInt(b, 10, 64)
	if errA != nil || errB != nil {
		return a < b
	}
	return x < y
}
