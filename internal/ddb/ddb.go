// Package ddb holds the DynamoDB plumbing shared by the stores: error
// classification, pagination and a small builder for update expressions.
package ddb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
)

// Str returns a pointer to s.
func Str(s string) *string { return &s }

// Key builds a single-attribute string key.
func Key(attr, value string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attr: &types.AttributeValueMemberS{Value: value},
	}
}

// IsConditionFailed reports whether err is a failed ConditionExpression on a
// single-item operation.
func IsConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

// FailedIndex inspects a cancelled transaction and returns the index of the
// first item whose condition failed. ok is false when err is not a
// cancellation; idx is -1 when the service did not report reasons.
func FailedIndex(err error) (idx int, ok bool) {
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return -1, false
	}
	for i, r := range tce.CancellationReasons {
		if r.Code != nil && *r.Code == "ConditionalCheckFailed" {
			return i, true
		}
	}
	return -1, true
}

// StorageError classifies an infrastructure failure. Deadline and
// cancellation become StorageTimeout, everything else StorageUnavailable.
// Errors that are already classified pass through.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	wrapped := fmt.Errorf("%s: %w", op, err)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.KindStorageTimeout, "storage_timeout", "storage operation timed out", wrapped)
	}
	return apperr.Wrap(apperr.KindStorageUnavailable, "storage_unavailable", "storage unavailable", wrapped)
}

// ScanAll runs a Scan to completion, following LastEvaluatedKey.
func ScanAll(ctx context.Context, client aws.DynamoDBAPI, in *dyn.ScanInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := client.Scan(ctx, in)
		if err != nil {
			return nil, StorageError("scan "+*in.TableName, err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// QueryAll runs a Query to completion, following LastEvaluatedKey.
func QueryAll(ctx context.Context, client aws.DynamoDBAPI, in *dyn.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := client.Query(ctx, in)
		if err != nil {
			return nil, StorageError("query "+*in.TableName, err)
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Count returns the number of items in a table using a COUNT scan.
func Count(ctx context.Context, client aws.DynamoDBAPI, table string) (int64, error) {
	in := &dyn.ScanInput{
		TableName: &table,
		Select:    types.SelectCount,
	}
	var total int64
	for {
		out, err := client.Scan(ctx, in)
		if err != nil {
			return 0, StorageError("count "+table, err)
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		in.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// Update accumulates an update expression together with its attribute names
// and values. Attribute names are always aliased ("#attr") so reserved words
// like status and name need no special handling.
type Update struct {
	sets    []string
	adds    []string
	removes []string
	names   map[string]string
	values  map[string]types.AttributeValue
	err     error
}

func NewUpdate() *Update {
	return &Update{
		names:  map[string]string{},
		values: map[string]types.AttributeValue{},
	}
}

// Name registers attr and returns its alias.
func (u *Update) Name(attr string) string {
	alias := "#" + attr
	u.names[alias] = attr
	return alias
}

// Value registers a value under placeholder (which must start with ':').
func (u *Update) Value(placeholder string, v interface{}) *Update {
	av, err := attributevalue.Marshal(v)
	if err != nil {
		u.err = fmt.Errorf("marshal %s: %w", placeholder, err)
		return u
	}
	u.values[placeholder] = av
	return u
}

// Set adds "SET #attr = :attr".
func (u *Update) Set(attr string, v interface{}) *Update {
	u.sets = append(u.sets, u.Name(attr)+" = :"+attr)
	return u.Value(":"+attr, v)
}

// SetExpr adds "SET #attr = <rhs>" with a caller-built right-hand side.
func (u *Update) SetExpr(attr, rhs string) *Update {
	u.sets = append(u.sets, u.Name(attr)+" = "+rhs)
	return u
}

// Add adds "ADD #attr :attr" (numeric increment).
func (u *Update) Add(attr string, v interface{}) *Update {
	u.adds = append(u.adds, u.Name(attr)+" :"+attr)
	return u.Value(":"+attr, v)
}

// Remove adds "REMOVE #attr".
func (u *Update) Remove(attr string) *Update {
	u.removes = append(u.removes, u.Name(attr))
	return u
}

// Len is the number of clauses added so far.
func (u *Update) Len() int { return len(u.sets) + len(u.adds) + len(u.removes) }

// Expression renders the update expression.
func (u *Update) Expression() string {
	expr := ""
	appendSection := func(kw string, parts []string) {
		if len(parts) == 0 {
			return
		}
		if expr != "" {
			expr += " "
		}
		expr += kw + " " + strings.Join(parts, ", ")
	}
	appendSection("SET", u.sets)
	appendSection("ADD", u.adds)
	appendSection("REMOVE", u.removes)
	return expr
}

// Names returns the alias map, or nil when empty.
func (u *Update) Names() map[string]string {
	if len(u.names) == 0 {
		return nil
	}
	return u.names
}

// Values returns the value map, or nil when empty.
func (u *Update) Values() map[string]types.AttributeValue {
	if len(u.values) == 0 {
		return nil
	}
	return u.values
}

// Err reports the first marshalling error.
func (u *Update) Err() error { return u.err }

// GuardPut claims a uniqueness key in the guards table. It fails the
// enclosing transaction when the key is already held.
func GuardPut(table, key, owner string) types.TransactWriteItem {
	return types.TransactWriteItem{Put: &types.Put{
		TableName: &table,
		Item: map[string]types.AttributeValue{
			"unique_key": &types.AttributeValueMemberS{Value: key},
			"owner_id":   &types.AttributeValueMemberS{Value: owner},
		},
		ConditionExpression: Str("attribute_not_exists(unique_key)"),
	}}
}

// GuardDelete releases a uniqueness key.
func GuardDelete(table, key string) types.TransactWriteItem {
	return types.TransactWriteItem{Delete: &types.Delete{
		TableName: &table,
		Key:       Key("unique_key", key),
	}}
}

// GuardOwner returns the owner recorded for a uniqueness key, or "".
func GuardOwner(ctx context.Context, client aws.DynamoDBAPI, table, key string) (string, error) {
	out, err := client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &table,
		Key:       Key("unique_key", key),
	})
	if err != nil {
		return "", StorageError("get guard", err)
	}
	owner, _ := out.Item["owner_id"].(*types.AttributeValueMemberS)
	if owner == nil {
		return "", nil
	}
	return owner.Value, nil
}
