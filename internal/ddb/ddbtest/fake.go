// Package ddbtest provides an in-memory DynamoDB good enough for store and
// handler tests. It understands the expression subset the stores emit:
// conjunctions of attribute_exists/attribute_not_exists/comparisons for
// conditions, and SET (with +, -, if_not_exists, list_append), ADD and
// REMOVE for updates. Transactions are atomic and report per-item
// cancellation reasons like the real service.
package ddbtest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

type table struct {
	hashKey string
	items   map[string]item
	order   []string
}

// Fake implements aws.DynamoDBAPI.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	failures map[string]error
	calls    map[string]int
}

func New() *Fake {
	return &Fake{
		tables:   map[string]*table{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
}

// CreateTable registers a table keyed by a single string hash key.
func (f *Fake) CreateTable(name, hashKey string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[name] = &table{hashKey: hashKey, items: map[string]item{}}
}

// FailOn makes every subsequent call of op ("PutItem", "Scan", ...) return
// err until cleared with a nil err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls reports how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Item returns a copy of the stored item, or nil.
func (f *Fake) Item(tableName, key string) map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	if it, ok := t.items[key]; ok {
		return clone(it)
	}
	return nil
}

// Len returns the number of items in a table.
func (f *Fake) Len(tableName string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tables[tableName]; ok {
		return len(t.items)
	}
	return 0
}

// Put stores an item unconditionally. Useful for seeding.
func (f *Fake) Put(tableName string, it map[string]types.AttributeValue) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, err := f.table(tableName)
	if err != nil {
		return err
	}
	k, err := t.keyOf(it)
	if err != nil {
		return err
	}
	t.put(k, clone(it))
	return nil
}

func (f *Fake) enter(op string) error {
	f.calls[op]++
	return f.failures[op]
}

func (f *Fake) table(name string) (*table, error) {
	t, ok := f.tables[name]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: strPtr("table not found: " + name)}
	}
	return t, nil
}

func (t *table) keyOf(it item) (string, error) {
	switch v := it[t.hashKey].(type) {
	case *types.AttributeValueMemberS:
		return v.Value, nil
	case *types.AttributeValueMemberN:
		return v.Value, nil
	}
	return "", validation(fmt.Sprintf("missing key attribute %s", t.hashKey))
}

func (t *table) put(k string, it item) {
	if _, exists := t.items[k]; !exists {
		t.order = append(t.order, k)
	}
	t.items[k] = it
}

func (t *table) remove(k string) {
	if _, exists := t.items[k]; !exists {
		return
	}
	delete(t.items, k)
	for i, o := range t.order {
		if o == k {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

func (t *table) ordered() []item {
	out := make([]item, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.items[k])
	}
	return out
}

func validation(msg string) error {
	return &smithy.GenericAPIError{Code: "ValidationException", Message: msg}
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: strPtr("The conditional request failed")}
}

func strPtr(s string) *string { return &s }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func clone(it item) item {
	if it == nil {
		return nil
	}
	out := make(item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func (f *Fake) PutItem(ctx context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(deref(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Item)
	if err != nil {
		return nil, err
	}
	e := env{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	if err := e.checkUsage(deref(in.ConditionExpression)); err != nil {
		return nil, validation(err.Error())
	}
	old := t.items[k]
	if in.ConditionExpression != nil {
		ok, err := e.evalCondition(*in.ConditionExpression, old)
		if err != nil {
			return nil, validation(err.Error())
		}
		if !ok {
			return nil, conditionFailed()
		}
	}
	t.put(k, clone(in.Item))
	out := &dynamodb.PutItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = clone(old)
	}
	return out, nil
}

func (f *Fake) GetItem(ctx context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(deref(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	return &dynamodb.GetItemOutput{Item: clone(t.items[k])}, nil
}

func (f *Fake) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(deref(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	e := env{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	if err := e.checkUsage(deref(in.UpdateExpression), deref(in.ConditionExpression)); err != nil {
		return nil, validation(err.Error())
	}
	old := t.items[k]
	if in.ConditionExpression != nil {
		ok, err := e.evalCondition(*in.ConditionExpression, old)
		if err != nil {
			return nil, validation(err.Error())
		}
		if !ok {
			return nil, conditionFailed()
		}
	}
	next := clone(old)
	if next == nil {
		next = clone(in.Key)
	}
	touched, err := e.applyUpdate(deref(in.UpdateExpression), next)
	if err != nil {
		return nil, validation(err.Error())
	}
	t.put(k, next)

	out := &dynamodb.UpdateItemOutput{}
	switch in.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = clone(next)
	case types.ReturnValueAllOld:
		out.Attributes = clone(old)
	case types.ReturnValueUpdatedNew:
		out.Attributes = item{}
		for _, a := range touched {
			out.Attributes[a] = next[a]
		}
	}
	return out, nil
}

func (f *Fake) DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(deref(in.TableName))
	if err != nil {
		return nil, err
	}
	k, err := t.keyOf(in.Key)
	if err != nil {
		return nil, err
	}
	e := env{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	if err := e.checkUsage(deref(in.ConditionExpression)); err != nil {
		return nil, validation(err.Error())
	}
	old := t.items[k]
	if in.ConditionExpression != nil {
		ok, err := e.evalCondition(*in.ConditionExpression, old)
		if err != nil {
			return nil, validation(err.Error())
		}
		if !ok {
			return nil, conditionFailed()
		}
	}
	t.remove(k)
	out := &dynamodb.DeleteItemOutput{}
	if in.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = clone(old)
	}
	return out, nil
}

// Query treats the key condition as a filter over the whole table, so it
// works the same against the base table or any index name.
func (f *Fake) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(deref(in.TableName))
	if err != nil {
		return nil, err
	}
	if in.KeyConditionExpression == nil {
		return nil, validation("missing KeyConditionExpression")
	}
	e := env{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	if err := e.checkUsage(*in.KeyConditionExpression, deref(in.FilterExpression), deref(in.ProjectionExpression)); err != nil {
		return nil, validation(err.Error())
	}
	matched, err := f.filter(t, e, *in.KeyConditionExpression, deref(in.FilterExpression))
	if err != nil {
		return nil, err
	}
	out := &dynamodb.QueryOutput{Count: int32(len(matched)), ScannedCount: int32(len(matched))}
	if in.Select != types.SelectCount {
		out.Items = matched
	}
	return out, nil
}

func (f *Fake) Scan(ctx context.Context, in *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("Scan"); err != nil {
		return nil, err
	}
	t, err := f.table(deref(in.TableName))
	if err != nil {
		return nil, err
	}
	e := env{names: in.ExpressionAttributeNames, values: in.ExpressionAttributeValues}
	if err := e.checkUsage(deref(in.FilterExpression), deref(in.ProjectionExpression)); err != nil {
		return nil, validation(err.Error())
	}
	matched, err := f.filter(t, e, deref(in.FilterExpression))
	if err != nil {
		return nil, err
	}
	out := &dynamodb.ScanOutput{Count: int32(len(matched)), ScannedCount: int32(len(t.items))}
	if in.Select != types.SelectCount {
		out.Items = matched
	}
	return out, nil
}

func (f *Fake) filter(t *table, e env, exprs ...string) ([]item, error) {
	var out []item
	for _, it := range t.ordered() {
		keep := true
		for _, expr := range exprs {
			if expr == "" {
				continue
			}
			ok, err := e.evalCondition(expr, it)
			if err != nil {
				return nil, validation(err.Error())
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, clone(it))
		}
	}
	return out, nil
}

type pendingWrite struct {
	t     *table
	key   string
	apply func(old item) (item, error)
}

// TransactWriteItems evaluates every condition first and only then applies
// the writes, so either all of them land or none do.
func (f *Fake) TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter("TransactWriteItems"); err != nil {
		return nil, err
	}
	if len(in.TransactItems) == 0 || len(in.TransactItems) > 100 {
		return nil, validation("transaction must contain between 1 and 100 items")
	}

	seen := map[string]bool{}
	reasons := make([]types.CancellationReason, len(in.TransactItems))
	writes := make([]pendingWrite, 0, len(in.TransactItems))
	failed := false

	for i, ti := range in.TransactItems {
		var (
			tableName, cond, upd string
			key                  item
			e                    env
			w                    pendingWrite
		)
		switch {
		case ti.Put != nil:
			tableName, cond = deref(ti.Put.TableName), deref(ti.Put.ConditionExpression)
			e = env{names: ti.Put.ExpressionAttributeNames, values: ti.Put.ExpressionAttributeValues}
			newItem := clone(ti.Put.Item)
			key = newItem
			w.apply = func(item) (item, error) { return newItem, nil }
		case ti.Update != nil:
			tableName, cond, upd = deref(ti.Update.TableName), deref(ti.Update.ConditionExpression), deref(ti.Update.UpdateExpression)
			e = env{names: ti.Update.ExpressionAttributeNames, values: ti.Update.ExpressionAttributeValues}
			key = ti.Update.Key
			updEnv, k := e, clone(ti.Update.Key)
			w.apply = func(old item) (item, error) {
				next := clone(old)
				if next == nil {
					next = k
				}
				_, err := updEnv.applyUpdate(upd, next)
				return next, err
			}
		case ti.Delete != nil:
			tableName, cond = deref(ti.Delete.TableName), deref(ti.Delete.ConditionExpression)
			e = env{names: ti.Delete.ExpressionAttributeNames, values: ti.Delete.ExpressionAttributeValues}
			key = ti.Delete.Key
		case ti.ConditionCheck != nil:
			tableName, cond = deref(ti.ConditionCheck.TableName), deref(ti.ConditionCheck.ConditionExpression)
			e = env{names: ti.ConditionCheck.ExpressionAttributeNames, values: ti.ConditionCheck.ExpressionAttributeValues}
			key = ti.ConditionCheck.Key
			if cond == "" {
				return nil, validation("ConditionCheck requires a ConditionExpression")
			}
		default:
			return nil, validation("empty transact item")
		}

		t, err := f.table(tableName)
		if err != nil {
			return nil, err
		}
		k, err := t.keyOf(key)
		if err != nil {
			return nil, err
		}
		if seen[tableName+"\x00"+k] {
			return nil, validation("Transaction request cannot include multiple operations on one item")
		}
		seen[tableName+"\x00"+k] = true
		if err := e.checkUsage(cond, upd); err != nil {
			return nil, validation(err.Error())
		}

		reasons[i] = types.CancellationReason{Code: strPtr("None")}
		if cond != "" {
			ok, err := e.evalCondition(cond, t.items[k])
			if err != nil {
				return nil, validation(err.Error())
			}
			if !ok {
				reasons[i] = types.CancellationReason{
					Code:    strPtr("ConditionalCheckFailed"),
					Message: strPtr("The conditional request failed"),
				}
				failed = true
			}
		}

		switch {
		case ti.Delete != nil:
			w = pendingWrite{t: t, key: k}
		case ti.ConditionCheck != nil:
			continue
		default:
			w.t, w.key = t, k
		}
		writes = append(writes, w)
	}

	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             strPtr("Transaction cancelled, please refer cancellation reasons for specific reasons"),
			CancellationReasons: reasons,
		}
	}

	// Compute every result before touching state so an update error leaves
	// the tables untouched.
	results := make([]item, len(writes))
	for i, w := range writes {
		if w.apply == nil {
			continue
		}
		next, err := w.apply(w.t.items[w.key])
		if err != nil {
			return nil, validation(err.Error())
		}
		results[i] = next
	}
	for i, w := range writes {
		if w.apply == nil {
			w.t.remove(w.key)
			continue
		}
		w.t.put(w.key, results[i])
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}
