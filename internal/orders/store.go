package orders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/ddb"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

// UserIndex is the GSI on user_id.
const UserIndex = "user_id-index"

// MaxDistinctProducts keeps a placement within one transaction (one stock
// update per product plus the order put).
const MaxDistinctProducts = 99

// ErrStatusMismatch is returned when a conditional status change finds the
// order in a different status than expected.
var ErrStatusMismatch = apperr.Conflict("status_mismatch", "order status changed concurrently")

// Store encapsulates operations on the orders table.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	products  *catalog.ProductStore
	ids       *ids.Allocator
	nowFunc   func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName string, products *catalog.ProductStore, alloc *ids.Allocator) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		products:  products,
		ids:       alloc,
		nowFunc:   time.Now,
	}
}

// Place stores a new Pending order and takes stock for every line in one
// transaction. Either the order exists and all stock was taken, or nothing
// changed.
//
// A product that does not exist fails with NotFound; one without enough
// stock fails with ErrInsufficientStock.
func (s *Store) Place(ctx context.Context, o Order) (*Order, error) {
	if len(o.Items) == 0 {
		return nil, apperr.Validation("order has no items", map[string]string{"items": "min"})
	}
	productIDs := o.ProductIDs()
	if len(productIDs) > MaxDistinctProducts {
		return nil, apperr.Validation(fmt.Sprintf("an order may contain at most %d distinct products", MaxDistinctProducts), map[string]string{"items": "max"})
	}
	qty, err := o.quantities()
	if err != nil {
		return nil, err
	}

	id, err := s.ids.NextString(ctx, ids.ScopeOrder)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	o.OrderID = id
	o.Status = StatusPending
	o.CreatedDate, o.UpdatedDate = now, now

	orderMap, err := attributevalue.MarshalMap(o)
	if err != nil {
		return nil, fmt.Errorf("marshal order item: %w", err)
	}

	transactItems := make([]types.TransactWriteItem, 0, len(productIDs)+1)
	for _, pid := range productIDs {
		transactItems = append(transactItems, s.products.TakeStock(pid, qty[pid]))
	}
	transactItems = append(transactItems, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           &s.tableName,
			Item:                orderMap,
			ConditionExpression: ddb.Str("attribute_not_exists(order_id)"),
		},
	})

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err == nil {
		return &o, nil
	}
	idx, cancelled := ddb.FailedIndex(err)
	switch {
	case !cancelled:
		return nil, ddb.StorageError("place order", err)
	case idx == len(productIDs):
		return nil, apperr.ErrDuplicateID
	case idx >= 0:
		return nil, s.stockFailure(ctx, productIDs[idx:idx+1], qty)
	default:
		return nil, s.stockFailure(ctx, productIDs, qty)
	}
}

// stockFailure explains why a stock condition failed.
func (s *Store) stockFailure(ctx context.Context, productIDs []string, qty map[string]int) error {
	for _, pid := range productIDs {
		p, err := s.products.Get(ctx, pid)
		if err != nil {
			return err
		}
		if p == nil {
			e := apperr.NotFound("product")
			e.Message = "product " + pid + " not found"
			return e
		}
		if p.Stock < qty[pid] {
			return &apperr.Error{
				Kind:    apperr.KindInsufficientStock,
				Code:    apperr.ErrInsufficientStock.Code,
				Message: fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", pid, qty[pid], p.Stock),
				Fields:  map[string]string{"product_id": pid},
			}
		}
	}
	return apperr.Conflict("concurrent_update", "stock changed concurrently, retry")
}

// Get fetches an order by order_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, orderID string) (*Order, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       ddb.Key("order_id", orderID),
	})
	if err != nil {
		return nil, ddb.StorageError("get order", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var o Order
	if err := attributevalue.UnmarshalMap(out.Item, &o); err != nil {
		return nil, fmt.Errorf("unmarshal order: %w", err)
	}
	return &o, nil
}

// ListByUser returns the user's orders, oldest first.
func (s *Store) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	items, err := ddb.QueryAll(ctx, s.client, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              ddb.Str(UserIndex),
		KeyConditionExpression: ddb.Str("user_id = :u"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":u": &types.AttributeValueMemberS{Value: userID},
		},
	})
	if err != nil {
		return nil, err
	}
	return decodeList(items)
}

// ListAll returns every order, oldest first.
func (s *Store) ListAll(ctx context.Context) ([]Order, error) {
	items, err := ddb.ScanAll(ctx, s.client, &dyn.ScanInput{TableName: &s.tableName})
	if err != nil {
		return nil, err
	}
	return decodeList(items)
}

func decodeList(items []map[string]types.AttributeValue) ([]Order, error) {
	list := make([]Order, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal orders: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return ids.Less(list[i].OrderID, list[j].OrderID) })
	return list, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return ddb.Count(ctx, s.client, s.tableName)
}

// UpdateStatus conditionally updates the order status from expected -> newStatus.
// Returns nil on success, ErrStatusMismatch if condition failed.
func (s *Store) UpdateStatus(ctx context.Context, orderID, expectedStatus, newStatus string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      ddb.Key("order_id", orderID),
		UpdateExpression:         ddb.Str("SET #s = :new, #ud = :ud"),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#ud": "updated_date"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: newStatus},
			":ud":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":expected": &types.AttributeValueMemberS{Value: expectedStatus},
		},
		ConditionExpression: ddb.Str("attribute_exists(order_id) AND #s = :expected"),
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return ErrStatusMismatch
		}
		return ddb.StorageError("update order status", err)
	}
	return nil
}

// Transition moves o to status to following the transition table. Moving to
// Cancelled goes through Cancel so stock is returned.
func (s *Store) Transition(ctx context.Context, o *Order, to string) (*Order, error) {
	if !ValidStatus(to) {
		return nil, apperr.Validation("unknown status "+to, map[string]string{"status": "oneof"})
	}
	if to == StatusCancelled {
		return s.Cancel(ctx, o)
	}
	if !CanTransition(o.Status, to) {
		return nil, illegalTransition(o.Status, to)
	}
	if err := s.UpdateStatus(ctx, o.OrderID, o.Status, to); err != nil {
		return nil, err
	}
	updated := *o
	updated.Status = to
	updated.UpdatedDate = s.nowFunc().UTC()
	return &updated, nil
}

func illegalTransition(from, to string) error {
	return apperr.Conflict("illegal_transition", fmt.Sprintf("order cannot move from %s to %s", from, to))
}

// ErrPaymentOutstanding is returned when a Paid order is cancelled without
// reversing its payment in the same transaction.
var ErrPaymentOutstanding = apperr.Conflict("payment_outstanding", "a paid order must be cancelled together with its payment")

// Cancel marks o Cancelled and returns its stock to products that still
// exist, in one transaction. A Paid order needs the items that void its
// payment in paymentItems; they are written in the same transaction.
func (s *Store) Cancel(ctx context.Context, o *Order, paymentItems ...types.TransactWriteItem) (*Order, error) {
	if !CanTransition(o.Status, StatusCancelled) {
		return nil, illegalTransition(o.Status, StatusCancelled)
	}
	if o.Status == StatusPaid && len(paymentItems) == 0 {
		return nil, ErrPaymentOutstanding
	}
	qty, err := o.quantities()
	if err != nil {
		return nil, err
	}
	var transactItems []types.TransactWriteItem
	for _, pid := range o.ProductIDs() {
		p, err := s.products.Get(ctx, pid)
		if err != nil {
			return nil, err
		}
		if p != nil {
			transactItems = append(transactItems, s.products.ReturnStock(pid, qty[pid]))
		}
	}
	now := s.nowFunc().UTC()
	statusIdx := len(transactItems)
	transactItems = append(transactItems, s.statusChange(o.OrderID, o.Status, StatusCancelled, now))
	transactItems = append(transactItems, paymentItems...)

	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{TransactItems: transactItems})
	if err != nil {
		idx, cancelled := ddb.FailedIndex(err)
		switch {
		case !cancelled:
			return nil, ddb.StorageError("cancel order", err)
		case idx == statusIdx:
			return nil, ErrStatusMismatch
		case idx > statusIdx:
			return nil, apperr.Conflict("concurrent_update", "order payment changed concurrently, retry")
		default:
			return nil, apperr.Conflict("concurrent_update", "order products changed concurrently, retry")
		}
	}
	updated := *o
	updated.Status = StatusCancelled
	updated.UpdatedDate = now
	return &updated, nil
}

// MarkPaid is a transaction item moving a Pending order to Paid.
func (s *Store) MarkPaid(orderID string, now time.Time) types.TransactWriteItem {
	return s.statusChange(orderID, StatusPending, StatusPaid, now)
}

// MarkUnpaid is a transaction item moving a Paid order back to Pending.
func (s *Store) MarkUnpaid(orderID string, now time.Time) types.TransactWriteItem {
	return s.statusChange(orderID, StatusPaid, StatusPending, now)
}

func (s *Store) statusChange(orderID, from, to string, now time.Time) types.TransactWriteItem {
	return types.TransactWriteItem{Update: &types.Update{
		TableName:                &s.tableName,
		Key:                      ddb.Key("order_id", orderID),
		UpdateExpression:         ddb.Str("SET #s = :new, #ud = :ud"),
		ConditionExpression:      ddb.Str("attribute_exists(order_id) AND #s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status", "#ud": "updated_date"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: to},
			":expected": &types.AttributeValueMemberS{Value: from},
			":ud":       &types.AttributeValueMemberS{Value: now.UTC().Format(time.RFC3339Nano)},
		},
	}}
}
