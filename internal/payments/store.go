// Package payments records payments against orders. Recording a payment and
// marking its order Paid happen in a single transaction.
package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
	"github.com/imrishuroy/go-storefront/internal/ids"
	"github.com/imrishuroy/go-storefront/internal/orders"
)

// Payment statuses
const (
	StatusSuccess = "Success"
	StatusVoided  = "Voided"
)

type Payment struct {
	PaymentID      string    `json:"payment_id" dynamodbav:"payment_id"`
	OrderID        string    `json:"order_id" dynamodbav:"order_id"`
	UserID         string    `json:"user_id" dynamodbav:"user_id"`
	Amount         float64   `json:"amount" dynamodbav:"amount"`
	PaymentMethod  string    `json:"payment_method" dynamodbav:"payment_method"`
	BillingAddress string    `json:"billing_address,omitempty" dynamodbav:"billing_address,omitempty"`
	Status         string    `json:"status" dynamodbav:"status"`
	CreatedDate    time.Time `json:"created_date" dynamodbav:"created_date"`
	UpdatedDate    time.Time `json:"updated_date" dynamodbav:"updated_date"`
}

var (
	ErrAlreadyPaid     = apperr.Conflict("already_paid", "order already has a payment")
	ErrOrderNotPending = apperr.Conflict("order_not_pending", "order is not awaiting payment")
	ErrAlreadyVoided   = apperr.Conflict("already_voided", "payment already voided")
	ErrOrderProgressed = apperr.Conflict("order_progressed", "order has progressed beyond Paid")
)

type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	uniquesTable string
	orders       *orders.Store
	ids          *ids.Allocator
	nowFunc      func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName, uniquesTable string, orderStore *orders.Store, alloc *ids.Allocator) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		uniquesTable: uniquesTable,
		orders:       orderStore,
		ids:          alloc,
		nowFunc:      time.Now,
	}
}

func guardKey(orderID string) string { return "payment#" + orderID }

// Checkout stores a successful payment, claims the order's payment guard and
// moves the order from Pending to Paid, all or nothing.
func (s *Store) Checkout(ctx context.Context, p Payment) (*Payment, error) {
	id, err := s.ids.NextString(ctx, ids.ScopePayment)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	p.PaymentID = id
	p.Status = StatusSuccess
	p.CreatedDate, p.UpdatedDate = now, now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payment: %w", err)
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                item,
				ConditionExpression: ddb.Str("attribute_not_exists(payment_id)"),
			}},
			ddb.GuardPut(s.uniquesTable, guardKey(p.OrderID), id),
			s.orders.MarkPaid(p.OrderID, now),
		},
	})
	if err != nil {
		idx, cancelled := ddb.FailedIndex(err)
		switch {
		case !cancelled:
			return nil, ddb.StorageError("checkout", err)
		case idx == 0:
			return nil, apperr.ErrDuplicateID
		case idx == 1:
			return nil, ErrAlreadyPaid
		default:
			return nil, ErrOrderNotPending
		}
	}
	return &p, nil
}

// Get fetches a payment by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, paymentID string) (*Payment, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       ddb.Key("payment_id", paymentID),
	})
	if err != nil {
		return nil, ddb.StorageError("get payment", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Payment
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal payment: %w", err)
	}
	return &p, nil
}

// ForOrder returns the payment currently holding the order's guard, or
// (nil, nil) when the order has none.
func (s *Store) ForOrder(ctx context.Context, orderID string) (*Payment, error) {
	id, err := ddb.GuardOwner(ctx, s.client, s.uniquesTable, guardKey(orderID))
	if err != nil || id == "" {
		return nil, err
	}
	return s.Get(ctx, id)
}

// voidItems marks p Voided and releases its order's guard.
func (s *Store) voidItems(p *Payment, now time.Time) []types.TransactWriteItem {
	return []types.TransactWriteItem{
		{Update: &types.Update{
			TableName:                &s.tableName,
			Key:                      ddb.Key("payment_id", p.PaymentID),
			UpdateExpression:         ddb.Str("SET #s = :voided, #ud = :ud"),
			ConditionExpression:      ddb.Str("#s = :success"),
			ExpressionAttributeNames: map[string]string{"#s": "status", "#ud": "updated_date"},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":voided":  &types.AttributeValueMemberS{Value: StatusVoided},
				":success": &types.AttributeValueMemberS{Value: StatusSuccess},
				":ud":      &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			},
		}},
		ddb.GuardDelete(s.uniquesTable, guardKey(p.OrderID)),
	}
}

// Void reverses a payment: the payment becomes Voided, the guard is released
// and the order returns from Paid to Pending.
func (s *Store) Void(ctx context.Context, p *Payment) (*Payment, error) {
	if p.Status != StatusSuccess {
		return nil, ErrAlreadyVoided
	}
	now := s.nowFunc().UTC()
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: append(s.voidItems(p, now), s.orders.MarkUnpaid(p.OrderID, now)),
	})
	if err != nil {
		idx, cancelled := ddb.FailedIndex(err)
		switch {
		case !cancelled:
			return nil, ddb.StorageError("void payment", err)
		case idx == 0:
			return nil, ErrAlreadyVoided
		default:
			return nil, ErrOrderProgressed
		}
	}
	return voided(p, now), nil
}

// CancelOrder cancels o and returns its stock. When o is Paid its payment is
// voided in the same transaction, so a cancelled order never keeps a
// successful payment. The voided payment is returned, or nil.
func (s *Store) CancelOrder(ctx context.Context, o *orders.Order) (*orders.Order, *Payment, error) {
	if o.Status != orders.StatusPaid {
		cancelled, err := s.orders.Cancel(ctx, o)
		return cancelled, nil, err
	}
	p, err := s.ForOrder(ctx, o.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if p == nil || p.Status != StatusSuccess {
		return nil, nil, orders.ErrStatusMismatch
	}
	now := s.nowFunc().UTC()
	cancelled, err := s.orders.Cancel(ctx, o, s.voidItems(p, now)...)
	if err != nil {
		return nil, nil, err
	}
	return cancelled, voided(p, now), nil
}

func voided(p *Payment, now time.Time) *Payment {
	v := *p
	v.Status = StatusVoided
	v.UpdatedDate = now
	return &v
}

// SumSucceeded totals the amounts of all successful payments.
func (s *Store) SumSucceeded(ctx context.Context) (decimal.Decimal, error) {
	items, err := ddb.ScanAll(ctx, s.client, &dyn.ScanInput{
		TableName:                &s.tableName,
		FilterExpression:         ddb.Str("#s = :success"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":success": &types.AttributeValueMemberS{Value: StatusSuccess},
		},
	})
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, it := range items {
		n, ok := it["amount"].(*types.AttributeValueMemberN)
		if !ok {
			continue
		}
		amount, err := decimal.NewFromString(n.Value)
		if err != nil {
			return decimal.Zero, fmt.Errorf("parse payment amount %q: %w", n.Value, err)
		}
		total = total.Add(amount)
	}
	return total, nil
}
