// Package carts keeps one cart document per user. Adds append atomically;
// edits are read-modify-write guarded by a version number.
package carts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

const defaultMaxRetries = 5

type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	ids        *ids.Allocator
	nowFunc    func() time.Time
	maxRetries int
}

func NewStore(client aws.DynamoDBAPI, tableName string, alloc *ids.Allocator) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		ids:        alloc,
		nowFunc:    time.Now,
		maxRetries: defaultMaxRetries,
	}
}

// Add appends a line to the user's cart, creating the cart on first use.
func (s *Store) Add(ctx context.Context, it Item) (*Item, error) {
	if it.Quantity <= 0 {
		return nil, apperr.Validation("quantity must be positive", map[string]string{"quantity": "gt"})
	}
	id, err := s.ids.NextString(ctx, ids.CartScope(it.UserID))
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	it.CartID = id
	it.CreatedDate = now

	av, err := attributevalue.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("marshal cart item: %w", err)
	}
	_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              ddb.Key("user_id", it.UserID),
		UpdateExpression: ddb.Str("SET #items = list_append(if_not_exists(#items, :empty), :item), #ua = :ua ADD #v :one"),
		ExpressionAttributeNames: map[string]string{
			"#items": "items",
			"#ua":    "updated_at",
			"#v":     "version",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
			":item":  &types.AttributeValueMemberL{Value: []types.AttributeValue{av}},
			":ua":    &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":one":   &types.AttributeValueMemberN{Value: "1"},
		},
	})
	if err != nil {
		return nil, ddb.StorageError("add cart item", err)
	}
	return &it, nil
}

func (s *Store) load(ctx context.Context, userID string) (*cart, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            ddb.Key("user_id", userID),
		ConsistentRead: sdkBool(true),
	})
	if err != nil {
		return nil, ddb.StorageError("get cart", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c cart
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return &c, nil
}

// Items returns the user's cart lines. A user without a cart has none.
func (s *Store) Items(ctx context.Context, userID string) ([]Item, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c == nil || c.Items == nil {
		return []Item{}, nil
	}
	return c.Items, nil
}

// Get returns one cart line. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, userID, cartID string) (*Item, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].CartID == cartID {
			return &items[i], nil
		}
	}
	return nil, nil
}

// UpdateQuantity sets the quantity of one line.
func (s *Store) UpdateQuantity(ctx context.Context, userID, cartID string, qty int) (*Item, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive", map[string]string{"quantity": "gt"})
	}
	var updated Item
	err := s.mutate(ctx, userID, func(items []Item) ([]Item, bool, error) {
		for i := range items {
			if items[i].CartID == cartID {
				items[i].Quantity = qty
				updated = items[i]
				return items, true, nil
			}
		}
		return nil, false, apperr.NotFound("cart_item")
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Remove deletes one line.
func (s *Store) Remove(ctx context.Context, userID, cartID string) error {
	return s.mutate(ctx, userID, func(items []Item) ([]Item, bool, error) {
		for i := range items {
			if items[i].CartID == cartID {
				return append(items[:i], items[i+1:]...), true, nil
			}
		}
		return nil, false, apperr.NotFound("cart_item")
	})
}

// RemoveProducts drops every line for the given products and reports how
// many were removed. A missing cart is not an error.
func (s *Store) RemoveProducts(ctx context.Context, userID string, productIDs []string) (int, error) {
	drop := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}
	removed := 0
	err := s.mutate(ctx, userID, func(items []Item) ([]Item, bool, error) {
		kept := items[:0]
		removed = 0
		for _, it := range items {
			if drop[it.ProductID] {
				removed++
				continue
			}
			kept = append(kept, it)
		}
		return kept, removed > 0, nil
	})
	if apperr.KindOf(err) == apperr.KindNotFound {
		return 0, nil
	}
	return removed, err
}

// mutate loads the cart, applies fn and writes the result if the version is
// unchanged, retrying on concurrent modification. fn reports whether it
// changed anything.
func (s *Store) mutate(ctx context.Context, userID string, fn func([]Item) ([]Item, bool, error)) error {
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		c, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if c == nil {
			return apperr.NotFound("cart_item")
		}
		items, changed, err := fn(c.Items)
		if err != nil || !changed {
			return err
		}
		if items == nil {
			items = []Item{}
		}
		av, err := attributevalue.Marshal(items)
		if err != nil {
			return fmt.Errorf("marshal cart items: %w", err)
		}
		_, err = s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
			TableName:           &s.tableName,
			Key:                 ddb.Key("user_id", userID),
			UpdateExpression:    ddb.Str("SET #items = :items, #ua = :ua ADD #v :one"),
			ConditionExpression: ddb.Str("#v = :v"),
			ExpressionAttributeNames: map[string]string{
				"#items": "items",
				"#ua":    "updated_at",
				"#v":     "version",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":items": av,
				":ua":    &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
				":one":   &types.AttributeValueMemberN{Value: "1"},
				":v":     &types.AttributeValueMemberN{Value: strconv.FormatInt(c.Version, 10)},
			},
		})
		if err == nil {
			return nil
		}
		if !ddb.IsConditionFailed(err) {
			return ddb.StorageError("update cart", err)
		}
	}
	return apperr.Conflict("concurrent_update", "cart changed concurrently, retry")
}

func sdkBool(b bool) *bool { return &b }
