package catalog

import (
	"context"
	"fmt"
	"sort"
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

// ProductStore encapsulates operations on the products table.
type ProductStore struct {
	client     aws.DynamoDBAPI
	tableName  string
	categories *CategoryStore
	ids        *ids.Allocator
	nowFunc    func() time.Time
}

func NewProductStore(client aws.DynamoDBAPI, tableName string, categories *CategoryStore, alloc *ids.Allocator) *ProductStore {
	return &ProductStore{
		client:     client,
		tableName:  tableName,
		categories: categories,
		ids:        alloc,
		nowFunc:    time.Now,
	}
}

func (s *ProductStore) categoryName(ctx context.Context, categoryID string) (string, error) {
	c, err := s.categories.Get(ctx, categoryID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", apperr.NotFound("category")
	}
	return c.Name, nil
}

// Create validates the category and stores the product with a copy of the
// category's name.
func (s *ProductStore) Create(ctx context.Context, p Product) (*Product, error) {
	if p.Price < 0 || p.Stock < 0 {
		return nil, apperr.Validation("price and stock must not be negative", nil)
	}
	name, err := s.categoryName(ctx, p.CategoryID)
	if err != nil {
		return nil, err
	}
	id, err := s.ids.NextString(ctx, ids.ScopeProduct)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	p.ProductID = id
	p.CategoryName = name
	p.CreatedAt, p.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return nil, fmt.Errorf("marshal product: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: ddb.Str("attribute_not_exists(product_id)"),
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return nil, apperr.ErrDuplicateID
		}
		return nil, ddb.StorageError("put product", err)
	}
	return &p, nil
}

// Get fetches a product by id. Returns (nil, nil) if not found.
func (s *ProductStore) Get(ctx context.Context, id string) (*Product, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       ddb.Key("product_id", id),
	})
	if err != nil {
		return nil, ddb.StorageError("get product", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

func (s *ProductStore) List(ctx context.Context, f ProductFilter) ([]Product, error) {
	in := &dyn.ScanInput{TableName: &s.tableName}
	if f.CategoryID != "" {
		in.FilterExpression = ddb.Str("category_id = :c")
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: f.CategoryID},
		}
	}
	items, err := ddb.ScanAll(ctx, s.client, in)
	if err != nil {
		return nil, err
	}
	list := make([]Product, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal products: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return ids.Less(list[i].ProductID, list[j].ProductID) })
	return list, nil
}

// Update applies the non-nil fields of c. Moving a product to another
// category re-copies the category name.
func (s *ProductStore) Update(ctx context.Context, id string, c ProductChanges) (*Product, error) {
	if (c.Price != nil && *c.Price < 0) || (c.Stock != nil && *c.Stock < 0) {
		return nil, apperr.Validation("price and stock must not be negative", nil)
	}
	upd := ddb.NewUpdate()
	if c.Name != nil {
		upd.Set("name", *c.Name)
	}
	if c.Description != nil {
		upd.Set("description", *c.Description)
	}
	if c.Price != nil {
		upd.Set("price", *c.Price)
	}
	if c.Stock != nil {
		upd.Set("stock", *c.Stock)
	}
	if c.ImageURL != nil {
		upd.Set("image_url", *c.ImageURL)
	}
	if c.CategoryID != nil {
		name, err := s.categoryName(ctx, *c.CategoryID)
		if err != nil {
			return nil, err
		}
		upd.Set("category_id", *c.CategoryID).Set("category_name", name)
	}
	if upd.Len() == 0 {
		return nil, apperr.Validation("no fields to update", nil)
	}
	upd.Set("updated_at", s.nowFunc().UTC())
	if err := upd.Err(); err != nil {
		return nil, err
	}
	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       ddb.Key("product_id", id),
		UpdateExpression:          ddb.Str(upd.Expression()),
		ConditionExpression:       ddb.Str("attribute_exists(product_id)"),
		ExpressionAttributeNames:  upd.Names(),
		ExpressionAttributeValues: upd.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return nil, apperr.NotFound("product")
		}
		return nil, ddb.StorageError("update product", err)
	}
	var p Product
	if err := attributevalue.UnmarshalMap(out.Attributes, &p); err != nil {
		return nil, fmt.Errorf("unmarshal product: %w", err)
	}
	return &p, nil
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 ddb.Key("product_id", id),
		ConditionExpression: ddb.Str("attribute_exists(product_id)"),
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return apperr.NotFound("product")
		}
		return ddb.StorageError("delete product", err)
	}
	return nil
}

func (s *ProductStore) Count(ctx context.Context) (int64, error) {
	return ddb.Count(ctx, s.client, s.tableName)
}

// TakeStock is a transaction item that decrements stock by qty, failing the
// transaction if the product is missing or has fewer than qty units.
func (s *ProductStore) TakeStock(productID string, qty int) types.TransactWriteItem {
	return s.stockChange(productID, "#stock - :q", "attribute_exists(product_id) AND #stock >= :q", qty)
}

// ReturnStock is a transaction item that adds qty back to an existing
// product.
func (s *ProductStore) ReturnStock(productID string, qty int) types.TransactWriteItem {
	return s.stockChange(productID, "#stock + :q", "attribute_exists(product_id)", qty)
}

func (s *ProductStore) stockChange(productID, rhs, cond string, qty int) types.TransactWriteItem {
	return types.TransactWriteItem{Update: &types.Update{
		TableName:           &s.tableName,
		Key:                 ddb.Key("product_id", productID),
		UpdateExpression:    ddb.Str("SET #stock = " + rhs + ", #ua = :ua"),
		ConditionExpression: &cond,
		ExpressionAttributeNames: map[string]string{
			"#stock": "stock",
			"#ua":    "updated_at",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":q":  &types.AttributeValueMemberN{Value: strconv.Itoa(qty)},
			":ua": &types.AttributeValueMemberS{Value: s.nowFunc().UTC().Format(time.RFC3339Nano)},
		},
	}}
}
