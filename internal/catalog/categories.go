// Package catalog stores categories and products.
package catalog

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
	"github.com/imrishuroy/go-storefront/internal/ddb"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

// CategoryStore encapsulates operations on the categories table.
type CategoryStore struct {
	client    aws.DynamoDBAPI
	tableName string
	ids       *ids.Allocator
	nowFunc   func() time.Time
}

func NewCategoryStore(client aws.DynamoDBAPI, tableName string, alloc *ids.Allocator) *CategoryStore {
	return &CategoryStore{client: client, tableName: tableName, ids: alloc, nowFunc: time.Now}
}

func (s *CategoryStore) Create(ctx context.Context, c Category) (*Category, error) {
	id, err := s.ids.NextString(ctx, ids.ScopeCategory)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	c.CategoryID = id
	c.CreatedAt, c.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(c)
	if err != nil {
		return nil, fmt.Errorf("marshal category: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: ddb.Str("attribute_not_exists(category_id)"),
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return nil, apperr.ErrDuplicateID
		}
		return nil, ddb.StorageError("put category", err)
	}
	return &c, nil
}

// Get fetches a category by id. Returns (nil, nil) if not found.
func (s *CategoryStore) Get(ctx context.Context, id string) (*Category, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       ddb.Key("category_id", id),
	})
	if err != nil {
		return nil, ddb.StorageError("get category", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var c Category
	if err := attributevalue.UnmarshalMap(out.Item, &c); err != nil {
		return nil, fmt.Errorf("unmarshal category: %w", err)
	}
	return &c, nil
}

func (s *CategoryStore) List(ctx context.Context) ([]Category, error) {
	items, err := ddb.ScanAll(ctx, s.client, &dyn.ScanInput{TableName: &s.tableName})
	if err != nil {
		return nil, err
	}
	list := make([]Category, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal categories: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return ids.Less(list[i].CategoryID, list[j].CategoryID) })
	return list, nil
}

func (s *CategoryStore) Update(ctx context.Context, id string, c CategoryChanges) (*Category, error) {
	upd := ddb.NewUpdate()
	if c.Name != nil {
		upd.Set("name", *c.Name)
	}
	if c.Description != nil {
		upd.Set("description", *c.Description)
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
		Key:                       ddb.Key("category_id", id),
		UpdateExpression:          ddb.Str(upd.Expression()),
		ConditionExpression:       ddb.Str("attribute_exists(category_id)"),
		ExpressionAttributeNames:  upd.Names(),
		ExpressionAttributeValues: upd.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return nil, apperr.NotFound("category")
		}
		return nil, ddb.StorageError("update category", err)
	}
	var updated Category
	if err := attributevalue.UnmarshalMap(out.Attributes, &updated); err != nil {
		return nil, fmt.Errorf("unmarshal category: %w", err)
	}
	return &updated, nil
}

// Delete removes the category. Products that reference it keep their
// category_id and copied category_name.
func (s *CategoryStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName:           &s.tableName,
		Key:                 ddb.Key("category_id", id),
		ConditionExpression: ddb.Str("attribute_exists(category_id)"),
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return apperr.NotFound("category")
		}
		return ddb.StorageError("delete category", err)
	}
	return nil
}
