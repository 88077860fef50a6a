// Package reviews stores product reviews. A user may review a product once.
package reviews

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

// ProductIndex is the GSI on product_id.
const ProductIndex = "product_id-index"

type Review struct {
	ReviewID  string    `json:"review_id" dynamodbav:"review_id"`
	ProductID string    `json:"product_id" dynamodbav:"product_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Rating    int       `json:"rating" dynamodbav:"rating"`
	Review    string    `json:"review" dynamodbav:"review"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}

type Changes struct {
	Rating *int
	Review *string
}

var ErrDuplicateReview = apperr.Conflict("duplicate_review", "you have already reviewed this product")

type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	uniquesTable string
	products     *catalog.ProductStore
	ids          *ids.Allocator
	nowFunc      func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName, uniquesTable string, products *catalog.ProductStore, alloc *ids.Allocator) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		uniquesTable: uniquesTable,
		products:     products,
		ids:          alloc,
		nowFunc:      time.Now,
	}
}

func guardKey(userID, productID string) string { return "review#" + userID + "#" + productID }

func validRating(r int) error {
	if r < 1 || r > 5 {
		return apperr.Validation("rating must be between 1 and 5", map[string]string{"rating": "range"})
	}
	return nil
}

func (s *Store) Create(ctx context.Context, r Review) (*Review, error) {
	if err := validRating(r.Rating); err != nil {
		return nil, err
	}
	p, err := s.products.Get(ctx, r.ProductID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("product")
	}
	id, err := s.ids.NextString(ctx, ids.ScopeReview)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	r.ReviewID = id
	r.CreatedAt, r.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return nil, fmt.Errorf("marshal review: %w", err)
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                item,
				ConditionExpression: ddb.Str("attribute_not_exists(review_id)"),
			}},
			ddb.GuardPut(s.uniquesTable, guardKey(r.UserID, r.ProductID), id),
		},
	})
	if err != nil {
		switch idx, ok := ddb.FailedIndex(err); {
		case ok && idx == 0:
			return nil, apperr.ErrDuplicateID
		case ok:
			return nil, ErrDuplicateReview
		}
		return nil, ddb.StorageError("create review", err)
	}
	return &r, nil
}

// Get fetches a review by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, reviewID string) (*Review, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       ddb.Key("review_id", reviewID),
	})
	if err != nil {
		return nil, ddb.StorageError("get review", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Review
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal review: %w", err)
	}
	return &r, nil
}

// ListByProduct returns a product's reviews, oldest first.
func (s *Store) ListByProduct(ctx context.Context, productID string) ([]Review, error) {
	items, err := ddb.QueryAll(ctx, s.client, &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              ddb.Str(ProductIndex),
		KeyConditionExpression: ddb.Str("product_id = :p"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":p": &types.AttributeValueMemberS{Value: productID},
		},
	})
	if err != nil {
		return nil, err
	}
	list := make([]Review, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal reviews: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return ids.Less(list[i].ReviewID, list[j].ReviewID) })
	return list, nil
}

func (s *Store) Update(ctx context.Context, reviewID string, c Changes) (*Review, error) {
	upd := ddb.NewUpdate()
	if c.Rating != nil {
		if err := validRating(*c.Rating); err != nil {
			return nil, err
		}
		upd.Set("rating", *c.Rating)
	}
	if c.Review != nil {
		upd.Set("review", *c.Review)
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
		Key:                       ddb.Key("review_id", reviewID),
		UpdateExpression:          ddb.Str(upd.Expression()),
		ConditionExpression:       ddb.Str("attribute_exists(review_id)"),
		ExpressionAttributeNames:  upd.Names(),
		ExpressionAttributeValues: upd.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return nil, apperr.NotFound("review")
		}
		return nil, ddb.StorageError("update review", err)
	}
	var r Review
	if err := attributevalue.UnmarshalMap(out.Attributes, &r); err != nil {
		return nil, fmt.Errorf("unmarshal review: %w", err)
	}
	return &r, nil
}

// Delete removes the review and frees the user to review the product again.
func (s *Store) Delete(ctx context.Context, r *Review) error {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           &s.tableName,
				Key:                 ddb.Key("review_id", r.ReviewID),
				ConditionExpression: ddb.Str("attribute_exists(review_id)"),
			}},
			ddb.GuardDelete(s.uniquesTable, guardKey(r.UserID, r.ProductID)),
		},
	})
	if err != nil {
		if _, ok := ddb.FailedIndex(err); ok {
			return apperr.NotFound("review")
		}
		return ddb.StorageError("delete review", err)
	}
	return nil
}
