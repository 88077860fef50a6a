// Package contacts stores contact-form submissions.
package contacts

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
)

type Query struct {
	ContactID string    `json:"contact_id" dynamodbav:"contact_id"`
	Name      string    `json:"name" dynamodbav:"name"`
	Email     string    `json:"email" dynamodbav:"email"`
	Message   string    `json:"message" dynamodbav:"message"`
	CreatedAt time.Time `json:"created_at" dynamodbav:"created_at"`
}

type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{client: client, tableName: tableName, nowFunc: time.Now}
}

// Submit stores a new query under a random id.
func (s *Store) Submit(ctx context.Context, q Query) (*Query, error) {
	q.ContactID = uuid.NewString()
	q.CreatedAt = s.nowFunc().UTC()
	item, err := attributevalue.MarshalMap(q)
	if err != nil {
		return nil, fmt.Errorf("marshal contact query: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: ddb.Str("attribute_not_exists(contact_id)"),
	})
	if err != nil {
		return nil, ddb.StorageError("submit contact query", err)
	}
	return &q, nil
}

// List returns all queries, oldest first.
func (s *Store) List(ctx context.Context) ([]Query, error) {
	items, err := ddb.ScanAll(ctx, s.client, &dyn.ScanInput{TableName: &s.tableName})
	if err != nil {
		return nil, err
	}
	list := make([]Query, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal contact queries: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}
