package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

// Store encapsulates operations on the users table. Email uniqueness is kept
// in the guards table under "email#<address>".
type Store struct {
	client       aws.DynamoDBAPI
	tableName    string
	uniquesTable string
	ids          *ids.Allocator
	nowFunc      func() time.Time
}

func NewStore(client aws.DynamoDBAPI, tableName, uniquesTable string, alloc *ids.Allocator) *Store {
	return &Store{
		client:       client,
		tableName:    tableName,
		uniquesTable: uniquesTable,
		ids:          alloc,
		nowFunc:      time.Now,
	}
}

// NormalizeEmail is the canonical form used for storage and lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func emailKey(email string) string { return "email#" + NormalizeEmail(email) }

// Create allocates a user id and writes the user together with its email
// guard. A taken email fails with ErrDuplicateEmail.
func (s *Store) Create(ctx context.Context, u User) (*User, error) {
	id, err := s.ids.NextString(ctx, ids.ScopeUser)
	if err != nil {
		return nil, err
	}
	now := s.nowFunc().UTC()
	u.UserID = id
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now

	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return nil, fmt.Errorf("marshal user: %w", err)
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName:           &s.tableName,
				Item:                item,
				ConditionExpression: ddb.Str("attribute_not_exists(user_id)"),
			}},
			ddb.GuardPut(s.uniquesTable, emailKey(u.Email), id),
		},
	})
	if err != nil {
		switch idx, ok := ddb.FailedIndex(err); {
		case ok && idx == 0:
			return nil, apperr.ErrDuplicateID
		case ok:
			return nil, apperr.ErrDuplicateEmail
		}
		return nil, ddb.StorageError("create user", err)
	}
	return &u, nil
}

// Get fetches a user by id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, userID string) (*User, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key:       ddb.Key("user_id", userID),
	})
	if err != nil {
		return nil, ddb.StorageError("get user", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

// GetByEmail resolves the email guard and loads its owner. Returns (nil, nil)
// if no user holds the address.
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	owner, err := ddb.GuardOwner(ctx, s.client, s.uniquesTable, emailKey(email))
	if err != nil || owner == "" {
		return nil, err
	}
	return s.Get(ctx, owner)
}

// List returns users ordered by id.
func (s *Store) List(ctx context.Context, f Filter) ([]User, error) {
	in := &dyn.ScanInput{TableName: &s.tableName}
	if f.Role != "" {
		in.FilterExpression = ddb.Str("#r = :r")
		in.ExpressionAttributeNames = map[string]string{"#r": "role"}
		in.ExpressionAttributeValues = map[string]types.AttributeValue{
			":r": &types.AttributeValueMemberS{Value: f.Role},
		}
	}
	items, err := ddb.ScanAll(ctx, s.client, in)
	if err != nil {
		return nil, err
	}
	list := make([]User, 0, len(items))
	if err := attributevalue.UnmarshalListOfMaps(items, &list); err != nil {
		return nil, fmt.Errorf("unmarshal users: %w", err)
	}
	sort.Slice(list, func(i, j int) bool { return ids.Less(list[i].UserID, list[j].UserID) })
	return list, nil
}

// Update applies the non-nil fields of c. An email change moves the guard in
// the same transaction as the user write.
func (s *Store) Update(ctx context.Context, userID string, c Changes) (*User, error) {
	upd := ddb.NewUpdate()
	setIf := func(attr string, v *string) {
		if v != nil {
			upd.Set(attr, *v)
		}
	}
	var newEmail string
	if c.Email != nil {
		newEmail = NormalizeEmail(*c.Email)
		c.Email = &newEmail
	}
	setIf("email", c.Email)
	setIf("password_hash", c.PasswordHash)
	setIf("first_name", c.FirstName)
	setIf("last_name", c.LastName)
	setIf("phone_number", c.PhoneNumber)
	setIf("street", c.Street)
	setIf("address", c.Address)
	setIf("state", c.State)
	setIf("district", c.District)
	setIf("taluka", c.Taluka)
	setIf("village", c.Village)
	setIf("pincode", c.Pincode)
	setIf("role", c.Role)
	if upd.Len() == 0 {
		return nil, apperr.Validation("no fields to update", nil)
	}
	upd.Set("updated_at", s.nowFunc().UTC())
	if err := upd.Err(); err != nil {
		return nil, err
	}

	if c.Email != nil {
		current, err := s.Get(ctx, userID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, apperr.NotFound("user")
		}
		if current.Email != newEmail {
			return s.updateWithEmailSwap(ctx, userID, current.Email, newEmail, upd)
		}
	}

	out, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       ddb.Key("user_id", userID),
		UpdateExpression:          ddb.Str(upd.Expression()),
		ConditionExpression:       ddb.Str("attribute_exists(user_id)"),
		ExpressionAttributeNames:  upd.Names(),
		ExpressionAttributeValues: upd.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		if ddb.IsConditionFailed(err) {
			return nil, apperr.NotFound("user")
		}
		return nil, ddb.StorageError("update user", err)
	}
	var u User
	if err := attributevalue.UnmarshalMap(out.Attributes, &u); err != nil {
		return nil, fmt.Errorf("unmarshal user: %w", err)
	}
	return &u, nil
}

func (s *Store) updateWithEmailSwap(ctx context.Context, userID, oldEmail, newEmail string, upd *ddb.Update) (*User, error) {
	cond := "attribute_exists(user_id) AND " + upd.Name("email") + " = :old_email"
	upd.Value(":old_email", oldEmail)
	if err := upd.Err(); err != nil {
		return nil, err
	}
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 &s.tableName,
				Key:                       ddb.Key("user_id", userID),
				UpdateExpression:          ddb.Str(upd.Expression()),
				ConditionExpression:       &cond,
				ExpressionAttributeNames:  upd.Names(),
				ExpressionAttributeValues: upd.Values(),
			}},
			ddb.GuardPut(s.uniquesTable, emailKey(newEmail), userID),
			ddb.GuardDelete(s.uniquesTable, emailKey(oldEmail)),
		},
	})
	if err != nil {
		switch idx, ok := ddb.FailedIndex(err); {
		case ok && idx == 0:
			return nil, apperr.Conflict("concurrent_update", "user changed concurrently, retry")
		case ok:
			return nil, apperr.ErrDuplicateEmail
		}
		return nil, ddb.StorageError("update user", err)
	}
	return s.Get(ctx, userID)
}

// Delete removes the user and releases the email guard. Orders, reviews
// and payments referencing the user are left in place.
func (s *Store) Delete(ctx context.Context, userID string) error {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if current == nil {
		return apperr.NotFound("user")
	}
	_, err = s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName:           &s.tableName,
				Key:                 ddb.Key("user_id", userID),
				ConditionExpression: ddb.Str("attribute_exists(user_id)"),
			}},
			ddb.GuardDelete(s.uniquesTable, emailKey(current.Email)),
		},
	})
	if err != nil {
		if _, ok := ddb.FailedIndex(err); ok {
			return apperr.NotFound("user")
		}
		return ddb.StorageError("delete user", err)
	}
	return nil
}

// Count returns the number of users.
func (s *Store) Count(ctx context.Context) (int64, error) {
	return ddb.Count(ctx, s.client, s.tableName)
}
