package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/ddb"
)

// RevocationStore persists revoked tokens by hash so that every instance sees
// a logout. Entries carry the token's own expiry and are dropped by table TTL
// or lazily on lookup.
type RevocationStore struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

func NewRevocationStore(client aws.DynamoDBAPI, tableName string) *RevocationStore {
	return &RevocationStore{client: client, tableName: tableName, nowFunc: time.Now}
}

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Revoke records token as revoked until expiresAt.
func (r *RevocationStore) Revoke(ctx context.Context, token string, expiresAt time.Time) error {
	_, err := r.client.PutItem(ctx, &dyn.PutItemInput{
		TableName: &r.tableName,
		Item: map[string]types.AttributeValue{
			"token_hash": &types.AttributeValueMemberS{Value: tokenHash(token)},
			"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt.Unix(), 10)},
			"revoked_at": &types.AttributeValueMemberS{Value: r.nowFunc().UTC().Format(time.RFC3339)},
		},
	})
	return ddb.StorageError("revoke token", err)
}

// IsRevoked reports whether token is in the revocation set.
func (r *RevocationStore) IsRevoked(ctx context.Context, token string) (bool, error) {
	h := tokenHash(token)
	out, err := r.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &r.tableName,
		Key:       ddb.Key("token_hash", h),
	})
	if err != nil {
		return false, ddb.StorageError("lookup revoked token", err)
	}
	if len(out.Item) == 0 {
		return false, nil
	}
	if exp, ok := out.Item["expires_at"].(*types.AttributeValueMemberN); ok {
		if unix, err := strconv.ParseInt(exp.Value, 10, 64); err == nil && unix <= r.nowFunc().Unix() {
			r.prune(ctx, h)
			return false, nil
		}
	}
	return true, nil
}

func (r *RevocationStore) prune(ctx context.Context, h string) {
	_, err := r.client.DeleteItem(ctx, &dyn.DeleteItemInput{
		TableName: &r.tableName,
		Key:       ddb.Key("token_hash", h),
	})
	if err != nil {
		rlog.Warnf("[auth] prune revoked token: %v", err)
	}
}
