package ddbtest

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func s(v string) *types.AttributeValueMemberS { return &types.AttributeValueMemberS{Value: v} }
func n(v string) *types.AttributeValueMemberN { return &types.AttributeValueMemberN{Value: v} }
func p(v string) *string                      { return &v }

func TestPutItemCondition(t *testing.T) {
	f := New()
	f.CreateTable("t", "id")
	ctx := context.Background()

	in := &dynamodb.PutItemInput{
		TableName:           p("t"),
		Item:                item{"id": s("1"), "v": n("1")},
		ConditionExpression: p("attribute_not_exists(id)"),
	}
	_, err := f.PutItem(ctx, in)
	require.NoError(t, err)

	_, err = f.PutItem(ctx, in)
	var ccf *types.ConditionalCheckFailedException
	assert.True(t, errors.As(err, &ccf))
	assert.Equal(t, 1, f.Len("t"))
}

func TestUpdateItemArithmeticAndListAppend(t *testing.T) {
	f := New()
	f.CreateTable("t", "id")
	ctx := context.Background()

	upd := func() (*dynamodb.UpdateItemOutput, error) {
		return f.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName:        p("t"),
			Key:              item{"id": s("c")},
			UpdateExpression: p("SET #items = list_append(if_not_exists(#items, :empty), :item) ADD #v :one"),
			ExpressionAttributeNames: map[string]string{
				"#items": "items",
				"#v":     "version",
			},
			ExpressionAttributeValues: item{
				":empty": &types.AttributeValueMemberL{Value: []types.AttributeValue{}},
				":item":  &types.AttributeValueMemberL{Value: []types.AttributeValue{s("x")}},
				":one":   n("1"),
			},
			ReturnValues: types.ReturnValueAllNew,
		})
	}
	_, err := upd()
	require.NoError(t, err)
	out, err := upd()
	require.NoError(t, err)

	assert.Equal(t, "2", out.Attributes["version"].(*types.AttributeValueMemberN).Value)
	assert.Len(t, out.Attributes["items"].(*types.AttributeValueMemberL).Value, 2)

	_, err = f.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 p("t"),
		Key:                       item{"id": s("c")},
		UpdateExpression:          p("SET #v = #v - :d"),
		ConditionExpression:       p("#v >= :d"),
		ExpressionAttributeNames:  map[string]string{"#v": "version"},
		ExpressionAttributeValues: item{":d": n("5")},
	})
	var ccf *types.ConditionalCheckFailedException
	assert.True(t, errors.As(err, &ccf))
}

func TestUnusedPlaceholderRejected(t *testing.T) {
	f := New()
	f.CreateTable("t", "id")
	_, err := f.PutItem(context.Background(), &dynamodb.PutItemInput{
		TableName:                 p("t"),
		Item:                      item{"id": s("1")},
		ConditionExpression:       p("attribute_not_exists(id)"),
		ExpressionAttributeValues: item{":unused": n("1")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unused")
}

func TestTransactWriteItemsAtomic(t *testing.T) {
	f := New()
	f.CreateTable("products", "product_id")
	f.CreateTable("orders", "order_id")
	require.NoError(t, f.Put("products", item{"product_id": s("1"), "stock": n("3")}))
	require.NoError(t, f.Put("products", item{"product_id": s("2"), "stock": n("1")}))

	decrement := func(id, qty string) types.TransactWriteItem {
		return types.TransactWriteItem{Update: &types.Update{
			TableName:                 p("products"),
			Key:                       item{"product_id": s(id)},
			UpdateExpression:          p("SET #stock = #stock - :q"),
			ConditionExpression:       p("attribute_exists(product_id) AND #stock >= :q"),
			ExpressionAttributeNames:  map[string]string{"#stock": "stock"},
			ExpressionAttributeValues: item{":q": n(qty)},
		}}
	}
	put := types.TransactWriteItem{Put: &types.Put{
		TableName:           p("orders"),
		Item:                item{"order_id": s("1")},
		ConditionExpression: p("attribute_not_exists(order_id)"),
	}}

	_, err := f.TransactWriteItems(context.Background(), &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{decrement("1", "2"), decrement("2", "2"), put},
	})
	var tce *types.TransactionCanceledException
	require.True(t, errors.As(err, &tce))
	require.Len(t, tce.CancellationReasons, 3)
	assert.Equal(t, "None", *tce.CancellationReasons[0].Code)
	assert.Equal(t, "ConditionalCheckFailed", *tce.CancellationReasons[1].Code)

	assert.Equal(t, "3", f.Item("products", "1")["stock"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, 0, f.Len("orders"))

	_, err = f.TransactWriteItems(context.Background(), &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{decrement("1", "2"), decrement("2", "1"), put},
	})
	require.NoError(t, err)
	assert.Equal(t, "1", f.Item("products", "1")["stock"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, "0", f.Item("products", "2")["stock"].(*types.AttributeValueMemberN).Value)
	assert.Equal(t, 1, f.Len("orders"))
}

func TestTransactRejectsDuplicateKeys(t *testing.T) {
	f := New()
	f.CreateTable("t", "id")
	put := types.TransactWriteItem{Put: &types.Put{TableName: p("t"), Item: item{"id": s("1")}}}
	_, err := f.TransactWriteItems(context.Background(), &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{put, put},
	})
	require.Error(t, err)
	assert.Equal(t, 0, f.Len("t"))
}

func TestQueryAndCount(t *testing.T) {
	f := New()
	f.CreateTable("orders", "order_id")
	for _, it := range []item{
		{"order_id": s("1"), "user_id": s("a")},
		{"order_id": s("2"), "user_id": s("b")},
		{"order_id": s("3"), "user_id": s("a")},
	} {
		require.NoError(t, f.Put("orders", it))
	}
	out, err := f.Query(context.Background(), &dynamodb.QueryInput{
		TableName:                 p("orders"),
		IndexName:                 p("user_id-index"),
		KeyConditionExpression:    p("user_id = :u"),
		ExpressionAttributeValues: item{":u": s("a")},
	})
	require.NoError(t, err)
	assert.Len(t, out.Items, 2)

	cnt, err := f.Scan(context.Background(), &dynamodb.ScanInput{TableName: p("orders"), Select: types.SelectCount})
	require.NoError(t, err)
	assert.EqualValues(t, 3, cnt.Count)
	assert.Empty(t, cnt.Items)
}

func TestFailOnAndCancelledContext(t *testing.T) {
	f := New()
	f.CreateTable("t", "id")
	boom := errors.New("boom")
	f.FailOn("GetItem", boom)
	_, err := f.GetItem(context.Background(), &dynamodb.GetItemInput{TableName: p("t"), Key: item{"id": s("1")}})
	assert.ErrorIs(t, err, boom)

	f.FailOn("GetItem", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.GetItem(ctx, &dynamodb.GetItemInput{TableName: p("t"), Key: item{"id": s("1")}})
	assert.ErrorIs(t, err, context.Canceled)
}
