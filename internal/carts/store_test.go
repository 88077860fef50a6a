package carts

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/ddb/ddbtest"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	fake := ddbtest.New()
	fake.CreateTable("carts", "user_id")
	fake.CreateTable("counters", "counter_name")
	return NewStore(fake, "carts", ids.NewAllocator(fake, "counters"))
}

func TestAddCreatesCartLazily(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	empty, err := s.Items(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NotNil(t, empty)

	a, err := s.Add(ctx, Item{UserID: "7", ProductID: "1", Name: "Seeds", Price: 10, Quantity: 2})
	require.NoError(t, err)
	b, err := s.Add(ctx, Item{UserID: "7", ProductID: "2", Name: "Hoe", Price: 5, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "1", a.CartID)
	assert.Equal(t, "2", b.CartID)

	// cart ids are per user
	other, err := s.Add(ctx, Item{UserID: "8", ProductID: "1", Price: 10, Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, "1", other.CartID)

	items, err := s.Items(ctx, "7")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Seeds", items[0].Name)

	_, err = s.Add(ctx, Item{UserID: "7", ProductID: "1", Quantity: 0})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestUpdateAndRemove(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a, err := s.Add(ctx, Item{UserID: "7", ProductID: "1", Price: 10, Quantity: 2})
	require.NoError(t, err)

	updated, err := s.UpdateQuantity(ctx, "7", a.CartID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)

	_, err = s.UpdateQuantity(ctx, "7", "99", 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	_, err = s.UpdateQuantity(ctx, "nobody", "1", 1)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	require.NoError(t, s.Remove(ctx, "7", a.CartID))
	items, err := s.Items(ctx, "7")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(s.Remove(ctx, "7", a.CartID)))
}

func TestRemoveProducts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, pid := range []string{"1", "2", "1", "3"} {
		_, err := s.Add(ctx, Item{UserID: "7", ProductID: pid, Quantity: 1})
		require.NoError(t, err)
	}
	n, err := s.RemoveProducts(ctx, "7", []string{"1", "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	items, err := s.Items(ctx, "7")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].ProductID)

	n, err = s.RemoveProducts(ctx, "no-cart", []string{"1"})
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestConcurrentEditsDoNotLoseWrites(t *testing.T) {
	s := newStore(t)
	s.maxRetries = 50
	ctx := context.Background()
	var cartIDs []string
	for i := 0; i < 5; i++ {
		it, err := s.Add(ctx, Item{UserID: "7", ProductID: "p", Quantity: 1})
		require.NoError(t, err)
		cartIDs = append(cartIDs, it.CartID)
	}

	var wg sync.WaitGroup
	for _, id := range cartIDs {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := s.UpdateQuantity(ctx, "7", id, 9); err != nil {
				t.Errorf("update %s: %v", id, err)
			}
		}(id)
	}
	wg.Wait()

	items, err := s.Items(ctx, "7")
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, 9, it.Quantity, "line %s", it.CartID)
	}
}
