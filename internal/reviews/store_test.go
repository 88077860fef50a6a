package reviews

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/ddb/ddbtest"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	fake := ddbtest.New()
	for name, key := range map[string]string{
		"reviews":    "review_id",
		"products":   "product_id",
		"categories": "category_id",
		"counters":   "counter_name",
		"uniques":    "unique_key",
	} {
		fake.CreateTable(name, key)
	}
	alloc := ids.NewAllocator(fake, "counters")
	cats := catalog.NewCategoryStore(fake, "categories", alloc)
	products := catalog.NewProductStore(fake, "products", cats, alloc)
	c, err := cats.Create(context.Background(), catalog.Category{Name: "C"})
	require.NoError(t, err)
	p, err := products.Create(context.Background(), catalog.Product{Name: "P", Price: 1, CategoryID: c.CategoryID})
	require.NoError(t, err)
	return NewStore(fake, "reviews", "uniques", products, alloc), p.ProductID
}

func TestCreateOncePerUserAndProduct(t *testing.T) {
	s, pid := newStore(t)
	ctx := context.Background()

	r, err := s.Create(ctx, Review{ProductID: pid, UserID: "7", Rating: 5, Review: "great"})
	require.NoError(t, err)
	assert.Equal(t, "1", r.ReviewID)

	_, err = s.Create(ctx, Review{ProductID: pid, UserID: "7", Rating: 1, Review: "again"})
	assert.ErrorIs(t, err, ErrDuplicateReview)

	_, err = s.Create(ctx, Review{ProductID: pid, UserID: "8", Rating: 4})
	assert.NoError(t, err)

	_, err = s.Create(ctx, Review{ProductID: "404", UserID: "7", Rating: 4})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = s.Create(ctx, Review{ProductID: pid, UserID: "9", Rating: 6})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	list, err := s.ListByProduct(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	none, err := s.ListByProduct(ctx, "404")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateAndDelete(t *testing.T) {
	s, pid := newStore(t)
	ctx := context.Background()
	r, err := s.Create(ctx, Review{ProductID: pid, UserID: "7", Rating: 3, Review: "ok"})
	require.NoError(t, err)

	rating := 4
	updated, err := s.Update(ctx, r.ReviewID, Changes{Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Rating)
	assert.Equal(t, "ok", updated.Review)

	require.NoError(t, s.Delete(ctx, updated))
	got, err := s.Get(ctx, r.ReviewID)
	require.NoError(t, err)
	assert.Nil(t, got)

	// deleting frees the guard
	_, err = s.Create(ctx, Review{ProductID: pid, UserID: "7", Rating: 2})
	assert.NoError(t, err)
}
