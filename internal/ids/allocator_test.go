package ids

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/ddb/ddbtest"
)

func newAllocator() (*Allocator, *ddbtest.Fake) {
	fake := ddbtest.New()
	fake.CreateTable("counters", "counter_name")
	return NewAllocator(fake, "counters"), fake
}

func TestNextIsSequentialPerScope(t *testing.T) {
	a, _ := newAllocator()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := a.Next(ctx, ScopeOrder)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := a.NextString(ctx, CartScope("7"))
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestConcurrentAllocationsAreDistinct(t *testing.T) {
	a, _ := newAllocator()
	const n = 50

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		got []int64
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := a.Next(context.Background(), ScopeUser)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, got, n)
	sort.Slice(got, func(i, j int) bool { return got[i] < got[j] })
	for i := 1; i < n; i++ {
		assert.Less(t, got[i-1], got[i], "duplicate or non-increasing value")
	}
	assert.Equal(t, int64(n), got[n-1])
}

func TestNextMapsStorageFailures(t *testing.T) {
	a, fake := newAllocator()
	fake.FailOn("UpdateItem", errors.New("connection reset"))
	_, err := a.Next(context.Background(), ScopeProduct)
	assert.ErrorIs(t, err, apperr.ErrStorageUnavailable)

	fake.FailOn("UpdateItem", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Next(ctx, ScopeProduct)
	assert.ErrorIs(t, err, apperr.ErrStorageTimeout)
}

func TestLess(t *testing.T) {
	assert.True(t, Less("2", "10"))
	assert.False(t, Less("10", "2"))
	assert.True(t, Less("a", "b"))
}
