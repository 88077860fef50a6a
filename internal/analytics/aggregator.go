// Package analytics computes the admin dashboard summary.
package analytics

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Consistency describes how the counters relate to each other: each is read
// separately, so they may reflect slightly different moments.
const Consistency = "point-in-time per counter"

type RevenueSource interface {
	SumSucceeded(ctx context.Context) (decimal.Decimal, error)
}

type Counter interface {
	Count(ctx context.Context) (int64, error)
}

type Summary struct {
	TotalRevenue  string    `json:"total_revenue"`
	TotalUsers    int64     `json:"total_users"`
	TotalOrders   int64     `json:"total_orders"`
	TotalProducts int64     `json:"total_products"`
	Consistency   string    `json:"consistency"`
	GeneratedAt   time.Time `json:"generated_at"`
}

type Aggregator struct {
	payments RevenueSource
	users    Counter
	orders   Counter
	products Counter
	nowFunc  func() time.Time
}

func NewAggregator(payments RevenueSource, users, orders, products Counter) *Aggregator {
	return &Aggregator{
		payments: payments,
		users:    users,
		orders:   orders,
		products: products,
		nowFunc:  time.Now,
	}
}

// Summarize runs the four reads concurrently. Revenue is the sum of
// successful payments, rendered with two decimal places.
func (a *Aggregator) Summarize(ctx context.Context) (*Summary, error) {
	var (
		revenue                 decimal.Decimal
		nUsers, nOrders, nProds int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		revenue, err = a.payments.SumSucceeded(gctx)
		return err
	})
	count := func(c Counter, dst *int64) func() error {
		return func() error {
			n, err := c.Count(gctx)
			*dst = n
			return err
		}
	}
	g.Go(count(a.users, &nUsers))
	g.Go(count(a.orders, &nOrders))
	g.Go(count(a.products, &nProds))
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &Summary{
		TotalRevenue:  revenue.StringFixed(2),
		TotalUsers:    nUsers,
		TotalOrders:   nOrders,
		TotalProducts: nProds,
		Consistency:   Consistency,
		GeneratedAt:   a.nowFunc().UTC(),
	}, nil
}
