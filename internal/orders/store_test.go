package orders

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/ddb/ddbtest"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

type fixture struct {
	fake     *ddbtest.Fake
	store    *Store
	products *catalog.ProductStore
	seedID   string
}

// newFixture builds an orders store over the in-memory tables and seeds one
// product with the given stock.
func newFixture(t *testing.T, stock int) *fixture {
	t.Helper()
	fake := ddbtest.New()
	fake.CreateTable("orders", "order_id")
	fake.CreateTable("products", "product_id")
	fake.CreateTable("categories", "category_id")
	fake.CreateTable("counters", "counter_name")
	alloc := ids.NewAllocator(fake, "counters")
	cats := catalog.NewCategoryStore(fake, "categories", alloc)
	products := catalog.NewProductStore(fake, "products", cats, alloc)

	c, err := cats.Create(context.Background(), catalog.Category{Name: "Seeds"})
	if err != nil {
		t.Fatalf("seed category: %v", err)
	}
	p, err := products.Create(context.Background(), catalog.Product{Name: "Tomato", Price: 10, Stock: stock, CategoryID: c.CategoryID})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return &fixture{
		fake:     fake,
		store:    NewStore(fake, "orders", products, alloc),
		products: products,
		seedID:   p.ProductID,
	}
}

func (f *fixture) order(qty int) Order {
	return Order{
		UserID:          "7",
		UserDetails:     UserSnapshot{UserID: "7", Email: "c@shop.test", FirstName: "C"},
		Items:           []Item{{ProductID: f.seedID, Name: "Tomato", Price: 10, Quantity: qty}},
		BillingDetails:  Billing{FullName: "C Customer", Email: "c@shop.test", Address: "1 Main St", Pincode: "411001"},
		ShippingAddress: "1 Main St",
		TotalAmount:     float64(qty) * 10,
	}
}

func (f *fixture) stock(t *testing.T) int {
	t.Helper()
	p, err := f.products.Get(context.Background(), f.seedID)
	if err != nil || p == nil {
		t.Fatalf("get product: %v", err)
	}
	return p.Stock
}

func TestPlace_StoresSnapshotAndTakesStock(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	want := f.order(2)

	placed, err := f.store.Place(ctx, want)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if placed.Status != StatusPending {
		t.Fatalf("status = %s, want %s", placed.Status, StatusPending)
	}

	got, err := f.store.Get(ctx, placed.OrderID)
	if err != nil || got == nil {
		t.Fatalf("get order: %v", err)
	}
	if !reflect.DeepEqual(got.Items, want.Items) {
		t.Fatalf("items mismatch: %+v vs %+v", got.Items, want.Items)
	}
	if got.BillingDetails != want.BillingDetails || got.ShippingAddress != want.ShippingAddress {
		t.Fatalf("billing/shipping mismatch: %+v", got)
	}
	if s := f.stock(t); s != 3 {
		t.Fatalf("stock = %d, want 3", s)
	}

	// stored item decodes to the same order
	var decoded Order
	if err := attributevalue.UnmarshalMap(f.fake.Item("orders", placed.OrderID), &decoded); err != nil {
		t.Fatalf("unmarshal order: %v", err)
	}
	if decoded.OrderID != placed.OrderID {
		t.Fatalf("order id mismatch")
	}
}

func TestPlace_InsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t, 1)

	_, err := f.store.Place(context.Background(), f.order(2))
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if n := f.fake.Len("orders"); n != 0 {
		t.Fatalf("orders written: %d", n)
	}
	if s := f.stock(t); s != 1 {
		t.Fatalf("stock changed to %d", s)
	}
}

func TestPlace_UnknownProduct(t *testing.T) {
	f := newFixture(t, 5)
	o := f.order(1)
	o.Items = append(o.Items, Item{ProductID: "404", Name: "ghost", Price: 1, Quantity: 1})

	_, err := f.store.Place(context.Background(), o)
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if s := f.stock(t); s != 5 {
		t.Fatalf("stock changed to %d", s)
	}
}

func TestPlace_SameProductOnTwoLines(t *testing.T) {
	f := newFixture(t, 3)
	o := f.order(2)
	o.Items = append(o.Items, Item{ProductID: f.seedID, Name: "Tomato", Price: 10, Quantity: 2})

	if _, err := f.store.Place(context.Background(), o); !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock for combined quantity, got %v", err)
	}
}

func TestUpdateStatus_Condition_SuccessAndFail(t *testing.T) {
	f := newFixture(t, 5)
	placed, err := f.store.Place(context.Background(), f.order(1))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	// success: Pending -> Processing
	err = f.store.UpdateStatus(context.Background(), placed.OrderID, StatusPending, StatusProcessing)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// failure: current status is Processing
	err = f.store.UpdateStatus(context.Background(), placed.OrderID, StatusPending, StatusShipped)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}

	err = f.store.UpdateStatus(context.Background(), "404", StatusPending, StatusShipped)
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch for missing order, got %v", err)
	}
}

func TestTransition(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	o, err := f.store.Place(ctx, f.order(1))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	if _, err := f.store.Transition(ctx, o, StatusDelivered); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("Pending -> Delivered should conflict, got %v", err)
	}
	if _, err := f.store.Transition(ctx, o, StatusPaid); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("Pending -> Paid should conflict, got %v", err)
	}
	if _, err := f.store.Transition(ctx, o, "Lost"); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("unknown status should be a validation error, got %v", err)
	}

	for _, to := range []string{StatusProcessing, StatusShipped, StatusDelivered} {
		o, err = f.store.Transition(ctx, o, to)
		if err != nil {
			t.Fatalf("-> %s: %v", to, err)
		}
	}
	got, _ := f.store.Get(ctx, o.OrderID)
	if got.Status != StatusDelivered {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := f.store.Cancel(ctx, got); apperr.KindOf(err) != apperr.KindConflict {
		t.Fatalf("cancel after delivery should conflict, got %v", err)
	}
}

func TestCancel_RestocksExistingProducts(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	o, err := f.store.Place(ctx, f.order(3))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	cancelled, err := f.store.Transition(ctx, o, StatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("status = %s", cancelled.Status)
	}
	if s := f.stock(t); s != 5 {
		t.Fatalf("stock = %d, want 5", s)
	}

	// a deleted product is skipped
	o2, err := f.store.Place(ctx, f.order(1))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := f.products.Delete(ctx, f.seedID); err != nil {
		t.Fatalf("delete product: %v", err)
	}
	if _, err := f.store.Cancel(ctx, o2); err != nil {
		t.Fatalf("cancel with deleted product: %v", err)
	}
}

func TestListByUserAndCount(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		o := f.order(1)
		if i == 1 {
			o.UserID = "8"
		}
		if _, err := f.store.Place(ctx, o); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	mine, err := f.store.ListByUser(ctx, "7")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 2 || mine[0].OrderID != "1" || mine[1].OrderID != "3" {
		t.Fatalf("unexpected orders: %+v", mine)
	}
	all, err := f.store.ListAll(ctx)
	if err != nil || len(all) != 3 {
		t.Fatalf("list all: %v %d", err, len(all))
	}
	n, err := f.store.Count(ctx)
	if err != nil || n != 3 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestPlace_StorageTimeout(t *testing.T) {
	f := newFixture(t, 5)
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	_, err := f.store.Place(ctx, f.order(1))
	if !errors.Is(err, apperr.ErrStorageTimeout) {
		t.Fatalf("expected storage timeout, got %v", err)
	}
}

func TestPlace_RejectsOverflowingQuantities(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	// two lines at MaxInt would wrap to a negative total and add stock
	o := f.order(1)
	o.Items = []Item{
		{ProductID: f.seedID, Name: "Tomato", Price: 0, Quantity: math.MaxInt},
		{ProductID: f.seedID, Name: "Tomato", Price: 0, Quantity: math.MaxInt},
	}
	o.TotalAmount = 0
	txBefore := f.fake.Calls("TransactWriteItems")
	if _, err := f.store.Place(ctx, o); apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	if s := f.stock(t); s != 5 {
		t.Fatalf("stock = %d, want 5", s)
	}
	if n := f.fake.Len("orders"); n != 0 {
		t.Fatalf("orders written: %d", n)
	}
	if n := f.fake.Calls("TransactWriteItems") - txBefore; n != 0 {
		t.Fatalf("transaction attempted %d times", n)
	}
}

func TestPlace_QuantityBounds(t *testing.T) {
	f := newFixture(t, 2*MaxQuantity)
	ctx := context.Background()

	cases := []struct {
		name  string
		lines []int
		ok    bool
	}{
		{"zero", []int{0}, false},
		{"negative", []int{-3}, false},
		{"line over cap", []int{MaxQuantity + 1}, false},
		{"sum over cap", []int{MaxQuantity/2 + 1, MaxQuantity / 2}, false},
		{"at cap", []int{MaxQuantity / 2, MaxQuantity / 2}, true},
	}
	for _, tc := range cases {
		o := f.order(1)
		o.Items = nil
		for _, q := range tc.lines {
			o.Items = append(o.Items, Item{ProductID: f.seedID, Name: "Tomato", Price: 0, Quantity: q})
		}
		o.TotalAmount = 0
		_, err := f.store.Place(ctx, o)
		if tc.ok && err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if !tc.ok && apperr.KindOf(err) != apperr.KindValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
	if s := f.stock(t); s != MaxQuantity {
		t.Fatalf("stock = %d, want %d", s, MaxQuantity)
	}
}

func TestCancel_PaidOrderNeedsPaymentItems(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()
	o, err := f.store.Place(ctx, f.order(2))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := f.store.UpdateStatus(ctx, o.OrderID, StatusPending, StatusPaid); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	o.Status = StatusPaid

	if _, err := f.store.Cancel(ctx, o); !errors.Is(err, ErrPaymentOutstanding) {
		t.Fatalf("expected ErrPaymentOutstanding, got %v", err)
	}
	if _, err := f.store.Transition(ctx, o, StatusCancelled); !errors.Is(err, ErrPaymentOutstanding) {
		t.Fatalf("expected ErrPaymentOutstanding via Transition, got %v", err)
	}
	if s := f.stock(t); s != 3 {
		t.Fatalf("stock = %d, want 3", s)
	}
	got, _ := f.store.Get(ctx, o.OrderID)
	if got.Status != StatusPaid {
		t.Fatalf("status = %s, want Paid", got.Status)
	}
}
