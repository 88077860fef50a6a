package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/go-storefront/internal/carts"
	"github.com/imrishuroy/go-storefront/internal/ddb/ddbtest"
	domain "github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/ids"
)

// --- mock implementations ---

type recordedMetric struct {
	name  string
	value float64
}

type mockMetrics struct {
	mu   sync.Mutex
	data []recordedMetric
	err  error
}

func (m *mockMetrics) Count(_ context.Context, name string, n float64) error {
	return m.record(name, n)
}

func (m *mockMetrics) Amount(_ context.Context, name string, v float64) error {
	return m.record(name, v)
}

func (m *mockMetrics) record(name string, v float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = append(m.data, recordedMetric{name, v})
	return m.err
}

func (m *mockMetrics) value(name string) (float64, bool) {
	for _, d := range m.data {
		if d.name == name {
			return d.value, true
		}
	}
	return 0, false
}

type failingCarts struct{}

func (failingCarts) RemoveProducts(context.Context, string, []string) (int, error) {
	return 0, errors.New("throttled")
}

func message(t *testing.T, id string, ev domain.Event) events.SQSMessage {
	t.Helper()
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return events.SQSMessage{MessageId: id, Body: string(b)}
}

func newCarts(t *testing.T) *carts.Store {
	t.Helper()
	fake := ddbtest.New()
	fake.CreateTable("carts", "user_id")
	fake.CreateTable("counters", "counter_name")
	return carts.NewStore(fake, "carts", ids.NewAllocator(fake, "counters"))
}

// --- test cases ---

func TestWorkerProcess_OrderPlacedCleansCart(t *testing.T) {
	ctx := context.Background()
	cartStore := newCarts(t)
	for _, pid := range []string{"1", "2", "1"} {
		if _, err := cartStore.Add(ctx, carts.Item{UserID: "7", ProductID: pid, Name: "p" + pid, Price: 5, Quantity: 1}); err != nil {
			t.Fatalf("add to cart: %v", err)
		}
	}
	metrics := &mockMetrics{}
	p := NewProcessor(cartStore, metrics)

	resp, err := p.Handle(ctx, events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", domain.Event{Type: domain.TypeOrderPlaced, UserID: "7", OrderID: "3", ProductIDs: []string{"1"}, Amount: 10}),
	}})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}

	items, err := cartStore.Items(ctx, "7")
	if err != nil {
		t.Fatalf("Items: %v", err)
	}
	if len(items) != 1 || items[0].ProductID != "2" {
		t.Fatalf("expected only product 2 left in cart, got %+v", items)
	}
	if v, ok := metrics.value(MetricCartLinesRemoved); !ok || v != 2 {
		t.Fatalf("expected 2 cart lines removed, got %v %v", v, ok)
	}
	if v, ok := metrics.value(MetricOrderValue); !ok || v != 10 {
		t.Fatalf("expected order value 10, got %v %v", v, ok)
	}
}

func TestWorkerProcess_PaymentMetricsAndMissingCart(t *testing.T) {
	metrics := &mockMetrics{}
	p := NewProcessor(newCarts(t), metrics)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message(t, "m1", domain.Event{Type: domain.TypePaymentSucceeded, UserID: "7", PaymentID: "1", Amount: 20}),
		// user without a cart
		message(t, "m2", domain.Event{Type: domain.TypeOrderPlaced, UserID: "99", ProductIDs: []string{"1"}}),
		message(t, "m3", domain.Event{Type: "something.else"}),
	}})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Fatalf("unexpected failures: %+v", resp.BatchItemFailures)
	}
	if v, ok := metrics.value(MetricRevenue); !ok || v != 20 {
		t.Fatalf("expected revenue 20, got %v %v", v, ok)
	}
}

func TestWorkerProcess_ReportsFailedMessages(t *testing.T) {
	metrics := &mockMetrics{err: errors.New("cloudwatch down")}
	p := NewProcessor(failingCarts{}, metrics)

	resp, err := p.Handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "bad-json", Body: "{"},
		message(t, "cart", domain.Event{Type: domain.TypeOrderPlaced, UserID: "1", ProductIDs: []string{"1"}}),
		// metric errors do not fail the message
		message(t, "ok", domain.Event{Type: domain.TypeOrderCancelled, OrderID: "1"}),
	}})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(resp.BatchItemFailures) != 2 {
		t.Fatalf("expected 2 failures, got %+v", resp.BatchItemFailures)
	}
	if resp.BatchItemFailures[0].ItemIdentifier != "bad-json" || resp.BatchItemFailures[1].ItemIdentifier != "cart" {
		t.Fatalf("unexpected failure ids: %+v", resp.BatchItemFailures)
	}
}
