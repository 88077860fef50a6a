package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"github.com/romana/rlog"

	domain "github.com/imrishuroy/go-storefront/internal/events"
)

// Metric names.
const (
	MetricOrdersPlaced      = "OrdersPlaced"
	MetricOrdersCancelled   = "OrdersCancelled"
	MetricOrderValue        = "OrderValue"
	MetricPaymentsSucceeded = "PaymentsSucceeded"
	MetricPaymentsVoided    = "PaymentsVoided"
	MetricRevenue           = "Revenue"
	MetricRevenueVoided     = "RevenueVoided"
	MetricCartLinesRemoved  = "CartLinesRemoved"
)

type CartCleaner interface {
	RemoveProducts(ctx context.Context, userID string, productIDs []string) (int, error)
}

type MetricsRecorder interface {
	Count(ctx context.Context, name string, n float64) error
	Amount(ctx context.Context, name string, v float64) error
}

// Processor consumes domain events from SQS. Cart cleanup failures are
// retried by SQS; metric failures are only logged.
type Processor struct {
	carts   CartCleaner
	metrics MetricsRecorder
}

// NewProcessor creates a new worker processor with its dependencies injected.
func NewProcessor(carts CartCleaner, metrics MetricsRecorder) *Processor {
	return &Processor{carts: carts, metrics: metrics}
}

// Handle processes each message of the batch and reports the ones that
// failed so that only those are redelivered.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			rlog.Errorf("[worker] message=%s failed: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg domain.Event
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}

	rlog.Infof("[worker] received type=%s order=%s payment=%s corr=%s",
		msg.Type, msg.OrderID, msg.PaymentID, msg.CorrelationID)

	switch msg.Type {
	case domain.TypeOrderPlaced:
		// ordered products leave the buyer's cart
		removed, err := p.carts.RemoveProducts(ctx, msg.UserID, msg.ProductIDs)
		if err != nil {
			return fmt.Errorf("clean cart of user=%s: %w", msg.UserID, err)
		}
		p.count(ctx, MetricCartLinesRemoved, float64(removed))
		p.count(ctx, MetricOrdersPlaced, 1)
		p.amount(ctx, MetricOrderValue, msg.Amount)
	case domain.TypeOrderCancelled:
		p.count(ctx, MetricOrdersCancelled, 1)
	case domain.TypePaymentSucceeded:
		p.count(ctx, MetricPaymentsSucceeded, 1)
		p.amount(ctx, MetricRevenue, msg.Amount)
	case domain.TypePaymentVoided:
		p.count(ctx, MetricPaymentsVoided, 1)
		p.amount(ctx, MetricRevenueVoided, msg.Amount)
	default:
		rlog.Warnf("[worker] skipping unknown event type %q", msg.Type)
	}
	return nil
}

func (p *Processor) count(ctx context.Context, name string, n float64) {
	if err := p.metrics.Count(ctx, name, n); err != nil {
		rlog.Warnf("[worker] metric %s: %v", name, err)
	}
}

func (p *Processor) amount(ctx context.Context, name string, v float64) {
	if err := p.metrics.Amount(ctx, name, v); err != nil {
		rlog.Warnf("[worker] metric %s: %v", name, err)
	}
}
