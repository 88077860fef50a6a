// Package events defines the domain events the API emits after a committed
// write and the worker consumes from the queue.
package events

import (
	"context"
	"time"
)

// Event types.
const (
	TypeOrderPlaced      = "order.placed"
	TypeOrderCancelled   = "order.cancelled"
	TypePaymentSucceeded = "payment.succeeded"
	TypePaymentVoided    = "payment.voided"
)

// Event is the JSON payload sent from API -> SQS -> worker.
type Event struct {
	Type          string    `json:"type"`
	UserID        string    `json:"user_id"`
	OrderID       string    `json:"order_id,omitempty"`
	PaymentID     string    `json:"payment_id,omitempty"`
	ProductIDs    []string  `json:"product_ids,omitempty"`
	Amount        float64   `json:"amount,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Publisher delivers events. Publishing happens after the write it describes
// has committed, so a failure never rolls the write back.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards events. Used when no queue is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
