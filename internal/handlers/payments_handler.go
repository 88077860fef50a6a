package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/romana/rlog"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// IdempotencyKeyHeader makes checkout safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from a stored result.
const ReplayedHeader = "Idempotent-Replayed"

var errKeyReused = apperr.Conflict("idempotency_key_reused", "idempotency key was used with a different request")

func (a *api) registerPaymentRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/payments", authed)
	g.POST("/checkout", a.checkout)
	g.GET("/:id", a.getPayment)
	g.DELETE("/:id", a.voidPayment)
}

func (a *api) checkout(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	// Without a key the request simply runs once.
	idempKey := c.GetHeader(IdempotencyKeyHeader)
	if idempKey == "" {
		status, body, _, err := a.runCheckout(c, req)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.Data(status, "application/json; charset=utf-8", body)
		return
	}

	scoped := idempotency.ScopedKey(actor(c).UserID, idempKey)
	rec, created, err := a.Idempotency.Begin(ctx, scoped, requestHash(req))
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if !created {
		switch {
		case rec.RequestHash != requestHash(req):
			apperr.Respond(c, errKeyReused)
		case rec.Status == idempotency.StatusDone:
			c.Header(ReplayedHeader, "true")
			c.Data(rec.ResponseStatus, "application/json; charset=utf-8", []byte(rec.ResponseBody))
		default:
			c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress", "idempotency_key": idempKey})
		}
		return
	}

	status, body, paymentID, err := a.runCheckout(c, req)
	if err != nil {
		// mark idempotency failed so client can retry
		if merr := a.Idempotency.MarkFailed(ctx, scoped, err.Error()); merr != nil {
			rlog.Warnf("[api] mark idempotency failed key=%s: %v", scoped, merr)
		}
		apperr.Respond(c, err)
		return
	}
	a.markDone(c, scoped, paymentID, body, status)
	c.Data(status, "application/json; charset=utf-8", body)
}

// markDone stores the response of a committed checkout. A failed write is
// retried once outside the request's deadline.
func (a *api) markDone(c *gin.Context, key, paymentID string, body []byte, status int) {
	err := a.Idempotency.MarkDone(c.Request.Context(), key, paymentID, string(body), status)
	if err == nil {
		return
	}
	rlog.Warnf("[api] mark idempotency done key=%s, retrying: %v", key, err)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), publishTimeout)
	defer cancel()
	if err := a.Idempotency.MarkDone(ctx, key, paymentID, string(body), status); err != nil {
		rlog.Errorf("[api] mark idempotency done key=%s: %v", key, err)
	}
}

// runCheckout records the payment and returns the response to send. The body
// is rendered here so that a replay returns exactly the same bytes.
func (a *api) runCheckout(c *gin.Context, req validation.CheckoutRequest) (int, []byte, string, error) {
	ctx := c.Request.Context()
	o, err := a.Orders.Get(ctx, req.OrderID)
	if err != nil {
		return 0, nil, "", err
	}
	if o == nil {
		return 0, nil, "", apperr.NotFound("order")
	}
	if err := policy.Authorize(actor(c), policy.PaymentCreate, policy.Owned(o.UserID)); err != nil {
		return 0, nil, "", err
	}
	switch o.Status {
	case orders.StatusPending:
	case orders.StatusPaid:
		return 0, nil, "", payments.ErrAlreadyPaid
	default:
		return 0, nil, "", payments.ErrOrderNotPending
	}
	want := decimal.NewFromFloat(o.TotalAmount).Round(2)
	if got := decimal.NewFromFloat(req.Amount).Round(2); !got.Equal(want) {
		return 0, nil, "", apperr.Validation(
			fmt.Sprintf("amount %s does not match order total %s", got.StringFixed(2), want.StringFixed(2)),
			map[string]string{"amount": "must equal the order total"})
	}

	p, err := a.Payments.Checkout(ctx, payments.Payment{
		OrderID:        o.OrderID,
		UserID:         o.UserID,
		Amount:         o.TotalAmount,
		PaymentMethod:  req.PaymentMethod,
		BillingAddress: req.BillingAddress,
	})
	if err != nil {
		return 0, nil, "", err
	}
	a.publish(c, events.Event{
		Type:      events.TypePaymentSucceeded,
		UserID:    p.UserID,
		OrderID:   p.OrderID,
		PaymentID: p.PaymentID,
		Amount:    p.Amount,
	})

	body, err := json.Marshal(p)
	if err != nil {
		return 0, nil, "", fmt.Errorf("marshal payment: %w", err)
	}
	c.Header("Location", "/payments/"+p.PaymentID)
	return http.StatusCreated, body, p.PaymentID, nil
}

func requestHash(req validation.CheckoutRequest) string {
	b, _ := json.Marshal(req)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (a *api) loadPayment(c *gin.Context) (*payments.Payment, bool) {
	p, err := a.Payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if p == nil {
		apperr.Respond(c, apperr.NotFound("payment"))
		return nil, false
	}
	return p, true
}

func (a *api) getPayment(c *gin.Context) {
	p, ok := a.loadPayment(c)
	if !ok || !allow(c, policy.PaymentView, policy.Owned(p.UserID)) {
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *api) voidPayment(c *gin.Context) {
	p, ok := a.loadPayment(c)
	if !ok || !allow(c, policy.PaymentVoid, policy.Owned(p.UserID)) {
		return
	}
	voided, err := a.Payments.Void(c.Request.Context(), p)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	a.publish(c, events.Event{
		Type:      events.TypePaymentVoided,
		UserID:    voided.UserID,
		OrderID:   voided.OrderID,
		PaymentID: voided.PaymentID,
		Amount:    voided.Amount,
	})
	c.JSON(http.StatusOK, voided)
}
