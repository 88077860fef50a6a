// Package handlers exposes the storefront over HTTP. Each handler loads the
// target resource (a missing one is NotFound), consults the policy, performs
// the store call and shapes the response. Errors are rendered by
// apperr.Respond.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/analytics"
	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/carts"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/contacts"
	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/reviews"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// HandlerConfig groups dependencies for the API handlers.
type HandlerConfig struct {
	Auth        *auth.Manager
	Users       *users.Store
	Categories  *catalog.CategoryStore
	Products    *catalog.ProductStore
	Carts       *carts.Store
	Orders      *orders.Store
	Payments    *payments.Store
	Reviews     *reviews.Store
	Contacts    *contacts.Store
	Idempotency *idempotency.Store
	Analytics   *analytics.Aggregator
	Events      events.Publisher
	Limiter     *middleware.Limiter

	RequestTimeout time.Duration
	CORSOrigins    []string
}

// api carries the dependencies into the route handlers.
type api struct {
	HandlerConfig
	v *validatorv10.Validate
}

const publishTimeout = 3 * time.Second

// actor returns the authenticated caller. Only used behind RequireAuth.
func actor(c *gin.Context) policy.Actor {
	a, _ := middleware.ActorFrom(c)
	return a
}

// allow runs the policy check and writes the 403 itself when it fails.
func allow(c *gin.Context, action policy.Action, res policy.Resource) bool {
	if err := policy.Authorize(actor(c), action, res); err != nil {
		apperr.Respond(c, err)
		return false
	}
	return true
}

// publish sends ev after the write it describes committed. It outlives the
// request deadline and never fails the request.
func (a *api) publish(c *gin.Context, ev events.Event) {
	ev.CorrelationID = c.GetString(apperr.RequestIDKey)
	ev.OccurredAt = time.Now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), publishTimeout)
	defer cancel()
	if err := a.Events.Publish(ctx, ev); err != nil {
		rlog.Warnf("[api] publish %s failed request_id=%s: %v", ev.Type, ev.CorrelationID, err)
	}
}

func deleted(c *gin.Context, what string) {
	c.JSON(http.StatusOK, gin.H{"message": what + " deleted"})
}
