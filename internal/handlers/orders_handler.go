package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// registerOrderRoutes registers routes for order API.
func (a *api) registerOrderRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/orders", authed)
	g.POST("/", a.placeOrder)
	g.GET("/:id", a.getOrder)
	g.GET("/user/:user_id", a.listUserOrders)
	g.PUT("/:id/status", a.updateOrderStatus)
	g.DELETE("/:id", a.cancelOrder)
}

func (a *api) placeOrder(c *gin.Context) {
	if !allow(c, policy.OrderPlace, policy.Resource{}) {
		return
	}
	ctx := c.Request.Context()

	// Bind + validate request; the total must match the items
	var req validation.PlaceOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	buyer, ok := a.loadUser(c, actor(c).UserID)
	if !ok {
		return
	}

	order := orders.Order{
		UserID: buyer.UserID,
		UserDetails: orders.UserSnapshot{
			UserID:      buyer.UserID,
			Email:       buyer.Email,
			FirstName:   buyer.FirstName,
			LastName:    buyer.LastName,
			PhoneNumber: buyer.PhoneNumber,
		},
		BillingDetails: orders.Billing{
			FullName: req.BillingDetails.FullName,
			Email:    req.BillingDetails.Email,
			Address:  req.BillingDetails.Address,
			State:    req.BillingDetails.State,
			District: req.BillingDetails.District,
			Taluka:   req.BillingDetails.Taluka,
			Village:  req.BillingDetails.Village,
			Pincode:  req.BillingDetails.Pincode,
		},
		ShippingAddress: req.ShippingAddress,
		TotalAmount:     validation.ItemsTotal(req.Items).InexactFloat64(),
	}
	// snapshot the items as submitted
	order.Items = make([]orders.Item, 0, len(req.Items))
	for _, it := range req.Items {
		order.Items = append(order.Items, orders.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     it.Price,
			Quantity:  it.Quantity,
		})
	}

	placed, err := a.Orders.Place(ctx, order)
	if err != nil {
		apperr.Respond(c, err)
		return
	}

	a.publish(c, events.Event{
		Type:       events.TypeOrderPlaced,
		UserID:     placed.UserID,
		OrderID:    placed.OrderID,
		ProductIDs: placed.ProductIDs(),
		Amount:     placed.TotalAmount,
	})

	c.Header("Location", fmt.Sprintf("/orders/%s", placed.OrderID))
	c.JSON(http.StatusCreated, placed)
}

func (a *api) loadOrder(c *gin.Context) (*orders.Order, bool) {
	o, err := a.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if o == nil {
		apperr.Respond(c, apperr.NotFound("order"))
		return nil, false
	}
	return o, true
}

func (a *api) getOrder(c *gin.Context) {
	o, ok := a.loadOrder(c)
	if !ok || !allow(c, policy.OrderView, policy.Owned(o.UserID)) {
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) listUserOrders(c *gin.Context) {
	u, ok := a.loadUser(c, c.Param("user_id"))
	if !ok || !allow(c, policy.OrderListByUser, policy.Owned(u.UserID)) {
		return
	}
	list, err := a.Orders.ListByUser(c.Request.Context(), u.UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) listAllOrders(c *gin.Context) {
	if !allow(c, policy.OrderListAll, policy.Resource{}) {
		return
	}
	list, err := a.Orders.ListAll(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) updateOrderStatus(c *gin.Context) {
	o, ok := a.loadOrder(c)
	if !ok || !allow(c, policy.OrderUpdateStatus, policy.Resource{}) {
		return
	}
	var req validation.StatusUpdateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	if req.Status == orders.StatusCancelled {
		a.cancel(c, o)
		return
	}
	updated, err := a.Orders.Transition(c.Request.Context(), o, req.Status)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) cancelOrder(c *gin.Context) {
	o, ok := a.loadOrder(c)
	if !ok || !allow(c, policy.OrderCancel, policy.Owned(o.UserID)) {
		return
	}
	a.cancel(c, o)
}

// cancel cancels o, voiding its payment first if it was paid.
func (a *api) cancel(c *gin.Context, o *orders.Order) {
	cancelled, voided, err := a.Payments.CancelOrder(c.Request.Context(), o)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if voided != nil {
		a.publish(c, events.Event{
			Type:      events.TypePaymentVoided,
			UserID:    voided.UserID,
			OrderID:   voided.OrderID,
			PaymentID: voided.PaymentID,
			Amount:    voided.Amount,
		})
	}
	a.publish(c, events.Event{Type: events.TypeOrderCancelled, UserID: cancelled.UserID, OrderID: cancelled.OrderID})
	c.JSON(http.StatusOK, cancelled)
}
