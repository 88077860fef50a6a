package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/carts"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerCartRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/cart", authed)
	g.POST("/add", a.addToCart)
	g.GET("/", a.viewCart)
	g.PUT("/update/:cart_id", a.updateCartItem)
	g.DELETE("/remove/:cart_id", a.removeCartItem)
}

func (a *api) addToCart(c *gin.Context) {
	if !allow(c, policy.CartAdd, policy.Resource{}) {
		return
	}
	var req validation.CartAddRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	p, ok := a.loadProduct(c, req.ProductID)
	if !ok {
		return
	}
	it, err := a.Carts.Add(c.Request.Context(), carts.Item{
		ProductID: p.ProductID,
		UserID:    actor(c).UserID,
		Name:      p.Name,
		Price:     p.Price,
		Quantity:  req.Quantity,
	})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, it)
}

func (a *api) viewCart(c *gin.Context) {
	if !allow(c, policy.CartView, policy.Resource{}) {
		return
	}
	items, err := a.Carts.Items(c.Request.Context(), actor(c).UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (a *api) updateCartItem(c *gin.Context) {
	if !allow(c, policy.CartUpdate, policy.Resource{}) {
		return
	}
	var req validation.CartUpdateRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	it, err := a.Carts.UpdateQuantity(c.Request.Context(), actor(c).UserID, c.Param("cart_id"), req.Quantity)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, it)
}

func (a *api) removeCartItem(c *gin.Context) {
	if !allow(c, policy.CartRemove, policy.Resource{}) {
		return
	}
	if err := a.Carts.Remove(c.Request.Context(), actor(c).UserID, c.Param("cart_id")); err != nil {
		apperr.Respond(c, err)
		return
	}
	deleted(c, "cart item")
}
