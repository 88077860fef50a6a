package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/contacts"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerContactRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/contact")
	g.POST("/submit", middleware.RateLimit(a.Limiter, "contact"), a.submitContact)
	g.GET("/all", authed, a.listContacts)
}

func (a *api) submitContact(c *gin.Context) {
	var req validation.ContactRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	q, err := a.Contacts.Submit(c.Request.Context(), contacts.Query{Name: req.Name, Email: req.Email, Message: req.Message})
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, q)
}

func (a *api) listContacts(c *gin.Context) {
	if !allow(c, policy.ContactList, policy.Resource{}) {
		return
	}
	list, err := a.Contacts.List(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}
