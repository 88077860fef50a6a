package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/users"
)

func (a *api) registerAdminRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/admin", authed)
	g.GET("/analytics", a.analytics)
	g.GET("/orders", a.listAllOrders)
	g.GET("/users", a.listAllUsers)
}

func (a *api) analytics(c *gin.Context) {
	if !allow(c, policy.AnalyticsView, policy.Resource{}) {
		return
	}
	s, err := a.Analytics.Summarize(c.Request.Context())
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

// listAllUsers accepts an optional ?role= filter.
func (a *api) listAllUsers(c *gin.Context) {
	if !allow(c, policy.UserList, policy.Resource{}) {
		return
	}
	role := c.Query("role")
	if role != "" && role != users.RoleCustomer && role != users.RoleAdmin {
		apperr.Respond(c, apperr.Validation("unknown role "+role, map[string]string{"role": "must be one of: customer admin"}))
		return
	}
	a.listUsers(c, users.Filter{Role: role})
}
