package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/users"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

func (a *api) registerUserRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/users", authed)
	g.GET("/", a.listCustomers)
	g.GET("/:id", a.getUser)
	g.PUT("/:id", a.updateUser)
	g.DELETE("/:id", a.deleteUser)
}

// loadUser writes the 404 itself when the user is missing.
func (a *api) loadUser(c *gin.Context, id string) (*users.User, bool) {
	u, err := a.Users.Get(c.Request.Context(), id)
	if err != nil {
		apperr.Respond(c, err)
		return nil, false
	}
	if u == nil {
		apperr.Respond(c, apperr.NotFound("user"))
		return nil, false
	}
	return u, true
}

func (a *api) listCustomers(c *gin.Context) {
	if !allow(c, policy.UserList, policy.Resource{}) {
		return
	}
	a.listUsers(c, users.Filter{Role: users.RoleCustomer})
}

func (a *api) listUsers(c *gin.Context, f users.Filter) {
	list, err := a.Users.List(c.Request.Context(), f)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (a *api) getUser(c *gin.Context) {
	u, ok := a.loadUser(c, c.Param("id"))
	if !ok || !allow(c, policy.UserView, policy.Owned(u.UserID)) {
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *api) updateUser(c *gin.Context) {
	u, ok := a.loadUser(c, c.Param("id"))
	if !ok || !allow(c, policy.UserUpdate, policy.Owned(u.UserID)) {
		return
	}
	var req validation.UpdateUserRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	if req.Role != nil && *req.Role != u.Role && !allow(c, policy.UserRole, policy.Resource{}) {
		return
	}

	changes := users.Changes{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		PhoneNumber: req.PhoneNumber,
		Street:      req.Street,
		Address:     req.Address,
		State:       req.State,
		District:    req.District,
		Taluka:      req.Taluka,
		Village:     req.Village,
		Pincode:     req.Pincode,
		Role:        req.Role,
	}
	if req.Password != nil {
		hash, err := a.Auth.HashPassword(*req.Password)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		changes.PasswordHash = &hash
	}

	updated, err := a.Users.Update(c.Request.Context(), u.UserID, changes)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) deleteUser(c *gin.Context) {
	u, ok := a.loadUser(c, c.Param("id"))
	if !ok || !allow(c, policy.UserDelete, policy.Owned(u.UserID)) {
		return
	}
	if err := a.Users.Delete(c.Request.Context(), u.UserID); err != nil {
		apperr.Respond(c, err)
		return
	}
	deleted(c, "user")
}
