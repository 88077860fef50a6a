package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/users"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

type loginResponse struct {
	Token     string      `json:"token"`
	TokenType string      `json:"token_type"`
	ExpiresAt time.Time   `json:"expires_at"`
	User      *users.User `json:"user"`
}

func (a *api) registerAuthRoutes(r *gin.Engine, authed gin.HandlerFunc) {
	g := r.Group("/auth")
	g.POST("/register", middleware.RateLimit(a.Limiter, "register"), a.register)
	g.POST("/login", middleware.RateLimit(a.Limiter, "login"), a.login)
	g.GET("/me", authed, a.me)
	g.POST("/logout", authed, a.logout)
}

func (a *api) register(c *gin.Context) {
	var req validation.RegisterRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	u, err := a.Auth.Register(c.Request.Context(), users.User{
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
	}, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.Header("Location", "/users/"+u.UserID)
	c.JSON(http.StatusCreated, u)
}

func (a *api) login(c *gin.Context) {
	var req validation.LoginRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	s, err := a.Auth.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{Token: s.Token, TokenType: "Bearer", ExpiresAt: s.ExpiresAt, User: s.User})
}

func (a *api) me(c *gin.Context) {
	u, err := a.Users.Get(c.Request.Context(), actor(c).UserID)
	if err != nil {
		apperr.Respond(c, err)
		return
	}
	if u == nil {
		apperr.Respond(c, apperr.NotFound("user"))
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *api) logout(c *gin.Context) {
	if err := a.Auth.Revoke(c.Request.Context(), middleware.TokenFrom(c)); err != nil {
		apperr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
