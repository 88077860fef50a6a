package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/apperr"
	"github.com/imrishuroy/go-storefront/internal/policy"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// Context keys set by RequireAuth.
const (
	ActorKey = "actor"
	TokenKey = "token"
)

type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (string, error)
}

type UserGetter interface {
	Get(ctx context.Context, userID string) (*users.User, error)
}

// RequireAuth validates the bearer token and loads the caller. The role is
// read from the user record on every request, so a role change or a deleted
// account takes effect immediately.
func RequireAuth(tokens TokenValidator, userStore UserGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		token := strings.TrimPrefix(raw, "Bearer ")
		if raw == "" || token == raw || strings.TrimSpace(token) == "" {
			apperr.Respond(c, apperr.ErrUnauthenticated)
			return
		}

		ctx := c.Request.Context()
		userID, err := tokens.ValidateToken(ctx, token)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		u, err := userStore.Get(ctx, userID)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if u == nil {
			apperr.Respond(c, apperr.ErrTokenInvalid)
			return
		}

		c.Set(ActorKey, policy.Actor{UserID: u.UserID, Role: u.Role})
		c.Set(TokenKey, token)
		c.Next()
	}
}

// ActorFrom returns the caller set by RequireAuth.
func ActorFrom(c *gin.Context) (policy.Actor, bool) {
	v, ok := c.Get(ActorKey)
	if !ok {
		return policy.Actor{}, false
	}
	a, ok := v.(policy.Actor)
	return a, ok
}

// TokenFrom returns the raw bearer token set by RequireAuth.
func TokenFrom(c *gin.Context) string { return c.GetString(TokenKey) }
