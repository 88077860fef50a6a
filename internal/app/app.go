// Package app wires configuration, AWS clients and stores into the HTTP
// router. Both binaries build their dependencies here.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/romana/rlog"

	"github.com/imrishuroy/go-storefront/internal/analytics"
	"github.com/imrishuroy/go-storefront/internal/auth"
	"github.com/imrishuroy/go-storefront/internal/aws"
	"github.com/imrishuroy/go-storefront/internal/carts"
	"github.com/imrishuroy/go-storefront/internal/catalog"
	"github.com/imrishuroy/go-storefront/internal/config"
	"github.com/imrishuroy/go-storefront/internal/contacts"
	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/handlers"
	"github.com/imrishuroy/go-storefront/internal/idempotency"
	"github.com/imrishuroy/go-storefront/internal/ids"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/orders"
	"github.com/imrishuroy/go-storefront/internal/payments"
	"github.com/imrishuroy/go-storefront/internal/reviews"
	"github.com/imrishuroy/go-storefront/internal/users"
)

// Stores holds one store per table.
type Stores struct {
	IDs         *ids.Allocator
	Users       *users.Store
	Categories  *catalog.CategoryStore
	Products    *catalog.ProductStore
	Carts       *carts.Store
	Orders      *orders.Store
	Payments    *payments.Store
	Reviews     *reviews.Store
	Contacts    *contacts.Store
	Revoked     *auth.RevocationStore
	Idempotency *idempotency.Store
}

// NewStores builds every store against client using the configured table names.
func NewStores(cfg config.Config, client aws.DynamoDBAPI) *Stores {
	t := cfg.Tables
	alloc := ids.NewAllocator(client, t.Counters)
	cats := catalog.NewCategoryStore(client, t.Categories, alloc)
	products := catalog.NewProductStore(client, t.Products, cats, alloc)
	orderStore := orders.NewStore(client, t.Orders, products, alloc)
	return &Stores{
		IDs:         alloc,
		Users:       users.NewStore(client, t.Users, t.Uniques, alloc),
		Categories:  cats,
		Products:    products,
		Carts:       carts.NewStore(client, t.Carts, alloc),
		Orders:      orderStore,
		Payments:    payments.NewStore(client, t.Payments, t.Uniques, orderStore, alloc),
		Reviews:     reviews.NewStore(client, t.Reviews, t.Uniques, products, alloc),
		Contacts:    contacts.NewStore(client, t.Contacts),
		Revoked:     auth.NewRevocationStore(client, t.RevokedTokens),
		Idempotency: idempotency.NewStore(client, t.Idempotency, cfg.IdempotencyTTL),
	}
}

// Deps are the external clients the API needs.
type Deps struct {
	DynamoDB aws.DynamoDBAPI
	// Events defaults to events.Nop.
	Events events.Publisher
	// Redis backs the rate limiter; nil disables it.
	Redis middleware.RedisCounter
}

type App struct {
	Config config.Config
	Stores *Stores
	Auth   *auth.Manager
	Router *gin.Engine
}

// New builds the API. It does not touch storage; call Bootstrap for that.
func New(cfg config.Config, deps Deps) (*App, error) {
	if deps.DynamoDB == nil {
		return nil, fmt.Errorf("app: dynamodb client is required")
	}
	if deps.Events == nil {
		deps.Events = events.Nop{}
	}

	stores := NewStores(cfg, deps.DynamoDB)
	manager, err := auth.NewManager(stores.Users, stores.Revoked, auth.Config{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	var limiter *middleware.Limiter
	if deps.Redis != nil {
		limiter = middleware.NewLimiter(deps.Redis, cfg.RateLimitPerMinute, rateLimitWindow)
	}

	router := handlers.NewRouter(handlers.HandlerConfig{
		Auth:           manager,
		Users:          stores.Users,
		Categories:     stores.Categories,
		Products:       stores.Products,
		Carts:          stores.Carts,
		Orders:         stores.Orders,
		Payments:       stores.Payments,
		Reviews:        stores.Reviews,
		Contacts:       stores.Contacts,
		Idempotency:    stores.Idempotency,
		Analytics:      analytics.NewAggregator(stores.Payments, stores.Users, stores.Orders, stores.Products),
		Events:         deps.Events,
		Limiter:        limiter,
		RequestTimeout: cfg.RequestTimeout,
		CORSOrigins:    cfg.CORSOrigins,
	})

	return &App{Config: cfg, Stores: stores, Auth: manager, Router: router}, nil
}

// Bootstrap creates or promotes the configured admin account.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.Config.AdminEmail == "" {
		rlog.Info("[api] no admin account configured")
		return nil
	}
	u, err := a.Auth.EnsureAdmin(ctx, a.Config.AdminEmail, a.Config.AdminPassword)
	if errors.Is(err, auth.ErrAdminEmailTaken) {
		// the address belongs to someone else; start without an admin
		rlog.Errorf("[api] admin account not ready: %v", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ensure admin: %w", err)
	}
	rlog.Infof("[api] admin account ready user_id=%s", u.UserID)
	return nil
}
