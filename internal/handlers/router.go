package handlers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront/internal/events"
	"github.com/imrishuroy/go-storefront/internal/middleware"
	"github.com/imrishuroy/go-storefront/internal/validation"
)

// NewRouter builds the engine with the shared middleware and every route.
func NewRouter(cfg HandlerConfig) *gin.Engine {
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	a := &api{HandlerConfig: cfg, v: validation.New()}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(middleware.Deadline(cfg.RequestTimeout))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authed := middleware.RequireAuth(cfg.Auth, cfg.Users)

	a.registerAuthRoutes(r, authed)
	a.registerUserRoutes(r, authed)
	a.registerCategoryRoutes(r, authed)
	a.registerProductRoutes(r, authed)
	a.registerCartRoutes(r, authed)
	a.registerOrderRoutes(r, authed)
	a.registerPaymentRoutes(r, authed)
	a.registerReviewRoutes(r, authed)
	a.registerContactRoutes(r, authed)
	a.registerAdminRoutes(r, authed)

	return r
}

func corsConfig(origins []string) cors.Config {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Idempotency-Key", middleware.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", middleware.RequestIDHeader, "Location"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cc
}
