package router

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/denisAlshanov/mediarelay/internal/api/handlers"
	"github.com/denisAlshanov/mediarelay/internal/api/middleware"
	"github.com/denisAlshanov/mediarelay/internal/config"
	"github.com/denisAlshanov/mediarelay/internal/services/auth"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Extract *handlers.ExtractHandler
	Stream  *handlers.StreamHandler
	Archive *handlers.ArchiveHandler
	Health  *handlers.HealthHandler
}

type Router struct {
	engine *gin.Engine
	config *config.Config
	server *http.Server
}

func NewRouter(cfg *config.Config, h Handlers, tickets *auth.TicketService) *Router {
	// Set Gin mode
	if cfg.Server.Host == "0.0.0.0" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// Add middleware
	engine.Use(gin.Recovery())
	engine.Use(middleware.CorrelationIDMiddleware())

	// Health endpoints (no auth required)
	health := engine.Group("/")
	{
		health.GET("/health", h.Health.Health)
		health.GET("/ready", h.Health.Readiness)
		health.GET("/live", h.Health.Liveness)
	}

	// Swagger documentation (no auth required)
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	limiter := middleware.RateLimitMiddleware(&cfg.API)

	api := engine.Group("/")
	api.Use(limiter)
	api.Use(middleware.AuthMiddleware(&cfg.API))
	{
		api.POST("/extract", h.Extract.Extract)
		api.POST("/archive", h.Archive.Archive)
	}

	// Stream links are handed to browsers, so a ticket bound to the target
	// is accepted in place of the shared secret.
	engine.GET("/stream", limiter, middleware.StreamAuthMiddleware(&cfg.API, tickets), h.Stream.Stream)

	return &Router{
		engine: engine,
		config: cfg,
		// No write timeout: /stream responses run as long as the origin sends data.
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Start blocks serving HTTP until Shutdown is called.
func (r *Router) Start() error {
	err := r.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (r *Router) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
