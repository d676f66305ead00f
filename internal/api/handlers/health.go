package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/denisAlshanov/mediarelay/internal/services/relaypool"
	"github.com/denisAlshanov/mediarelay/internal/utils"
)

// Pinger is implemented by the Mongo cache and the S3 archive sink.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PoolSnapshotter is implemented by *relaypool.Pool.
type PoolSnapshotter interface {
	Snapshot() []relaypool.Instance
}

type HealthHandler struct {
	cache   Pinger
	storage Pinger
	pool    PoolSnapshotter
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Version   string                   `json:"version"`
	Services  map[string]ServiceHealth `json:"services"`
	Relays    []relaypool.Instance     `json:"relays"`
}

type ServiceHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// NewHealthHandler accepts nil for optional dependencies; they are reported
// as disabled.
func NewHealthHandler(cache Pinger, storage Pinger, pool PoolSnapshotter) *HealthHandler {
	return &HealthHandler{
		cache:   cache,
		storage: storage,
		pool:    pool,
	}
}

// Health godoc
// @Summary Health check endpoint
// @Description Check the health of the service, its optional cache and archive sink, and the relay pool
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Success 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
		Version:   "1.0.0",
		Services:  make(map[string]ServiceHealth),
		Relays:    []relaypool.Instance{},
	}

	response.Services["mongodb"] = h.check(ctx, "MongoDB", h.cache)
	response.Services["s3"] = h.check(ctx, "S3", h.storage)
	response.Services["relays"] = h.relayHealth()
	if h.pool != nil {
		response.Relays = h.pool.Snapshot()
	}

	// The relay pool only degrades the service; a fallback always remains.
	overallHealthy := response.Services["mongodb"].Status != "unhealthy" &&
		response.Services["s3"].Status != "unhealthy"

	if !overallHealthy {
		response.Status = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	c.JSON(http.StatusOK, response)
}

// Readiness godoc
// @Summary Readiness check endpoint
// @Description Check if the service is ready to accept requests
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Success 503 {object} map[string]interface{}
// @Router /ready [get]
func (h *HealthHandler) Readiness(c *gin.Context) {
	ctx := c.Request.Context()

	ready := true
	checks := make(map[string]interface{})

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			ready = false
			checks["mongodb"] = map[string]interface{}{
				"ready": false,
				"error": err.Error(),
			}
		} else {
			checks["mongodb"] = map[string]interface{}{
				"ready": true,
			}
		}
	}

	response := map[string]interface{}{
		"ready":     ready,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}

	if ready {
		c.JSON(http.StatusOK, response)
	} else {
		c.JSON(http.StatusServiceUnavailable, response)
	}
}

// Liveness godoc
// @Summary Liveness check endpoint
// @Description Check if the service is alive
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /live [get]
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]interface{}{
		"alive":     true,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (h *HealthHandler) check(ctx context.Context, name string, dep Pinger) ServiceHealth {
	if dep == nil {
		return ServiceHealth{Status: "disabled"}
	}

	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := dep.Ping(checkCtx)
	responseTime := time.Since(start).String()

	if err != nil {
		utils.LogError(ctx, name+" health check failed", err)
		return ServiceHealth{
			Status:       "unhealthy",
			ResponseTime: responseTime,
			Error:        err.Error(),
		}
	}

	return ServiceHealth{
		Status:       "healthy",
		ResponseTime: responseTime,
	}
}

func (h *HealthHandler) relayHealth() ServiceHealth {
	if h.pool == nil {
		return ServiceHealth{Status: "disabled"}
	}
	instances := h.pool.Snapshot()
	if len(instances) == 0 {
		return ServiceHealth{Status: "disabled"}
	}
	healthy := lo.CountBy(instances, func(inst relaypool.Instance) bool {
		return inst.Health == relaypool.HealthHealthy
	})
	if healthy == 0 {
		return ServiceHealth{Status: "degraded", Error: "no healthy relay instances"}
	}
	return ServiceHealth{Status: "healthy"}
}
