package v1

import (
	"context"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/duynhne/codeyard/config"
	"github.com/duynhne/codeyard/internal/sandbox"
	"github.com/duynhne/codeyard/middleware"
)

// NewRouter builds the sandbox engine: middleware chain, probes, metrics and
// the API under /api. ready reports readiness; a nil ready is always ready.
// ctx bounds background work such as the rate limiter janitor.
func NewRouter(ctx context.Context, cfg *config.Config, svc *sandbox.Service, ready *atomic.Bool) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.Use(middleware.TracingMiddleware(cfg.Service.Name))
	r.Use(middleware.LoggingMiddleware())
	r.Use(middleware.PrometheusMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 503 once shutdown has started, so traffic drains before the server stops.
	r.GET("/ready", func(c *gin.Context) {
		if ready != nil && !ready.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(svc, CookieOptions{
		Name:   cfg.Sandbox.RefreshCookie,
		Path:   "/api/auth/",
		Secure: cfg.Service.Env == "production",
	})
	authLimit := middleware.RateLimit(ctx, cfg.Sandbox.AuthRateLimitRPS, cfg.Sandbox.AuthRateBurst)
	h.RegisterRoutes(r.Group("/api"), authLimit)

	return r
}
