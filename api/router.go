package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/use-agent/shopscout/api/handler"
	"github.com/use-agent/shopscout/api/middleware"
	"github.com/use-agent/shopscout/config"
	"github.com/use-agent/shopscout/discovery"
	"github.com/use-agent/shopscout/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:   Recovery → Logger
//	Discover: RateLimit
//
// Health and metrics sit outside the rate limit so probes always work.
func NewRouter(svc *discovery.Service, cfg *config.Config, m *metrics.Metrics, info handler.HealthInfo, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if cfg.Server.Metrics && m != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	v1.GET("/health", handler.Health(svc, info, startTime))

	limited := v1.Group("")
	limited.Use(middleware.RateLimit(cfg.RateLimit))
	limited.POST("/discover", handler.Discover(svc))
	limited.GET("/discover", handler.Discover(svc))

	return r
}
