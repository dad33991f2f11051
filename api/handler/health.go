package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/shopscout/discovery"
	"github.com/use-agent/shopscout/models"
)

// Version is reported by the health endpoint.
const Version = "0.3.0"

// HealthInfo describes the static parts of the deployment.
type HealthInfo struct {
	SearchConfigured bool
	AIProvider       string
}

// Health returns a handler for GET /api/v1/health.
//
// Status is degraded when no search provider is configured, since every
// session would then finish with zero sites.
func Health(svc *discovery.Service, info HealthInfo, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := "healthy"
		search := "configured"
		if !info.SearchConfigured {
			status = "degraded"
			search = "missing credentials"
		}
		ai := info.AIProvider
		if ai == "" {
			ai = "none"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:         status,
			Uptime:         time.Since(startTime).Round(time.Second).String(),
			Version:        Version,
			ActiveSessions: svc.ActiveSessions(),
			Search:         search,
			AI:             ai,
			Stats:          svc.Stats(),
		})
	}
}
