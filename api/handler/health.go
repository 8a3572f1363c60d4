package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/harvest/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// BrowserStatser reports renderer utilisation.
type BrowserStatser interface {
	Stats() models.BrowserStats
}

// Health returns a handler for GET /api/v1/health.
//
// Reports browser utilisation and degrades status when > 80% of render slots
// are active.
func Health(r BrowserStatser, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := r.Stats()

		status := "healthy"
		if stats.MaxRenders > 0 && stats.ActiveRenders > int(float64(stats.MaxRenders)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Browser: stats,
			Version: Version,
		})
	}
}
