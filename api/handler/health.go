package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/newswalk/jobs"
	"github.com/use-agent/newswalk/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// degradedDepth is the queue depth above which the service reports degraded.
const degradedDepth = 10

// Health returns a handler for GET /api/v1/health.
func Health(engineName string, q *jobs.Queue, r *jobs.Runner, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		depth := q.Depth()

		status := "healthy"
		if depth > degradedDepth {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			Engine:     engineName,
			QueueDepth: depth,
			Running:    r.Running(),
			Version:    Version,
		})
	}
}
