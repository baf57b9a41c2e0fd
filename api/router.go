package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/newswalk/api/handler"
	"github.com/use-agent/newswalk/api/middleware"
	"github.com/use-agent/newswalk/config"
	"github.com/use-agent/newswalk/jobs"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is outside auth so monitoring probes always work.
func NewRouter(q *jobs.Queue, runner *jobs.Runner, engineName string, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(engineName, q, runner, startTime))

	// Protected group: auth then rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Search jobs
	protected.POST("/search", handler.PostSearch(q))
	protected.GET("/search/:id", handler.GetSearch(q))

	return r
}
