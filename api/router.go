package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/leadgrab/leadgrab/api/handler"
	"github.com/leadgrab/leadgrab/api/middleware"
	"github.com/leadgrab/leadgrab/cache"
	"github.com/leadgrab/leadgrab/config"
	"github.com/leadgrab/leadgrab/dispatch"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and the counter proxy sit outside auth: the counter is public
// read-only data and monitoring probes must always reach health.
func NewRouter(guard *dispatch.Guard, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	v1.GET("/health", handler.Health(startTime))
	v1.GET("/counter", handler.Counter(cfg.Counter, cc))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/dispatch", handler.Dispatch(guard))
	protected.GET("/results", handler.ListResults(cfg.Scraper.DataDir))
	protected.GET("/results/:name", handler.GetResult(cfg.Scraper.DataDir))

	return r
}
