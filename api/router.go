package api

import (
	"github.com/gin-gonic/gin"
	"github.com/hvpham-yorku/group1-competitor-intelligence/api/handler"
	"github.com/hvpham-yorku/group1-competitor-intelligence/api/middleware"
	"github.com/hvpham-yorku/group1-competitor-intelligence/config"
	"github.com/hvpham-yorku/group1-competitor-intelligence/metrics"
	"github.com/hvpham-yorku/group1-competitor-intelligence/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so monitoring probes always work.
// m may be nil, which leaves /metrics unregistered.
func NewRouter(sc *scraper.Scraper, strategies handler.StrategyLister, m *metrics.Metrics, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	if m != nil {
		r.GET("/metrics", gin.WrapH(m.Handler()))
	}

	v1 := r.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(sc, cfg.History.Driver))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.GET("/strategies", handler.Strategies(strategies))

	// Runs
	protected.POST("/scrapes/run", handler.RunScrape(sc))
	protected.GET("/scrapes/run/stream", handler.StreamScrape(sc))

	// History
	store := sc.History()
	hist := protected.Group("/scrapes")
	hist.Use(handler.RequireStore(store))
	hist.POST("", handler.SaveScrape(store))
	hist.GET("/sites", handler.ListSites(store))
	hist.DELETE("/sites", handler.DeleteSite(store))
	hist.GET("/:id", handler.GetScrape(store))
	hist.DELETE("/:id", handler.DeleteScrape(store))

	return r
}
