package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/scraper"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// History reports the configured driver, or "disabled" when runs are not stored.
func Health(sc *scraper.Scraper, historyDriver string) gin.HandlerFunc {
	if historyDriver == "" || historyDriver == "none" || sc.History() == nil {
		historyDriver = "disabled"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  "healthy",
			Uptime:  sc.Uptime().Round(time.Second).String(),
			Runs:    sc.Stats(),
			History: historyDriver,
			Version: Version,
		})
	}
}

// StrategyLister lists the registered strategies in probe order.
type StrategyLister interface {
	Strategies() []models.StrategyInfo
}

// Strategies returns a handler for GET /api/v1/strategies.
func Strategies(l StrategyLister) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"strategies": l.Strategies()})
	}
}
