package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hvpham-yorku/group1-competitor-intelligence/api/middleware"
	"github.com/hvpham-yorku/group1-competitor-intelligence/history"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
)

var errHistoryDisabled = models.NewScrapeError(models.ErrCodeHistory, "history is disabled", nil)

// RequireStore answers 503 when no history store is configured.
func RequireStore(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if store == nil {
			respondError(c, errHistoryDisabled)
			c.Abort()
			return
		}
		c.Next()
	}
}

// historyError maps store failures: ErrNotFound to 404, anything else to 500.
func historyError(c *gin.Context, err error) {
	if errors.Is(err, history.ErrNotFound) {
		respondError(c, models.NewScrapeError(models.ErrCodeNotFound, "scrape not found", err))
		return
	}
	respondError(c, models.NewScrapeError(models.ErrCodeInternal, "history store failed", err))
}

func scrapeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid scrape id", err))
		return 0, false
	}
	return id, true
}

// SaveScrape returns a handler for POST /api/v1/scrapes.
func SaveScrape(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SaveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}
		if history.NormalizeURL(req.URL) == "" {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "Missing url", nil))
			return
		}

		products := req.Products
		if products == nil {
			products = []json.RawMessage{}
		}
		data, err := json.Marshal(products)
		if err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid products", err))
			return
		}

		id, err := store.Insert(c.Request.Context(), middleware.Owner(c), req.URL, req.Platform, data)
		if err != nil {
			historyError(c, err)
			return
		}
		c.JSON(http.StatusCreated, models.MessageResponse{Success: true, ScrapeID: id})
	}
}

// GetScrape returns a handler for GET /api/v1/scrapes/:id. The response
// carries the products of the preceding run of the same store for comparison.
func GetScrape(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := scrapeID(c)
		if !ok {
			return
		}
		owner := middleware.Owner(c)

		run, err := store.Get(c.Request.Context(), owner, id)
		if err != nil {
			historyError(c, err)
			return
		}

		resp := models.ScrapeRecordResponse{
			ID:        run.ID,
			URL:       run.URL,
			Platform:  run.Platform,
			CreatedAt: run.CreatedAt,
			Products:  run.Products,
		}
		prev, err := store.Previous(c.Request.Context(), owner, run.URL, run.ID)
		switch {
		case err == nil:
			resp.PreviousProducts = prev.Products
		case !errors.Is(err, history.ErrNotFound):
			historyError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// DeleteScrape returns a handler for DELETE /api/v1/scrapes/:id.
func DeleteScrape(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := scrapeID(c)
		if !ok {
			return
		}
		if err := store.Delete(c.Request.Context(), middleware.Owner(c), id); err != nil {
			historyError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.MessageResponse{Success: true, Message: "scrape deleted", ScrapeID: id})
	}
}

// ListSites returns a handler for GET /api/v1/scrapes/sites.
func ListSites(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SiteListRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, err.Error(), err))
			return
		}

		page, err := store.ListSites(c.Request.Context(), middleware.Owner(c), history.SiteQuery{
			Query:    req.Query,
			Page:     req.Page,
			PageSize: req.PageSize,
		})
		if err != nil {
			historyError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// DeleteSite returns a handler for DELETE /api/v1/scrapes/sites?url=.
func DeleteSite(store history.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		url := strings.TrimSpace(c.Query("url"))
		if history.NormalizeURL(url) == "" {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "Missing url", nil))
			return
		}

		n, err := store.DeleteByURL(c.Request.Context(), middleware.Owner(c), url)
		if err != nil {
			historyError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.MessageResponse{
			Success: true,
			Message: fmt.Sprintf("deleted %d runs", n),
		})
	}
}
