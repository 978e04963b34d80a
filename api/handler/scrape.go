package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hvpham-yorku/group1-competitor-intelligence/api/middleware"
	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/scraper"
)

// RunScrape returns a handler for POST /api/v1/scrapes/run.
func RunScrape(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScrapeRunResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Run ──────────────────────────────────────────────────
		out, err := sc.Run(c.Request.Context(), middleware.Owner(c), req, nil)
		if err != nil {
			respondRunError(c, req.URL, err, models.TimingInfo{
				TotalMs: time.Since(totalStart).Milliseconds(),
			})
			return
		}

		// ── 3. Respond ──────────────────────────────────────────────
		c.JSON(http.StatusOK, models.ScrapeRunResponse{
			Success:     true,
			URL:         out.Result.SourceURL,
			Products:    out.Result.Products,
			TotalCount:  out.Result.TotalCount,
			Platform:    out.Result.Platform,
			Saved:       out.Saved,
			ScrapeID:    out.ScrapeID,
			CacheStatus: out.CacheStatus,
			Timing: models.TimingInfo{
				TotalMs:  time.Since(totalStart).Milliseconds(),
				ScrapeMs: out.ScrapeTime.Milliseconds(),
			},
		})
	}
}

// StreamScrape returns a handler for GET /api/v1/scrapes/run/stream.
//
// Emits server-sent events: start, progress (once per page), then exactly
// one of done or error. Invalid query parameters, including a missing url,
// answer 400 JSON before the stream starts.
func StreamScrape(sc *scraper.Scraper) gin.HandlerFunc {
	return func(c *gin.Context) {
		req := models.ScrapeRequest{
			URL:               c.Query("url"),
			DescriptionFormat: c.Query("description_format"),
		}
		if v := c.Query("save"); v != "" {
			save, err := strconv.ParseBool(v)
			if err != nil {
				respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "save must be a boolean", err))
				return
			}
			req.Save = &save
		}
		if !validDescriptionFormat(req.DescriptionFormat) {
			respondError(c, models.NewScrapeError(models.ErrCodeInvalidInput, "description_format must be html, text or markdown", nil))
			return
		}
		if _, err := engine.NewRequest(req.URL, req.DescriptionFormat); err != nil {
			respondError(c, err)
			return
		}

		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		send := func(event string, data interface{}) {
			c.SSEvent(event, data)
			c.Writer.Flush()
		}

		send("start", gin.H{"message": "Scrape started", "url": req.URL})

		out, err := sc.Run(c.Request.Context(), middleware.Owner(c), req, func(p models.ScrapeProgress) {
			send("progress", p)
		})
		if err != nil {
			payload := gin.H{
				"message": errorMessage(err),
				"reason":  scraper.FailureReason(err),
			}
			var execErr *engine.ExecutionError
			if errors.As(err, &execErr) {
				payload["attempts"] = execErr.Attempts
			}
			send("error", payload)
			return
		}

		send("done", gin.H{
			"url":         out.Result.SourceURL,
			"products":    out.Result.Products,
			"total_count": out.Result.TotalCount,
			"platform":    out.Result.Platform,
			"saved":       out.Saved,
			"scrape_id":   out.ScrapeID,
		})
	}
}

func validDescriptionFormat(f string) bool {
	switch f {
	case "", models.DescriptionHTML, models.DescriptionText, models.DescriptionMarkdown:
		return true
	}
	return false
}

// respondRunError writes a failed run, including the classified reason and
// the per-strategy attempts when no strategy matched.
func respondRunError(c *gin.Context, url string, err error, timing models.TimingInfo) {
	scrapeErr := toScrapeError(err)
	resp := models.ScrapeRunResponse{
		Success:  false,
		URL:      url,
		Products: []models.NormalizedProduct{},
		Error:    scrapeErr.ToDetail(),
		Timing:   timing,
	}
	var execErr *engine.ExecutionError
	if errors.As(err, &execErr) {
		resp.Reason = execErr.Reason
		resp.Attempts = execErr.Attempts
	} else if scrapeErr.Code != models.ErrCodeInvalidInput {
		resp.Reason = models.ReasonUnknown
	}
	c.JSON(mapErrorToStatus(scrapeErr), resp)
}

// respondError maps an error to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	scrapeErr := toScrapeError(err)
	c.JSON(mapErrorToStatus(scrapeErr), models.MessageResponse{
		Success: false,
		Error:   scrapeErr.ToDetail(),
	})
}

func toScrapeError(err error) *models.ScrapeError {
	var scrapeErr *models.ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr
	}
	var execErr *engine.ExecutionError
	if errors.As(err, &execErr) {
		return models.NewScrapeError(models.CodeForReason(execErr.Reason), execErr.Message, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewScrapeError(models.ErrCodeTimeout, "scrape timed out", err)
	}
	return models.NewScrapeError(models.ErrCodeScrape, err.Error(), err)
}

func errorMessage(err error) string {
	var scrapeErr *models.ScrapeError
	if errors.As(err, &scrapeErr) {
		return scrapeErr.Message
	}
	return err.Error()
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeUnsupportedStore:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited, models.ErrCodeStoreBlocked:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeScrape, models.ErrCodeStoreUnreachable:
		return http.StatusBadGateway // 502
	case models.ErrCodeHistory:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
