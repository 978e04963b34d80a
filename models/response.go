package models

import (
	"encoding/json"
	"time"
)

// ScrapeRunResponse is the response for POST /api/v1/scrapes/run.
type ScrapeRunResponse struct {
	// Success indicates whether the scrape completed without errors.
	Success bool `json:"success"`

	// URL is the storefront URL as requested.
	URL string `json:"url"`

	// Products is the normalized catalog.
	Products []NormalizedProduct `json:"products"`

	// TotalCount is len(Products).
	TotalCount int `json:"total_count"`

	// Platform is the strategy that recognised the store.
	Platform string `json:"platform,omitempty"`

	// Saved reports whether the run was written to the history log.
	Saved bool `json:"saved"`

	// ScrapeID is the history id of the saved run.
	ScrapeID int64 `json:"scrape_id,omitempty"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error, Reason and Attempts are populated only when Success is false.
	Error    *ErrorDetail        `json:"error,omitempty"`
	Reason   FailureReason       `json:"reason,omitempty"`
	Attempts []AttemptDiagnostic `json:"attempts,omitempty"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// ScrapeMs is the time spent probing and paginating the store.
	ScrapeMs int64 `json:"scrape_ms"`
}

// ScrapeRecordResponse is the response for GET /api/v1/scrapes/:id.
type ScrapeRecordResponse struct {
	ID        int64           `json:"id"`
	URL       string          `json:"url"`
	Platform  string          `json:"platform,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Products  json.RawMessage `json:"products"`

	// PreviousProducts holds the products of the preceding run of the same
	// URL, or null when this is the first run.
	PreviousProducts json.RawMessage `json:"previous_products"`
}

// MessageResponse acknowledges write operations on the history log.
type MessageResponse struct {
	Success  bool         `json:"success"`
	Message  string       `json:"message,omitempty"`
	ScrapeID int64        `json:"scrape_id,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`
}

// StrategyInfo describes a registered strategy.
type StrategyInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Uptime  string   `json:"uptime"`
	Runs    RunStats `json:"runs"`
	History string   `json:"history"`
	Version string   `json:"version"`
}

// RunStats reports scrape activity since start.
type RunStats struct {
	Active int   `json:"active"`
	Total  int64 `json:"total"`
	Failed int64 `json:"failed"`
}
