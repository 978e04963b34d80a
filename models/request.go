package models

import "encoding/json"

// Description formats accepted by ScrapeRequest.DescriptionFormat.
const (
	DescriptionHTML     = "html"
	DescriptionText     = "text"
	DescriptionMarkdown = "markdown"
)

// ScrapeRequest is the payload for POST /api/v1/scrapes/run.
type ScrapeRequest struct {
	// URL is the storefront to scrape. A missing scheme defaults to https. Required.
	URL string `json:"url" binding:"required"`

	// Save stores the products in the history log.
	// Default: true.
	Save *bool `json:"save,omitempty"`

	// MaxAge serves a cached result younger than this many milliseconds.
	// Default: 0 (no caching).
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`

	// DescriptionFormat controls how product descriptions are rendered.
	// Allowed: "html", "text", "markdown". Default comes from configuration.
	DescriptionFormat string `json:"description_format,omitempty" binding:"omitempty,oneof=html text markdown"`

	// WebhookURL receives a signed scrape.completed or scrape.failed event.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults(descriptionFormat string) {
	if r.Save == nil {
		t := true
		r.Save = &t
	}
	if r.DescriptionFormat == "" {
		r.DescriptionFormat = descriptionFormat
	}
	if r.DescriptionFormat == "" {
		r.DescriptionFormat = DescriptionHTML
	}
}

// ShouldSave reports whether the run should be written to the history log.
func (r *ScrapeRequest) ShouldSave() bool {
	return r.Save == nil || *r.Save
}

// SaveRequest is the payload for POST /api/v1/scrapes.
type SaveRequest struct {
	URL      string            `json:"url"`
	Platform string            `json:"platform,omitempty"`
	Products []json.RawMessage `json:"products"`
}

// SiteListRequest holds the query parameters of GET /api/v1/scrapes/sites.
type SiteListRequest struct {
	Query    string `form:"query"`
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
}
