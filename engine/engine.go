package engine

import (
	"context"
	"net/url"
	"strings"

	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/ysmood/gson"
)

// Strategy is a platform-specific probe-and-extract unit.
//
// Implementations must be stateless: a single instance is shared by every
// concurrent Execute call.
type Strategy interface {
	// Name returns the strategy identifier (e.g. "Shopify").
	Name() string

	// Description is a one-line summary for listings.
	Description() string

	// Match probes the store with a single request. Ordinary HTTP failures
	// are reported through MatchResult, never as an error.
	Match(ctx context.Context, storeURL string) (MatchResult, error)

	// Scrape paginates the platform's product API and returns the
	// normalized catalog. onProgress may be nil.
	Scrape(ctx context.Context, req Request, onProgress ProgressFunc) (*models.NormalizedScrapeResult, error)
}

// MatchResult is the outcome of one strategy probe.
type MatchResult struct {
	IsMatch bool

	// Data holds the probe body, decoded on first read. A body that is not
	// JSON reads as null.
	Data gson.JSON

	// Error, Status and Endpoint describe a failed probe.
	Error    string
	Status   int
	Endpoint string
}

// ProgressFunc receives progress updates synchronously, before each page fetch.
type ProgressFunc func(models.ScrapeProgress)

// Emit calls f when it is non-nil.
func (f ProgressFunc) Emit(p models.ScrapeProgress) {
	if f != nil {
		f(p)
	}
}

// Request is a normalized scrape request. Build it with NewRequest.
type Request struct {
	// URL is absolute and has no trailing slash.
	URL string

	// DescriptionFormat is "html", "text" or "markdown".
	DescriptionFormat string
}

// NewRequest normalizes a raw storefront URL: surrounding space and trailing
// slashes are removed and https:// is prepended when no scheme is present.
func NewRequest(rawURL, descriptionFormat string) (Request, error) {
	u := strings.TrimSpace(rawURL)
	if u == "" {
		return Request{}, models.NewScrapeError(models.ErrCodeInvalidInput, "url is required", nil)
	}
	if !strings.Contains(u, "://") {
		u = "https://" + u
	}
	u = strings.TrimRight(u, "/")

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return Request{}, models.NewScrapeError(models.ErrCodeInvalidInput, "invalid store url: "+rawURL, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Request{}, models.NewScrapeError(models.ErrCodeInvalidInput, "unsupported url scheme: "+parsed.Scheme, nil)
	}

	if descriptionFormat == "" {
		descriptionFormat = models.DescriptionHTML
	}
	return Request{URL: u, DescriptionFormat: descriptionFormat}, nil
}
