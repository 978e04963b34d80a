// Package strategy implements the storefront platforms the engine can
// recognise: Shopify, WooCommerce and the Universal placeholder.
package strategy

import (
	"context"
	"net/http"
	"time"

	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/normalize"
)

// Defaults used when Options leaves a field at zero.
const (
	DefaultPageDelay       = 100 * time.Millisecond
	DefaultMaxPages        = 50
	DefaultShopifyPageSize = 250
	DefaultWooPageSize     = 100
)

// DescriptionFormatter renders product description HTML in a requested format.
type DescriptionFormatter interface {
	Description(html, format, sourceURL string) string
}

// Options tunes pagination for one strategy.
type Options struct {
	// PageDelay is the pause between successive page fetches. Zero disables it.
	PageDelay time.Duration

	// MaxPages caps pagination; reaching it logs a warning and stops. Values
	// above DefaultMaxPages are clamped to it.
	MaxPages int

	// PageSize is the number of products requested per page.
	PageSize int

	// Formatter renders descriptions. Nil keeps the upstream HTML.
	Formatter DescriptionFormatter
}

// DefaultOptions returns the production pagination settings.
func DefaultOptions() Options {
	return Options{PageDelay: DefaultPageDelay, MaxPages: DefaultMaxPages}
}

func (o Options) withDefaults(pageSize int) Options {
	if o.MaxPages <= 0 || o.MaxPages > DefaultMaxPages {
		o.MaxPages = DefaultMaxPages
	}
	if o.PageSize <= 0 {
		o.PageSize = pageSize
	}
	return o
}

func (o Options) describe(html, format, sourceURL string) string {
	if o.Formatter == nil {
		return html
	}
	return o.Formatter.Description(html, format, sourceURL)
}

// Defaults returns the production strategy list in probe order.
func Defaults(f engine.Fetcher, shopify, woo Options) []engine.Strategy {
	return []engine.Strategy{
		NewShopify(f, shopify),
		NewWooCommerce(f, woo),
		NewUniversal(),
	}
}

// probe issues the single match request shared by API-backed strategies.
func probe(ctx context.Context, f engine.Fetcher, endpoint string) engine.MatchResult {
	resp := f.Get(ctx, endpoint)
	if resp.OK {
		return engine.MatchResult{IsMatch: true, Status: resp.Status, Endpoint: endpoint, Data: normalize.Lazy(resp.Body)}
	}

	msg := resp.StatusText
	if resp.Status == http.StatusNotFound {
		msg = "Resource not found"
	}
	return engine.MatchResult{Status: resp.Status, Error: msg, Endpoint: endpoint}
}

// pause sleeps for delay between two page fetches, counted from the end of
// the previous fetch. It returns early with the context error on cancellation.
func pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
