package models

import "encoding/json"

// Platform identifiers reported on scrape results.
const (
	PlatformShopify     = "shopify"
	PlatformWooCommerce = "woocommerce"
	PlatformUniversal   = "universal"
)

// Image is a product or variant image.
type Image struct {
	Src string `json:"src,omitempty"`
	Alt string `json:"alt,omitempty"`
}

// NormalizedVariant is one purchasable row of a product.
//
// Price is always a non-negative decimal string; "0" when the upstream
// value could not be parsed.
type NormalizedVariant struct {
	ID                string          `json:"id,omitempty"`
	Title             string          `json:"title"`
	SKU               string          `json:"sku,omitempty"`
	Price             string          `json:"price"`
	CompareAtPrice    string          `json:"compare_at_price,omitempty"`
	Currency          string          `json:"currency,omitempty"`
	Available         *bool           `json:"available,omitempty"`
	InventoryQuantity *int            `json:"inventory_quantity,omitempty"`
	InventoryPolicy   string          `json:"inventory_policy,omitempty"`
	Options           []string        `json:"options,omitempty"`
	Image             *Image          `json:"image,omitempty"`
	ProductURL        string          `json:"product_url"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// NormalizedProduct is a platform-independent product. Variants is never
// empty.
type NormalizedProduct struct {
	ID          string              `json:"id,omitempty"`
	Title       string              `json:"title"`
	Handle      string              `json:"handle,omitempty"`
	Vendor      string              `json:"vendor,omitempty"`
	ProductType string              `json:"product_type,omitempty"`
	Description string              `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	ProductURL  string              `json:"product_url"`
	Images      []Image             `json:"images,omitempty"`
	Platform    string              `json:"platform"`
	SourceURL   string              `json:"source_url"`
	Variants    []NormalizedVariant `json:"variants"`
	Raw         json.RawMessage     `json:"raw,omitempty"`
}

// NormalizedScrapeResult is the outcome of one successful scrape.
type NormalizedScrapeResult struct {
	Products   []NormalizedProduct `json:"products"`
	Platform   string              `json:"platform"`
	SourceURL  string              `json:"source_url"`
	TotalCount int                 `json:"total_count"`
	Raw        json.RawMessage     `json:"raw,omitempty"`
}

// NewScrapeResult builds a result and keeps TotalCount in step with Products.
func NewScrapeResult(platform, sourceURL string, products []NormalizedProduct) *NormalizedScrapeResult {
	if products == nil {
		products = []NormalizedProduct{}
	}
	return &NormalizedScrapeResult{
		Products:   products,
		Platform:   platform,
		SourceURL:  sourceURL,
		TotalCount: len(products),
	}
}

// ScrapeProgress is emitted before every page fetch of a scrape.
type ScrapeProgress struct {
	Page    int    `json:"page,omitempty"`
	Count   int    `json:"count,omitempty"`
	Message string `json:"message,omitempty"`
}
