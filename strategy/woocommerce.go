package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/normalize"
	"github.com/ysmood/gson"
)

const (
	wooStoreAPIPath     = "/wp-json/wc/store/v1/products"
	wooDefaultMinorUnit = 2
)

// WooCommerce reads the unauthenticated WooCommerce Store API.
type WooCommerce struct {
	fetcher engine.Fetcher
	opts    Options
}

// NewWooCommerce creates the WooCommerce strategy.
func NewWooCommerce(f engine.Fetcher, opts Options) *WooCommerce {
	return &WooCommerce{fetcher: f, opts: opts.withDefaults(DefaultWooPageSize)}
}

func (w *WooCommerce) Name() string { return "WooCommerce" }

func (w *WooCommerce) Description() string {
	return "Extracts data from WooCommerce stores via the public Store API"
}

func (w *WooCommerce) Match(ctx context.Context, storeURL string) (engine.MatchResult, error) {
	return probe(ctx, w.fetcher, storeURL+wooStoreAPIPath), nil
}

// Scrape pages through the Store API. The X-WP-TotalPages header bounds
// pagination when present; an empty page or the page cap also stop it.
func (w *WooCommerce) Scrape(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) (*models.NormalizedScrapeResult, error) {
	products := make([]models.NormalizedProduct, 0)
	totalPages := 0

	for page := 1; ; page++ {
		if totalPages > 0 && page > totalPages {
			break
		}
		if page > w.opts.MaxPages {
			slog.Warn("woocommerce: page cap reached, stopping",
				"url", req.URL,
				"max_pages", w.opts.MaxPages,
				"total_pages", totalPages,
				"products", len(products),
			)
			break
		}
		if page > 1 {
			if err := pause(ctx, w.opts.PageDelay); err != nil {
				return nil, err
			}
		}

		msg := fmt.Sprintf("Fetching WooCommerce products page %d", page)
		if totalPages > 0 {
			msg = fmt.Sprintf("Fetching WooCommerce products page %d of %d", page, totalPages)
		}
		onProgress.Emit(models.ScrapeProgress{Page: page, Count: len(products), Message: msg})

		endpoint := fmt.Sprintf("%s%s?page=%d&per_page=%d", req.URL, wooStoreAPIPath, page, w.opts.PageSize)
		resp := w.fetcher.Get(ctx, endpoint)
		if !resp.OK {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if page == 1 {
				return nil, fmt.Errorf("woocommerce: fetch page 1: %d %s", resp.Status, resp.StatusText)
			}
			slog.Warn("woocommerce: page fetch failed, keeping partial catalog",
				"url", req.URL,
				"page", page,
				"status", resp.Status,
				"products", len(products),
			)
			break
		}

		if n, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("X-WP-TotalPages"))); err == nil && n > 0 {
			totalPages = n
		}

		doc, err := normalize.Parse(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("woocommerce: decode page %d: %w", page, err)
		}
		items := normalize.AsRecordArray(doc)
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			products = append(products, w.normalizeProduct(req, item))
		}
	}

	return models.NewScrapeResult(models.PlatformWooCommerce, req.URL, products), nil
}

// normalizeProduct maps a Store API product. The Store API lists variable
// products as a single row, so each product yields exactly one variant.
func (w *WooCommerce) normalizeProduct(req engine.Request, item gson.JSON) models.NormalizedProduct {
	id := normalize.AsID(normalize.Field(item, "id"))
	title := normalize.AsString(normalize.Field(item, "name"), "")
	slug := normalize.AsString(normalize.Field(item, "slug"), "")

	productURL := normalize.AsString(normalize.Field(item, "permalink"), "")
	if productURL == "" {
		productURL = req.URL + "/product/" + slug
	}

	images := make([]models.Image, 0)
	for _, img := range normalize.AsRecordArray(normalize.Field(item, "images")) {
		images = append(images, models.Image{
			Src: normalize.AsString(normalize.Field(img, "src"), ""),
			Alt: normalize.AsString(normalize.Field(img, "alt"), ""),
		})
	}
	var primary *models.Image
	if len(images) > 0 && images[0].Src != "" {
		img := images[0]
		primary = &img
	}

	var productType string
	if categories := normalize.StringList(normalize.Field(item, "categories")); len(categories) > 0 {
		productType = categories[0]
	}

	description := normalize.AsString(normalize.Field(item, "description"), "")
	if strings.TrimSpace(description) == "" {
		description = normalize.AsString(normalize.Field(item, "short_description"), "")
	}

	prices := normalize.AsRecord(normalize.Field(item, "prices"))
	minorUnit := wooDefaultMinorUnit
	if n, ok := normalize.AsInt(normalize.Field(prices, "currency_minor_unit")); ok && n >= 0 {
		minorUnit = n
	}
	price, ok := normalize.MinorUnitPrice(normalize.Field(prices, "price"), minorUnit)
	if !ok {
		price = normalize.ZeroPrice
	}

	variant := models.NormalizedVariant{
		ID:         id,
		Title:      title,
		SKU:        normalize.AsString(normalize.Field(item, "sku"), ""),
		Price:      price,
		Currency:   normalize.AsString(normalize.Field(prices, "currency_code"), ""),
		Image:      primary,
		ProductURL: productURL,
		Raw:        normalize.Raw(prices),
	}
	if regular, ok := normalize.MinorUnitPrice(normalize.Field(prices, "regular_price"), minorUnit); ok && regular != price {
		variant.CompareAtPrice = regular
	}
	if inStock, ok := normalize.AsBoolean(normalize.Field(item, "is_in_stock")); ok {
		variant.Available = &inStock
	}
	if remaining, ok := normalize.AsInt(normalize.Field(item, "low_stock_remaining")); ok {
		variant.InventoryQuantity = &remaining
	}

	return models.NormalizedProduct{
		ID:          id,
		Title:       title,
		Handle:      slug,
		ProductType: productType,
		Description: w.opts.describe(description, req.DescriptionFormat, req.URL),
		Tags:        normalize.StringList(normalize.Field(item, "tags")),
		ProductURL:  productURL,
		Images:      images,
		Platform:    models.PlatformWooCommerce,
		SourceURL:   req.URL,
		Variants:    []models.NormalizedVariant{variant},
		Raw:         normalize.Raw(item),
	}
}
