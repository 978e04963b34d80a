package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/normalize"
	"github.com/ysmood/gson"
)

// shopifyProbeLimit is fixed so the probe endpoint does not depend on PageSize.
const shopifyProbeLimit = 250

// Shopify reads the public /products.json endpoint every Shopify store serves.
type Shopify struct {
	fetcher engine.Fetcher
	opts    Options
}

// NewShopify creates the Shopify strategy.
func NewShopify(f engine.Fetcher, opts Options) *Shopify {
	return &Shopify{fetcher: f, opts: opts.withDefaults(DefaultShopifyPageSize)}
}

func (s *Shopify) Name() string { return "Shopify" }

func (s *Shopify) Description() string {
	return "Extracts data from Shopify stores using the products.json endpoint"
}

func (s *Shopify) Match(ctx context.Context, storeURL string) (engine.MatchResult, error) {
	endpoint := fmt.Sprintf("%s/products.json?limit=%d", storeURL, shopifyProbeLimit)
	return probe(ctx, s.fetcher, endpoint), nil
}

// Scrape pages through products.json until a page comes back empty or the
// page cap is reached. A failed first page is an error; a failed later page
// ends pagination with the products gathered so far.
func (s *Shopify) Scrape(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) (*models.NormalizedScrapeResult, error) {
	products := make([]models.NormalizedProduct, 0)

	for page := 1; ; page++ {
		if page > s.opts.MaxPages {
			slog.Warn("shopify: page cap reached, stopping",
				"url", req.URL,
				"max_pages", s.opts.MaxPages,
				"products", len(products),
			)
			break
		}
		if page > 1 {
			if err := pause(ctx, s.opts.PageDelay); err != nil {
				return nil, err
			}
		}

		onProgress.Emit(models.ScrapeProgress{
			Page:    page,
			Count:   len(products),
			Message: fmt.Sprintf("Fetching Shopify products page %d", page),
		})

		endpoint := fmt.Sprintf("%s/products.json?page=%d&limit=%d", req.URL, page, s.opts.PageSize)
		resp := s.fetcher.Get(ctx, endpoint)
		if !resp.OK {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if page == 1 {
				return nil, fmt.Errorf("shopify: fetch page 1: %d %s", resp.Status, resp.StatusText)
			}
			slog.Warn("shopify: page fetch failed, keeping partial catalog",
				"url", req.URL,
				"page", page,
				"status", resp.Status,
				"products", len(products),
			)
			break
		}

		doc, err := normalize.Parse(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("shopify: decode page %d: %w", page, err)
		}
		items := normalize.AsRecordArray(normalize.Field(doc, "products"))
		if len(items) == 0 {
			break
		}
		for _, item := range items {
			products = append(products, s.normalizeProduct(req, item))
		}
	}

	return models.NewScrapeResult(models.PlatformShopify, req.URL, products), nil
}

func (s *Shopify) normalizeProduct(req engine.Request, item gson.JSON) models.NormalizedProduct {
	title := normalize.AsString(normalize.Field(item, "title"), "")
	handle := normalize.AsString(normalize.Field(item, "handle"), "")

	productURL := req.URL
	if handle != "" {
		productURL = req.URL + "/products/" + handle
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

	p := models.NormalizedProduct{
		ID:          normalize.AsID(normalize.Field(item, "id")),
		Title:       title,
		Handle:      handle,
		Vendor:      normalize.AsString(normalize.Field(item, "vendor"), ""),
		ProductType: normalize.AsString(normalize.Field(item, "product_type"), ""),
		Description: s.opts.describe(normalize.AsString(normalize.Field(item, "body_html"), ""), req.DescriptionFormat, req.URL),
		Tags:        normalize.StringList(normalize.Field(item, "tags")),
		ProductURL:  productURL,
		Images:      images,
		Platform:    models.PlatformShopify,
		SourceURL:   req.URL,
		Raw:         normalize.Raw(item),
	}

	for _, v := range normalize.AsRecordArray(normalize.Field(item, "variants")) {
		p.Variants = append(p.Variants, normalizeShopifyVariant(v, title, productURL, primary))
	}
	if len(p.Variants) == 0 {
		p.Variants = []models.NormalizedVariant{{
			ID:         p.ID,
			Title:      title,
			Price:      normalize.ZeroPrice,
			Image:      primary,
			ProductURL: productURL,
		}}
	}
	return p
}

func normalizeShopifyVariant(v gson.JSON, productTitle, productURL string, image *models.Image) models.NormalizedVariant {
	policy := normalize.AsString(normalize.Field(v, "inventory_policy"), "")
	qty, hasQty := normalize.AsInt(normalize.Field(v, "inventory_quantity"))

	available, ok := normalize.AsBoolean(normalize.Field(v, "available"))
	if !ok {
		available = (hasQty && qty > 0) || policy == "continue"
	}

	var options []string
	for _, key := range []string{"option1", "option2", "option3"} {
		if opt := strings.TrimSpace(normalize.AsString(normalize.Field(v, key), "")); opt != "" {
			options = append(options, opt)
		}
	}

	variant := models.NormalizedVariant{
		ID:              normalize.AsID(normalize.Field(v, "id")),
		Title:           normalize.AsString(normalize.Field(v, "title"), productTitle),
		SKU:             normalize.AsString(normalize.Field(v, "sku"), ""),
		Price:           normalize.Price(normalize.Field(v, "price")),
		Available:       &available,
		InventoryPolicy: policy,
		Options:         options,
		Image:           image,
		ProductURL:      productURL,
		Raw:             normalize.Raw(v),
	}
	if compare, ok := normalize.OptionalPrice(normalize.Field(v, "compare_at_price")); ok {
		variant.CompareAtPrice = compare
	}
	if hasQty {
		variant.InventoryQuantity = &qty
	}
	return variant
}
