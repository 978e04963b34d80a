package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// runRequest mirrors the storefront API run request.
type runRequest struct {
	URL               string `json:"url"`
	DescriptionFormat string `json:"description_format,omitempty"`
	Save              *bool  `json:"save,omitempty"`
}

// runResponse mirrors the storefront API run response.
type runResponse struct {
	Success    bool   `json:"success"`
	URL        string `json:"url"`
	TotalCount int    `json:"total_count"`
	Platform   string `json:"platform"`
	Saved      bool   `json:"saved"`
	ScrapeID   int64  `json:"scrape_id"`
	Products   []struct {
		Title      string `json:"title"`
		ProductURL string `json:"product_url"`
		Variants   []struct {
			Title     string `json:"title"`
			Price     string `json:"price"`
			Available *bool  `json:"available"`
		} `json:"variants"`
	} `json:"products"`
	Reason   string `json:"reason"`
	Attempts []struct {
		Strategy string `json:"strategy"`
		Status   int    `json:"status"`
		Error    string `json:"error"`
	} `json:"attempts"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// sitesResponse mirrors the storefront API site list.
type sitesResponse struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
	Total      int `json:"total"`
	Sites      []struct {
		URL  string `json:"url"`
		Runs []struct {
			ID        int64     `json:"id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"runs"`
	} `json:"sites"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// maxListedProducts bounds how many products a tool result spells out.
const maxListedProducts = 25

func main() {
	apiURL := os.Getenv("STOREFRONT_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	// Empty when the API runs with auth disabled.
	apiKey := os.Getenv("STOREFRONT_API_KEY")

	s := server.NewMCPServer(
		"storefront",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scrapeTool := mcp.NewTool("scrape_storefront",
		mcp.WithDescription("Detect a store's e-commerce platform (Shopify or WooCommerce) and return its normalized product catalog with prices and availability."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The storefront URL, e.g. https://shop.example.com"),
		),
		mcp.WithString("description_format",
			mcp.Description("Product description format: 'html' (default), 'text', or 'markdown'"),
			mcp.Enum("html", "text", "markdown"),
		),
		mcp.WithBoolean("save",
			mcp.Description("Store the run in the scrape history (default: true)"),
		),
	)
	s.AddTool(scrapeTool, handleScrape(apiURL, apiKey))

	sitesTool := mcp.NewTool("list_scraped_sites",
		mcp.WithDescription("List storefronts that have been scraped before, most recent first, with their run ids."),
		mcp.WithString("query",
			mcp.Description("Only list sites whose URL contains this text"),
		),
		mcp.WithNumber("page",
			mcp.Description("Page number, starting at 1"),
		),
	)
	s.AddTool(sitesTool, handleListSites(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func apiDo(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

func handleScrape(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Minute}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		storeURL, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}

		payload := runRequest{
			URL:               storeURL,
			DescriptionFormat: request.GetString("description_format", ""),
		}
		if v, ok := request.GetArguments()["save"].(bool); ok {
			payload.Save = &v
		}

		respBody, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/scrapes/run", apiKey, payload)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp runResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if !resp.Success {
			return mcp.NewToolResultError(formatRunFailure(&resp)), nil
		}
		return mcp.NewToolResultText(formatRun(&resp)), nil
	}
}

func formatRunFailure(resp *runResponse) string {
	var sb strings.Builder
	sb.WriteString("scrape failed")
	if resp.Error != nil {
		sb.WriteString(fmt.Sprintf(": [%s] %s", resp.Error.Code, resp.Error.Message))
	}
	if resp.Reason != "" {
		sb.WriteString(fmt.Sprintf("\nReason: %s", resp.Reason))
	}
	for _, a := range resp.Attempts {
		sb.WriteString(fmt.Sprintf("\n- %s: status %d %s", a.Strategy, a.Status, a.Error))
	}
	return sb.String()
}

func formatRun(resp *runResponse) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Store: %s\nPlatform: %s\nProducts: %d\n", resp.URL, resp.Platform, resp.TotalCount))
	if resp.Saved {
		sb.WriteString(fmt.Sprintf("Saved as run %d\n", resp.ScrapeID))
	}
	sb.WriteString("\n")

	for i, p := range resp.Products {
		if i == maxListedProducts {
			sb.WriteString(fmt.Sprintf("... and %d more\n", len(resp.Products)-maxListedProducts))
			break
		}
		sb.WriteString(fmt.Sprintf("- %s (%s)\n", p.Title, p.ProductURL))
		for _, v := range p.Variants {
			stock := "unknown"
			if v.Available != nil {
				stock = strconv.FormatBool(*v.Available)
			}
			sb.WriteString(fmt.Sprintf("    %s: %s, available: %s\n", v.Title, v.Price, stock))
		}
	}
	return sb.String()
}

func handleListSites(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		q := url.Values{}
		if query := request.GetString("query", ""); query != "" {
			q.Set("query", query)
		}
		if page, ok := request.GetArguments()["page"].(float64); ok && page >= 1 {
			q.Set("page", strconv.Itoa(int(page)))
		}

		respBody, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/scrapes/sites?"+q.Encode(), apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var resp sitesResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		if resp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", resp.Error.Code, resp.Error.Message)), nil
		}

		var sb strings.Builder
		sb.WriteString(fmt.Sprintf("Sites: %d (page %d of %d)\n\n", resp.Total, resp.Page, resp.TotalPages))
		for _, site := range resp.Sites {
			sb.WriteString(fmt.Sprintf("- %s: %d runs", site.URL, len(site.Runs)))
			if len(site.Runs) > 0 {
				latest := site.Runs[0]
				sb.WriteString(fmt.Sprintf(", latest #%d at %s", latest.ID, latest.CreatedAt.Format(time.RFC3339)))
			}
			sb.WriteString("\n")
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}
