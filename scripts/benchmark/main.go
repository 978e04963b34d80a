package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"
)

// CLI flags
var (
	apiURL = flag.String("api-url", "http://localhost:8080", "Storefront API base URL")
	apiKey = flag.String("api-key", "", "API key for authenticated requests")
	runs   = flag.Int("runs", 3, "Number of runs per store for averaging")
	stores = flag.String("stores", "", "Comma-separated store URLs, replacing the built-in list")
	output = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// Default stores covering each supported platform plus one that is neither.
var defaultStores = []struct {
	Label string
	URL   string
}{
	{"Shopify", "https://www.allbirds.com"},
	{"Shopify", "https://kith.com"},
	{"WooCommerce", "https://woocommerce.com/store"},
	{"Unsupported", "https://example.com"},
}

// --- Request / Response types (mirrors models package) ---

type runRequest struct {
	URL  string `json:"url"`
	Save bool   `json:"save"`
}

type runResponse struct {
	Success    bool         `json:"success"`
	TotalCount int          `json:"total_count"`
	Platform   string       `json:"platform"`
	Reason     string       `json:"reason"`
	Timing     timingInfo   `json:"timing"`
	Error      *errorDetail `json:"error,omitempty"`
}

type timingInfo struct {
	TotalMs  int64 `json:"total_ms"`
	ScrapeMs int64 `json:"scrape_ms"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Benchmark result types ---

type runResult struct {
	Run        int    `json:"run"`
	TotalMs    int64  `json:"total_ms"`
	ScrapeMs   int64  `json:"scrape_ms"`
	Products   int    `json:"products"`
	Platform   string `json:"platform"`
	HTTPStatus int    `json:"http_status"`
	Success    bool   `json:"success"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

type storeAverages struct {
	TotalMs  float64 `json:"total_ms"`
	ScrapeMs float64 `json:"scrape_ms"`
	Products float64 `json:"products"`
}

type storeResult struct {
	URL      string         `json:"url"`
	Label    string         `json:"label"`
	Runs     []runResult    `json:"runs"`
	Averages *storeAverages `json:"averages,omitempty"`
}

type benchmarkReport struct {
	Timestamp  string        `json:"timestamp"`
	APIURL     string        `json:"api_url"`
	RunsPerURL int           `json:"runs_per_url"`
	Results    []storeResult `json:"results"`
}

func main() {
	flag.Parse()

	fmt.Println("=== Storefront Benchmark Suite ===")
	fmt.Printf("API URL:   %s\n", *apiURL)
	fmt.Printf("Runs/URL:  %d\n", *runs)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	if err := checkAPI(*apiURL); err != nil {
		fmt.Fprintf(os.Stderr, "Error: cannot reach API at %s: %v\n", *apiURL, err)
		fmt.Fprintf(os.Stderr, "Make sure the storefront server is running\n")
		os.Exit(1)
	}

	targets := defaultStores
	if *stores != "" {
		targets = targets[:0:0]
		for _, u := range strings.Split(*stores, ",") {
			if u = strings.TrimSpace(u); u != "" {
				targets = append(targets, struct {
					Label string
					URL   string
				}{"Custom", u})
			}
		}
	}

	report := benchmarkReport{
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		APIURL:     *apiURL,
		RunsPerURL: *runs,
	}

	for _, t := range targets {
		fmt.Printf("Benchmarking [%s] %s ...\n", t.Label, t.URL)
		sr := storeResult{URL: t.URL, Label: t.Label}

		for i := 1; i <= *runs; i++ {
			fmt.Printf("  Run %d/%d ... ", i, *runs)
			rr := benchmarkStore(t.URL, i)
			if rr.Success {
				fmt.Printf("OK  %dms  %d products (%s)\n", rr.TotalMs, rr.Products, rr.Platform)
			} else {
				fmt.Printf("FAILED: %s %s\n", rr.Reason, rr.Error)
			}
			sr.Runs = append(sr.Runs, rr)
		}

		sr.Averages = computeAverages(sr.Runs)
		report.Results = append(report.Results, sr)
		fmt.Println()
	}

	printTable(report.Results)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func checkAPI(baseURL string) error {
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(baseURL + "/api/v1/health")
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health returned %d", resp.StatusCode)
	}
	return nil
}

func benchmarkStore(url string, run int) runResult {
	rr := runResult{Run: run}

	bodyBytes, err := json.Marshal(runRequest{URL: url, Save: false})
	if err != nil {
		rr.Error = fmt.Sprintf("marshal error: %v", err)
		return rr
	}

	req, err := http.NewRequest(http.MethodPost, *apiURL+"/api/v1/scrapes/run", bytes.NewReader(bodyBytes))
	if err != nil {
		rr.Error = fmt.Sprintf("request error: %v", err)
		return rr
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+*apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		rr.Error = fmt.Sprintf("request failed: %v", err)
		return rr
	}
	defer resp.Body.Close()
	rr.HTTPStatus = resp.StatusCode

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		rr.Error = fmt.Sprintf("decode error: %v", err)
		return rr
	}

	rr.Success = out.Success
	rr.TotalMs = out.Timing.TotalMs
	rr.ScrapeMs = out.Timing.ScrapeMs
	rr.Products = out.TotalCount
	rr.Platform = out.Platform
	rr.Reason = out.Reason
	if out.Error != nil {
		rr.Error = out.Error.Message
	}
	return rr
}

func computeAverages(runs []runResult) *storeAverages {
	var successCount int
	var avg storeAverages

	for _, r := range runs {
		if !r.Success {
			continue
		}
		successCount++
		avg.TotalMs += float64(r.TotalMs)
		avg.ScrapeMs += float64(r.ScrapeMs)
		avg.Products += float64(r.Products)
	}

	if successCount == 0 {
		return nil
	}

	n := float64(successCount)
	avg.TotalMs /= n
	avg.ScrapeMs /= n
	avg.Products /= n
	return &avg
}

func printTable(results []storeResult) {
	fmt.Println(strings.Repeat("─", 85))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Store\tPlatform\tAvg Latency\tProducts\tSuccess\n")
	fmt.Fprintf(w, "─────\t────────\t───────────\t────────\t───────\n")

	for _, r := range results {
		ok := successCount(r.Runs)
		if r.Averages == nil {
			fmt.Fprintf(w, "%s\t%s\tFAILED\t-\t0/%d\n", truncateURL(r.URL, 40), failureReason(r.Runs), len(r.Runs))
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%dms\t%s\t%d/%d\n",
			truncateURL(r.URL, 40),
			platformOf(r.Runs),
			int64(r.Averages.TotalMs),
			formatInt(int(r.Averages.Products)),
			ok, len(r.Runs),
		)
	}

	w.Flush()
	fmt.Println(strings.Repeat("─", 85))
}

func successCount(runs []runResult) int {
	n := 0
	for _, r := range runs {
		if r.Success {
			n++
		}
	}
	return n
}

func platformOf(runs []runResult) string {
	for _, r := range runs {
		if r.Success && r.Platform != "" {
			return r.Platform
		}
	}
	return "-"
}

// failureReason returns the most frequent failure reason across runs.
func failureReason(runs []runResult) string {
	counts := map[string]int{}
	for _, r := range runs {
		if !r.Success && r.Reason != "" {
			counts[r.Reason]++
		}
	}
	best, bestCount := "-", 0
	for reason, count := range counts {
		if count > bestCount {
			best = reason
			bestCount = count
		}
	}
	return best
}

func truncateURL(u string, max int) string {
	if len(u) <= max {
		return u
	}
	return u[:max-3] + "..."
}

func formatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var result []byte
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result = append(result, ',')
		}
		result = append(result, byte(c))
	}
	return string(result)
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
