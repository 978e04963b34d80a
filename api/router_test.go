package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/hvpham-yorku/group1-competitor-intelligence/api/middleware"
	"github.com/hvpham-yorku/group1-competitor-intelligence/config"
	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/history"
	"github.com/hvpham-yorku/group1-competitor-intelligence/metrics"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-key"

type stubEngine struct {
	err   error
	calls atomic.Int32
}

func (s *stubEngine) Execute(_ context.Context, req engine.Request, onProgress engine.ProgressFunc) (*models.NormalizedScrapeResult, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	onProgress.Emit(models.ScrapeProgress{Page: 1, Count: 0, Message: "Fetching Shopify products page 1"})
	onProgress.Emit(models.ScrapeProgress{Page: 2, Count: 1, Message: "Fetching Shopify products page 2"})
	return models.NewScrapeResult(models.PlatformShopify, req.URL, []models.NormalizedProduct{
		{ID: "1", Title: "Shirt", Platform: models.PlatformShopify, SourceURL: req.URL},
	}), nil
}

func (s *stubEngine) Strategies() []models.StrategyInfo {
	return []models.StrategyInfo{{Name: "Shopify"}, {Name: "WooCommerce"}, {Name: "Universal"}}
}

type testServer struct {
	handler http.Handler
	store   history.Store
}

func newTestServer(t *testing.T, eng *stubEngine, withHistory bool) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.Mode = "test"
	cfg.Auth.APIKeys = []string{testKey}
	cfg.RateLimit.RequestsPerSecond = 1000
	cfg.RateLimit.Burst = 1000

	var store history.Store
	if withHistory {
		s, err := history.OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		store = s
	} else {
		cfg.History.Driver = "none"
	}

	sc := scraper.New(scraper.Options{Engine: eng, History: store})
	return &testServer{
		handler: NewRouter(sc, eng, metrics.New(), cfg),
		store:   store,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", testKey)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth_NoAuth(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.HealthResponse
	decode(t, rec, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "sqlite", resp.History)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storefront_scrapes_in_flight")
}

func TestAuth(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil)
	req.Header.Set("Authorization", "Bearer "+testKey)
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Strategies []models.StrategyInfo `json:"strategies"`
	}
	decode(t, rec, &resp)
	require.Len(t, resp.Strategies, 3)
	assert.Equal(t, "Shopify", resp.Strategies[0].Name)
}

func TestRunScrape(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "shop.test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp models.ScrapeRunResponse
	decode(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "https://shop.test", resp.URL)
	assert.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, models.PlatformShopify, resp.Platform)
	assert.True(t, resp.Saved)
	assert.NotZero(t, resp.ScrapeID)

	run, err := ts.store.Get(context.Background(), middleware.OwnerID(testKey), resp.ScrapeID)
	require.NoError(t, err)
	assert.Equal(t, "shop.test", run.URL)
}

func TestRunScrape_Validation(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "shop.test", "description_format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "ftp://shop.test"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunScrape_ClassifiedFailures(t *testing.T) {
	tests := []struct {
		reason models.FailureReason
		status int
		code   string
	}{
		{models.ReasonBlocked, http.StatusTooManyRequests, models.ErrCodeStoreBlocked},
		{models.ReasonUnreachable, http.StatusBadGateway, models.ErrCodeStoreUnreachable},
		{models.ReasonUnsupported, http.StatusUnprocessableEntity, models.ErrCodeUnsupportedStore},
	}
	for _, tt := range tests {
		t.Run(string(tt.reason), func(t *testing.T) {
			eng := &stubEngine{err: &engine.ExecutionError{
				Reason:   tt.reason,
				Message:  "classified",
				Attempts: []models.AttemptDiagnostic{{Strategy: "Shopify", Status: 403}},
			}}
			ts := newTestServer(t, eng, true)

			rec := ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "shop.test"})
			require.Equal(t, tt.status, rec.Code)

			var resp models.ScrapeRunResponse
			decode(t, rec, &resp)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.reason, resp.Reason)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.Len(t, resp.Attempts, 1)
		})
	}
}

func TestRunScrape_UnclassifiedFailure(t *testing.T) {
	ts := newTestServer(t, &stubEngine{err: fmt.Errorf("shopify: fetch page 1: 500 Internal Server Error")}, true)

	rec := ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "shop.test"})
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp models.ScrapeRunResponse
	decode(t, rec, &resp)
	assert.Equal(t, models.ReasonUnknown, resp.Reason)
	assert.Equal(t, models.ErrCodeScrape, resp.Error.Code)
}

// sseEvents splits an event stream into (event, data) pairs.
func sseEvents(body string) [][2]string {
	var out [][2]string
	for _, block := range strings.Split(body, "\n\n") {
		var name, data string
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		if name != "" {
			out = append(out, [2]string{name, data})
		}
	}
	return out
}

func TestStreamScrape(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	rec := ts.do(t, http.MethodGet, "/api/v1/scrapes/run/stream?url=shop.test&save=false", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	evs := sseEvents(rec.Body.String())
	require.Len(t, evs, 4)
	assert.Equal(t, "start", evs[0][0])
	assert.Contains(t, evs[0][1], "Scrape started")
	assert.Equal(t, "progress", evs[1][0])
	assert.Equal(t, "progress", evs[2][0])
	assert.Equal(t, "done", evs[3][0])

	var done struct {
		URL        string `json:"url"`
		TotalCount int    `json:"total_count"`
		Platform   string `json:"platform"`
		Saved      bool   `json:"saved"`
	}
	require.NoError(t, json.Unmarshal([]byte(evs[3][1]), &done))
	assert.Equal(t, "https://shop.test", done.URL)
	assert.Equal(t, 1, done.TotalCount)
	assert.Equal(t, models.PlatformShopify, done.Platform)
	assert.False(t, done.Saved)
}

func TestStreamScrape_Error(t *testing.T) {
	eng := &stubEngine{err: &engine.ExecutionError{
		Reason:  models.ReasonUnsupported,
		Message: engine.MessageUnsupported,
	}}
	ts := newTestServer(t, eng, true)

	rec := ts.do(t, http.MethodGet, "/api/v1/scrapes/run/stream?url=shop.test", nil)
	evs := sseEvents(rec.Body.String())
	require.Len(t, evs, 2)
	assert.Equal(t, "error", evs[1][0])

	var payload struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal([]byte(evs[1][1]), &payload))
	assert.Equal(t, "unsupported", payload.Reason)
	assert.Equal(t, engine.MessageUnsupported, payload.Message)
}

func TestStreamScrape_BadSave(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)
	rec := ts.do(t, http.MethodGet, "/api/v1/scrapes/run/stream?url=shop.test&save=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStreamScrape_InvalidURLRejectedBeforeStream(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"missing", ""},
		{"blank", "?url=%20%20"},
		{"bad scheme", "?url=ftp://shop.test"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &stubEngine{}
			ts := newTestServer(t, eng, true)

			rec := ts.do(t, http.MethodGet, "/api/v1/scrapes/run/stream"+tt.query, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotContains(t, rec.Header().Get("Content-Type"), "text/event-stream")
			assert.Empty(t, sseEvents(rec.Body.String()))

			var body models.MessageResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			require.NotNil(t, body.Error)
			assert.Equal(t, models.ErrCodeInvalidInput, body.Error.Code)
			assert.Zero(t, eng.calls.Load())
		})
	}
}

func TestHistoryRoutes(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, true)

	// Manual save.
	rec := ts.do(t, http.MethodPost, "/api/v1/scrapes", map[string]interface{}{"url": "", "products": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing url")

	rec = ts.do(t, http.MethodPost, "/api/v1/scrapes", map[string]interface{}{
		"url":      "https://shop.test/",
		"products": []map[string]string{{"id": "old"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var first models.MessageResponse
	decode(t, rec, &first)

	// A run of the same store.
	rec = ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "shop.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	var run models.ScrapeRunResponse
	decode(t, rec, &run)

	// Get compares against the previous run.
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/scrapes/%d", run.ScrapeID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var record models.ScrapeRecordResponse
	decode(t, rec, &record)
	assert.Equal(t, "shop.test", record.URL)
	assert.JSONEq(t, `[{"id":"old"}]`, string(record.PreviousProducts))

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/scrapes/%d", first.ScrapeID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"previous_products":null`)

	// Sites.
	rec = ts.do(t, http.MethodGet, "/api/v1/scrapes/sites?query=shop&page=1&page_size=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page history.SitePage
	decode(t, rec, &page)
	assert.Equal(t, 1, page.Total)
	require.Len(t, page.Sites, 1)
	assert.Len(t, page.Sites[0].Runs, 2)
	assert.Equal(t, run.ScrapeID, page.Sites[0].LatestRun.ID)

	// Delete one, then the rest.
	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/scrapes/%d", first.ScrapeID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/v1/scrapes/%d", first.ScrapeID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/v1/scrapes/sites", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodDelete, "/api/v1/scrapes/sites?url=https://SHOP.test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "deleted 1 runs")

	rec = ts.do(t, http.MethodGet, "/api/v1/scrapes/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryDisabled(t *testing.T) {
	ts := newTestServer(t, &stubEngine{}, false)

	rec := ts.do(t, http.MethodGet, "/api/v1/scrapes/sites", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), models.ErrCodeHistory)

	rec = ts.do(t, http.MethodPost, "/api/v1/scrapes/run", map[string]interface{}{"url": "shop.test"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ScrapeRunResponse
	decode(t, rec, &resp)
	assert.False(t, resp.Saved)
}

func TestRateLimit(t *testing.T) {
	cfg := config.Defaults()
	cfg.Server.Mode = "test"
	cfg.Auth.Enabled = false
	cfg.RateLimit.RequestsPerSecond = 0.001
	cfg.RateLimit.Burst = 1
	eng := &stubEngine{}
	h := NewRouter(scraper.New(scraper.Options{Engine: eng}), eng, nil, cfg)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/strategies", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}
