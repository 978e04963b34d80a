package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hvpham-yorku/group1-competitor-intelligence/cache"
	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/history"
	"github.com/hvpham-yorku/group1-competitor-intelligence/metrics"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls int
	reqs  []engine.Request
	err   error
}

func (f *fakeExecutor) Execute(_ context.Context, req engine.Request, onProgress engine.ProgressFunc) (*models.NormalizedScrapeResult, error) {
	f.mu.Lock()
	f.calls++
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	onProgress.Emit(models.ScrapeProgress{Page: 1, Message: "Fetching page 1"})
	return models.NewScrapeResult(models.PlatformShopify, req.URL, []models.NormalizedProduct{
		{ID: "1", Title: "Shirt", Platform: models.PlatformShopify, SourceURL: req.URL},
	}), nil
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newStore(t *testing.T) history.Store {
	t.Helper()
	s, err := history.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRun_SavesToHistory(t *testing.T) {
	exec := &fakeExecutor{}
	store := newStore(t)
	s := New(Options{Engine: exec, History: store, Metrics: metrics.New()})

	var progress []models.ScrapeProgress
	out, err := s.Run(context.Background(), "alice", models.ScrapeRequest{URL: " shop.test/ "}, func(p models.ScrapeProgress) {
		progress = append(progress, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "https://shop.test", out.Result.SourceURL)
	assert.Equal(t, 1, out.Result.TotalCount)
	assert.True(t, out.Saved)
	assert.NotZero(t, out.ScrapeID)
	assert.Empty(t, out.CacheStatus)
	assert.Len(t, progress, 1)
	assert.Equal(t, models.DescriptionHTML, exec.reqs[0].DescriptionFormat)

	run, err := store.Get(context.Background(), "alice", out.ScrapeID)
	require.NoError(t, err)
	assert.Equal(t, "shop.test", run.URL)
	var products []models.NormalizedProduct
	require.NoError(t, json.Unmarshal(run.Products, &products))
	assert.Equal(t, "Shirt", products[0].Title)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Total)
	assert.Equal(t, 0, stats.Active)
}

func TestRun_SaveFalse(t *testing.T) {
	no := false
	s := New(Options{Engine: &fakeExecutor{}, History: newStore(t)})

	out, err := s.Run(context.Background(), "alice", models.ScrapeRequest{URL: "shop.test", Save: &no}, nil)
	require.NoError(t, err)
	assert.False(t, out.Saved)
	assert.Zero(t, out.ScrapeID)
}

func TestRun_NoHistory(t *testing.T) {
	s := New(Options{Engine: &fakeExecutor{}})

	out, err := s.Run(context.Background(), "alice", models.ScrapeRequest{URL: "shop.test"}, nil)
	require.NoError(t, err)
	assert.False(t, out.Saved)
}

func TestRun_InvalidURL(t *testing.T) {
	exec := &fakeExecutor{}
	s := New(Options{Engine: exec})

	_, err := s.Run(context.Background(), "alice", models.ScrapeRequest{URL: "   "}, nil)
	var se *models.ScrapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, models.ErrCodeInvalidInput, se.Code)
	assert.Zero(t, exec.callCount())
}

func TestRun_Cache(t *testing.T) {
	exec := &fakeExecutor{}
	c := cache.New(10)
	defer c.Close()
	s := New(Options{Engine: exec, Cache: c, DescriptionFormat: models.DescriptionText})

	req := models.ScrapeRequest{URL: "shop.test", MaxAge: 60_000}
	first, err := s.Run(context.Background(), "alice", req, nil)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, first.CacheStatus)

	second, err := s.Run(context.Background(), "alice", req, nil)
	require.NoError(t, err)
	assert.Equal(t, CacheHit, second.CacheStatus)
	assert.False(t, second.Saved)
	assert.Equal(t, 1, exec.callCount())

	req.DescriptionFormat = models.DescriptionMarkdown
	third, err := s.Run(context.Background(), "alice", req, nil)
	require.NoError(t, err)
	assert.Equal(t, CacheMiss, third.CacheStatus, "format is part of the key")
	assert.Equal(t, 2, exec.callCount())
}

func TestRun_Failure(t *testing.T) {
	execErr := &engine.ExecutionError{
		Reason:  models.ReasonBlocked,
		Message: engine.MessageBlocked,
		Attempts: []models.AttemptDiagnostic{
			{Strategy: "Shopify", Status: 403, Error: "Forbidden"},
		},
	}
	s := New(Options{Engine: &fakeExecutor{err: execErr}, History: newStore(t), Metrics: metrics.New()})

	_, err := s.Run(context.Background(), "alice", models.ScrapeRequest{URL: "shop.test"}, nil)
	require.Error(t, err)
	assert.Equal(t, models.ReasonBlocked, FailureReason(err))
	assert.Equal(t, int64(1), s.Stats().Failed)
}

func TestFailureReason(t *testing.T) {
	assert.Equal(t, models.ReasonUnknown, FailureReason(errors.New("boom")))
	assert.Equal(t, models.ReasonUnreachable, FailureReason(&engine.ExecutionError{Reason: models.ReasonUnreachable}))
}

func TestRun_Webhook(t *testing.T) {
	var (
		calls int32
		got   webhook.Event
		sig   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, _ := io.ReadAll(r.Body)
		sig = r.Header.Get(webhook.SignatureHeader)
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	sender := webhook.NewSender([]time.Duration{0})
	s := New(Options{Engine: &fakeExecutor{}, Webhooks: sender})

	_, err := s.Run(context.Background(), "alice", models.ScrapeRequest{
		URL:           "shop.test",
		WebhookURL:    srv.URL,
		WebhookSecret: "k",
	}, nil)
	require.NoError(t, err)
	sender.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, "scrape.completed", got.Type)
	assert.Equal(t, "https://shop.test", got.URL)
	assert.NotEmpty(t, sig)
}

func TestClose(t *testing.T) {
	c := cache.New(1)
	s := New(Options{Engine: &fakeExecutor{}, Cache: c, History: newStore(t)})
	s.Close()
}
