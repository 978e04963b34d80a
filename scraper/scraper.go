package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/hvpham-yorku/group1-competitor-intelligence/cache"
	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/events"
	"github.com/hvpham-yorku/group1-competitor-intelligence/history"
	"github.com/hvpham-yorku/group1-competitor-intelligence/metrics"
	"github.com/hvpham-yorku/group1-competitor-intelligence/models"
	"github.com/hvpham-yorku/group1-competitor-intelligence/webhook"
)

// Cache status values reported in run responses.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// Executor runs one scrape request against the registered strategies.
type Executor interface {
	Execute(ctx context.Context, req engine.Request, onProgress engine.ProgressFunc) (*models.NormalizedScrapeResult, error)
}

// Options wires the Scraper's collaborators. Only Engine is required.
type Options struct {
	Engine   Executor
	Cache    *cache.Cache
	History  history.Store
	Events   *events.Publisher
	Metrics  *metrics.Metrics
	Webhooks *webhook.Sender

	// DescriptionFormat applies when a request does not name one.
	DescriptionFormat string
}

// Scraper runs scrapes end to end: cache, engine, history, events and
// webhooks. It is safe for concurrent use.
type Scraper struct {
	engine            Executor
	cache             *cache.Cache
	history           history.Store
	events            *events.Publisher
	metrics           *metrics.Metrics
	webhooks          *webhook.Sender
	descriptionFormat string

	active    atomic.Int32
	total     atomic.Int64
	failed    atomic.Int64
	startTime time.Time
}

// New creates a Scraper.
func New(opts Options) *Scraper {
	format := opts.DescriptionFormat
	if format == "" {
		format = models.DescriptionHTML
	}
	return &Scraper{
		engine:            opts.Engine,
		cache:             opts.Cache,
		history:           opts.History,
		events:            opts.Events,
		metrics:           opts.Metrics,
		webhooks:          opts.Webhooks,
		descriptionFormat: format,
		startTime:         time.Now(),
	}
}

// Outcome is a successful run.
type Outcome struct {
	Result      *models.NormalizedScrapeResult
	Saved       bool
	ScrapeID    int64
	CacheStatus string
	ScrapeTime  time.Duration
}

// Run scrapes req.URL on behalf of owner. onProgress may be nil.
// Failures to classify a store come back as *engine.ExecutionError.
func (s *Scraper) Run(ctx context.Context, owner string, req models.ScrapeRequest, onProgress engine.ProgressFunc) (*Outcome, error) {
	req.Defaults(s.descriptionFormat)
	engReq, err := engine.NewRequest(req.URL, req.DescriptionFormat)
	if err != nil {
		return nil, err
	}

	s.active.Add(1)
	defer s.active.Add(-1)
	s.total.Add(1)
	done := s.metrics.Started()
	defer done()

	key := cache.Key(engReq.URL, engReq.DescriptionFormat)
	cacheStatus := ""
	if req.MaxAge > 0 && s.cache != nil {
		if cached, ok := s.cache.Get(key, req.MaxAge); ok {
			slog.Debug("cache hit", "url", engReq.URL)
			s.metrics.ObserveCached(cached.Platform)
			return &Outcome{Result: cached, CacheStatus: CacheHit}, nil
		}
		cacheStatus = CacheMiss
	}

	start := time.Now()
	result, err := s.engine.Execute(ctx, engReq, onProgress)
	elapsed := time.Since(start)
	if err != nil {
		s.failed.Add(1)
		reason := FailureReason(err)
		s.metrics.ObserveFailure(string(reason), elapsed)
		slog.Warn("scrape failed", "url", engReq.URL, "reason", reason, "error", err)
		s.notify(ctx, req, events.Event{
			Type:   events.TypeScrapeFailed,
			URL:    engReq.URL,
			Reason: string(reason),
		}, map[string]interface{}{"reason": reason, "message": err.Error()})
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, result)
	}
	s.metrics.ObserveSuccess(result.Platform, result.TotalCount, elapsed)

	out := &Outcome{Result: result, CacheStatus: cacheStatus, ScrapeTime: elapsed}
	if req.ShouldSave() && s.history != nil {
		if id, err := s.save(ctx, owner, result); err != nil {
			slog.Error("saving scrape failed", "url", engReq.URL, "error", err)
		} else {
			out.Saved = true
			out.ScrapeID = id
		}
	}

	slog.Info("scrape completed",
		"url", engReq.URL,
		"platform", result.Platform,
		"products", result.TotalCount,
		"saved", out.Saved,
		"duration_ms", elapsed.Milliseconds(),
	)

	s.notify(ctx, req, events.Event{
		Type:       events.TypeScrapeCompleted,
		URL:        engReq.URL,
		Platform:   result.Platform,
		TotalCount: result.TotalCount,
		ScrapeID:   out.ScrapeID,
	}, map[string]interface{}{
		"platform":    result.Platform,
		"total_count": result.TotalCount,
		"saved":       out.Saved,
	})
	return out, nil
}

func (s *Scraper) save(ctx context.Context, owner string, result *models.NormalizedScrapeResult) (int64, error) {
	products, err := json.Marshal(result.Products)
	if err != nil {
		return 0, err
	}
	return s.history.Insert(context.WithoutCancel(ctx), owner, result.SourceURL, result.Platform, products)
}

// notify publishes the run event and, when requested, the webhook.
func (s *Scraper) notify(ctx context.Context, req models.ScrapeRequest, ev events.Event, data interface{}) {
	if err := s.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		slog.Warn("publishing run event failed", "url", ev.URL, "event", ev.Type, "error", err)
	}
	if req.WebhookURL != "" && s.webhooks != nil {
		s.webhooks.DeliverAsync(req.WebhookURL, req.WebhookSecret, &webhook.Event{
			Type:      ev.Type,
			URL:       ev.URL,
			ScrapeID:  ev.ScrapeID,
			Timestamp: time.Now().Unix(),
			Data:      data,
		})
	}
}

// FailureReason classifies a Run error for clients.
func FailureReason(err error) models.FailureReason {
	var execErr *engine.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Reason
	}
	return models.ReasonUnknown
}

// History returns the configured history store, or nil.
func (s *Scraper) History() history.Store {
	return s.history
}

// Stats returns a snapshot of run activity.
func (s *Scraper) Stats() models.RunStats {
	return models.RunStats{
		Active: int(s.active.Load()),
		Total:  s.total.Load(),
		Failed: s.failed.Load(),
	}
}

// Uptime reports how long the Scraper has existed.
func (s *Scraper) Uptime() time.Duration {
	return time.Since(s.startTime)
}

// Close releases the cache, event publisher and history store.
func (s *Scraper) Close() {
	slog.Info("scraper shutting down")
	if s.cache != nil {
		s.cache.Close()
	}
	if err := s.events.Close(); err != nil {
		slog.Warn("closing event publisher", "error", err)
	}
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			slog.Warn("closing history store", "error", err)
		}
	}
	slog.Info("scraper shutdown complete")
}
