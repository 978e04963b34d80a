package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/hvpham-yorku/group1-competitor-intelligence/api"
	"github.com/hvpham-yorku/group1-competitor-intelligence/cache"
	"github.com/hvpham-yorku/group1-competitor-intelligence/cleaner"
	"github.com/hvpham-yorku/group1-competitor-intelligence/config"
	"github.com/hvpham-yorku/group1-competitor-intelligence/engine"
	"github.com/hvpham-yorku/group1-competitor-intelligence/events"
	"github.com/hvpham-yorku/group1-competitor-intelligence/history"
	"github.com/hvpham-yorku/group1-competitor-intelligence/metrics"
	"github.com/hvpham-yorku/group1-competitor-intelligence/scraper"
	"github.com/hvpham-yorku/group1-competitor-intelligence/strategy"
	"github.com/hvpham-yorku/group1-competitor-intelligence/webhook"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("storefront starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"history", cfg.History.Driver,
	)

	// ── 3. HTTP client and strategies ───────────────────────────────
	client, err := engine.NewHTTPClient(engine.HTTPClientOptions{
		Timeout:      cfg.Scraper.RequestTimeout,
		Proxy:        cfg.Scraper.Proxy,
		UserAgent:    cfg.Scraper.UserAgent,
		MaxBodyBytes: cfg.Scraper.MaxBodyBytes,
	})
	if err != nil {
		slog.Error("failed to initialise http client", "error", err)
		os.Exit(1)
	}

	cl := cleaner.NewCleaner()
	base := strategy.Options{
		PageDelay: cfg.Scraper.PageDelay,
		MaxPages:  cfg.Scraper.MaxPages,
		Formatter: cl,
	}
	shopifyOpts, wooOpts := base, base
	shopifyOpts.PageSize = cfg.Scraper.ShopifyPageSize
	wooOpts.PageSize = cfg.Scraper.WooPageSize

	eng := engine.New(strategy.Defaults(client, shopifyOpts, wooOpts)...)
	for _, s := range eng.Strategies() {
		slog.Info("strategy registered", "name", s.Name)
	}

	// ── 4. History, events, metrics ─────────────────────────────────
	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()

	store, err := history.Open(startCtx, cfg.History.Driver, cfg.History.DSN, cfg.History.MaxConns)
	if err != nil {
		slog.Error("failed to open history store", "error", err)
		os.Exit(1)
	}

	var publisher *events.Publisher
	if cfg.Events.RedisAddr != "" {
		publisher, err = events.Connect(startCtx, cfg.Events.RedisAddr, cfg.Events.RedisPassword, cfg.Events.RedisDB, cfg.Events.Stream)
		if err != nil {
			slog.Error("failed to connect event stream", "error", err)
			os.Exit(1)
		}
		slog.Info("publishing run events", "addr", cfg.Events.RedisAddr, "stream", cfg.Events.Stream)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// ── 5. Scraper ──────────────────────────────────────────────────
	hooks := webhook.NewSender(nil)
	sc := scraper.New(scraper.Options{
		Engine:            eng,
		Cache:             cache.New(cfg.Cache.MaxEntries),
		History:           store,
		Events:            publisher,
		Metrics:           m,
		Webhooks:          hooks,
		DescriptionFormat: cfg.Scraper.DescriptionFormat,
	})
	defer sc.Close()

	// ── 6. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(sc, eng, m, cfg)
	handler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})(router)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := cfg.Server.Addr()
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}
	hooks.Wait()

	slog.Info("storefront stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
