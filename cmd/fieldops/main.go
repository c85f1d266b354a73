package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/terraferm/fieldops/internal/alerts"
	"github.com/terraferm/fieldops/internal/anthropic"
	"github.com/terraferm/fieldops/internal/api"
	"github.com/terraferm/fieldops/internal/config"
	"github.com/terraferm/fieldops/internal/extractor"
	"github.com/terraferm/fieldops/internal/gateway"
	"github.com/terraferm/fieldops/internal/materializer"
	"github.com/terraferm/fieldops/internal/metrics"
	"github.com/terraferm/fieldops/internal/processor"
	"github.com/terraferm/fieldops/internal/store"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	slog.Info("fieldops starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database connected")

	// Extraction service (optional — rule-based fallback covers its absence)
	var llm *anthropic.Client
	if cfg.AnthropicAPIKey != "" {
		llm = anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
		slog.Info("anthropic client ready", "model", cfg.AnthropicModel)
	} else {
		slog.Warn("ANTHROPIC_API_KEY not set — running rule-based extraction only")
	}

	extractTimeout := time.Duration(cfg.ExtractTimeout) * time.Second
	ext := extractor.New(llm, extractTimeout, slog.Default())

	var images *extractor.ImageAnalyzer
	if llm != nil {
		images = extractor.NewImageAnalyzer(llm, extractTimeout, slog.Default())
	}

	// Gateway
	gw, err := gateway.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
	if err != nil {
		slog.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer gw.Close()
	slog.Info("NATS connected", "url", cfg.NatsURL)

	// Pipeline
	mat := materializer.New(db, slog.Default())
	proc := processor.New(db, ext, mat, gw, images, slog.Default())

	if err := gw.Subscribe(gateway.SubjectMessageReceived, proc.HandleInboundMessage); err != nil {
		slog.Error("failed to subscribe to gateway messages", "error", err)
		os.Exit(1)
	}

	// Metrics and alert rules
	metricsEngine := metrics.NewEngine(db, cfg.Targets, slog.Default())
	alertEngine := alerts.NewEngine(metricsEngine, db, cfg.Targets, slog.Default())

	// Metrics cache (optional)
	var cache *api.SnapshotCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		cache = api.NewSnapshotCache(rdb, slog.Default())
		slog.Info("metrics cache ready")
	}

	// HTTP API
	srv := api.NewServer(cfg.Port, cfg.APIToken, db, metricsEngine, alertEngine, proc, cache, slog.Default())
	go func() {
		if err := srv.Start(ctx); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	slog.Info("fieldops ready", "port", cfg.Port)

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	slog.Info("shutting down")
	cancel()
	slog.Info("fieldops stopped")
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
