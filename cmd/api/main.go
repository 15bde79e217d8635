package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bryanwahyu/estate-compliance/internal/application"
	"github.com/bryanwahyu/estate-compliance/internal/application/analysis"
	"github.com/bryanwahyu/estate-compliance/internal/application/cache"
	"github.com/bryanwahyu/estate-compliance/internal/config"
	"github.com/bryanwahyu/estate-compliance/internal/domain/compliance"
	"github.com/bryanwahyu/estate-compliance/internal/infra/ai/openai"
	"github.com/bryanwahyu/estate-compliance/internal/infra/httpserver"
	"github.com/bryanwahyu/estate-compliance/internal/infra/upstream"
	"github.com/bryanwahyu/estate-compliance/internal/middleware"
	"github.com/bryanwahyu/estate-compliance/internal/pkg/logger"
)

func main() {
	// load config
	cfg, err := config.Load(config.Path())
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{FilePath: cfg.Log.File, Level: cfg.Log.Level, Prod: cfg.Log.Prod})
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("store init error", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("store close error", zap.Error(err))
		}
	}()

	clock := application.SystemClock{}
	analysisCache := cache.New(store, clock, log, cache.Options{
		TTL:        cfg.Cache.TTL,
		Namespace:  cfg.Cache.Namespace,
		EvictBatch: cfg.Cache.EvictBatch,
	})

	buildings, analyses := collaborators(cfg)
	var gate compliance.BuildingFetcher
	if cfg.Upstream.BuildingGate {
		gate = buildings
	}

	var registry *analysis.Registry
	metrics := middleware.NewMetrics(func() int { return registry.Len() })
	registry = analysis.NewRegistry(cfg.Panels.IdleTTL, func(panelID string) *analysis.Orchestrator {
		return &analysis.Orchestrator{
			Buildings: gate,
			Analyses:  analyses,
			Cache:     analysisCache,
			Clock:     clock,
			Log:       log.Named("panel").With(zap.String("panel", panelID)),
			Metrics:   metrics,
		}
	})

	limiter := middleware.NewRateLimiter(cfg.Server.RateLimit.Capacity, cfg.Server.RateLimit.RefillPerSec)
	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go sweep(sweepCtx, limiter)

	health := &middleware.Health{
		Checks: map[string]middleware.HealthChecker{"store": &middleware.StoreHealthChecker{Store: store}},
		Panels: registry.Len,
	}
	handler := httpserver.NewRouter(registry, httpserver.Options{
		Log:         log,
		Metrics:     metrics,
		Health:      health,
		CORSOrigins: cfg.Server.CORSOrigins,
		APIKeys:     cfg.Server.APIKeys,
		Limiter:     limiter,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout, /events streams stay open
		IdleTimeout: 60 * time.Second,
	}

	// run server
	go func() {
		log.Info("server listening", zap.String("addr", addr), zap.String("store", cfg.Store.Driver), zap.String("provider", cfg.Upstream.Provider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down server...")
	health.Drain()

	ctx2, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		log.Warn("shutdown error", zap.Error(err))
	}
	registry.Shutdown()
}

// collaborators builds the building lookup and the analysis provider
func collaborators(cfg *config.Config) (compliance.BuildingFetcher, compliance.AnalysisFetcher) {
	httpClient := &http.Client{}

	var buildings compliance.BuildingFetcher
	if cfg.Upstream.BuildingsURL != "" {
		buildings = &upstream.BuildingClient{BaseURL: cfg.Upstream.BuildingsURL, Token: cfg.Upstream.Token, HTTP: httpClient}
	}

	switch cfg.Upstream.Provider {
	case config.ProviderOpenAI:
		ai := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		ai.Buildings = buildings
		return buildings, ai
	default:
		return buildings, &upstream.AnalysisClient{URL: cfg.Upstream.WebhookURL, Token: cfg.Upstream.Token, HTTP: httpClient}
	}
}

func sweep(ctx context.Context, limiter *middleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep(10 * time.Minute)
		}
	}
}
