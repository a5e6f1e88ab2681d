// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main is the entry point for the Sonora recommendation engine
// server.
//
// Startup order:
//
//  1. Configuration: layered Koanf v2 load (defaults, config.yaml,
//     SONORA_-prefixed environment variables).
//  2. Logging: global zerolog logger, configured from Config.Logging.
//  3. Track catalog: a JSON snapshot loaded into an in-memory Lookuper.
//     The real catalog store is an external collaborator the engine
//     never owns (spec §1, §4.6); this is demo wiring only.
//  4. Recommendation Engine: artifacts loaded from Config.Artifacts.BaseDir,
//     registries built, cache constructed.
//  5. Metrics: Prometheus collectors exposed via promhttp on a separate
//     listener.
//  6. HTTP API: the logical operations of spec §6 (recommend,
//     list_variants, switch_variant, similar_by_track) as thin JSON
//     handlers — transport is explicitly out of scope per spec §1, so
//     this is deliberately minimal.
//
// Graceful shutdown on SIGINT/SIGTERM drains in-flight HTTP requests
// before exiting.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sonora-audio/sonora/internal/config"
	"github.com/sonora-audio/sonora/internal/logging"
	"github.com/sonora-audio/sonora/internal/recommend"
	"github.com/sonora-audio/sonora/internal/recommend/normalize"
	"github.com/sonora-audio/sonora/internal/tracklookup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logger := logging.Logger()

	logger.Info().
		Str("artifacts_dir", cfg.Artifacts.BaseDir).
		Str("default_variant", cfg.Artifacts.DefaultVariant).
		Msg("starting sonora recommendation engine")

	lookup, err := buildCatalog(cfg.Catalog)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build track catalog")
	}
	guardedLookup := guardCatalog(lookup, cfg.Catalog.CircuitBreaker, logger)

	engine, err := recommend.NewEngine(
		cfg.Artifacts.BaseDir,
		cfg.Artifacts.DefaultVariant,
		cfg.Artifacts.DefaultVariant,
		guardedLookup,
		engineConfigFrom(cfg),
		logger,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize recommendation engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics listener starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics listener failed")
			}
		}()
	}

	api := newAPI(engine, logger, cfg.Server)
	apiServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("api listener starting")
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api listener failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("api server did not shut down cleanly")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server did not shut down cleanly")
		}
	}

	logger.Info().Msg("sonora stopped gracefully")
}

// buildCatalog loads the demo catalog file if configured, else returns an
// empty in-memory lookuper (every seed will resolve to NotFound, which is
// adequate for a metrics-only / smoke-test deployment).
func buildCatalog(cfg config.CatalogConfig) (*tracklookup.MemoryLookuper, error) {
	if cfg.Path == "" {
		return tracklookup.NewMemoryLookuper(), nil
	}
	return tracklookup.LoadCatalogFile(cfg.Path)
}

// guardCatalog wraps lookup with a circuit breaker when enabled. Even the
// in-process MemoryLookuper demo stands in for a real, externally-owned
// catalog service (spec §4.6), so the breaker is wired at the same seam a
// production deployment would swap in a network-backed Lookuper.
func guardCatalog(lookup tracklookup.Lookuper, cfg config.CircuitBreakerConfig, logger zerolog.Logger) tracklookup.Lookuper {
	if !cfg.Enabled {
		return lookup
	}
	settings := tracklookup.DefaultCircuitBreakerSettings()
	if cfg.MinRequests > 0 {
		settings.MinRequests = cfg.MinRequests
	}
	if cfg.FailureRatio > 0 {
		settings.FailureRatio = cfg.FailureRatio
	}
	if cfg.OpenTimeout > 0 {
		settings.Timeout = cfg.OpenTimeout
	}
	return tracklookup.NewCircuitBreakerLookuper(lookup, settings, logger)
}

// engineConfigFrom narrows the app Config down to the subset the Engine
// Facade needs (internal/recommend.EngineConfig), decoupling the engine
// package from koanf's struct tags.
func engineConfigFrom(cfg *config.Config) recommend.EngineConfig {
	enabled := make([]recommend.Strategy, 0, len(cfg.Strategies.Enabled))
	for _, name := range cfg.Strategies.Enabled {
		enabled = append(enabled, recommend.Strategy(name))
	}
	weights := make(map[recommend.Strategy]float64, len(cfg.Strategies.Weights))
	for name, w := range cfg.Strategies.Weights {
		weights[recommend.Strategy(name)] = w
	}

	return recommend.EngineConfig{
		DefaultK:          cfg.Limits.DefaultK,
		MaxK:              cfg.Limits.MaxK,
		MaxCandidates:     cfg.Limits.MaxCandidates,
		ClusterCacheSize:  cfg.Registry.PerClusterCacheMax,
		CacheEnabled:      cfg.Cache.Enabled,
		CacheTTL:          cfg.Cache.TTL,
		CacheMaxEntries:   cfg.Cache.MaxEntries,
		CacheShardCount:   cfg.Cache.ShardCount,
		GenrePoolSize:     cfg.Limits.MaxCandidates,
		GlobalPoolSize:    cfg.Limits.MaxCandidates,
		KeepWarmVariants:  cfg.Registry.KeepWarmVariants,
		EnabledStrategies: enabled,
		ClusterBased:      cfg.Strategies.ClusterBased,
		SimilarityMethod:  normalize.Method(cfg.Strategies.SimilarityMethod),
		HybridWeights:     weights,
	}
}
