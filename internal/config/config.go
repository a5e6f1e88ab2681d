// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads the engine's configuration using Koanf v2 with
// layered sources: built-in defaults, an optional YAML file, then
// SONORA_-prefixed environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in priority order.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/sonora/config.yaml",
	"/etc/sonora/config.yml",
}

// ConfigPathEnvVar overrides the config file search with an explicit path.
const ConfigPathEnvVar = "SONORA_CONFIG_PATH"

// Config is the root configuration for the recommendation engine process.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Artifacts  ArtifactsConfig  `koanf:"artifacts"`
	Cache      CacheConfig      `koanf:"cache"`
	Limits     LimitsConfig     `koanf:"limits"`
	Strategies StrategiesConfig `koanf:"strategies"`
	Registry   RegistryConfig   `koanf:"registry"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	Catalog    CatalogConfig    `koanf:"catalog"`
	Server     ServerConfig     `koanf:"server"`
}

// CatalogConfig locates the host's Track Lookup (C6) data. The engine
// never owns this store (spec §4.6); cmd/server only needs a path to
// stand in for it when running as a single binary.
type CatalogConfig struct {
	Path string `koanf:"path"`

	// CircuitBreaker guards calls into the Track Lookup collaborator, which
	// lives outside the engine's process boundary in any real deployment.
	CircuitBreaker CircuitBreakerConfig `koanf:"circuit_breaker"`
}

// CircuitBreakerConfig controls the breaker wrapping Track Lookup calls.
type CircuitBreakerConfig struct {
	Enabled      bool          `koanf:"enabled"`
	MinRequests  uint32        `koanf:"min_requests"`
	FailureRatio float64       `koanf:"failure_ratio"`
	OpenTimeout  time.Duration `koanf:"open_timeout"`
}

// ServerConfig controls the trivial HTTP transport glue (spec §1: "The
// HTTP/API surface ... trivial transport glue").
type ServerConfig struct {
	Addr    string        `koanf:"addr"`
	Timeout time.Duration `koanf:"timeout"`

	// CORSAllowedOrigins lists origins allowed to call the API cross-origin.
	// Empty by default, requiring explicit configuration before any browser
	// client can reach the engine.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitRequests and RateLimitWindow bound how many requests a
	// single client IP may make in the window before receiving 429s.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow    time.Duration `koanf:"rate_limit_window"`
}

// LoggingConfig controls the ambient zerolog setup.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// ArtifactsConfig locates the on-disk model artifacts the engine loads.
type ArtifactsConfig struct {
	// BaseDir is the single directory holding the base tensors and every
	// variant's own files, which are named after the variant; a file a
	// variant lacks falls back to the base file (the Artifact Loader's rule).
	BaseDir string `koanf:"base_dir"`

	// DefaultVariant is the family/variant descriptor activated at startup.
	DefaultVariant string `koanf:"default_variant"`

	// LoadTimeout is parsed from configuration, but the artifact loader does
	// not apply it: loads run without a time bound.
	LoadTimeout time.Duration `koanf:"load_timeout"`
}

// CacheConfig controls the Result Cache (C8).
type CacheConfig struct {
	Enabled           bool          `koanf:"enabled"`
	TTL               time.Duration `koanf:"ttl"`
	MaxEntries        int           `koanf:"max_entries"`
	ShardCount        int           `koanf:"shard_count"`
	InvalidateOnSwap  bool          `koanf:"invalidate_on_swap"`
}

// LimitsConfig bounds request-level result sizes.
type LimitsConfig struct {
	DefaultK      int `koanf:"default_k"`
	MaxK          int `koanf:"max_k"`
	MaxCandidates int `koanf:"max_candidates"`
	MaxSeeds      int `koanf:"max_seeds"`
}

// StrategiesConfig configures the per-strategy behavior and hybrid weights.
type StrategiesConfig struct {
	// Enabled lists which strategy names (spec §4.7) are registered.
	Enabled []string `koanf:"enabled"`

	// Weights map strategy name -> blend weight, used by the hybrid strategy.
	Weights map[string]float64 `koanf:"weights"`

	// ClusterBased enables cluster-scoped audio search when the seed track
	// has a valid (non-noise) cluster assignment; otherwise search is global.
	ClusterBased bool `koanf:"cluster_based"`

	// SimilarityMethod, if set to one of exponential/inverse/gaussian/linear,
	// forces that distance-to-similarity conversion for every variant,
	// overriding the per-model/feature-type table normalize.OptimalMethod
	// otherwise applies. Empty (the default) leaves that table in force.
	SimilarityMethod string `koanf:"similarity_method"`
}

// RegistryConfig controls the Model Registry's (C5) hot-swap and memory behavior.
type RegistryConfig struct {
	// KeepWarmVariants bounds how many variants of a family (including the
	// active one) stay loaded in memory at once; Switch/AddVariant unload
	// whichever inactive variant has gone longest unused once this is
	// exceeded. The active variant is never unloaded.
	KeepWarmVariants int `koanf:"keep_warm_variants"`

	// PerClusterCacheMax bounds the number of lazily-built per-cluster
	// audio sub-indices (C3) kept warm at once (spec §6 "per_cluster_cache_max").
	PerClusterCacheMax int `koanf:"per_cluster_cache_max"`

	// DrainTimeout is loaded from configuration but no component reads it:
	// Registry.Switch never waits for in-flight readers of the previous
	// variant, which keep their handle until they return.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// MetricsConfig controls Prometheus metrics exposure.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// defaultConfig returns the built-in defaults, applied before file/env overrides.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Artifacts: ArtifactsConfig{
			BaseDir:        "/data/sonora/artifacts",
			DefaultVariant: "default",
			LoadTimeout:    60 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:          true,
			TTL:              10 * time.Minute,
			MaxEntries:       10000,
			ShardCount:       16,
			InvalidateOnSwap: true,
		},
		Limits: LimitsConfig{
			DefaultK:      10,
			MaxK:          100,
			MaxCandidates: 2000,
			MaxSeeds:      20,
		},
		Strategies: StrategiesConfig{
			Enabled: []string{"cluster", "hdbscan_knn", "lyrics", "artist_based", "genre_based", "global", "hybrid"},
			Weights: map[string]float64{
				"cluster":      1.0,
				"hdbscan_knn":  1.0,
				"lyrics":       0.6,
				"artist_based": 0.4,
				"genre_based":  0.3,
				"global":       0.1,
			},
			ClusterBased:     true,
			SimilarityMethod: "",
		},
		Registry: RegistryConfig{
			KeepWarmVariants:   2,
			PerClusterCacheMax: 64,
			DrainTimeout:       30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Catalog: CatalogConfig{
			Path: "",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:      true,
				MinRequests:  10,
				FailureRatio: 0.6,
				OpenTimeout:  2 * time.Minute,
			},
		},
		Server: ServerConfig{
			Addr:               ":8080",
			Timeout:            10 * time.Second,
			CORSAllowedOrigins: []string{},
			RateLimitRequests:  100,
			RateLimitWindow:    time.Minute,
		},
	}
}

// Load reads configuration using layered sources: defaults, then an optional
// YAML config file, then SONORA_-prefixed environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	defaults := defaultConfig()
	if err := k.Load(structs.Provider(defaults, "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider("SONORA_", ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Limits.DefaultK <= 0 {
		return fmt.Errorf("limits.default_k must be positive, got %d", c.Limits.DefaultK)
	}
	if c.Limits.MaxK < c.Limits.DefaultK {
		return fmt.Errorf("limits.max_k (%d) must be >= limits.default_k (%d)", c.Limits.MaxK, c.Limits.DefaultK)
	}
	if c.Cache.ShardCount <= 0 {
		return fmt.Errorf("cache.shard_count must be positive, got %d", c.Cache.ShardCount)
	}
	if c.Registry.KeepWarmVariants < 1 {
		return fmt.Errorf("registry.keep_warm_variants must be >= 1, got %d", c.Registry.KeepWarmVariants)
	}
	switch c.Strategies.SimilarityMethod {
	case "", "exponential", "inverse", "gaussian", "linear":
	default:
		return fmt.Errorf("strategies.similarity_method %q is not empty or one of exponential, inverse, gaussian, linear", c.Strategies.SimilarityMethod)
	}
	return nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

var sliceConfigPaths = []string{
	"strategies.enabled",
	"server.cors_allowed_origins",
}

// processSliceFields converts comma-separated env-var strings into slices
// for fields the YAML/env providers would otherwise leave as a scalar string.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names, with or without the
// SONORA_ prefix, to koanf dotted config paths. Unmapped keys are dropped,
// so stray environment variables never pollute the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, "SONORA_"))

	mappings := map[string]string{
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",

		"artifacts_base_dir":     "artifacts.base_dir",
		"artifacts_variant":      "artifacts.default_variant",
		"artifacts_load_timeout": "artifacts.load_timeout",

		"cache_enabled":            "cache.enabled",
		"cache_ttl":                "cache.ttl",
		"cache_max_entries":        "cache.max_entries",
		"cache_shard_count":        "cache.shard_count",
		"cache_invalidate_on_swap": "cache.invalidate_on_swap",

		"limits_default_k":      "limits.default_k",
		"limits_max_k":          "limits.max_k",
		"limits_max_candidates": "limits.max_candidates",
		"limits_max_seeds":      "limits.max_seeds",

		"strategies_enabled":           "strategies.enabled",
		"strategies_cluster_based":     "strategies.cluster_based",
		"strategies_similarity_method": "strategies.similarity_method",

		"registry_keep_warm_variants":  "registry.keep_warm_variants",
		"registry_per_cluster_cache_max": "registry.per_cluster_cache_max",
		"registry_drain_timeout":       "registry.drain_timeout",

		"metrics_enabled": "metrics.enabled",
		"metrics_addr":    "metrics.addr",

		"catalog_path":                        "catalog.path",
		"catalog_circuit_breaker_enabled":      "catalog.circuit_breaker.enabled",
		"catalog_circuit_breaker_min_requests": "catalog.circuit_breaker.min_requests",
		"catalog_circuit_breaker_failure_ratio": "catalog.circuit_breaker.failure_ratio",
		"catalog_circuit_breaker_open_timeout": "catalog.circuit_breaker.open_timeout",

		"server_addr":                 "server.addr",
		"server_timeout":              "server.timeout",
		"server_cors_allowed_origins": "server.cors_allowed_origins",
		"server_rate_limit_requests":  "server.rate_limit_requests",
		"server_rate_limit_window":    "server.rate_limit_window",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
