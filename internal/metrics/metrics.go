// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics defines the Prometheus collectors exposed by the
// recommendation engine. Every collector is package-level and registered
// via promauto against the default registry, matching the rest of the
// ambient stack: components record against these vars directly rather
// than threading a registry handle through every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks end-to-end Engine.Recommend latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonora_recommend_request_duration_seconds",
			Help:    "Duration of Recommend calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy", "outcome"},
	)

	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonora_recommend_requests_total",
			Help: "Total number of Recommend calls",
		},
		[]string{"strategy", "outcome"},
	)

	// CacheHits and CacheMisses track Result Cache effectiveness.
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonora_cache_hits_total",
			Help: "Total number of result cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonora_cache_misses_total",
			Help: "Total number of result cache misses",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sonora_cache_entries",
			Help: "Current number of entries held in the result cache",
		},
	)

	CacheCoalescedWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sonora_cache_coalesced_waits_total",
			Help: "Total number of requests that waited on an in-flight single-flight call instead of recomputing",
		},
	)

	// ArtifactLoadDuration tracks how long loading a variant's artifacts took.
	ArtifactLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonora_artifact_load_duration_seconds",
			Help:    "Duration of variant artifact loads in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		},
		[]string{"variant", "outcome"},
	)

	ArtifactFallbackTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonora_artifact_base_fallback_total",
			Help: "Total number of artifact files resolved via base-file fallback instead of a variant-specific file",
		},
		[]string{"variant", "file"},
	)

	// RegistrySwitchesTotal and RegistryLoadedVariants track model hot-switching.
	RegistrySwitchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonora_registry_switches_total",
			Help: "Total number of active-variant switches",
		},
		[]string{"family", "outcome"},
	)

	RegistryLoadedVariants = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sonora_registry_loaded_variants",
			Help: "Current number of loaded variants held in memory, per family",
		},
		[]string{"family"},
	)

	// AudioIndexBuildDuration tracks per-cluster sub-index construction.
	AudioIndexBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonora_audioindex_build_duration_seconds",
			Help:    "Duration of per-cluster audio sub-index builds in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"variant"},
	)

	AudioIndexClustersLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sonora_audioindex_clusters_loaded",
			Help: "Current number of cluster sub-indices held in memory, per variant",
		},
		[]string{"variant"},
	)

	// StrategyDuration tracks per-strategy timing within a hybrid recommendation.
	StrategyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sonora_strategy_duration_seconds",
			Help:    "Duration of an individual strategy's contribution to a recommendation",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"strategy"},
	)

	// CircuitBreakerState tracks the Track Lookup circuit breaker's state
	// (0=closed, 1=half-open, 2=open) per breaker name.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sonora_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sonora_circuit_breaker_requests_total",
			Help: "Total number of requests through a circuit breaker",
		},
		[]string{"name", "result"},
	)
)
