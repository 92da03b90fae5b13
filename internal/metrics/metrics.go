// Tilewarm - Map Style Resource Warm-up Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tilewarm

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for production observability:
// - Warm-up pass lifecycle and throughput
// - Prefetch request outcomes and batch sizing
// - Two-tier cache efficiency
// - Circuit breaker state for the prefetch origin

var (
	// Warm-up Pass Metrics
	WarmupPassesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilewarm_passes_total",
			Help: "Total number of warm-up passes by terminal state",
		},
		[]string{"result"}, // "completed", "skipped", "aborted"
	)

	WarmupPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tilewarm_pass_duration_seconds",
			Help:    "Duration of completed warm-up passes in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	WarmupRequestsProcessed = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tilewarm_pass_requests_processed",
			Help: "Requests processed so far in the current warm-up pass",
		},
	)

	// Prefetch Request Metrics
	PrefetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilewarm_prefetch_requests_total",
			Help: "Total number of prefetch requests by outcome",
		},
		[]string{"outcome"}, // "success", "failure", "rejected"
	)

	PrefetchBatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilewarm_prefetch_batches_total",
			Help: "Total number of prefetch batches issued",
		},
	)

	PrefetchBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tilewarm_prefetch_batch_duration_seconds",
			Help:    "Time for one full prefetch batch to settle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilewarm_cache_hits_total",
			Help: "Total cache hits by tier",
		},
		[]string{"tier"}, // "memory", "durable"
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilewarm_cache_misses_total",
			Help: "Total cache misses across both tiers",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tilewarm_cache_evictions_total",
			Help: "Total cache entries evicted (expired or deleted)",
		},
	)

	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tilewarm_cache_entries",
			Help: "Current number of entries in the memory tier",
		},
	)

	// HTTP API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilewarm_http_requests_total",
			Help: "Total HTTP API requests by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tilewarm_http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tilewarm_http_active_requests",
			Help: "HTTP API requests currently in flight",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tilewarm_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tilewarm_circuit_breaker_transitions_total",
			Help: "Total circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)
)

// RecordAPIRequest records metrics for a completed HTTP API request.
func RecordAPIRequest(method, path, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight request gauge.
func TrackActiveRequest(active bool) {
	if active {
		HTTPActiveRequests.Inc()
	} else {
		HTTPActiveRequests.Dec()
	}
}
