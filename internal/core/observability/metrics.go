// Package observability holds the Prometheus instrumentation used across the
// service. Call Init once with the app registry before serving traffic;
// helpers are safe to call at any time.
package observability

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var enabled atomic.Bool

func init() {
	enabled.Store(true)
}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	cacheResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Dashboard cache lookups by outcome.",
		},
		[]string{"outcome"},
	)

	storeOpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_operation_duration_seconds",
			Help:    "Duration of result store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
		},
		[]string{"op", "outcome"},
	)

	upstreamLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_latency_seconds",
			Help:    "Latency of data lake calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"upstream"},
	)

	computeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashboard_compute_duration_seconds",
			Help:    "Duration of dashboard payload computations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"dashboard", "network", "outcome"},
	)

	invalidationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_events_total",
			Help: "Processed cache invalidation events by op.",
		},
		[]string{"op", "outcome"},
	)

	kafkaConsumerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_consumer_errors_total",
			Help: "Kafka consumer errors by kind.",
		},
		[]string{"kind"},
	)

	frameCacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "frame_cache_entries",
			Help: "Decoded day frames currently held in memory.",
		},
	)

	frameCacheResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frame_cache_results_total",
			Help: "Decoded frame cache lookups by result.",
		},
		[]string{"result"},
	)

	hotKeysTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hotness_tracked_keys",
			Help: "Cache keys currently carrying a request-heat score.",
		},
	)
)

// Init registers all vectors with reg. Registering the same vectors with a
// second registry is allowed, which keeps tests with private registries cheap.
func Init(reg prometheus.Registerer, on bool) {
	enabled.Store(on)
	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		cacheResultsTotal,
		storeOpDurationSeconds,
		upstreamLatencySeconds,
		computeDurationSeconds,
		invalidationsTotal,
		kafkaConsumerErrorsTotal,
		frameCacheEntries,
		frameCacheResultsTotal,
		hotKeysTracked,
	)
}

func outcomeOf(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

// IncCacheResult records a policy engine outcome ("hit", "refresh", "forced",
// "stale", "uncached").
func IncCacheResult(outcome string) {
	if !enabled.Load() {
		return
	}
	cacheResultsTotal.WithLabelValues(outcome).Inc()
}

func ObserveStoreOp(op string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	storeOpDurationSeconds.WithLabelValues(op, outcomeOf(err)).Observe(durationSeconds)
}

func ObserveUpstreamLatency(upstream string, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	upstreamLatencySeconds.WithLabelValues(upstream).Observe(durationSeconds)
}

func ObserveComputeDuration(dashboard, network string, err error, durationSeconds float64) {
	if !enabled.Load() {
		return
	}
	computeDurationSeconds.WithLabelValues(dashboard, network, outcomeOf(err)).Observe(durationSeconds)
}

func ObserveInvalidation(op string, err error) {
	if !enabled.Load() {
		return
	}
	invalidationsTotal.WithLabelValues(op, outcomeOf(err)).Inc()
}

func IncKafkaConsumerError(kind string) {
	if !enabled.Load() {
		return
	}
	kafkaConsumerErrorsTotal.WithLabelValues(kind).Inc()
}

func SetFrameCacheEntries(n int) {
	if !enabled.Load() {
		return
	}
	frameCacheEntries.Set(float64(n))
}

func IncFrameCache(hit bool) {
	if !enabled.Load() {
		return
	}
	if hit {
		frameCacheResultsTotal.WithLabelValues("hit").Inc()
		return
	}
	frameCacheResultsTotal.WithLabelValues("miss").Inc()
}

func SetHotTrackedKeys(n int) {
	if !enabled.Load() {
		return
	}
	hotKeysTracked.Set(float64(n))
}
