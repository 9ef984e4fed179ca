package pokeclient

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle,
// the cache and the limiter. All methods are no-ops on a nil collector.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheStaleHits *prometheus.CounterVec
	cacheSize      prometheus.Gauge

	revalidations     *prometheus.CounterVec
	deduplicationHits *prometheus.CounterVec

	limiterActive prometheus.Gauge
	limiterQueued prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetricsCollector creates a metrics collector on a fresh registry.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.NewRegistry())
}

// NewMetricsCollectorWithRegistry creates a collector using supplied registerer.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	factory := promauto.With(registry)
	mc := &MetricsCollector{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_requests_total",
				Help: "Total number of HTTP attempts made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pokeclient_request_duration_seconds",
				Help:    "Duration of HTTP attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pokeclient_requests_in_flight",
				Help: "Number of logical requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		errorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_errors_total",
				Help: "Total number of classified failures",
			},
			[]string{"type", "method", "endpoint"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_cache_hits_total",
				Help: "Total number of fresh cache hits",
			},
			[]string{"endpoint"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_cache_misses_total",
				Help: "Total number of cache misses, including expired entries",
			},
			[]string{"endpoint"},
		),
		cacheStaleHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_cache_stale_hits_total",
				Help: "Total number of stale entries served while revalidating",
			},
			[]string{"endpoint"},
		),
		cacheSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pokeclient_cache_size",
				Help: "Current number of entries in the cache store",
			},
		),
		revalidations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_revalidations_total",
				Help: "Background revalidations by outcome",
			},
			[]string{"endpoint", "result"},
		),
		deduplicationHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pokeclient_deduplication_hits_total",
				Help: "Total number of callers that joined an in-flight request",
			},
			[]string{"endpoint"},
		),
		limiterActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pokeclient_limiter_active",
				Help: "Tasks currently holding a limiter slot",
			},
		),
		limiterQueued: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pokeclient_limiter_queued",
				Help: "Tasks waiting for a limiter slot",
			},
		),
	}

	if reg, ok := registry.(*prometheus.Registry); ok {
		mc.registry = reg
	}
	return mc
}

// RecordRequest records attempt count and duration.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}

	statusCodeStr := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(method, statusCodeStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusCodeStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}

	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}

	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordError increments error counter by type.
func (mc *MetricsCollector) RecordError(errorType, method, endpoint string) {
	if mc == nil {
		return
	}

	mc.errorsTotal.WithLabelValues(errorType, method, endpoint).Inc()
}

// RecordCacheHit increments cache hit counter.
func (mc *MetricsCollector) RecordCacheHit(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheMiss increments cache miss counter.
func (mc *MetricsCollector) RecordCacheMiss(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheMisses.WithLabelValues(endpoint).Inc()
}

// RecordCacheStaleHit increments the stale-served counter.
func (mc *MetricsCollector) RecordCacheStaleHit(endpoint string) {
	if mc == nil {
		return
	}

	mc.cacheStaleHits.WithLabelValues(endpoint).Inc()
}

// RecordCacheSize sets cache size gauge.
func (mc *MetricsCollector) RecordCacheSize(size int) {
	if mc == nil {
		return
	}

	mc.cacheSize.Set(float64(size))
}

// RecordRevalidation counts a finished background revalidation.
func (mc *MetricsCollector) RecordRevalidation(endpoint string, err error) {
	if mc == nil {
		return
	}

	result := "success"
	if err != nil {
		result = "failure"
	}
	mc.revalidations.WithLabelValues(endpoint, result).Inc()
}

// RecordDeduplicationHit increments de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit(endpoint string) {
	if mc == nil {
		return
	}

	mc.deduplicationHits.WithLabelValues(endpoint).Inc()
}

// RecordLimiter sets the limiter gauges.
func (mc *MetricsCollector) RecordLimiter(active, queued int) {
	if mc == nil {
		return
	}

	mc.limiterActive.Set(float64(active))
	mc.limiterQueued.Set(float64(queued))
}

// Registry exposes the underlying prometheus registry, or nil when the
// collector was built on a Registerer that is not a *prometheus.Registry.
func (mc *MetricsCollector) Registry() *prometheus.Registry {
	if mc == nil {
		return nil
	}
	return mc.registry
}
