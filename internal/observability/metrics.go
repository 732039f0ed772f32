package observability

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation.
	HTTPRequestsInFlight prometheus.Gauge

	// Upstream provider call rate by status label (success, client_error, server_error, timeout, error).
	WeatherAPICallsTotal *prometheus.CounterVec

	// Upstream latency. Watch for: p99 approaching the 5s client timeout.
	WeatherAPIDuration *prometheus.HistogramVec

	// Upstream failures by category (see client.CategorizeError).
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Lookup outcomes (cache_hit, upstream_hit, not_found, upstream_timeout, ...).
	// Hit rate = cache_hit / (cache_hit + upstream_hit + not_found + upstream_*).
	LookupsTotal *prometheus.CounterVec

	// Per-city query count (allow-list; others go to "other").
	WeatherQueriesByCityTotal *prometheus.CounterVec

	// Cache store latency by operation (get, set) and result (success, error).
	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Cache store failures by operation and category. Watch for: sustained get errors (every lookup goes upstream).
	CacheErrorsTotal *prometheus.CounterVec

	// Stored values that failed strict decoding and were treated as a miss.
	CacheCorruptEntriesTotal prometheus.Counter

	// Concurrent misses for the same city. Watch for: hot keys expiring together.
	CacheStampedeDetectedTotal *prometheus.CounterVec
	CacheStampedeConcurrency   *prometheus.HistogramVec

	// Lookups that shared another caller's upstream call (coalescing enabled only).
	RequestCoalescingSharedTotal prometheus.Counter

	// Rate limit denials by route. Watch for: a single client hammering /weather.
	RateLimitDeniedTotal *prometheus.CounterVec

	// Client buckets currently held by the per-client limiter.
	RateLimitClients *prometheus.GaugeVec

	// Circuit breaker state (0 closed, 1 half-open, 2 open) and transitions.
	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Cache warming runs, failed runs and duration.
	CacheWarmingTotal           prometheus.Counter
	CacheWarmingErrorsTotal     prometheus.Counter
	CacheWarmingDurationSeconds prometheus.Histogram

	// In-flight requests still running when shutdown began.
	ShutdownInFlightRequests prometheus.Gauge

	trackedCitiesMu sync.RWMutex
	trackedCities   map[string]struct{}
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather provider API calls",
		},
		[]string{"status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather provider failures by category",
		},
		[]string{"category"},
	)
	LookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherLookupsTotal",
			Help: "Weather lookups by outcome",
		},
		[]string{"outcome"},
	)
	WeatherQueriesByCityTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesByCityTotal",
			Help: "Weather queries by city (allow-list; others use city=other)",
		},
		[]string{"city"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache store latency in seconds by operation and result",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache store errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheCorruptEntriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheCorruptEntriesTotal",
			Help: "Cached values that failed to decode and were treated as a miss",
		},
	)
	CacheStampedeDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheStampedeDetectedTotal",
			Help: "Cache misses that overlapped another in-progress miss for the same city",
		},
		[]string{"city"},
	)
	CacheStampedeConcurrency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheStampedeConcurrency",
			Help:    "Concurrent misses observed for the same city",
			Buckets: []float64{2, 3, 5, 10, 25, 50},
		},
		[]string{"city"},
	)
	RequestCoalescingSharedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingSharedTotal",
			Help: "Lookups that reused a concurrent upstream call",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
		[]string{"route"},
	)
	RateLimitClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rateLimitClients",
			Help: "Client buckets currently tracked by the rate limiter",
		},
		[]string{"limiter"},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	CacheWarmingTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Cache warming runs",
		},
	)
	CacheWarmingErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "cacheWarmingErrorsTotal",
			Help: "Cache warming runs with at least one failed city",
		},
	)
	CacheWarmingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cacheWarmingDurationSeconds",
			Help:    "Cache warming run duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30},
		},
	)
	ShutdownInFlightRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutdownInFlightRequests",
			Help: "In-flight requests when graceful shutdown started",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		LookupsTotal, WeatherQueriesByCityTotal,
		CacheOperationDurationSeconds, CacheErrorsTotal, CacheCorruptEntriesTotal,
		CacheStampedeDetectedTotal, CacheStampedeConcurrency, RequestCoalescingSharedTotal,
		RateLimitDeniedTotal, RateLimitClients,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		CacheWarmingTotal, CacheWarmingErrorsTotal, CacheWarmingDurationSeconds,
		ShutdownInFlightRequests,
	)
}

// SetTrackedCities sets the allow-list for per-city metrics. Other cities are labelled "other".
func SetTrackedCities(cities []string) {
	trackedCitiesMu.Lock()
	defer trackedCitiesMu.Unlock()
	trackedCities = make(map[string]struct{}, len(cities))
	for _, c := range cities {
		trackedCities[normalizeCityForMetrics(c)] = struct{}{}
	}
}

// MetricCityLabel returns the city label for metrics: the normalized city when
// tracked, "other" otherwise. Keeps label cardinality bounded.
func MetricCityLabel(city string) string {
	c := normalizeCityForMetrics(city)
	trackedCitiesMu.RLock()
	_, ok := trackedCities[c] // nil map read is safe
	trackedCitiesMu.RUnlock()
	if ok {
		return c
	}
	return "other"
}

// RecordLookup counts a lookup outcome for the given city.
func RecordLookup(city, outcome string) {
	LookupsTotal.WithLabelValues(outcome).Inc()
	WeatherQueriesByCityTotal.WithLabelValues(MetricCityLabel(city)).Inc()
}

// RecordCircuitBreakerTransition counts a transition and updates the state gauge.
func RecordCircuitBreakerTransition(component, from, to string, toValue float64) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(toValue)
}

func normalizeCityForMetrics(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
