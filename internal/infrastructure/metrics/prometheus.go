// Package metrics exports billing counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	appbilling "github.com/erp/utility-billing/internal/application/billing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config holds configuration for the Prometheus recorder
type Config struct {
	// Namespace prefixes every metric name. Default: utility_billing
	Namespace string

	// DurationBuckets are the histogram buckets, in seconds, for calculation
	// and gyvatukas timings. Default: prometheus.DefBuckets
	DurationBuckets []float64

	// RuntimeCollectors registers the Go runtime and process collectors
	RuntimeCollectors bool
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Namespace:         "utility_billing",
		DurationBuckets:   prometheus.DefBuckets,
		RuntimeCollectors: true,
	}
}

// Recorder implements appbilling.MetricsRecorder on a private registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Recorder struct {
	registry *prometheus.Registry

	calculationsTotal      *prometheus.CounterVec
	calculationDuration    *prometheus.HistogramVec
	cacheLookupsTotal      *prometheus.CounterVec
	distributionsTotal     *prometheus.CounterVec
	gyvatukasDuration      *prometheus.HistogramVec
	readingValidations     *prometheus.CounterVec
	configurationChecks    *prometheus.CounterVec
	dbPoolOpenConnections  *prometheus.GaugeVec
	dbPoolInUseConnections *prometheus.GaugeVec
	dbPoolIdleConnections  *prometheus.GaugeVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
}

// NewRecorder creates a recorder and registers its collectors
func NewRecorder(config Config) *Recorder {
	if config.Namespace == "" {
		config.Namespace = DefaultConfig().Namespace
	}
	if len(config.DurationBuckets) == 0 {
		config.DurationBuckets = prometheus.DefBuckets
	}
	ns := config.Namespace

	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calculationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "calculations_total",
			Help:      "Bill calculations by pricing model and outcome",
		}, []string{"model", "outcome"}),
		calculationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "calculation_duration_seconds",
			Help:      "Bill calculation latency in seconds",
			Buckets:   config.DurationBuckets,
		}, []string{"model"}),
		cacheLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by cache and result",
		}, []string{"cache", "result"}),
		distributionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "distributions_total",
			Help:      "Cost distributions by method and whether the equal fallback was used",
		}, []string{"method", "fallback"}),
		gyvatukasDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "gyvatukas_duration_seconds",
			Help:      "Circulation energy calculation latency in seconds",
			Buckets:   config.DurationBuckets,
		}, []string{"season"}),
		readingValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "reading_validations_total",
			Help:      "Meter reading validations by outcome",
		}, []string{"outcome"}),
		configurationChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "configuration_validations_total",
			Help:      "Service configuration validations by result",
		}, []string{"valid"}),
		dbPoolOpenConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_open_connections",
			Help:      "Open connections in the database pool",
		}, []string{"driver"}),
		dbPoolInUseConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_in_use_connections",
			Help:      "Connections currently in use",
		}, []string{"driver"}),
		dbPoolIdleConnections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "db_pool_idle_connections",
			Help:      "Idle connections in the database pool",
		}, []string{"driver"}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   config.DurationBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(
		r.calculationsTotal,
		r.calculationDuration,
		r.cacheLookupsTotal,
		r.distributionsTotal,
		r.gyvatukasDuration,
		r.readingValidations,
		r.configurationChecks,
		r.dbPoolOpenConnections,
		r.dbPoolInUseConnections,
		r.dbPoolIdleConnections,
		r.httpRequestsTotal,
		r.httpRequestDuration,
	)
	if config.RuntimeCollectors {
		r.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return r
}

// ObserveCalculation implements appbilling.MetricsRecorder. Cached results
// are counted but not timed.
func (r *Recorder) ObserveCalculation(model, outcome string, duration time.Duration) {
	r.calculationsTotal.WithLabelValues(model, outcome).Inc()
	if outcome != appbilling.OutcomeCached {
		r.calculationDuration.WithLabelValues(model).Observe(duration.Seconds())
	}
}

// IncCacheLookup implements appbilling.MetricsRecorder
func (r *Recorder) IncCacheLookup(cache string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookupsTotal.WithLabelValues(cache, result).Inc()
}

// ObserveDistribution implements appbilling.MetricsRecorder
func (r *Recorder) ObserveDistribution(method string, fallback bool) {
	r.distributionsTotal.WithLabelValues(method, strconv.FormatBool(fallback)).Inc()
}

// ObserveGyvatukas implements appbilling.MetricsRecorder
func (r *Recorder) ObserveGyvatukas(season string, duration time.Duration) {
	r.gyvatukasDuration.WithLabelValues(season).Observe(duration.Seconds())
}

// IncReadingValidation implements appbilling.MetricsRecorder
func (r *Recorder) IncReadingValidation(outcome string) {
	r.readingValidations.WithLabelValues(outcome).Inc()
}

// IncConfigurationValidation implements appbilling.MetricsRecorder
func (r *Recorder) IncConfigurationValidation(valid bool) {
	r.configurationChecks.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// SetDBPool publishes a snapshot of the connection pool
func (r *Recorder) SetDBPool(driver string, open, inUse, idle int) {
	r.dbPoolOpenConnections.WithLabelValues(driver).Set(float64(open))
	r.dbPoolInUseConnections.WithLabelValues(driver).Set(float64(inUse))
	r.dbPoolIdleConnections.WithLabelValues(driver).Set(float64(idle))
}

// ObserveHTTPRequest records one served request. route is the matched route
// template, never the raw path.
func (r *Recorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	r.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	r.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

var _ appbilling.MetricsRecorder = (*Recorder)(nil)
