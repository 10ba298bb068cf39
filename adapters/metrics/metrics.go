// Package metrics provides Prometheus metrics collection for costboard.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "costboard"

// Collector holds all Prometheus metrics for costboard.
// A nil *Collector is valid and records nothing.
type Collector struct {
	gatherer prometheus.Gatherer

	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge
	RateLimited      prometheus.Counter

	// Billing metrics
	BillingQueries *prometheus.CounterVec

	// Usage source metrics
	UsageFetchDuration prometheus.Histogram
	UsageFetchErrors   prometheus.Counter

	// Snapshot metrics
	SnapshotsTaken       *prometheus.CounterVec
	SnapshotLastTaken    prometheus.Gauge
	SnapshotPayloadUsers prometheus.Gauge

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a collector registered with the default Prometheus registry.
func New() *Collector {
	return build(promauto.With(prometheus.DefaultRegisterer), prometheus.DefaultGatherer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg *prometheus.Registry) *Collector {
	return build(promauto.With(reg), reg)
}

func build(factory promauto.Factory, gatherer prometheus.Gatherer) *Collector {
	return &Collector{
		gatherer: gatherer,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "route", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "route"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		BillingQueries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "billing_queries_total",
				Help:      "Billing queries by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),

		UsageFetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "usage_fetch_duration_seconds",
				Help:      "Duration of live usage fetches from the upstream",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		UsageFetchErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "usage_fetch_errors_total",
				Help:      "Total number of failed live usage fetches",
			},
		),

		SnapshotsTaken: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "snapshots_taken_total",
				Help:      "Snapshots taken by outcome",
			},
			[]string{"outcome"},
		),
		SnapshotLastTaken: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_last_taken_timestamp",
				Help:      "Unix timestamp of the last stored snapshot",
			},
		),
		SnapshotPayloadUsers: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "snapshot_users",
				Help:      "Number of users in the last stored snapshot",
			},
		),

		RateLimited: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the per-caller rate limit",
			},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// ObserveQuery counts a billing query. outcome is "ok", "not_found" or "error".
func (c *Collector) ObserveQuery(operation, outcome string) {
	if c == nil {
		return
	}
	c.BillingQueries.WithLabelValues(operation, outcome).Inc()
}

// ObserveFetch records one live usage fetch.
func (c *Collector) ObserveFetch(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.UsageFetchDuration.Observe(d.Seconds())
	if err != nil {
		c.UsageFetchErrors.Inc()
	}
}

// SnapshotStored records a successful snapshot.
func (c *Collector) SnapshotStored(at time.Time, users int) {
	if c == nil {
		return
	}
	c.SnapshotsTaken.WithLabelValues("ok").Inc()
	c.SnapshotLastTaken.Set(float64(at.Unix()))
	c.SnapshotPayloadUsers.Set(float64(users))
}

// SnapshotFailed records a failed snapshot attempt.
func (c *Collector) SnapshotFailed() {
	if c == nil {
		return
	}
	c.SnapshotsTaken.WithLabelValues("error").Inc()
}

// RequestLimited counts a request rejected by the rate limiter.
func (c *Collector) RequestLimited() {
	if c == nil {
		return
	}
	c.RateLimited.Inc()
}

// ConfigReloaded records a config reload attempt.
func (c *Collector) ConfigReloaded(at time.Time, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.ConfigReloadErrors.Inc()
		return
	}
	c.ConfigReloads.Inc()
	c.ConfigLastReload.Set(float64(at.Unix()))
}
