package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "site_outages"

// Metrics holds the Prometheus counters, histograms, and gauges for an outages run.
type Metrics struct {
	// Per-run results, set once the corresponding step completes.
	OutagesInWindow  prometheus.Gauge
	DevicesIndexed   prometheus.Gauge
	OutagesEnriched  prometheus.Gauge
	OutagesDropped   prometheus.Gauge
	OutagesPublished prometheus.Counter
	PublishErrors    prometheus.Counter
	RunDuration      prometheus.Gauge
	LastSuccess      prometheus.Gauge

	// API request metrics.
	APIRequests        *prometheus.CounterVec   // labels: method, outcome={success,http_error,transport_error}
	APIRetries         *prometheus.CounterVec   // labels: method
	APIRequestDuration *prometheus.HistogramVec // labels: method
}

// NewMetrics creates all run metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		OutagesInWindow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outages_in_window",
			Help:      "Outages that began at or after the cutoff in the last run.",
		}),
		DevicesIndexed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices_indexed",
			Help:      "Devices on the site roster in the last run.",
		}),
		OutagesEnriched: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outages_enriched",
			Help:      "Outages matched to a device and uploaded in the last run.",
		}),
		OutagesDropped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outages_dropped",
			Help:      "Outages with no device on the site roster in the last run.",
		}),
		OutagesPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outages_published_total",
			Help:      "Enriched outages mirrored to Kafka.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed Kafka mirror publishes.",
		}),
		RunDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful upload.",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Outages API request attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		APIRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_retries_total",
			Help:      "Outages API retries by method.",
		}, []string{"method"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Outages API attempt duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OutagesInWindow,
		m.DevicesIndexed,
		m.OutagesEnriched,
		m.OutagesDropped,
		m.OutagesPublished,
		m.PublishErrors,
		m.RunDuration,
		m.LastSuccess,
		m.APIRequests,
		m.APIRetries,
		m.APIRequestDuration,
	}
}

// Push sends the run metrics to a Prometheus Pushgateway, grouped by site.
// A batch job exits before any scrape, so this is how its metrics leave the process.
func (m *Metrics) Push(ctx context.Context, gatewayURL, job, site string) error {
	pusher := push.New(gatewayURL, job).Grouping("site", site)
	for _, c := range m.collectors() {
		pusher = pusher.Collector(c)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
