package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "notizar"

// Metrics holds the Prometheus counters, histograms, and gauges for the service.
type Metrics struct {
	// Report lifecycle metrics.
	ReportsSubmitted       prometheus.Counter
	ReportSubmitErrors     *prometheus.CounterVec // labels: reason={validation,store}
	StatusTransitions      *prometheus.CounterVec // labels: from, to
	InvalidTransitions     prometheus.Counter
	StoreOperationDuration *prometheus.HistogramVec // labels: op
	FeedPublishErrors      prometheus.Counter

	// Alerting metrics.
	AlertsGenerated   *prometheus.CounterVec // labels: priority
	AlertsDuplicate   prometheus.Counter
	AlertUrgencyScore prometheus.Histogram
	SinkDeliveries    *prometheus.CounterVec // labels: sink, outcome={delivered,skipped,error}
	AlerterRunning    prometheus.Gauge
	AdminClients      prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: method={forward,reverse}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: method={forward,reverse}, result={hit,miss}
	GeocodeAPIDuration *prometheus.HistogramVec // labels: method={forward,reverse}
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests can
// build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		ReportsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_submitted_total",
			Help:      "Total reports accepted and persisted.",
		}),
		ReportSubmitErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_submit_errors_total",
			Help:      "Rejected or failed report submissions by reason.",
		}, []string{"reason"}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_transitions_total",
			Help:      "Applied report status transitions.",
		}, []string{"from", "to"}),
		InvalidTransitions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_transitions_total",
			Help:      "Status updates refused by the lifecycle rules.",
		}),
		StoreOperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of store calls by operation.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"op"}),
		FeedPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_publish_errors_total",
			Help:      "Change feed publish failures after a successful insert.",
		}),
		AlertsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_generated_total",
			Help:      "Alerts dispatched by priority.",
		}, []string{"priority"}),
		AlertsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_duplicate_total",
			Help:      "Alerts suppressed because the report was already announced.",
		}),
		AlertUrgencyScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "alert_urgency_score",
			Help:      "Distribution of computed urgency scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		SinkDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_deliveries_total",
			Help:      "Alert sink deliveries by sink and outcome.",
		}, []string{"sink", "outcome"}),
		AlerterRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerter_running",
			Help:      "1 when the alerter is subscribed to the report feed, 0 otherwise.",
		}),
		AdminClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "admin_clients",
			Help:      "Connected admin websocket clients.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by method and result.",
		}, []string{"method", "result"}),
		GeocodeAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method"}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when geocoding enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ReportsSubmitted,
		m.ReportSubmitErrors,
		m.StatusTransitions,
		m.InvalidTransitions,
		m.StoreOperationDuration,
		m.FeedPublishErrors,
		m.AlertsGenerated,
		m.AlertsDuplicate,
		m.AlertUrgencyScore,
		m.SinkDeliveries,
		m.AlerterRunning,
		m.AdminClients,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	}
}
