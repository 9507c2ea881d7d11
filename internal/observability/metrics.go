package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the feed pipeline.
type Metrics struct {
	// Upstream fetch metrics.
	FetchRequests *prometheus.CounterVec   // labels: feed, outcome={success,empty,http_error,timeout,network,malformed}
	FetchDuration *prometheus.HistogramVec // labels: feed

	// Normalization metrics.
	ObservationsKept    *prometheus.CounterVec // labels: feed
	ObservationsDropped *prometheus.CounterVec // labels: feed

	// Refresh cycle metrics.
	RefreshResults   *prometheus.CounterVec // labels: feed, state={ready,no_data,error}
	StaleDiscarded   *prometheus.CounterVec // labels: feed
	RefreshesRunning prometheus.Gauge

	// Latest-observation gauges.
	LatestStaleDays       *prometheus.GaugeVec // labels: feed
	LatestPercentCapacity *prometheus.GaugeVec // labels: feed
	LiveCharts            prometheus.Gauge

	StreamClients     prometheus.Gauge
	SnapshotsProduced prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.FetchDuration,
		m.ObservationsKept,
		m.ObservationsDropped,
		m.RefreshResults,
		m.StaleDiscarded,
		m.RefreshesRunning,
		m.LatestStaleDays,
		m.LatestPercentCapacity,
		m.LiveCharts,
		m.StreamClients,
		m.SnapshotsProduced,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro_feed",
			Name:      "fetch_requests_total",
			Help:      "Upstream fetches by feed and outcome.",
		}, []string{"feed", "outcome"}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hydro_feed",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		}, []string{"feed"}),
		ObservationsKept: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro_feed",
			Name:      "observations_kept_total",
			Help:      "Observations surviving normalization.",
		}, []string{"feed"}),
		ObservationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro_feed",
			Name:      "observations_dropped_total",
			Help:      "Raw observations dropped as missing, invalid, or duplicate.",
		}, []string{"feed"}),
		RefreshResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro_feed",
			Name:      "refresh_results_total",
			Help:      "Committed refresh cycles by feed and resulting state.",
		}, []string{"feed", "state"}),
		StaleDiscarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hydro_feed",
			Name:      "refresh_superseded_total",
			Help:      "Refresh results discarded because a newer refresh was requested.",
		}, []string{"feed"}),
		RefreshesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hydro_feed",
			Name:      "refreshes_running",
			Help:      "Refresh cycles currently in flight.",
		}),
		LatestStaleDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hydro_feed",
			Name:      "latest_stale_days",
			Help:      "Whole days since the most recent observation.",
		}, []string{"feed"}),
		LatestPercentCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "hydro_feed",
			Name:      "latest_percent_capacity",
			Help:      "Most recent storage as percent of capacity.",
		}, []string{"feed"}),
		LiveCharts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hydro_feed",
			Name:      "live_charts",
			Help:      "Chart handles currently installed on the dashboard.",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "hydro_feed",
			Name:      "stream_clients",
			Help:      "Connected WebSocket stream clients.",
		}),
		SnapshotsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hydro_feed",
			Name:      "snapshots_produced_total",
			Help:      "Snapshots written to the Kafka sink topic.",
		}),
	}
}
