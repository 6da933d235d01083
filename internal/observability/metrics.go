package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chargeapp"

// Metrics holds the Prometheus counters, histograms, and gauges for the ETL run.
type Metrics struct {
	RegionsProcessed prometheus.Counter
	RegionsFailed    prometheus.Counter
	StationsFetched  prometheus.Counter
	StationsKept     prometheus.Counter
	StationsSkipped  prometheus.Counter
	EventsPublished  prometheus.Counter
	PipelineRunning  prometheus.Gauge
	RunDuration      prometheus.Histogram

	// Storage metrics.
	Upserts *prometheus.CounterVec // labels: table, outcome={inserted,updated,error}

	// Remote API metrics.
	APIRequests *prometheus.CounterVec   // labels: source={regions,stations}, outcome={success,error}
	APIDuration *prometheus.HistogramVec // labels: source
	APICache    *prometheus.CounterVec   // labels: source, layer={memory,redis}, result={hit,miss}
}

func newMetrics() *Metrics {
	return &Metrics{
		RegionsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_processed_total",
			Help:      "Regions that completed the load pipeline.",
		}),
		RegionsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "regions_failed_total",
			Help:      "Regions whose fetch or load failed.",
		}),
		StationsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_fetched_total",
			Help:      "Candidate stations returned by envelope queries.",
		}),
		StationsKept: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_kept_total",
			Help:      "Stations that passed the point-in-polygon filter.",
		}),
		StationsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stations_skipped_total",
			Help:      "Stations already assigned to an earlier region in the same run.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Region load events written to the event topic.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a load run is active, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete load run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		Upserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserts_total",
			Help:      "Record upserts by table and outcome.",
		}, []string{"table", "outcome"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "FeatureServer requests by source and outcome.",
		}, []string{"source", "outcome"}),
		APIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_duration_seconds",
			Help:      "FeatureServer request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		APICache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_cache_total",
			Help:      "Feature query cache lookups by source, layer and result.",
		}, []string{"source", "layer", "result"}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.RegionsProcessed,
		m.RegionsFailed,
		m.StationsFetched,
		m.StationsKept,
		m.StationsSkipped,
		m.EventsPublished,
		m.PipelineRunning,
		m.RunDuration,
		m.Upserts,
		m.APIRequests,
		m.APIDuration,
		m.APICache,
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics registered with a fresh registry to
// avoid "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	m := newMetrics()
	prometheus.NewRegistry().MustRegister(m.collectors()...)
	return m
}
