package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for dataset
// loading and query answering.
type Metrics struct {
	RowsLoaded   prometheus.Counter
	RowsDropped  *prometheus.CounterVec // labels: reason={invalid_timestamp,malformed}
	LoadDuration prometheus.Histogram
	DatasetRows  prometheus.Gauge

	// Snapshot cache metrics.
	SnapshotLoads *prometheus.CounterVec // labels: result={hit,miss,error}
	SnapshotSaves *prometheus.CounterVec // labels: outcome={success,error}

	// Query metrics.
	Queries           *prometheus.CounterVec // labels: operation
	ConfidenceLabels  *prometheus.CounterVec // labels: label
	IntersectionCache *prometheus.CounterVec // labels: result={hit,miss}

	// Audit sink metrics.
	AuditPublished *prometheus.CounterVec // labels: outcome={success,error}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RowsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "rows_loaded_total",
			Help:      "Total observation rows kept after cleaning.",
		}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "rows_dropped_total",
			Help:      "Rows discarded at load time by reason.",
		}, []string{"reason"}),
		LoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "parking_odds",
			Name:      "load_duration_seconds",
			Help:      "Duration of reading and cleaning the source dataset.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parking_odds",
			Name:      "dataset_rows",
			Help:      "Observations held in memory.",
		}),
		SnapshotLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "snapshot_loads_total",
			Help:      "Snapshot cache reads by result.",
		}, []string{"result"}),
		SnapshotSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "snapshot_saves_total",
			Help:      "Snapshot cache writes by outcome.",
		}, []string{"outcome"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "queries_total",
			Help:      "Query engine calls by operation.",
		}, []string{"operation"}),
		ConfidenceLabels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "confidence_labels_total",
			Help:      "Free-space confidence labels returned.",
		}, []string{"label"}),
		IntersectionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "intersection_cache_total",
			Help:      "Intersection set cache lookups by result.",
		}, []string{"result"}),
		AuditPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "parking_odds",
			Name:      "audit_published_total",
			Help:      "Query audit events published by outcome.",
		}, []string{"outcome"}),
	}

	prometheus.MustRegister(
		m.RowsLoaded,
		m.RowsDropped,
		m.LoadDuration,
		m.DatasetRows,
		m.SnapshotLoads,
		m.SnapshotSaves,
		m.Queries,
		m.ConfidenceLabels,
		m.IntersectionCache,
		m.AuditPublished,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RowsLoaded:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "parking_odds", Name: "rows_loaded_total"}),
		RowsDropped:       prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "rows_dropped_total"}, []string{"reason"}),
		LoadDuration:      prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "parking_odds", Name: "load_duration_seconds"}),
		DatasetRows:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "parking_odds", Name: "dataset_rows"}),
		SnapshotLoads:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "snapshot_loads_total"}, []string{"result"}),
		SnapshotSaves:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "snapshot_saves_total"}, []string{"outcome"}),
		Queries:           prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "queries_total"}, []string{"operation"}),
		ConfidenceLabels:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "confidence_labels_total"}, []string{"label"}),
		IntersectionCache: prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "intersection_cache_total"}, []string{"result"}),
		AuditPublished:    prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "parking_odds", Name: "audit_published_total"}, []string{"outcome"}),
	}
}
