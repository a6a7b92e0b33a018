package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine-level metrics, registered on the default registry and exported on
// /metrics next to the REST API.
var (
	CyclesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "cycles_total",
		Help:      "Completed batch passes.",
	})

	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "kestrel",
		Name:      "cycle_duration_seconds",
		Help:      "Wall-clock duration of one full batch pass.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	SeriesEvaluated = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "series_evaluated",
		Help:      "Sample series evaluated in the most recent alert pass.",
	})

	AlertEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "alert_events_total",
		Help:      "Alert events emitted, by status.",
	}, []string{"status"})

	JobsScored = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "jobs_scored",
		Help:      "Jobs scored in the most recent analytics pass.",
	})

	JobsSkipped = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "jobs_skipped",
		Help:      "Jobs excluded from the most recent comparison population.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "graph_edges",
		Help:      "Edges in the most recent similarity graph.",
	})

	LayoutConverged = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "layout_converged",
		Help:      "Whether the most recent layout run converged (1) or hit a budget (0).",
	})

	ProcessingErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "processing_errors_total",
		Help:      "Recorded per-item processing errors, by stage.",
	}, []string{"stage"})

	SamplesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kestrel",
		Name:      "samples_ingested_total",
		Help:      "Samples appended to the store, by collector.",
	}, []string{"collector"})
)
