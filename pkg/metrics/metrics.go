package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PredictionsIngested counts prediction records accepted into the window,
// labeled by ingestion path (http/kafka/serving).
var PredictionsIngested = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "modelwatch_predictions_ingested_total",
		Help: "Total number of prediction records appended to the window",
	},
	[]string{"source"},
)

// WindowSize tracks the current number of records held by the window buffer.
var WindowSize = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "modelwatch_window_records",
		Help: "Number of prediction records currently buffered",
	},
)

// Drift analysis metrics
var (
	DriftShare = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelwatch_drift_share",
			Help: "Share of testable features flagged as drifted in the last cycle",
		},
	)

	DriftedFeatures = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelwatch_drifted_features",
			Help: "Number of features flagged as drifted in the last cycle",
		},
	)

	DriftCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_drift_cycles_total",
			Help: "Total drift cycles run, by outcome (idle/accepted/rejected/failed/skipped)",
		},
		[]string{"outcome"},
	)
)

// Lifecycle metrics
var (
	ModelSwaps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "modelwatch_model_swaps_total",
			Help: "Total successful hot swaps of the serving pointer",
		},
	)

	RetrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "modelwatch_retrain_duration_seconds",
			Help:    "Wall-clock duration of training job invocations",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	PredictionsServed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelwatch_predictions_served_total",
			Help: "Total predictions served through the active model",
		},
		[]string{"label"},
	)
)

func init() {
	prometheus.MustRegister(PredictionsIngested, WindowSize)
	prometheus.MustRegister(DriftShare, DriftedFeatures, DriftCycles)
	prometheus.MustRegister(ModelSwaps, RetrainDuration, PredictionsServed)
}
