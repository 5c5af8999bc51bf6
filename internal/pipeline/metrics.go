package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "auracast"

// Metrics holds the Prometheus instruments for pipeline runs.
type Metrics struct {
	StageDuration *prometheus.HistogramVec // labels: stage
	StageErrors   *prometheus.CounterVec   // labels: stage
	RowsWritten   *prometheus.CounterVec   // labels: stage
	RowsDropped   *prometheus.CounterVec   // labels: stage
	FetchFailures *prometheus.CounterVec   // labels: source
	Runs          *prometheus.CounterVec   // labels: outcome={success,error}

	TrainingRows       prometheus.Gauge
	TrainingMSE        prometheus.Gauge
	LastSuccessfulRun  prometheus.Gauge
	GroundReferenceSet prometheus.Gauge
}

// NewMetrics creates the pipeline metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := newMetrics()
	reg.MustRegister(
		m.StageDuration,
		m.StageErrors,
		m.RowsWritten,
		m.RowsDropped,
		m.FetchFailures,
		m.Runs,
		m.TrainingRows,
		m.TrainingMSE,
		m.LastSuccessfulRun,
		m.GroundReferenceSet,
	)
	return m
}

// NewMetricsForTesting creates unregistered metrics so tests can build as
// many pipelines as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}, []string{"stage"}),
		StageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_errors_total",
			Help:      "Pipeline stages that aborted with an error.",
		}, []string{"stage"}),
		RowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written by each stage.",
		}, []string{"stage"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Input rows discarded as malformed or incomplete.",
		}, []string{"stage"}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Upstream fetch calls that failed and were skipped.",
		}, []string{"source"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Complete pipeline runs by outcome.",
		}, []string{"outcome"}),
		TrainingRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_rows",
			Help:      "Rows used to fit the current model.",
		}),
		TrainingMSE: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "training_mse",
			Help:      "Training mean squared error of the current model.",
		}),
		LastSuccessfulRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_successful_run_timestamp_seconds",
			Help:      "Unix time of the last complete pipeline run.",
		}),
		GroundReferenceSet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ground_reference_points",
			Help:      "Ground readings available to the last alignment.",
		}),
	}
}
