package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	transitions    *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	stageLatency   *prometheus.HistogramVec
	riskScore      *prometheus.HistogramVec
	dispatches     *prometheus.CounterVec
	dispatchTime   *prometheus.HistogramVec
	activePipeline prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		transitions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgate_stage_transitions_total",
				Help: "Pipeline stage transitions",
			},
			[]string{"kind", "stage"},
		),
		outcomes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgate_pipeline_outcomes_total",
				Help: "Terminal pipeline outcomes (completed or error kind)",
			},
			[]string{"kind", "outcome"},
		),
		stageLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskgate_stage_duration_seconds",
				Help:    "Time spent inside a pipeline stage",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		riskScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskgate_risk_score",
				Help:    "Composite risk score distribution",
				Buckets: []float64{10, 25, 50, 75, 90, 100},
			},
			[]string{"level"},
		),
		dispatches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgate_provider_dispatch_total",
				Help: "Provider dispatch attempts",
			},
			[]string{"provider", "result"},
		),
		dispatchTime: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskgate_provider_dispatch_seconds",
				Help:    "Provider dispatch latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		activePipeline: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskgate_active_pipelines",
				Help: "Pipelines not yet in a terminal stage",
			},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskgate_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskgate_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordStageTransition(kind, stage string) {
	r.transitions.WithLabelValues(kind, stage).Inc()
}

func (r *Recorder) RecordOutcome(kind, outcome string) {
	r.outcomes.WithLabelValues(kind, outcome).Inc()
}

func (r *Recorder) RecordStageLatency(stage string, seconds float64) {
	r.stageLatency.WithLabelValues(stage).Observe(seconds)
}

func (r *Recorder) RecordRiskScore(level string, score int) {
	r.riskScore.WithLabelValues(level).Observe(float64(score))
}

func (r *Recorder) RecordProviderDispatch(provider, result string, seconds float64) {
	r.dispatches.WithLabelValues(provider, result).Inc()
	r.dispatchTime.WithLabelValues(provider).Observe(seconds)
}

func (r *Recorder) RecordActivePipelines(n int) {
	r.activePipeline.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
