package metrics

import (
	"time"

	"mercator-hq/railguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// StageMetrics tracks policy stage verdicts.
//
// Metrics:
//   - railguard_stage_verdicts_total: verdicts by stage and decision
//   - railguard_stage_duration_seconds: stage evaluation latency
type StageMetrics struct {
	verdictsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
}

// NewStageMetrics creates and registers stage metrics with the provided registry.
func NewStageMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *StageMetrics {
	sm := &StageMetrics{
		verdictsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_verdicts_total",
				Help:      "Total number of stage verdicts by stage and decision",
			},
			[]string{"stage", "decision"},
		),

		// Stages are local computations; buckets start well below a millisecond.
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "stage_duration_seconds",
				Help:      "Duration of stage evaluations in seconds",
				Buckets:   []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
			},
			[]string{"stage"},
		),
	}

	registry.MustRegister(
		sm.verdictsTotal,
		sm.duration,
	)

	return sm
}

// RecordVerdict records one verdict.
func (sm *StageMetrics) RecordVerdict(stage, decision string, duration time.Duration) {
	sm.verdictsTotal.WithLabelValues(stage, decision).Inc()
	sm.duration.WithLabelValues(stage).Observe(duration.Seconds())
}
