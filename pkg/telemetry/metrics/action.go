package metrics

import (
	"time"

	"mercator-hq/railguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ActionMetrics tracks custom action invocations.
//
// Metrics:
//   - railguard_action_invocations_total: invocations by action and status
//   - railguard_action_duration_seconds: handler latency
//   - railguard_action_rounds: action resolution rounds per request
type ActionMetrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rounds      prometheus.Histogram
}

// NewActionMetrics creates and registers action metrics with the provided registry.
func NewActionMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *ActionMetrics {
	am := &ActionMetrics{
		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "action_invocations_total",
				Help:      "Total number of action invocations by action and status",
			},
			[]string{"action", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "action_duration_seconds",
				Help:      "Action handler latency in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8), // 0.5ms to ~8s
			},
			[]string{"action"},
		),

		rounds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "action_rounds",
				Help:      "Number of action resolution rounds per request",
				Buckets:   []float64{0, 1, 2, 3, 5, 8},
			},
		),
	}

	registry.MustRegister(
		am.invocations,
		am.duration,
		am.rounds,
	)

	return am
}

// RecordInvocation records one invocation.
func (am *ActionMetrics) RecordInvocation(action, status string, duration time.Duration) {
	am.invocations.WithLabelValues(action, status).Inc()
	am.duration.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordRounds records the rounds used by one request.
func (am *ActionMetrics) RecordRounds(rounds int) {
	am.rounds.Observe(float64(rounds))
}
