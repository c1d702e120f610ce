package metrics

import (
	"time"

	"mercator-hq/railguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks pipeline invocations.
//
// Metrics:
//   - railguard_requests_total: requests by outcome
//   - railguard_request_duration_seconds: end-to-end pipeline latency
//   - railguard_bundle_reloads_total: bundle reloads by result
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	reloadsTotal    *prometheus.CounterVec
}

// NewRequestMetrics creates and registers request metrics with the provided registry.
func NewRequestMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "requests_total",
				Help:      "Total number of conversation turns processed",
			},
			[]string{"outcome"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "request_duration_seconds",
				Help:      "Duration of pipeline invocations in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"outcome"},
		),

		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "bundle_reloads_total",
				Help:      "Total number of rail bundle reloads",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.reloadsTotal,
	)

	return rm
}

// RecordRequest records a finished request.
func (rm *RequestMetrics) RecordRequest(outcome string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(outcome).Inc()
	rm.requestDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordReload records a reload attempt.
func (rm *RequestMetrics) RecordReload(result string) {
	rm.reloadsTotal.WithLabelValues(result).Inc()
}
