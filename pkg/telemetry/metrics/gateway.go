package metrics

import (
	"time"

	"mercator-hq/railguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics tracks model endpoint calls.
//
// Metrics:
//   - railguard_gateway_requests_total: model calls by endpoint kind and status
//   - railguard_gateway_duration_seconds: model call latency
//   - railguard_gateway_health: endpoint health (1=healthy, 0=unhealthy)
type GatewayMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	health   *prometheus.GaugeVec
}

// NewGatewayMetrics creates and registers gateway metrics with the provided registry.
func NewGatewayMetrics(cfg config.MetricsConfig, registry *prometheus.Registry) *GatewayMetrics {
	gm := &GatewayMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gateway_requests_total",
				Help:      "Total number of model calls by endpoint kind and status",
			},
			[]string{"kind", "status"},
		),

		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gateway_duration_seconds",
				Help:      "Model call latency in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"kind"},
		),

		health: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "gateway_health",
				Help:      "Model endpoint health status (1=healthy, 0=unhealthy)",
			},
			[]string{"kind"},
		),
	}

	registry.MustRegister(
		gm.requests,
		gm.duration,
		gm.health,
	)

	return gm
}

// RecordRequest records one model call.
func (gm *GatewayMetrics) RecordRequest(kind, status string, duration time.Duration) {
	gm.requests.WithLabelValues(kind, status).Inc()
	gm.duration.WithLabelValues(kind).Observe(duration.Seconds())
}

// UpdateHealth sets the health gauge for kind.
func (gm *GatewayMetrics) UpdateHealth(kind string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	gm.health.WithLabelValues(kind).Set(value)
}
