package metrics

import (
	"time"

	"mercator-hq/railguard/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus metrics of the rail engine and provides a
// single interface for recording them from the orchestrator, the gateway,
// the action registry and the reload loop.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without checking for it.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics *RequestMetrics
	stageMetrics   *StageMetrics
	gatewayMetrics *GatewayMetrics
	actionMetrics  *ActionMetrics
}

// NewCollector creates a collector and registers its metrics with registry.
// If registry is nil a new one is created.
//
// Example:
//
//	collector := metrics.NewCollector(config.MetricsConfig{}, nil)
//	http.Handle("/metrics", collector.Handler())
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "railguard"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// A turn spans one to a few model calls (10ms - 60s).
		cfg.RequestDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0, 60.0}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.stageMetrics = NewStageMetrics(cfg, registry)
	c.gatewayMetrics = NewGatewayMetrics(cfg, registry)
	c.actionMetrics = NewActionMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.IsEnabled()
}

// RecordRequest records one finished pipeline invocation.
//
// Outcomes: "allowed", "rewritten", "blocked", "error".
func (c *Collector) RecordRequest(outcome string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordRequest(outcome, duration)
}

// RecordReload records a bundle reload attempt ("success" or "error").
func (c *Collector) RecordReload(result string) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.RecordReload(result)
}

// RecordVerdict records one stage verdict and how long the stage took.
func (c *Collector) RecordVerdict(stage, decision string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.stageMetrics.RecordVerdict(stage, decision, duration)
}

// RecordGatewayRequest records one model call.
//
// Parameters:
//   - kind: endpoint kind ("hosted", "self_hosted")
//   - status: "success", "timeout", "auth", "rate_limit", "error"
//   - duration: wall time of the call
func (c *Collector) RecordGatewayRequest(kind, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.gatewayMetrics.RecordRequest(kind, status, duration)
}

// UpdateGatewayHealth sets the gateway health gauge (1=healthy, 0=unhealthy).
func (c *Collector) UpdateGatewayHealth(kind string, healthy bool) {
	if !c.enabled() {
		return
	}
	c.gatewayMetrics.UpdateHealth(kind, healthy)
}

// RecordActionInvocation records one action call.
//
// Statuses: "success", "invalid_argument", "timeout", "failed".
func (c *Collector) RecordActionInvocation(action, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.actionMetrics.RecordInvocation(action, status, duration)
}

// RecordActionRounds records how many action rounds a request needed.
func (c *Collector) RecordActionRounds(rounds int) {
	if !c.enabled() {
		return
	}
	c.actionMetrics.RecordRounds(rounds)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}
