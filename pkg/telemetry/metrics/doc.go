// Package metrics provides Prometheus metrics for the rail engine.
//
// # Metrics
//
//   - railguard_requests_total{outcome}: pipeline invocations
//   - railguard_request_duration_seconds{outcome}: pipeline latency
//   - railguard_bundle_reloads_total{result}: bundle reloads
//   - railguard_stage_verdicts_total{stage,decision}: stage verdicts
//   - railguard_stage_duration_seconds{stage}: stage latency
//   - railguard_gateway_requests_total{kind,status}: model calls
//   - railguard_gateway_duration_seconds{kind}: model call latency
//   - railguard_gateway_health{kind}: endpoint health gauge
//   - railguard_action_invocations_total{action,status}: action calls
//   - railguard_action_duration_seconds{action}: action latency
//   - railguard_action_rounds: action rounds per request
//
// # Usage
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	collector.RecordVerdict("jailbreak_detection", "block", 40*time.Microsecond)
//	http.Handle("/metrics", collector.Handler())
//
// Every Record method is safe on a nil *Collector and does nothing, and a
// collector whose config is disabled records nothing either.
package metrics
