// Package telemetry groups railguard's observability packages.
//
//   - logging: slog construction from bundle settings and request IDs on
//     the context
//   - metrics: Prometheus collectors for requests, stages, gateway calls,
//     actions and bundle reloads
//
// Both are configured from the bundle's telemetry section:
//
//	telemetry:
//	  logging:
//	    level: info
//	    format: json
//	  metrics:
//	    enabled: true
//	    path: /metrics
package telemetry
