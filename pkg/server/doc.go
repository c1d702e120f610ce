// Package server exposes a rail engine over HTTP.
//
// # Routes
//
//   - POST /v1/generate - run one guarded request
//   - GET /healthz - liveness, always 200 while the process runs
//   - GET /readyz - readiness, probes the current model endpoint
//   - GET /metrics - Prometheus metrics, when a collector is configured
//
// A generate request carries the conversation so far:
//
//	{"messages": [{"role": "user", "content": "What time is it?"}]}
//
// and gets back the guarded answer:
//
//	{"content": "It's 14:30.", "blocked": false, "request_id": "..."}
//
// Blocked requests are still 200 responses, with blocked set and the
// refusal in content. Failures return the bundle's generic failure text in
// content along with a status code:
//
//   - 400 for malformed bodies and invalid conversations
//   - 502 when the model endpoint is unavailable
//   - 504 on model or action timeouts
//   - 500 for everything else
//
// Error bodies never include internal detail; it is logged under the
// request's X-Request-ID instead.
//
// # Lifecycle
//
//	srv := server.NewServer(bundle.Server, eng,
//	    server.WithLogger(logger),
//	    server.WithMetrics(collector, bundle.Telemetry.Metrics.Path),
//	)
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start blocks until ctx is cancelled and then shuts down gracefully,
// waiting up to the configured shutdown timeout for in-flight requests.
package server
