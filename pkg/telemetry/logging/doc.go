// Package logging configures log/slog for railguard.
//
// # Overview
//
// The logging package builds *slog.Logger values with:
//   - JSON or text output at a configurable level
//   - Request-scoped fields (request_id, bundle) taken from the context
//     each record is logged with
//   - Credential masking for endpoint API keys and bearer tokens
//
// Components take a plain *slog.Logger and log with the *Context methods so
// the request ID follows a request through the orchestrator, the gateway and
// the action registry.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:         "info",
//	    Format:        "json",
//	    RedactSecrets: true,
//	})
//
//	ctx, id := logging.EnsureRequestID(ctx)
//	logger.InfoContext(ctx, "request started")  // includes request_id=<id>
//
// # Redaction
//
// With RedactSecrets enabled:
//
//   - API keys: sk-abc123xyz789 → sk-***
//   - Bearer tokens: Bearer abc.def → Bearer ***
//   - Attributes named like api_key, secret or authorization → ***
package logging
