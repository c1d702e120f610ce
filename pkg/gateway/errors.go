package gateway

import (
	"context"
	"errors"

	"mercator-hq/railguard/pkg/providers"
	"mercator-hq/railguard/pkg/rails"
)

// classify maps a provider error into the rails taxonomy. Deadlines become
// ProviderTimeout; everything else the endpoint did (refused, rejected,
// failed, garbled) is ProviderUnavailable.
func classify(err error) error {
	var timeoutErr *providers.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(err, context.DeadlineExceeded) {
		return rails.NewError(rails.ErrProviderTimeout, "gateway.complete", "", err)
	}
	return rails.NewError(rails.ErrProviderUnavailable, "gateway.complete", "", err)
}

// statusLabel is the metrics status for a provider error.
func statusLabel(err error) string {
	var (
		timeoutErr   *providers.TimeoutError
		authErr      *providers.AuthError
		rateLimitErr *providers.RateLimitError
	)
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateLimitErr):
		return "rate_limit"
	default:
		return "error"
	}
}
