package providers

import (
	"log/slog"
	"time"
)

// unhealthyAfter is the number of consecutive failures that marks a
// provider unhealthy.
const unhealthyAfter = 3

// Health returns the provider's request history.
func (p *HTTPProvider) Health() Health {
	p.healthMu.RLock()
	defer p.healthMu.RUnlock()
	return p.health
}

// IsHealthy reports whether the provider is currently considered healthy.
func (p *HTTPProvider) IsHealthy() bool {
	return p.Health().IsHealthy
}

// record updates the health state after a request or health check.
func (p *HTTPProvider) record(success bool, err error) {
	p.healthMu.Lock()
	defer p.healthMu.Unlock()

	now := time.Now()
	p.health.LastCheck = now
	p.health.TotalRequests++

	if success {
		p.health.IsHealthy = true
		p.health.ConsecutiveFailures = 0
		p.health.LastError = nil
		p.health.LastSuccessfulRequest = now
		return
	}

	p.health.FailedRequests++
	p.health.ConsecutiveFailures++
	p.health.LastError = err

	if p.health.ConsecutiveFailures == unhealthyAfter {
		p.health.IsHealthy = false
		slog.Warn("provider marked unhealthy",
			"provider", p.config.Name,
			"consecutive_failures", p.health.ConsecutiveFailures,
			"error", err,
		)
	}
}
