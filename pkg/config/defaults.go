package config

import "time"

// Default values for configuration fields.
const (
	// Model defaults
	DefaultModelTimeout = 30 * time.Second

	// Action defaults
	DefaultActionTimeout = 10 * time.Second

	// Orchestrator defaults
	DefaultMaxActionRounds      = 3
	DefaultRetries              = 0
	DefaultRetryInitialInterval = 500 * time.Millisecond
	DefaultRetryMaxInterval     = 5 * time.Second

	// Message defaults
	DefaultGenericFailure = "I'm sorry, I wasn't able to generate a response right now. Please try again later."

	// Telemetry defaults
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultMetricsPath = "/metrics"

	// Reload defaults
	DefaultReloadDebounce = 100 * time.Millisecond

	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = int64(1 << 20)

	// BundleFileName is the bundle file looked up inside a bundle directory.
	BundleFileName = "railguard.yaml"
)

// ApplyDefaults fills unset fields with their defaults. Stage parameters are
// left at zero; each stage applies its own defaults when built.
func ApplyDefaults(b *Bundle) {
	for i := range b.Models {
		m := &b.Models[i]
		if m.Type == "" && i == 0 {
			m.Type = "main"
		}
		if m.Kind == "" {
			m.Kind = InferKind(m.Engine)
		}
		if m.Parameters.Timeout == 0 {
			m.Parameters.Timeout = DefaultModelTimeout
		}
	}

	if b.Actions.Timeout == 0 {
		b.Actions.Timeout = DefaultActionTimeout
	}

	if b.Orchestrator.MaxActionRounds == 0 {
		b.Orchestrator.MaxActionRounds = DefaultMaxActionRounds
	}
	if b.Orchestrator.RetryInitialInterval == 0 {
		b.Orchestrator.RetryInitialInterval = DefaultRetryInitialInterval
	}
	if b.Orchestrator.RetryMaxInterval == 0 {
		b.Orchestrator.RetryMaxInterval = DefaultRetryMaxInterval
	}

	if b.Messages.GenericFailure == "" {
		b.Messages.GenericFailure = DefaultGenericFailure
	}

	if b.Telemetry.Logging.Level == "" {
		b.Telemetry.Logging.Level = DefaultLogLevel
	}
	if b.Telemetry.Logging.Format == "" {
		b.Telemetry.Logging.Format = DefaultLogFormat
	}
	if b.Telemetry.Metrics.Path == "" {
		b.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if b.Telemetry.Metrics.Namespace == "" {
		b.Telemetry.Metrics.Namespace = "railguard"
	}

	if b.Reload.Debounce == 0 {
		b.Reload.Debounce = DefaultReloadDebounce
	}

	if b.Server.ListenAddress == "" {
		b.Server.ListenAddress = DefaultListenAddress
	}
	if b.Server.ReadTimeout == 0 {
		b.Server.ReadTimeout = DefaultReadTimeout
	}
	if b.Server.WriteTimeout == 0 {
		b.Server.WriteTimeout = DefaultWriteTimeout
	}
	if b.Server.ShutdownTimeout == 0 {
		b.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if b.Server.MaxBodyBytes == 0 {
		b.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}
}
