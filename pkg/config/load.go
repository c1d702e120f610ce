package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Option adjusts a bundle after environment overrides and before
// validation. The CLI uses options to inject a credential or swap the
// endpoint.
type Option func(*Bundle)

// WithAPIKey sets the main model's API key if the bundle has none.
func WithAPIKey(key string) Option {
	return func(b *Bundle) {
		if key == "" {
			return
		}
		m, ok := b.MainModel()
		if !ok || m.Parameters.APIKey != "" {
			return
		}
		m.Parameters.APIKey = key
		b.SetMainModel(m)
	}
}

// WithSecretResolver rewrites the API key of every model through resolve,
// which expands ${secret:name} references. A failed resolution leaves the
// key untouched and validation reports the unresolved reference.
func WithSecretResolver(resolve func(string) (string, error)) Option {
	return func(b *Bundle) {
		for i := range b.Models {
			key := b.Models[i].Parameters.APIKey
			if key == "" {
				continue
			}
			if resolved, err := resolve(key); err == nil {
				b.Models[i].Parameters.APIKey = resolved
			}
		}
	}
}

// WithMainModel replaces the main model. Defaults are applied to the new
// entry.
func WithMainModel(m ModelConfig) Option {
	return func(b *Bundle) {
		if m.Kind == "" {
			m.Kind = InferKind(m.Engine)
		}
		if m.Parameters.Timeout == 0 {
			m.Parameters.Timeout = DefaultModelTimeout
		}
		b.SetMainModel(m)
	}
}

// ResolvePath returns the bundle file for path. A directory resolves to the
// railguard.yaml inside it.
func ResolvePath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to access bundle %q: %w", path, err)
	}
	if info.IsDir() {
		return filepath.Join(path, BundleFileName), nil
	}
	return path, nil
}

// Read parses a bundle without applying defaults or validating it.
func Read(path string) (*Bundle, error) {
	file, err := ResolvePath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read bundle file %q: %w", file, err)
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to parse bundle file %q: %w", file, err)
	}
	b.Path = file
	if b.Name == "" {
		// A bundle directory names its bundle.
		b.Name = filepath.Base(filepath.Dir(file))
	}

	return &b, nil
}

// Load reads a bundle from a file or bundle directory, applies defaults,
// environment overrides and options, and validates the result.
//
// The loading sequence is:
//  1. Parse YAML
//  2. Apply default values
//  3. Apply environment variable overrides
//  4. Apply options
//  5. Validate
func Load(path string, opts ...Option) (*Bundle, error) {
	b, err := Read(path)
	if err != nil {
		return nil, err
	}

	ApplyDefaults(b)
	applyEnvOverrides(b)
	for _, opt := range opts {
		opt(b)
	}

	if err := Validate(b); err != nil {
		return nil, fmt.Errorf("bundle %q: %w", b.Path, err)
	}

	return b, nil
}

// ResolveFile resolves a path from the bundle relative to its directory.
func (b *Bundle) ResolveFile(path string) string {
	if path == "" || filepath.IsAbs(path) || b.Path == "" {
		return path
	}
	return filepath.Join(filepath.Dir(b.Path), path)
}

// applyEnvOverrides applies RAILGUARD_* environment variables. They override
// the main model and logging settings only; credentials for the hosted
// API (OPENAI_API_KEY) are read by the CLI and passed with WithAPIKey.
func applyEnvOverrides(b *Bundle) {
	m, hasModel := b.MainModel()
	modified := false

	if val := os.Getenv("RAILGUARD_MODEL_KIND"); val != "" {
		m.Kind = val
		modified = true
	}
	if val := os.Getenv("RAILGUARD_MODEL_ENGINE"); val != "" {
		m.Engine = val
		if os.Getenv("RAILGUARD_MODEL_KIND") == "" {
			m.Kind = InferKind(val)
		}
		modified = true
	}
	if val := os.Getenv("RAILGUARD_MODEL_NAME"); val != "" {
		m.Model = val
		modified = true
	}
	if val := os.Getenv("RAILGUARD_MODEL_BASE_URL"); val != "" {
		m.Parameters.BaseURL = val
		modified = true
	}
	if val := os.Getenv("RAILGUARD_MODEL_API_KEY"); val != "" {
		m.Parameters.APIKey = val
		modified = true
	}
	if val := os.Getenv("RAILGUARD_MODEL_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			m.Parameters.Timeout = d
			modified = true
		}
	}

	if modified {
		if !hasModel {
			m.Type = "main"
			if m.Kind == "" {
				m.Kind = InferKind(m.Engine)
			}
			if m.Parameters.Timeout == 0 {
				m.Parameters.Timeout = DefaultModelTimeout
			}
		}
		b.SetMainModel(m)
	}

	if val := os.Getenv("RAILGUARD_ORCHESTRATOR_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			b.Orchestrator.Retries = i
		}
	}

	if val := os.Getenv("RAILGUARD_LOG_LEVEL"); val != "" {
		b.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("RAILGUARD_LOG_FORMAT"); val != "" {
		b.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("RAILGUARD_METRICS_ENABLED"); val != "" {
		if v, err := strconv.ParseBool(val); err == nil {
			b.Telemetry.Metrics.Enabled = Bool(v)
		}
	}
	if val := os.Getenv("RAILGUARD_LISTEN_ADDRESS"); val != "" {
		b.Server.ListenAddress = val
	}
}
