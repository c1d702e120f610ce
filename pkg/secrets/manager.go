package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// secretRefRegex matches ${secret:name} references.
var secretRefRegex = regexp.MustCompile(`\$\{secret:([^}]+)\}`)

// Manager resolves secrets through providers in order, caching values.
// It is safe for concurrent use.
type Manager struct {
	providers []Provider
	cache     *cache
	logger    *slog.Logger
}

// NewManager creates a manager. A ttl of zero disables caching.
func NewManager(providers []Provider, ttl time.Duration) *Manager {
	return &Manager{
		providers: providers,
		cache:     newCache(ttl),
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger used for lookup diagnostics.
func (m *Manager) WithLogger(logger *slog.Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// GetSecret returns the first value any provider has for name. Provider
// failures other than ErrNotFound are returned rather than skipped, so a
// misconfigured secret file is not masked by a stale environment variable.
func (m *Manager) GetSecret(ctx context.Context, name string) (string, error) {
	if value, ok := m.cache.get(name); ok {
		return value, nil
	}

	for _, p := range m.providers {
		value, err := p.GetSecret(ctx, name)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("secret %q from %s: %w", name, p.Name(), err)
		}
		m.cache.set(name, value)
		m.logger.Debug("secret resolved", "name", name, "provider", p.Name())
		return value, nil
	}
	return "", fmt.Errorf("%w: %q", ErrNotFound, name)
}

// ResolveReferences replaces every ${secret:name} in input. Unresolved
// references are left in place and reported together in the error.
func (m *Manager) ResolveReferences(ctx context.Context, input string) (string, error) {
	var failures []string

	output := secretRefRegex.ReplaceAllStringFunc(input, func(match string) string {
		name := strings.TrimSpace(secretRefRegex.FindStringSubmatch(match)[1])
		value, err := m.GetSecret(ctx, name)
		if err != nil {
			failures = append(failures, err.Error())
			return match
		}
		return value
	})

	if len(failures) > 0 {
		return output, fmt.Errorf("failed to resolve secret references: %s", strings.Join(failures, "; "))
	}
	return output, nil
}

// Refresh drops cached values.
func (m *Manager) Refresh() {
	m.cache.clear()
}

// IsReference reports whether s contains a ${secret:...} reference.
func IsReference(s string) bool {
	return secretRefRegex.MatchString(s)
}
