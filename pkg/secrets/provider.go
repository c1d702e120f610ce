package secrets

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no provider has a secret.
var ErrNotFound = errors.New("secret not found")

// Provider retrieves secrets from a backend.
type Provider interface {
	// GetSecret retrieves a secret by name. A missing secret is reported
	// with an error matching ErrNotFound.
	GetSecret(ctx context.Context, name string) (string, error)

	// Name returns the provider name used in logs.
	Name() string
}
