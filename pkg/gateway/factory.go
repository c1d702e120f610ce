package gateway

import (
	"fmt"

	"mercator-hq/railguard/pkg/providers"
	"mercator-hq/railguard/pkg/providers/generic"
	"mercator-hq/railguard/pkg/providers/openai"
)

// ProviderFactory builds the provider adapter for a validated endpoint.
type ProviderFactory func(ep Endpoint) (providers.Provider, error)

// NewProvider creates the adapter for the endpoint kind:
//   - "hosted": the OpenAI API (pkg/providers/openai)
//   - "self_hosted": an OpenAI-compatible server (pkg/providers/generic)
func NewProvider(ep Endpoint) (providers.Provider, error) {
	cfg := providers.Config{
		Name:    string(ep.Kind),
		BaseURL: ep.BaseURL,
		APIKey:  ep.APIKey,
		Timeout: ep.timeout(),
	}

	var (
		p   providers.Provider
		err error
	)
	switch ep.Kind {
	case KindHosted:
		p, err = openai.NewProvider(cfg)
	case KindSelfHosted:
		p, err = generic.NewProvider(cfg)
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "kind",
			Message:  fmt.Sprintf("unsupported endpoint kind: %q (supported: hosted, self_hosted)", ep.Kind),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", ep.Kind, err)
	}
	return p, nil
}
