package generic

import (
	"mercator-hq/railguard/pkg/providers"
	"mercator-hq/railguard/pkg/providers/openai"
)

// TypeName is the adapter type reported by generic providers.
const TypeName = "generic"

// Provider is an adapter for self-hosted OpenAI-compatible servers such as
// NVIDIA NIM, vLLM, Ollama or LM Studio.
type Provider struct {
	*openai.Provider
}

// NewProvider creates a generic provider. The base URL is required and the
// API key is optional.
func NewProvider(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: TypeName,
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "base_url",
			Message:  "base URL is required for generic provider",
		}
	}

	// Local servers rarely need large pools.
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 10
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 5
	}
	config.Type = TypeName

	p, err := openai.NewCompatible(config)
	if err != nil {
		return nil, err
	}
	return &Provider{Provider: p}, nil
}
