package gateway

import (
	"fmt"
	"net/url"
	"time"

	"mercator-hq/railguard/pkg/rails"
)

// Kind selects the provider adapter for an endpoint.
type Kind string

const (
	// KindHosted is the hosted OpenAI API. An API key is required.
	KindHosted Kind = "hosted"

	// KindSelfHosted is an OpenAI-compatible server run by the operator,
	// such as NVIDIA NIM. A base URL is required and the key is optional.
	KindSelfHosted Kind = "self_hosted"
)

// DefaultTimeout bounds a model call when the endpoint sets none.
const DefaultTimeout = 30 * time.Second

// Endpoint describes where and how completions are requested.
type Endpoint struct {
	Kind    Kind
	Model   string
	BaseURL string
	APIKey  string

	// Timeout bounds one model call. Zero selects DefaultTimeout.
	Timeout time.Duration

	// Temperature is passed through when set.
	Temperature *float64

	// MaxTokens is passed through when positive.
	MaxTokens int
}

// Validate reports a ConfigurationInvalid error for an unusable endpoint.
func (e Endpoint) Validate() error {
	invalid := func(detail string) error {
		return rails.NewError(rails.ErrConfigurationInvalid, "gateway.endpoint", detail, nil)
	}

	switch e.Kind {
	case KindHosted:
		if e.APIKey == "" {
			return invalid("hosted endpoint requires an API key")
		}
	case KindSelfHosted:
		if e.BaseURL == "" {
			return invalid("self-hosted endpoint requires a base URL")
		}
	default:
		return invalid(fmt.Sprintf("unknown endpoint kind %q", e.Kind))
	}

	if e.Model == "" {
		return invalid("model is required")
	}
	if e.BaseURL != "" {
		u, err := url.Parse(e.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid(fmt.Sprintf("base URL %q must be an absolute http or https URL", e.BaseURL))
		}
	}
	if e.Timeout < 0 {
		return invalid("timeout must be positive")
	}
	if e.Temperature != nil && (*e.Temperature < 0 || *e.Temperature > 2) {
		return invalid("temperature must be between 0 and 2")
	}
	if e.MaxTokens < 0 {
		return invalid("max tokens must be non-negative")
	}
	return nil
}

func (e Endpoint) timeout() time.Duration {
	if e.Timeout == 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

// String describes the endpoint without its credential.
func (e Endpoint) String() string {
	key := "none"
	if e.APIKey != "" {
		key = "set"
	}
	base := e.BaseURL
	if base == "" {
		base = "default"
	}
	return fmt.Sprintf("%s model=%s base_url=%s api_key=%s", e.Kind, e.Model, base, key)
}
