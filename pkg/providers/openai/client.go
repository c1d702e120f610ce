package openai

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"mercator-hq/railguard/pkg/providers"
)

// DefaultBaseURL is the hosted OpenAI API.
const DefaultBaseURL = "https://api.openai.com/v1"

// Provider is the OpenAI chat completions adapter. It also speaks to any
// OpenAI-compatible server.
type Provider struct {
	*providers.HTTPProvider
}

// NewProvider creates a provider for the hosted OpenAI API. An API key is
// required.
func NewProvider(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "openai",
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for OpenAI",
		}
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Type == "" {
		config.Type = "openai"
	}
	return NewCompatible(config)
}

// NewCompatible creates a provider for an OpenAI-compatible server. The API
// key is optional and the base URL is required.
func NewCompatible(config providers.Config) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "openai",
			Field:    "name",
			Message:  "provider name is required",
		}
	}
	if config.BaseURL == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "base_url",
			Message:  "base URL is required",
		}
	}

	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}

	p := &Provider{HTTPProvider: providers.NewHTTPProvider(config)}

	slog.Info("OpenAI-compatible provider initialized",
		"provider", config.Name,
		"type", config.Type,
		"base_url", config.BaseURL,
	)
	return p, nil
}

// Complete sends one chat completion request.
func (p *Provider) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var chatResp ChatResponse
	url := p.Config().BaseURL + "/chat/completions"
	if err := p.DoJSONRequest(ctx, http.MethodPost, url, transformRequest(req), &chatResp, p.headers()); err != nil {
		return nil, err
	}

	resp, err := transformResponse(&chatResp)
	if err != nil {
		return nil, &providers.ParseError{Provider: p.Name(), Cause: err}
	}

	slog.Debug("completion request succeeded",
		"provider", p.Name(),
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"tool_calls", len(resp.ToolCalls),
	)
	return resp, nil
}

// HealthCheck lists models, which is cheap on OpenAI and on NIM or vLLM
// servers.
func (p *Provider) HealthCheck(ctx context.Context) error {
	var models struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	return p.DoJSONRequest(ctx, http.MethodGet, p.Config().BaseURL+"/models", nil, &models, p.headers())
}

func (p *Provider) headers() map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if key := p.Config().APIKey; key != "" {
		h["Authorization"] = "Bearer " + key
	}
	return h
}

func validateRequest(req *providers.CompletionRequest) error {
	if req == nil {
		return &providers.ValidationError{Field: "request", Message: "request cannot be nil"}
	}
	if req.Model == "" {
		return &providers.ValidationError{Field: "model", Message: "model is required"}
	}
	if len(req.Messages) == 0 {
		return &providers.ValidationError{Field: "messages", Message: "at least one message is required"}
	}
	return nil
}
