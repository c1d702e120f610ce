package providers

import (
	"testing"
	"time"

	"mercator-hq/railguard/pkg/providers"
)

// ChatPath is the chat completions path under a /v1 base URL.
const ChatPath = "/v1/chat/completions"

// ModelsPath is the model listing path under a /v1 base URL.
const ModelsPath = "/v1/models"

// TestConfig returns a provider configuration for tests.
func TestConfig(name, providerType string) providers.Config {
	return providers.Config{
		Name:                name,
		Type:                providerType,
		BaseURL:             "http://localhost:8080/v1",
		APIKey:              "test-key",
		Timeout:             5 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}
}

// TestConfigWithURL returns a test configuration pointing at baseURL.
func TestConfigWithURL(name, providerType, baseURL string) providers.Config {
	config := TestConfig(name, providerType)
	config.BaseURL = baseURL
	return config
}

// TestCompletionRequest creates a completion request with user messages.
func TestCompletionRequest(model string, contents ...string) *providers.CompletionRequest {
	req := &providers.CompletionRequest{Model: model, MaxTokens: 100}
	for _, c := range contents {
		req.Messages = append(req.Messages, providers.Message{Role: providers.RoleUser, Content: c})
	}
	return req
}

// WaitForCondition polls condition until it holds or timeout passes.
func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s: %s", timeout, message)
		}
		<-ticker.C
	}
}
