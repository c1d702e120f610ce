package openai

import (
	"context"
	"errors"
	"testing"
	"time"

	testhelpers "mercator-hq/railguard/internal/providers"
	"mercator-hq/railguard/pkg/providers"
)

func newTestProvider(t *testing.T, mock *testhelpers.MockServer) *Provider {
	t.Helper()
	config := testhelpers.TestConfigWithURL("openai", "openai", mock.URL()+"/v1")
	provider, err := NewProvider(config)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { provider.Close() })
	return provider
}

func TestOpenAIProvider_Complete(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse(testhelpers.ChatPath, testhelpers.OK(
		testhelpers.MockChatCompletion("Hello, world!", "gpt-3.5-turbo-instruct"),
	))

	provider := newTestProvider(t, mock)

	resp, err := provider.Complete(context.Background(), testhelpers.TestCompletionRequest("gpt-3.5-turbo-instruct", "Hello"))
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.Content != "Hello, world!" {
		t.Errorf("expected content %q, got %q", "Hello, world!", resp.Content)
	}
	if resp.Model != "gpt-3.5-turbo-instruct" {
		t.Errorf("expected model gpt-3.5-turbo-instruct, got %s", resp.Model)
	}
	if resp.FinishReason != providers.FinishReasonStop {
		t.Errorf("expected finish reason stop, got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 30 {
		t.Errorf("expected 30 total tokens, got %d", resp.Usage.TotalTokens)
	}

	reqs := mock.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 request, got %d", len(reqs))
	}
	if got := reqs[0].Header.Get("Authorization"); got != "Bearer test-key" {
		t.Errorf("expected bearer header, got %q", got)
	}
}

func TestOpenAIProvider_ToolCalls(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.SetResponse(testhelpers.ChatPath, testhelpers.OK(
		testhelpers.MockToolCallCompletion("gpt-4",
			testhelpers.MockToolCall{ID: "call_time", Name: "get_current_time"},
		),
	))

	provider := newTestProvider(t, mock)

	req := &providers.CompletionRequest{
		Model: "gpt-4",
		Messages: []providers.Message{
			{Role: providers.RoleUser, Content: "What time is it?"},
			{
				Role: providers.RoleAssistant,
				ToolCalls: []providers.ToolCall{{
					ID:       "call_prev",
					Type:     providers.ToolTypeFunction,
					Function: providers.FunctionCall{Name: "get_current_date", Arguments: "{}"},
				}},
			},
			{Role: providers.RoleTool, Content: "2026-10-14", ToolCallID: "call_prev"},
		},
		Tools: []providers.Tool{{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:        "get_current_time",
				Description: "Returns the current time.",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
	}

	resp, err := provider.Complete(context.Background(), req)
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	if resp.FinishReason != providers.FinishReasonToolCalls {
		t.Errorf("expected finish reason tool_calls, got %s", resp.FinishReason)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(resp.ToolCalls))
	}
	call := resp.ToolCalls[0]
	if call.ID != "call_time" || call.Function.Name != "get_current_time" || call.Function.Arguments != "{}" {
		t.Errorf("unexpected tool call %+v", call)
	}
	if resp.Content != "" {
		t.Errorf("expected empty content for tool call, got %q", resp.Content)
	}

	body, err := mock.LastJSON()
	if err != nil {
		t.Fatal(err)
	}
	if body["tool_choice"] != "auto" {
		t.Errorf("expected tool_choice auto, got %v", body["tool_choice"])
	}
	messages, _ := body["messages"].([]interface{})
	if len(messages) != 3 {
		t.Fatalf("expected 3 messages on the wire, got %d", len(messages))
	}
	assistant, _ := messages[1].(map[string]interface{})
	if content, present := assistant["content"]; !present || content != nil {
		t.Errorf("expected null content for tool-call-only message, got %v", content)
	}
	tool, _ := messages[2].(map[string]interface{})
	if tool["tool_call_id"] != "call_prev" {
		t.Errorf("expected tool_call_id call_prev, got %v", tool["tool_call_id"])
	}
}

func TestOpenAIProvider_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response testhelpers.MockResponse
		check    func(t *testing.T, err error)
	}{
		{
			name:     "auth",
			response: testhelpers.MockAuthError(),
			check: func(t *testing.T, err error) {
				var e *providers.AuthError
				if !errors.As(err, &e) {
					t.Fatalf("expected AuthError, got %T", err)
				}
			},
		},
		{
			name:     "rate limit",
			response: testhelpers.MockRateLimitError(2),
			check: func(t *testing.T, err error) {
				var e *providers.RateLimitError
				if !errors.As(err, &e) {
					t.Fatalf("expected RateLimitError, got %T", err)
				}
				if e.RetryAfter != 2*time.Second {
					t.Errorf("expected retry after 2s, got %s", e.RetryAfter)
				}
			},
		},
		{
			name:     "server error",
			response: testhelpers.MockServerError(),
			check: func(t *testing.T, err error) {
				var e *providers.ProviderError
				if !errors.As(err, &e) {
					t.Fatalf("expected ProviderError, got %T", err)
				}
			},
		},
		{
			name:     "no choices",
			response: testhelpers.OK(map[string]interface{}{"id": "x", "choices": []interface{}{}}),
			check: func(t *testing.T, err error) {
				var e *providers.ParseError
				if !errors.As(err, &e) {
					t.Fatalf("expected ParseError, got %T", err)
				}
			},
		},
		{
			name:     "malformed body",
			response: testhelpers.OK("{not json"),
			check: func(t *testing.T, err error) {
				var e *providers.ParseError
				if !errors.As(err, &e) {
					t.Fatalf("expected ParseError, got %T", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testhelpers.NewMockServer()
			defer mock.Close()
			mock.SetResponse(testhelpers.ChatPath, tt.response)

			provider := newTestProvider(t, mock)
			_, err := provider.Complete(context.Background(), testhelpers.TestCompletionRequest("gpt-4", "Hello"))
			if err == nil {
				t.Fatal("expected error")
			}
			tt.check(t, err)

			if n := mock.RequestCountFor(testhelpers.ChatPath); n != 1 {
				t.Errorf("expected exactly one attempt, got %d", n)
			}
		})
	}
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	mock.SetResponse(testhelpers.ChatPath, testhelpers.MockSlowResponse(2*time.Second))

	config := testhelpers.TestConfigWithURL("openai", "openai", mock.URL()+"/v1")
	config.Timeout = 50 * time.Millisecond
	provider, err := NewProvider(config)
	if err != nil {
		t.Fatal(err)
	}
	defer provider.Close()

	_, err = provider.Complete(context.Background(), testhelpers.TestCompletionRequest("gpt-4", "Hello"))
	var terr *providers.TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TimeoutError, got %T: %v", err, err)
	}
}

func TestOpenAIProvider_ValidateRequest(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()
	provider := newTestProvider(t, mock)

	tests := []struct {
		name  string
		req   *providers.CompletionRequest
		field string
	}{
		{name: "nil request", req: nil, field: "request"},
		{name: "missing model", req: testhelpers.TestCompletionRequest("", "hi"), field: "model"},
		{name: "no messages", req: testhelpers.TestCompletionRequest("gpt-4"), field: "messages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := provider.Complete(context.Background(), tt.req)
			var verr *providers.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
		})
	}

	if mock.RequestCount() != 0 {
		t.Errorf("invalid requests must not reach the server")
	}
}

func TestOpenAIProvider_HealthCheck(t *testing.T) {
	mock := testhelpers.NewMockServer()
	defer mock.Close()

	mock.Enqueue(testhelpers.ModelsPath,
		testhelpers.OK(map[string]interface{}{"data": []map[string]string{{"id": "gpt-4"}}}),
		testhelpers.MockServerError(),
	)
	provider := newTestProvider(t, mock)

	if err := provider.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy, got %v", err)
	}
	if err := provider.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
}

func TestNewProvider_Config(t *testing.T) {
	tests := []struct {
		name    string
		config  providers.Config
		field   string
		baseURL string
	}{
		{
			name:   "missing name",
			config: providers.Config{APIKey: "k"},
			field:  "name",
		},
		{
			name:   "missing API key",
			config: providers.Config{Name: "openai"},
			field:  "api_key",
		},
		{
			name:    "default base URL",
			config:  providers.Config{Name: "openai", APIKey: "k"},
			baseURL: DefaultBaseURL,
		},
		{
			name:    "trailing slash trimmed",
			config:  providers.Config{Name: "openai", APIKey: "k", BaseURL: "http://localhost:9999/v1/"},
			baseURL: "http://localhost:9999/v1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.config)
			if tt.field != "" {
				var cerr *providers.ConfigError
				if !errors.As(err, &cerr) {
					t.Fatalf("expected ConfigError, got %T: %v", err, err)
				}
				if cerr.Field != tt.field {
					t.Errorf("expected field %q, got %q", tt.field, cerr.Field)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			defer p.Close()
			if p.Config().BaseURL != tt.baseURL {
				t.Errorf("expected base URL %q, got %q", tt.baseURL, p.Config().BaseURL)
			}
			if p.Type() != "openai" {
				t.Errorf("expected type openai, got %q", p.Type())
			}
		})
	}
}

func TestNormalizeFinishReason(t *testing.T) {
	tests := map[string]string{
		"stop":           providers.FinishReasonStop,
		"length":         providers.FinishReasonLength,
		"function_call":  providers.FinishReasonToolCalls,
		"tool_calls":     providers.FinishReasonToolCalls,
		"content_filter": providers.FinishReasonContentFilter,
		"other":          "other",
	}
	for in, want := range tests {
		if got := normalizeFinishReason(in); got != want {
			t.Errorf("normalizeFinishReason(%q) = %q, want %q", in, got, want)
		}
	}
}
