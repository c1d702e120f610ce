package providers

import "time"

// Message is a single chat message in the provider-agnostic wire model.
type Message struct {
	// Role is system, user, assistant or tool.
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// Name optionally names the sender.
	Name string `json:"name,omitempty"`

	// ToolCalls are the calls an assistant message requested.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a tool message to the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the function and carries its JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Tool advertises a callable function to the model.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a function and its JSON Schema parameters.
type FunctionDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

// TokenUsage tracks token consumption for a request.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a provider-agnostic chat completion request.
type CompletionRequest struct {
	// Model is the model identifier (e.g. "gpt-3.5-turbo-instruct").
	Model string `json:"model"`

	// Messages is the conversation so far.
	Messages []Message `json:"messages"`

	// Temperature controls randomness. Nil leaves the provider default.
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens bounds the completion length. Zero leaves the provider default.
	MaxTokens int `json:"max_tokens,omitempty"`

	// Tools lists the functions the model may call.
	Tools []Tool `json:"tools,omitempty"`

	// Stop sequences that halt generation.
	Stop []string `json:"stop,omitempty"`
}

// CompletionResponse is a provider-agnostic chat completion response.
type CompletionResponse struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	Created      int64      `json:"created"`
}

// Health is a snapshot of a provider's request history.
type Health struct {
	// IsHealthy is false after three consecutive failed requests and true
	// again after the next success.
	IsHealthy bool

	LastCheck             time.Time
	LastError             error
	ConsecutiveFailures   int
	LastSuccessfulRequest time.Time
	TotalRequests         int64
	FailedRequests        int64
}

// Config configures one provider instance.
type Config struct {
	// Name identifies the provider in logs and errors.
	Name string

	// Type is the adapter type (openai, generic).
	Type string

	// BaseURL is the API base URL, including any version path such as /v1.
	BaseURL string

	// APIKey is the bearer credential. Optional for generic providers.
	APIKey string

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool.
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host.
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool.
	IdleConnTimeout time.Duration
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finish reasons.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonToolCalls     = "tool_calls"
	FinishReasonContentFilter = "content_filter"
)

// ToolTypeFunction is the only tool type in use.
const ToolTypeFunction = "function"
