package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/railguard/pkg/actions"
	"mercator-hq/railguard/pkg/conversation"
	"mercator-hq/railguard/pkg/providers"
	"mercator-hq/railguard/pkg/rails"
	"mercator-hq/railguard/pkg/telemetry/metrics"
)

// Usage is the token accounting of one completion.
type Usage struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

// Add accumulates u2 into u.
func (u *Usage) Add(u2 Usage) {
	u.Prompt += u2.Prompt
	u.Completion += u2.Completion
	u.Total += u2.Total
}

// Completion is the model's answer to one request.
type Completion struct {
	// Text is the assistant text with any action directives removed.
	Text string

	// ActionCalls are the actions the model asked for, in order.
	ActionCalls []actions.Call

	Usage   Usage
	Latency time.Duration

	// Model is the model that answered, as reported by the endpoint.
	Model string
}

// binding pairs an endpoint with the provider built for it. A binding is
// never modified once published.
type binding struct {
	endpoint Endpoint
	provider providers.Provider
}

// Gateway requests completions from the configured endpoint. The endpoint
// can be replaced at any time with Reconfigure; each Complete call uses the
// endpoint in effect when it started.
//
// Gateway is safe for concurrent use.
type Gateway struct {
	current atomic.Pointer[binding]

	// mu serializes Reconfigure and Close.
	mu sync.Mutex

	factory ProviderFactory
	logger  *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithMetrics records gateway requests and health in collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(g *Gateway) {
		g.metrics = collector
	}
}

// WithProviderFactory replaces the adapter constructor.
func WithProviderFactory(factory ProviderFactory) Option {
	return func(g *Gateway) {
		if factory != nil {
			g.factory = factory
		}
	}
}

// New creates a gateway bound to ep.
func New(ep Endpoint, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		factory: NewProvider,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	b, err := g.bind(ep)
	if err != nil {
		return nil, err
	}
	g.current.Store(b)
	return g, nil
}

func (g *Gateway) bind(ep Endpoint) (*binding, error) {
	if err := ep.Validate(); err != nil {
		return nil, err
	}
	p, err := g.factory(ep)
	if err != nil {
		return nil, rails.NewError(rails.ErrConfigurationInvalid, "gateway.endpoint", "", err)
	}
	return &binding{endpoint: ep, provider: p}, nil
}

// Endpoint returns the endpoint currently in effect.
func (g *Gateway) Endpoint() Endpoint {
	return g.current.Load().endpoint
}

// Reconfigure validates ep, builds its provider and swaps it in. On error
// the previous endpoint stays in effect. The previous provider is closed
// after the swap; requests already using it finish on their connections.
func (g *Gateway) Reconfigure(ep Endpoint) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, err := g.bind(ep)
	if err != nil {
		g.logger.Warn("endpoint rejected", "endpoint", ep.String(), "error", err)
		return err
	}

	old := g.current.Swap(b)
	if old != nil {
		if err := old.provider.Close(); err != nil {
			g.logger.Warn("failed to close previous provider", "error", err)
		}
	}

	g.logger.Info("endpoint reconfigured", "endpoint", ep.String())
	return nil
}

// Complete sends the conversation to the endpoint and returns the
// completion. tools are advertised to the model; when the model answers
// with text directives instead of tool calls, directives naming one of the
// tools are parsed as action calls.
//
// Each call is exactly one request to the endpoint.
func (g *Gateway) Complete(ctx context.Context, conv *conversation.Conversation, tools []actions.Spec) (*Completion, error) {
	b := g.current.Load()
	ep := b.endpoint

	messages, err := toMessages(conv)
	if err != nil {
		return nil, err
	}

	req := &providers.CompletionRequest{
		Model:       ep.Model,
		Messages:    messages,
		Temperature: ep.Temperature,
		MaxTokens:   ep.MaxTokens,
		Tools:       toTools(tools),
	}

	ctx, cancel := context.WithTimeout(ctx, ep.timeout())
	defer cancel()

	start := time.Now()
	resp, err := b.provider.Complete(ctx, req)
	latency := time.Since(start)

	kind := string(ep.Kind)
	g.metrics.RecordGatewayRequest(kind, statusLabel(err), latency)
	g.metrics.UpdateGatewayHealth(kind, b.provider.Health().IsHealthy)

	if err != nil {
		g.logger.WarnContext(ctx, "model request failed",
			"kind", kind,
			"model", ep.Model,
			"latency", latency,
			"error", err,
		)
		return nil, classify(err)
	}

	completion := &Completion{
		Text:    resp.Content,
		Latency: latency,
		Model:   resp.Model,
		Usage: Usage{
			Prompt:     resp.Usage.PromptTokens,
			Completion: resp.Usage.CompletionTokens,
			Total:      resp.Usage.TotalTokens,
		},
	}
	if completion.Model == "" {
		completion.Model = ep.Model
	}

	if len(resp.ToolCalls) > 0 {
		calls, err := fromToolCalls(resp.ToolCalls)
		if err != nil {
			return nil, err
		}
		completion.ActionCalls = calls
	} else if len(tools) > 0 {
		known := make(map[string]bool, len(tools))
		for _, t := range tools {
			known[t.Name] = true
		}
		completion.ActionCalls, completion.Text = parseDirectives(resp.Content, known)
	}

	g.logger.DebugContext(ctx, "model request completed",
		"kind", kind,
		"model", completion.Model,
		"latency", latency,
		"action_calls", len(completion.ActionCalls),
		"total_tokens", completion.Usage.Total,
	)

	return completion, nil
}

// HealthCheck probes the current endpoint.
func (g *Gateway) HealthCheck(ctx context.Context) error {
	b := g.current.Load()
	err := b.provider.HealthCheck(ctx)
	g.metrics.UpdateGatewayHealth(string(b.endpoint.Kind), err == nil)
	if err != nil {
		return classify(err)
	}
	return nil
}

// Healthy reports whether recent requests to the current endpoint succeeded.
func (g *Gateway) Healthy() bool {
	return g.current.Load().provider.Health().IsHealthy
}

// Close releases the current provider. The gateway must not be used
// afterwards.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current.Load().provider.Close()
}

// toMessages maps conversation turns to chat messages. Action turns become
// tool messages answering the call they carry.
func toMessages(conv *conversation.Conversation) ([]providers.Message, error) {
	turns := conv.Turns()
	messages := make([]providers.Message, 0, len(turns))

	for _, t := range turns {
		switch t.Role {
		case conversation.RoleSystem:
			messages = append(messages, providers.Message{Role: providers.RoleSystem, Content: t.Content})
		case conversation.RoleUser:
			messages = append(messages, providers.Message{Role: providers.RoleUser, Content: t.Content})
		case conversation.RoleAssistant:
			msg := providers.Message{Role: providers.RoleAssistant, Content: t.Content}
			for _, ref := range t.ActionCalls {
				args, err := json.Marshal(argsOrEmpty(ref.Arguments))
				if err != nil {
					return nil, rails.NewError(rails.ErrInvalidArgument, "gateway.complete",
						fmt.Sprintf("arguments of action call %q are not serializable", ref.Name), err)
				}
				msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
					ID:   ref.ID,
					Type: providers.ToolTypeFunction,
					Function: providers.FunctionCall{
						Name:      ref.Name,
						Arguments: string(args),
					},
				})
			}
			messages = append(messages, msg)
		case conversation.RoleAction:
			messages = append(messages, providers.Message{
				Role:       providers.RoleTool,
				Content:    t.Content,
				ToolCallID: t.CallID,
			})
		}
	}
	return messages, nil
}

func toTools(specs []actions.Spec) []providers.Tool {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]providers.Tool, 0, len(specs))
	for _, s := range specs {
		tools = append(tools, providers.Tool{
			Type: providers.ToolTypeFunction,
			Function: providers.FunctionDefinition{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  map[string]interface{}(s.Parameters),
			},
		})
	}
	return tools
}

func fromToolCalls(toolCalls []providers.ToolCall) ([]actions.Call, error) {
	calls := make([]actions.Call, 0, len(toolCalls))
	for _, tc := range toolCalls {
		args := actions.Args{}
		if raw := tc.Function.Arguments; raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, rails.NewError(rails.ErrInvalidArgument, "gateway.complete",
					fmt.Sprintf("action call %q has malformed arguments", tc.Function.Name), err)
			}
		}
		id := tc.ID
		if id == "" {
			id = newCallID()
		}
		calls = append(calls, actions.Call{ID: id, Name: tc.Function.Name, Arguments: args})
	}
	return calls, nil
}

func argsOrEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
