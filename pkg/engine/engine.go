package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/conversation"
	"mercator-hq/railguard/pkg/gateway"
	"mercator-hq/railguard/pkg/rails"
)

// ErrInvalidConversation is the cause of InvalidArgument errors for caller
// messages that do not form a valid conversation.
var ErrInvalidConversation = errors.New("invalid conversation")

// Message is one caller-supplied conversation entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Response is what a caller sees for one request.
type Response struct {
	// Content is the text to show the user: the guarded answer with any
	// disclaimers appended, the block reason, or the generic failure text.
	Content string `json:"content"`

	// Blocked is set when a stage refused the request.
	Blocked bool `json:"blocked"`

	// Reason is the block reason.
	Reason string `json:"reason,omitempty"`

	// Disclaimers lists the disclaimers included in Content.
	Disclaimers []string `json:"disclaimers,omitempty"`

	RequestID string `json:"request_id,omitempty"`
}

// Engine serves requests against the current bundle snapshot. Reload and
// SwapEndpoint may be called while requests are in flight.
type Engine struct {
	current      atomic.Pointer[Snapshot]
	mu           sync.Mutex
	opts         *options
	orchestrator *Orchestrator
	closed       bool
}

// New builds the first snapshot from b.
func New(ctx context.Context, b *config.Bundle, opts ...Option) (*Engine, error) {
	o := newOptions(opts)
	snap, err := build(ctx, b, o)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		opts:         o,
		orchestrator: NewOrchestrator(o.logger, o.metrics),
	}
	e.current.Store(snap)

	o.logger.Info("engine ready",
		"bundle", b.Name,
		"endpoint", snap.Gateway.Endpoint().String(),
		"input_stages", b.Rails.Input,
		"output_stages", b.Rails.Output,
		"actions", snap.Registry.Len(),
		"knowledge_entries", snap.Store.Len(),
	)
	return e, nil
}

// Snapshot returns the snapshot new requests run against.
func (e *Engine) Snapshot() *Snapshot {
	return e.current.Load()
}

// Bundle returns the bundle in effect.
func (e *Engine) Bundle() *config.Bundle {
	return e.current.Load().Bundle
}

// Process runs conv through the current snapshot and returns the full
// result, including the verdict trace.
func (e *Engine) Process(ctx context.Context, conv *conversation.Conversation) (*Result, error) {
	return e.orchestrator.Process(ctx, conv, e.current.Load().Pipeline)
}

// Generate runs one request. On error the returned Response carries the
// bundle's generic failure text and the error carries the detail.
func (e *Engine) Generate(ctx context.Context, messages []Message) (Response, error) {
	snap := e.current.Load()
	failure := Response{Content: snap.Bundle.Messages.GenericFailure}

	conv, err := toConversation(snap.Bundle.SystemPrompt(), messages)
	if err != nil {
		return failure, err
	}

	res, err := e.orchestrator.Process(ctx, conv, snap.Pipeline)
	if err != nil {
		failure.RequestID = res.RequestID
		return failure, err
	}

	if res.Blocked {
		return Response{
			Content:     res.Reason,
			Blocked:     true,
			Reason:      res.Reason,
			Disclaimers: res.Disclaimers,
			RequestID:   res.RequestID,
		}, nil
	}

	return Response{
		Content:     withDisclaimers(res.Content, res.Disclaimers),
		Disclaimers: res.Disclaimers,
		RequestID:   res.RequestID,
	}, nil
}

// Reload builds a snapshot from b and swaps it in. Requests already running
// finish on the snapshot they started with. On error the current snapshot
// stays in effect.
func (e *Engine) Reload(ctx context.Context, b *config.Bundle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return fmt.Errorf("engine is closed")
	}

	snap, err := build(ctx, b, e.opts)
	if err != nil {
		e.opts.metrics.RecordReload("error")
		e.opts.logger.Error("bundle reload failed", "bundle", b.Name, "error", err)
		return err
	}

	old := e.current.Swap(snap)
	e.opts.metrics.RecordReload("success")
	e.opts.logger.Info("bundle reloaded",
		"bundle", b.Name,
		"endpoint", snap.Gateway.Endpoint().String(),
		"knowledge_entries", snap.Store.Len(),
	)

	// Closing only drops idle connections; requests still holding the old
	// snapshot complete normally.
	if err := old.Gateway.Close(); err != nil {
		e.opts.logger.Warn("failed to close previous gateway", "error", err)
	}
	return nil
}

// SwapEndpoint points the current gateway at ep. The previous endpoint stays
// in effect when ep is invalid.
func (e *Engine) SwapEndpoint(ep gateway.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current.Load().Gateway.Reconfigure(ep)
}

// HealthCheck probes the current endpoint.
func (e *Engine) HealthCheck(ctx context.Context) error {
	return e.current.Load().Gateway.HealthCheck(ctx)
}

// Close releases the current gateway.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.current.Load().Gateway.Close()
}

// toConversation builds a conversation from caller messages, prepending the
// bundle's system prompt unless the caller supplied a system turn.
func toConversation(systemPrompt string, messages []Message) (*conversation.Conversation, error) {
	if len(messages) == 0 {
		return nil, rails.NewError(rails.ErrInvalidArgument, "engine.generate", "no messages", ErrInvalidConversation)
	}

	conv := &conversation.Conversation{}
	if systemPrompt != "" && messages[0].Role != string(conversation.RoleSystem) {
		_ = conv.Append(conversation.Turn{Role: conversation.RoleSystem, Content: systemPrompt})
	}

	for _, m := range messages {
		role := conversation.Role(strings.ToLower(strings.TrimSpace(m.Role)))
		switch role {
		case conversation.RoleSystem, conversation.RoleUser, conversation.RoleAssistant:
		default:
			return nil, rails.NewError(rails.ErrInvalidArgument, "engine.generate", fmt.Sprintf("unsupported role %q", m.Role), ErrInvalidConversation)
		}
		if err := conv.Append(conversation.Turn{Role: role, Content: m.Content}); err != nil {
			return nil, rails.NewError(rails.ErrInvalidArgument, "engine.generate", "invalid conversation", fmt.Errorf("%w: %w", ErrInvalidConversation, err))
		}
	}

	if last, _ := conv.Last(); last.Role != conversation.RoleUser {
		return nil, rails.NewError(rails.ErrInvalidArgument, "engine.generate", "conversation must end with a user turn", ErrInvalidConversation)
	}
	return conv, nil
}

func withDisclaimers(content string, disclaimers []string) string {
	if len(disclaimers) == 0 {
		return content
	}
	var sb strings.Builder
	sb.WriteString(content)
	for _, d := range disclaimers {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(d)
	}
	return sb.String()
}
