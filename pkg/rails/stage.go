package rails

import (
	"context"

	"mercator-hq/railguard/pkg/conversation"
)

// Phase says where a stage runs relative to the model call.
type Phase string

const (
	// PhaseInput stages run on the user turn before the model is called.
	PhaseInput Phase = "input"

	// PhaseOutput stages run on the draft response after the model answers.
	PhaseOutput Phase = "output"
)

// Stage is a single policy check.
//
// Implementations must be safe for concurrent use: one Stage value serves
// every request of an engine snapshot and must not keep per-request state.
type Stage interface {
	// Name returns the stage identifier used in configuration and traces.
	Name() string

	// Phase returns where the stage runs.
	Phase() Phase

	// Evaluate inspects the turn context and returns a verdict. An error
	// aborts the request; it is not a block.
	Evaluate(ctx context.Context, tc *TurnContext) (Verdict, error)
}

// TurnContext is the per-request working state of the orchestrator.
// It is created for one Process call and discarded afterwards.
type TurnContext struct {
	// RequestID identifies the request in logs.
	RequestID string

	// Bundle is the name of the configuration bundle in effect.
	Bundle string

	// Conversation is the request's own snapshot of the conversation.
	Conversation *conversation.Conversation

	// Draft is the response text under evaluation by output stages.
	Draft string

	verdicts []Verdict
}

// NewTurnContext creates a context for one request.
func NewTurnContext(requestID, bundle string, conv *conversation.Conversation) *TurnContext {
	return &TurnContext{
		RequestID:    requestID,
		Bundle:       bundle,
		Conversation: conv,
	}
}

// UserMessage returns the content of the latest user turn.
func (tc *TurnContext) UserMessage() string {
	if tc.Conversation == nil {
		return ""
	}
	t, _, ok := tc.Conversation.LastUser()
	if !ok {
		return ""
	}
	return t.Content
}

// Record appends a verdict to the trace.
func (tc *TurnContext) Record(v Verdict) {
	tc.verdicts = append(tc.verdicts, v)
}

// Verdicts returns the verdicts recorded so far, in order.
func (tc *TurnContext) Verdicts() []Verdict {
	out := make([]Verdict, len(tc.verdicts))
	copy(out, tc.verdicts)
	return out
}
