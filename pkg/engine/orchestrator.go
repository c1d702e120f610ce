package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"mercator-hq/railguard/pkg/actions"
	"mercator-hq/railguard/pkg/conversation"
	"mercator-hq/railguard/pkg/gateway"
	"mercator-hq/railguard/pkg/rails"
	"mercator-hq/railguard/pkg/telemetry/logging"
	"mercator-hq/railguard/pkg/telemetry/metrics"
)

// Completer requests one completion. *gateway.Gateway implements it.
type Completer interface {
	Complete(ctx context.Context, conv *conversation.Conversation, tools []actions.Spec) (*gateway.Completion, error)
}

// Pipeline is everything one request runs against. A Pipeline is built
// once per bundle and only read afterwards.
type Pipeline struct {
	// Name is the bundle name, used in logs and the turn context.
	Name string

	// Input and Output are the stages in evaluation order.
	Input  []rails.Stage
	Output []rails.Stage

	// Registry resolves action calls. Nil means no actions.
	Registry *actions.Registry

	// Gateway produces completions.
	Gateway Completer

	// MaxActionRounds bounds gateway re-invocations with action results.
	// Zero allows none.
	MaxActionRounds int

	// Retries is the number of extra attempts for a failed gateway call.
	Retries              int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
}

// Result is the outcome of one request.
type Result struct {
	RequestID string

	// Blocked is set when a stage blocked the request; Stage and Reason
	// identify the decision.
	Blocked bool
	Stage   string
	Reason  string

	// Content is the outgoing text after output stages.
	Content string

	// Disclaimers were attached by stages, in order.
	Disclaimers []string

	// Trace lists every verdict in evaluation order.
	Trace []rails.Verdict

	// GatewayCalls counts gateway attempts, retries included.
	GatewayCalls int

	// ActionRounds counts re-invocations with action results.
	ActionRounds int

	Usage gateway.Usage
}

// Rewritten reports whether any stage rewrote the request or response.
func (r *Result) Rewritten() bool {
	for _, v := range r.Trace {
		if v.IsRewrite() {
			return true
		}
	}
	return false
}

func (r *Result) outcome() string {
	switch {
	case r.Blocked:
		return "blocked"
	case r.Rewritten():
		return "rewritten"
	default:
		return "allowed"
	}
}

// Orchestrator runs the rail pipeline. It holds no per-request state and is
// safe for concurrent use.
type Orchestrator struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewOrchestrator creates an orchestrator. A nil logger means slog.Default();
// a nil collector records nothing.
func NewOrchestrator(logger *slog.Logger, collector *metrics.Collector) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{logger: logger, metrics: collector}
}

// Process runs conv through p:
//  1. Input stages in order; the first block ends the request, a rewrite
//     replaces the latest user turn.
//  2. The gateway, re-invoked after each round of action calls, at most
//     p.MaxActionRounds times.
//  3. Output stages in order; the first block ends the request, a rewrite
//     replaces the outgoing text.
//
// conv is never modified. Blocks are results; errors abort the request.
func (o *Orchestrator) Process(ctx context.Context, conv *conversation.Conversation, p *Pipeline) (*Result, error) {
	start := time.Now()
	ctx, requestID := logging.EnsureRequestID(ctx)
	ctx = logging.WithBundle(ctx, p.Name)

	res, err := o.process(ctx, requestID, conv, p)
	duration := time.Since(start)

	if err != nil {
		o.metrics.RecordRequest("error", duration)
		o.logger.ErrorContext(ctx, "request failed",
			"kind", kindLabel(err),
			"gateway_calls", res.GatewayCalls,
			"action_rounds", res.ActionRounds,
			"duration", duration,
			"error", err,
		)
		return res, err
	}

	o.metrics.RecordRequest(res.outcome(), duration)
	o.metrics.RecordActionRounds(res.ActionRounds)
	o.logger.InfoContext(ctx, "request completed",
		"outcome", res.outcome(),
		"gateway_calls", res.GatewayCalls,
		"action_rounds", res.ActionRounds,
		"total_tokens", res.Usage.Total,
		"duration", duration,
	)
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, requestID string, conv *conversation.Conversation, p *Pipeline) (*Result, error) {
	res := &Result{RequestID: requestID}
	tc := rails.NewTurnContext(requestID, p.Name, conv.Clone())

	blocked, err := o.runStages(ctx, p.Input, tc, res)
	res.Trace = tc.Verdicts()
	if err != nil || blocked {
		return res, err
	}

	completion, err := o.generate(ctx, tc.Conversation, p, res)
	if err != nil {
		return res, err
	}

	tc.Draft = completion.Text
	blocked, err = o.runStages(ctx, p.Output, tc, res)
	res.Trace = tc.Verdicts()
	if err != nil || blocked {
		return res, err
	}

	res.Content = tc.Draft
	return res, nil
}

// runStages evaluates stages in order and applies their verdicts to tc.
// It reports whether a stage blocked.
func (o *Orchestrator) runStages(ctx context.Context, stages []rails.Stage, tc *rails.TurnContext, res *Result) (bool, error) {
	for _, stage := range stages {
		start := time.Now()
		v, err := stage.Evaluate(ctx, tc)
		duration := time.Since(start)
		if err != nil {
			return false, fmt.Errorf("stage %q: %w", stage.Name(), err)
		}
		if v.Stage == "" {
			v.Stage = stage.Name()
		}

		tc.Record(v)
		o.metrics.RecordVerdict(v.Stage, string(v.Decision), duration)
		o.logger.DebugContext(ctx, "stage verdict",
			"stage", v.Stage,
			"phase", stage.Phase(),
			"decision", v.Decision,
			"reason", v.Reason,
			"duration", duration,
		)

		if v.Disclaimer != "" {
			res.Disclaimers = append(res.Disclaimers, v.Disclaimer)
		}

		switch {
		case v.IsBlocked():
			res.Blocked = true
			res.Stage = v.Stage
			res.Reason = v.Reason
			o.logger.InfoContext(ctx, "request blocked", "stage", v.Stage, "reason", v.Reason)
			return true, nil

		case v.IsRewrite():
			if stage.Phase() == rails.PhaseOutput {
				tc.Draft = v.Replacement
				continue
			}
			next, err := tc.Conversation.WithUserContent(v.Replacement)
			if err != nil {
				return false, fmt.Errorf("stage %q rewrite: %w", v.Stage, err)
			}
			tc.Conversation = next
		}
	}
	return false, nil
}

// generate calls the gateway and resolves action calls until the model
// answers without any.
func (o *Orchestrator) generate(ctx context.Context, conv *conversation.Conversation, p *Pipeline, res *Result) (*gateway.Completion, error) {
	work := conv.Clone()

	var tools []actions.Spec
	if p.Registry != nil {
		tools = p.Registry.Specs()
	}

	for {
		completion, err := o.complete(ctx, work, tools, p, res)
		if err != nil {
			return nil, err
		}
		res.Usage.Add(completion.Usage)

		if len(completion.ActionCalls) == 0 {
			return completion, nil
		}
		if res.ActionRounds >= p.MaxActionRounds {
			return nil, rails.NewError(rails.ErrPipelineLoopExceeded, "engine.process",
				fmt.Sprintf("model requested actions after %d rounds", res.ActionRounds), nil)
		}

		if err := o.resolve(ctx, work, completion, p); err != nil {
			return nil, err
		}
		res.ActionRounds++
	}
}

// resolve appends the assistant request turn and one action turn per
// call, in call order.
func (o *Orchestrator) resolve(ctx context.Context, work *conversation.Conversation, completion *gateway.Completion, p *Pipeline) error {
	if p.Registry == nil {
		return rails.NewError(rails.ErrInvalidArgument, "engine.process", "model requested an action but none are registered", nil)
	}

	refs := make([]conversation.ActionRef, 0, len(completion.ActionCalls))
	for _, call := range completion.ActionCalls {
		refs = append(refs, conversation.ActionRef{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	}
	if err := work.Append(conversation.Turn{
		Role:        conversation.RoleAssistant,
		Content:     completion.Text,
		ActionCalls: refs,
	}); err != nil {
		return fmt.Errorf("append action request: %w", err)
	}

	for _, call := range completion.ActionCalls {
		start := time.Now()
		result, err := p.Registry.Invoke(ctx, call)
		o.metrics.RecordActionInvocation(call.Name, actionStatus(err), time.Since(start))
		if err != nil {
			return err
		}

		o.logger.DebugContext(ctx, "action resolved",
			"action", call.Name,
			"call_id", call.ID,
			"duration", result.Duration,
		)

		if err := work.Append(conversation.Turn{
			Role:    conversation.RoleAction,
			Name:    call.Name,
			CallID:  call.ID,
			Content: result.Text(),
		}); err != nil {
			return fmt.Errorf("append action result: %w", err)
		}
	}
	return nil
}

// complete performs one gateway call, retried under p.Retries for
// retryable failures only.
func (o *Orchestrator) complete(ctx context.Context, conv *conversation.Conversation, tools []actions.Spec, p *Pipeline, res *Result) (*gateway.Completion, error) {
	attempt := func() (*gateway.Completion, error) {
		res.GatewayCalls++
		c, err := p.Gateway.Complete(ctx, conv, tools)
		if err != nil && !rails.Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return c, err
	}

	if p.Retries <= 0 {
		c, err := attempt()
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			err = permanent.Err
		}
		return c, err
	}

	b := backoff.NewExponentialBackOff()
	if p.RetryInitialInterval > 0 {
		b.InitialInterval = p.RetryInitialInterval
	}
	if p.RetryMaxInterval > 0 {
		b.MaxInterval = p.RetryMaxInterval
	}

	c, err := backoff.Retry(ctx, attempt,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.Retries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			o.logger.WarnContext(ctx, "retrying model request",
				"attempt", res.GatewayCalls,
				"wait", wait,
				"error", err,
			)
		}),
	)
	if err != nil && rails.KindOf(err) == nil && ctx.Err() != nil {
		// Cancelled while waiting between attempts.
		err = rails.NewError(rails.ErrProviderTimeout, "engine.process", "deadline expired between retries", err)
	}
	return c, err
}

func actionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, rails.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, rails.ErrActionTimeout):
		return "timeout"
	default:
		return "failed"
	}
}

func kindLabel(err error) string {
	if kind := rails.KindOf(err); kind != nil {
		return kind.Error()
	}
	return "internal"
}
