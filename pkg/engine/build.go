package engine

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/railguard/pkg/actions"
	"mercator-hq/railguard/pkg/actions/builtin"
	"mercator-hq/railguard/pkg/config"
	"mercator-hq/railguard/pkg/gateway"
	"mercator-hq/railguard/pkg/knowledge"
	"mercator-hq/railguard/pkg/rails"
	"mercator-hq/railguard/pkg/rails/stages"
	"mercator-hq/railguard/pkg/telemetry/metrics"
)

// Option configures an Engine and the snapshots it builds.
type Option func(*options)

type options struct {
	logger          *slog.Logger
	metrics         *metrics.Collector
	clock           builtin.Clock
	actions         map[string]actions.Action
	providerFactory gateway.ProviderFactory
}

func newOptions(opts []Option) *options {
	o := &options{actions: make(map[string]actions.Action)}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// WithLogger sets the logger used by the engine and its components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithClock sets the clock used by the built-in time and date actions.
func WithClock(clock builtin.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithActions makes actions available to bundles. An action is only
// advertised when the bundle lists it under actions.registered; supplied
// actions take precedence over built-ins of the same name.
func WithActions(a ...actions.Action) Option {
	return func(o *options) {
		for _, act := range a {
			o.actions[act.Name()] = act
		}
	}
}

// WithProviderFactory replaces the provider constructor used by gateways.
func WithProviderFactory(f gateway.ProviderFactory) Option {
	return func(o *options) { o.providerFactory = f }
}

// Snapshot is the immutable state built from one bundle. Requests hold the
// snapshot they started with for their whole run.
type Snapshot struct {
	Bundle   *config.Bundle
	Pipeline *Pipeline
	Registry *actions.Registry
	Store    *knowledge.Store
	Gateway  *gateway.Gateway
}

// Build validates b and constructs its stages, action registry, knowledge
// store and gateway. Any failure is reported as ConfigurationInvalid.
func Build(ctx context.Context, b *config.Bundle, opts ...Option) (*Snapshot, error) {
	return build(ctx, b, newOptions(opts))
}

func build(ctx context.Context, b *config.Bundle, o *options) (*Snapshot, error) {
	if err := config.Validate(b); err != nil {
		return nil, err
	}

	store, err := buildKnowledge(ctx, b)
	if err != nil {
		return nil, err
	}

	input, err := buildStages(b.Rails.Input, b, store)
	if err != nil {
		return nil, err
	}
	output, err := buildStages(b.Rails.Output, b, store)
	if err != nil {
		return nil, err
	}

	registry, err := buildRegistry(b, o)
	if err != nil {
		return nil, err
	}

	main, _ := b.MainModel()
	gwOpts := []gateway.Option{gateway.WithLogger(o.logger), gateway.WithMetrics(o.metrics)}
	if o.providerFactory != nil {
		gwOpts = append(gwOpts, gateway.WithProviderFactory(o.providerFactory))
	}
	gw, err := gateway.New(EndpointFromModel(main), gwOpts...)
	if err != nil {
		return nil, err
	}

	orch := b.Orchestrator
	return &Snapshot{
		Bundle:   b,
		Registry: registry,
		Store:    store,
		Gateway:  gw,
		Pipeline: &Pipeline{
			Name:                 b.Name,
			Input:                input,
			Output:               output,
			Registry:             registry,
			Gateway:              gw,
			MaxActionRounds:      orch.MaxActionRounds,
			Retries:              orch.Retries,
			RetryInitialInterval: orch.RetryInitialInterval,
			RetryMaxInterval:     orch.RetryMaxInterval,
		},
	}, nil
}

// EndpointFromModel converts a bundle model entry into a gateway endpoint.
func EndpointFromModel(m config.ModelConfig) gateway.Endpoint {
	kind := m.Kind
	if kind == "" {
		kind = config.InferKind(m.Engine)
	}
	return gateway.Endpoint{
		Kind:        gateway.Kind(kind),
		Model:       m.Model,
		BaseURL:     m.Parameters.BaseURL,
		APIKey:      m.Parameters.APIKey,
		Timeout:     m.Parameters.Timeout,
		Temperature: m.Parameters.Temperature,
		MaxTokens:   m.Parameters.MaxTokens,
	}
}

func invalid(detail string, err error) error {
	return rails.NewError(rails.ErrConfigurationInvalid, "engine.build", detail, err)
}

// buildKnowledge merges inline entries with the file and SQLite sources.
func buildKnowledge(ctx context.Context, b *config.Bundle) (*knowledge.Store, error) {
	entries := append([]knowledge.Entry(nil), b.Knowledge.Entries...)

	if b.Knowledge.File != "" {
		path := b.ResolveFile(b.Knowledge.File)
		fromFile, err := knowledge.ReadYAML(path)
		if err != nil {
			return nil, invalid(fmt.Sprintf("knowledge file %q", path), err)
		}
		entries = append(entries, fromFile...)
	}

	if b.Knowledge.SQLite != "" {
		path := b.ResolveFile(b.Knowledge.SQLite)
		fromDB, err := knowledge.ReadSQLite(ctx, path)
		if err != nil {
			return nil, invalid(fmt.Sprintf("knowledge database %q", path), err)
		}
		entries = append(entries, fromDB...)
	}

	store, err := knowledge.NewStore(entries)
	if err != nil {
		return nil, invalid("knowledge", err)
	}
	return store, nil
}

func buildStages(names []string, b *config.Bundle, store *knowledge.Store) ([]rails.Stage, error) {
	out := make([]rails.Stage, 0, len(names))
	for _, name := range names {
		stage, err := newStage(name, &b.Rails.Config, store)
		if err != nil {
			return nil, invalid(fmt.Sprintf("stage %q", name), err)
		}
		out = append(out, stage)
	}
	return out, nil
}

func newStage(name string, s *config.StageSettings, store *knowledge.Store) (rails.Stage, error) {
	switch name {
	case stages.JailbreakStageName:
		cfg := stages.JailbreakConfig{Threshold: s.Jailbreak.Threshold, Message: s.Jailbreak.Message}
		for _, p := range s.Jailbreak.Patterns {
			cfg.Patterns = append(cfg.Patterns, stages.JailbreakPattern{Label: p.Label, Pattern: p.Pattern, Weight: p.Weight})
		}
		return stages.NewJailbreakDetector(cfg)

	case stages.TopicalStageName:
		return stages.NewTopicalFilter(stages.TopicalConfig{
			Allowed:          topics(s.Topical.Allowed),
			Denied:           topics(s.Topical.Denied),
			Unmatched:        stages.UnmatchedPolicy(s.Topical.Unmatched),
			Message:          s.Topical.Message,
			UnmatchedMessage: s.Topical.UnmatchedMessage,
		})

	case stages.SanitizerStageName:
		return stages.NewInputSanitizer(stages.SanitizerConfig{
			Markers:   s.Sanitizer.Markers,
			MaxLength: s.Sanitizer.MaxLength,
		})

	case stages.FactCheckStageName:
		return stages.NewFactVerifier(store, stages.FactCheckConfig{
			MatchThreshold:       s.FactCheck.MatchThreshold,
			RelatednessThreshold: s.FactCheck.RelatednessThreshold,
			MinConfidence:        s.FactCheck.MinConfidence,
			HedgePrefix:          s.FactCheck.HedgePrefix,
			Disclaimer:           s.FactCheck.Disclaimer,
			CorrectionNote:       s.FactCheck.CorrectionNote,
		})

	default:
		return nil, fmt.Errorf("unknown stage")
	}
}

func topics(in []config.TopicConfig) []stages.Topic {
	out := make([]stages.Topic, 0, len(in))
	for _, t := range in {
		out = append(out, stages.Topic{Name: t.Name, Keywords: t.Keywords})
	}
	return out
}

// buildRegistry registers the actions the bundle lists, resolving each name
// against supplied actions first and the built-ins second.
func buildRegistry(b *config.Bundle, o *options) (*actions.Registry, error) {
	registry := actions.NewRegistry(b.Actions.Timeout, o.logger)

	for _, ac := range b.Actions.Registered {
		action, ok := o.actions[ac.Name]
		if !ok {
			action, ok = builtin.Lookup(ac.Name, o.clock)
		}
		if !ok {
			return nil, invalid(fmt.Sprintf("action %q", ac.Name), fmt.Errorf("no such action (built-ins: %v)", builtin.Names()))
		}

		if ac.Description != "" || ac.Parameters != nil {
			action = &overridden{Action: action, description: ac.Description, schema: ac.Parameters}
		}
		if err := registry.Register(action); err != nil {
			return nil, err
		}
		if ac.Timeout > 0 {
			if err := registry.SetTimeout(ac.Name, ac.Timeout); err != nil {
				return nil, err
			}
		}
	}

	registry.Freeze()
	return registry, nil
}

// overridden replaces the advertised description or schema of an action.
type overridden struct {
	actions.Action
	description string
	schema      actions.ArgSchema
}

func (a *overridden) Description() string {
	if a.description != "" {
		return a.description
	}
	return a.Action.Description()
}

func (a *overridden) Schema() actions.ArgSchema {
	if a.schema != nil {
		return a.schema
	}
	return a.Action.Schema()
}
