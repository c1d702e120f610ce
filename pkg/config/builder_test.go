package config

import (
	"time"

	"mercator-hq/railguard/pkg/knowledge"
)

// BundleBuilder provides a fluent API for building Bundle instances in tests.
// It starts with default values and allows selective overrides.
type BundleBuilder struct {
	b Bundle
}

// NewTestBundle creates a BundleBuilder with a valid self-hosted model and
// no stages. The resulting bundle passes Validate.
func NewTestBundle() *BundleBuilder {
	b := Bundle{
		Name: "test",
		Models: []ModelConfig{{
			Type:   "main",
			Engine: "nim",
			Model:  "meta/llama-3.1-8b-instruct",
			Parameters: ModelParameters{
				BaseURL: "http://localhost:8000/v1",
			},
		}},
	}
	ApplyDefaults(&b)
	return &BundleBuilder{b: b}
}

// Build returns the built Bundle instance.
func (bb *BundleBuilder) Build() *Bundle {
	return &bb.b
}

// WithHostedModel replaces the main model with a hosted one.
func (bb *BundleBuilder) WithHostedModel(model, apiKey string) *BundleBuilder {
	bb.b.SetMainModel(ModelConfig{
		Type:   "main",
		Engine: "openai",
		Kind:   KindHosted,
		Model:  model,
		Parameters: ModelParameters{
			APIKey:  apiKey,
			Timeout: DefaultModelTimeout,
		},
	})
	return bb
}

// WithInput sets the input stages.
func (bb *BundleBuilder) WithInput(names ...string) *BundleBuilder {
	bb.b.Rails.Input = names
	return bb
}

// WithOutput sets the output stages.
func (bb *BundleBuilder) WithOutput(names ...string) *BundleBuilder {
	bb.b.Rails.Output = names
	return bb
}

// WithTopics sets allowed topics and the unmatched policy.
func (bb *BundleBuilder) WithTopics(unmatched string, allowed ...TopicConfig) *BundleBuilder {
	bb.b.Rails.Config.Topical.Allowed = allowed
	bb.b.Rails.Config.Topical.Unmatched = unmatched
	return bb
}

// WithKnowledge adds inline knowledge entries.
func (bb *BundleBuilder) WithKnowledge(entries ...knowledge.Entry) *BundleBuilder {
	bb.b.Knowledge.Entries = append(bb.b.Knowledge.Entries, entries...)
	return bb
}

// WithAction registers an action by name.
func (bb *BundleBuilder) WithAction(name string) *BundleBuilder {
	bb.b.Actions.Registered = append(bb.b.Actions.Registered, ActionConfig{Name: name})
	return bb
}

// WithRetries sets orchestrator retries.
func (bb *BundleBuilder) WithRetries(n int) *BundleBuilder {
	bb.b.Orchestrator.Retries = n
	return bb
}

// WithMaxActionRounds sets the action round bound.
func (bb *BundleBuilder) WithMaxActionRounds(n int) *BundleBuilder {
	bb.b.Orchestrator.MaxActionRounds = n
	return bb
}

// WithSchedule sets the reload schedule.
func (bb *BundleBuilder) WithSchedule(expr string) *BundleBuilder {
	bb.b.Reload.Schedule = expr
	return bb
}

// WithLogLevel sets the log level.
func (bb *BundleBuilder) WithLogLevel(level string) *BundleBuilder {
	bb.b.Telemetry.Logging.Level = level
	return bb
}

// WithModelTimeout sets the main model timeout.
func (bb *BundleBuilder) WithModelTimeout(d time.Duration) *BundleBuilder {
	m, _ := bb.b.MainModel()
	m.Parameters.Timeout = d
	bb.b.SetMainModel(m)
	return bb
}
