package config

import (
	"time"

	"mercator-hq/railguard/pkg/knowledge"
)

// Bundle is a named rail configuration: the model endpoint, the ordered
// input and output stages with their parameters, the knowledge base, the
// actions the model may call, and the ambient settings of the process that
// serves it.
type Bundle struct {
	// Name identifies the bundle in logs, traces and metrics.
	Name string `yaml:"name"`

	// Description is free text shown by "railguard validate".
	Description string `yaml:"description"`

	// Models lists model endpoints. The entry with type "main" is used.
	Models []ModelConfig `yaml:"models"`

	// Instructions become a leading system turn on every request.
	Instructions []InstructionConfig `yaml:"instructions"`

	// Rails declares the stage pipeline.
	Rails RailsConfig `yaml:"rails"`

	// Knowledge configures the fact verifier's store.
	Knowledge KnowledgeConfig `yaml:"knowledge"`

	// Actions configures the actions the model may invoke.
	Actions ActionsConfig `yaml:"actions"`

	// Orchestrator bounds the pipeline.
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Messages holds user-facing texts.
	Messages MessagesConfig `yaml:"messages"`

	// Telemetry contains logging and metrics settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Reload controls hot reloading of the bundle.
	Reload ReloadConfig `yaml:"reload"`

	// Server configures "railguard serve".
	Server ServerConfig `yaml:"server"`

	// Path is the file the bundle was read from. Relative knowledge paths
	// are resolved against its directory.
	Path string `yaml:"-"`
}

// ModelConfig describes one model endpoint.
type ModelConfig struct {
	// Type is the model's role. Only "main" is used.
	Type string `yaml:"type"`

	// Engine names the serving stack: "openai" for the hosted API, or a
	// self-hosted OpenAI-compatible server such as "nim", "vllm" or "ollama".
	Engine string `yaml:"engine"`

	// Kind is "hosted" or "self_hosted". When empty it is inferred from
	// Engine.
	Kind string `yaml:"kind"`

	// Model is the model identifier sent to the endpoint.
	Model string `yaml:"model"`

	// Parameters holds connection and sampling settings.
	Parameters ModelParameters `yaml:"parameters"`
}

// ModelParameters are the endpoint settings of a model.
type ModelParameters struct {
	// BaseURL is the API root including the version path, e.g.
	// "http://localhost:8000/v1". Required for self-hosted models.
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer credential. Required for hosted models. Prefer
	// RAILGUARD_MODEL_API_KEY over writing keys into bundle files.
	APIKey string `yaml:"api_key"`

	// Timeout bounds one model call.
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`

	// Temperature is the sampling temperature. Nil leaves the endpoint default.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens bounds the completion length. Zero leaves the endpoint default.
	MaxTokens int `yaml:"max_tokens"`
}

// InstructionConfig is a system instruction.
type InstructionConfig struct {
	// Type is informational; "general" is conventional.
	Type string `yaml:"type"`

	// Content is the instruction text.
	Content string `yaml:"content"`
}

// RailsConfig declares which stages run and with which parameters.
type RailsConfig struct {
	// Input lists input stage names in evaluation order.
	Input []string `yaml:"input"`

	// Output lists output stage names in evaluation order.
	Output []string `yaml:"output"`

	// Config holds per-stage parameters.
	Config StageSettings `yaml:"config"`
}

// StageSettings holds the parameters of every built-in stage. Settings for
// stages that are not listed in the pipeline are ignored.
type StageSettings struct {
	Jailbreak JailbreakConfig `yaml:"jailbreak_detection"`
	Topical   TopicalConfig   `yaml:"topical"`
	Sanitizer SanitizerConfig `yaml:"input_sanitizer"`
	FactCheck FactCheckConfig `yaml:"fact_checking"`
}

// JailbreakConfig configures the jailbreak detector.
type JailbreakConfig struct {
	// Threshold is the blocking score in (0, 1].
	// Default: 0.8
	Threshold float64 `yaml:"threshold"`

	// Message is the block reason.
	Message string `yaml:"message"`

	// Patterns replaces the built-in pattern set when non-empty.
	Patterns []JailbreakPatternConfig `yaml:"patterns"`
}

// JailbreakPatternConfig is one weighted pattern.
type JailbreakPatternConfig struct {
	// Label names the pattern in verdict reasons.
	Label string `yaml:"label"`

	// Pattern is a regular expression matched against the normalized,
	// lower-cased user turn.
	Pattern string `yaml:"pattern"`

	// Weight is the pattern's score in (0, 1].
	Weight float64 `yaml:"weight"`
}

// TopicalConfig configures the topical filter.
type TopicalConfig struct {
	// Allowed topics pass explicitly.
	Allowed []TopicConfig `yaml:"allowed"`

	// Denied topics are blocked.
	Denied []TopicConfig `yaml:"denied"`

	// Unmatched is "allow" (fail-open) or "block" (fail-closed). When
	// empty the filter allows and says so in the verdict reason.
	Unmatched string `yaml:"unmatched"`

	// Message is the deny block template; "%s" receives the topic name.
	Message string `yaml:"message"`

	// UnmatchedMessage is the block reason under the fail-closed policy.
	UnmatchedMessage string `yaml:"unmatched_message"`
}

// TopicConfig is a named keyword group.
type TopicConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// SanitizerConfig configures the input sanitizer.
type SanitizerConfig struct {
	// MaxLength truncates the user turn to this many runes.
	// Default: 4096
	MaxLength int `yaml:"max_length"`

	// Markers replaces the built-in injection markers when non-empty.
	Markers []string `yaml:"markers"`
}

// FactCheckConfig configures the fact verifier.
type FactCheckConfig struct {
	// MatchThreshold is the similarity that corroborates a sentence.
	// Default: 0.5
	MatchThreshold float64 `yaml:"match_threshold"`

	// RelatednessThreshold is the similarity below which a stored claim is
	// about something else.
	// Default: 0.2
	RelatednessThreshold float64 `yaml:"relatedness_threshold"`

	// MinConfidence is the entry confidence needed to corroborate or correct.
	// Default: 0.7
	MinConfidence float64 `yaml:"min_confidence"`

	// HedgePrefix is prepended to weakly supported sentences.
	HedgePrefix string `yaml:"hedge_prefix"`

	// Disclaimer is attached when some claims cannot be verified.
	Disclaimer string `yaml:"disclaimer"`

	// CorrectionNote is attached when a sentence is corrected.
	CorrectionNote string `yaml:"correction_note"`
}

// KnowledgeConfig lists knowledge sources. All configured sources are
// merged into one store.
type KnowledgeConfig struct {
	// Entries are inline facts.
	Entries []knowledge.Entry `yaml:"entries"`

	// File is a YAML file with an "entries" list.
	File string `yaml:"file"`

	// SQLite is a database with a knowledge_entries table.
	SQLite string `yaml:"sqlite"`
}

// ActionsConfig configures the action registry.
type ActionsConfig struct {
	// Timeout bounds every action without its own timeout.
	// Default: 10s
	Timeout time.Duration `yaml:"timeout"`

	// Registered lists the actions advertised to the model.
	Registered []ActionConfig `yaml:"registered"`
}

// ActionConfig enables one action.
type ActionConfig struct {
	// Name is a built-in action or one supplied by the embedding program.
	Name string `yaml:"name"`

	// Description overrides the action's own description.
	Description string `yaml:"description"`

	// Timeout overrides ActionsConfig.Timeout for this action.
	Timeout time.Duration `yaml:"timeout"`

	// Parameters overrides the action's JSON Schema.
	Parameters map[string]any `yaml:"parameters"`
}

// OrchestratorConfig bounds the pipeline.
type OrchestratorConfig struct {
	// MaxActionRounds is the number of times the model may be re-invoked
	// with action results. Zero selects the default.
	// Default: 3
	MaxActionRounds int `yaml:"max_action_rounds"`

	// Retries is the number of explicit retries of a failed model call
	// (ProviderUnavailable or ProviderTimeout only).
	// Default: 0
	Retries int `yaml:"retries"`

	// RetryInitialInterval is the first backoff delay.
	// Default: 500ms
	RetryInitialInterval time.Duration `yaml:"retry_initial_interval"`

	// RetryMaxInterval caps the backoff delay.
	// Default: 5s
	RetryMaxInterval time.Duration `yaml:"retry_max_interval"`
}

// MessagesConfig holds user-facing texts.
type MessagesConfig struct {
	// GenericFailure is returned when a request fails. Error details are
	// logged, never shown.
	GenericFailure string `yaml:"generic_failure"`
}

// TelemetryConfig contains observability settings.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text"
	// Default: "text"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active. Nil means
	// enabled.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "railguard"
	Namespace string `yaml:"namespace"`

	// Subsystem is the metric subsystem name.
	Subsystem string `yaml:"subsystem"`

	// RequestDurationBuckets defines histogram buckets for request duration (seconds).
	RequestDurationBuckets []float64 `yaml:"request_duration_buckets"`
}

// ReloadConfig controls hot reloading.
type ReloadConfig struct {
	// Watch reloads the bundle when its file changes.
	Watch bool `yaml:"watch"`

	// Debounce coalesces bursts of file events.
	// Default: 100ms
	Debounce time.Duration `yaml:"debounce"`

	// Schedule is an optional cron expression for periodic reloads, useful
	// when the knowledge base is refreshed externally.
	Schedule string `yaml:"schedule"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	// ListenAddress is the address to bind.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration for writing a response. It must
	// cover the slowest pipeline run.
	// Default: 120s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// Model kinds.
const (
	KindHosted     = "hosted"
	KindSelfHosted = "self_hosted"
)

// MainModel returns the model with type "main", or the first model when
// none is marked. ok is false when no models are configured.
func (b *Bundle) MainModel() (ModelConfig, bool) {
	for _, m := range b.Models {
		if m.Type == "main" {
			return m, true
		}
	}
	if len(b.Models) > 0 {
		return b.Models[0], true
	}
	return ModelConfig{}, false
}

// SetMainModel replaces the main model, keeping other entries.
func (b *Bundle) SetMainModel(m ModelConfig) {
	if m.Type == "" {
		m.Type = "main"
	}
	for i := range b.Models {
		if b.Models[i].Type == "main" {
			b.Models[i] = m
			return
		}
	}
	b.Models = append([]ModelConfig{m}, b.Models...)
}

// SystemPrompt joins the instructions into one system turn.
func (b *Bundle) SystemPrompt() string {
	var out string
	for _, in := range b.Instructions {
		if in.Content == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += in.Content
	}
	return out
}

// InferKind maps an engine name to a model kind.
func InferKind(engine string) string {
	switch engine {
	case "openai", "hosted":
		return KindHosted
	default:
		// nim, vllm, ollama, lmstudio, localai, generic...
		return KindSelfHosted
	}
}

// IsEnabled reports whether metrics are collected.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Bool returns a pointer to v, for optional boolean settings.
func Bool(v bool) *bool {
	return &v
}
