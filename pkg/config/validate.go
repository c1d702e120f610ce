package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/robfig/cron/v3"

	"mercator-hq/railguard/pkg/rails"
	"mercator-hq/railguard/pkg/rails/stages"
)

// FieldError represents a validation error for a specific bundle field.
type FieldError struct {
	// Field is the dotted path to the field (e.g., "rails.config.topical.unmatched").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a bundle.
// It matches rails.ErrConfigurationInvalid with errors.Is.
type ValidationError struct {
	// Errors contains all validation errors found in the bundle.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Is reports whether target is rails.ErrConfigurationInvalid.
func (e ValidationError) Is(target error) bool {
	return target == rails.ErrConfigurationInvalid
}

// Input and output stage names accepted in rails.input and rails.output.
var (
	inputStages = map[string]bool{
		stages.JailbreakStageName: true,
		stages.TopicalStageName:   true,
		stages.SanitizerStageName: true,
	}
	outputStages = map[string]bool{
		stages.FactCheckStageName: true,
	}
)

// Validate checks the whole bundle and returns a ValidationError listing
// every problem, or nil.
func Validate(b *Bundle) error {
	var errs []FieldError

	if strings.TrimSpace(b.Name) == "" {
		errs = append(errs, FieldError{Field: "name", Message: "bundle name is required"})
	}

	errs = append(errs, validateModels(b.Models)...)
	errs = append(errs, validateRails(b)...)
	errs = append(errs, validateKnowledge(&b.Knowledge)...)
	errs = append(errs, validateActions(&b.Actions)...)
	errs = append(errs, validateOrchestrator(&b.Orchestrator)...)
	errs = append(errs, validateTelemetry(&b.Telemetry)...)
	errs = append(errs, validateReload(&b.Reload)...)
	errs = append(errs, validateServer(&b.Server)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateModels validates the model list and the main model.
func validateModels(models []ModelConfig) []FieldError {
	var errs []FieldError

	if len(models) == 0 {
		return []FieldError{{Field: "models", Message: "at least one model is required"}}
	}

	mains := 0
	for i, m := range models {
		prefix := fmt.Sprintf("models[%d]", i)
		if m.Type == "main" {
			mains++
		}

		if m.Model == "" {
			errs = append(errs, FieldError{Field: prefix + ".model", Message: "model name is required"})
		}

		switch m.Kind {
		case KindHosted:
			if m.Parameters.APIKey == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".parameters.api_key",
					Message: "API key is required for hosted models (set RAILGUARD_MODEL_API_KEY or OPENAI_API_KEY)",
				})
			}
		case KindSelfHosted:
			if m.Parameters.BaseURL == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".parameters.base_url",
					Message: "base URL is required for self-hosted models",
				})
			}
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".kind",
				Message: fmt.Sprintf("kind must be %q or %q, got %q", KindHosted, KindSelfHosted, m.Kind),
			})
		}

		if strings.Contains(m.Parameters.APIKey, "${secret:") {
			errs = append(errs, FieldError{
				Field:   prefix + ".parameters.api_key",
				Message: "unresolved secret reference (check --secrets-dir or the secret's environment variable)",
			})
		}

		if m.Parameters.BaseURL != "" {
			if u, err := url.Parse(m.Parameters.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".parameters.base_url",
					Message: "base URL must be an absolute http or https URL",
				})
			}
		}
		if m.Parameters.Timeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".parameters.timeout", Message: "timeout must be positive"})
		}
		if t := m.Parameters.Temperature; t != nil && (*t < 0 || *t > 2) {
			errs = append(errs, FieldError{Field: prefix + ".parameters.temperature", Message: "temperature must be between 0 and 2"})
		}
		if m.Parameters.MaxTokens < 0 {
			errs = append(errs, FieldError{Field: prefix + ".parameters.max_tokens", Message: "max tokens must be non-negative"})
		}
	}

	if mains > 1 {
		errs = append(errs, FieldError{Field: "models", Message: "only one model may have type \"main\""})
	}

	return errs
}

// validateRails validates the stage lists and the parameters of listed stages.
func validateRails(b *Bundle) []FieldError {
	var errs []FieldError
	r := &b.Rails

	listed := make(map[string]bool)
	check := func(field string, names []string, known map[string]bool) {
		for i, name := range names {
			f := fmt.Sprintf("%s[%d]", field, i)
			if !known[name] {
				errs = append(errs, FieldError{Field: f, Message: fmt.Sprintf("unknown stage %q", name)})
				continue
			}
			if listed[name] {
				errs = append(errs, FieldError{Field: f, Message: fmt.Sprintf("stage %q listed more than once", name)})
				continue
			}
			listed[name] = true
		}
	}
	check("rails.input", r.Input, inputStages)
	check("rails.output", r.Output, outputStages)

	if listed[stages.JailbreakStageName] {
		errs = append(errs, validateJailbreak(&r.Config.Jailbreak)...)
	}
	if listed[stages.TopicalStageName] {
		errs = append(errs, validateTopical(&r.Config.Topical)...)
	}
	if listed[stages.SanitizerStageName] {
		errs = append(errs, validateSanitizer(&r.Config.Sanitizer)...)
	}
	if listed[stages.FactCheckStageName] {
		errs = append(errs, validateFactCheck(&r.Config.FactCheck)...)
		k := b.Knowledge
		if len(k.Entries) == 0 && k.File == "" && k.SQLite == "" {
			errs = append(errs, FieldError{
				Field:   "knowledge",
				Message: "fact_checking requires a knowledge source (entries, file or sqlite)",
			})
		}
	}

	return errs
}

func validateJailbreak(cfg *JailbreakConfig) []FieldError {
	var errs []FieldError
	prefix := "rails.config.jailbreak_detection"

	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		errs = append(errs, FieldError{Field: prefix + ".threshold", Message: "threshold must be between 0 and 1"})
	}
	for i, p := range cfg.Patterns {
		f := fmt.Sprintf("%s.patterns[%d]", prefix, i)
		if p.Pattern == "" {
			errs = append(errs, FieldError{Field: f + ".pattern", Message: "pattern is required"})
		} else if _, err := regexp.Compile(p.Pattern); err != nil {
			errs = append(errs, FieldError{Field: f + ".pattern", Message: fmt.Sprintf("invalid regular expression: %v", err)})
		}
		if p.Weight <= 0 || p.Weight > 1 {
			errs = append(errs, FieldError{Field: f + ".weight", Message: "weight must be in (0, 1]"})
		}
	}
	return errs
}

func validateTopical(cfg *TopicalConfig) []FieldError {
	var errs []FieldError
	prefix := "rails.config.topical"

	if len(cfg.Allowed) == 0 && len(cfg.Denied) == 0 {
		errs = append(errs, FieldError{Field: prefix, Message: "at least one allowed or denied topic is required"})
	}

	switch cfg.Unmatched {
	case "", string(stages.UnmatchedAllow), string(stages.UnmatchedBlock):
	default:
		errs = append(errs, FieldError{
			Field:   prefix + ".unmatched",
			Message: fmt.Sprintf("unmatched policy must be %q or %q, got %q", stages.UnmatchedAllow, stages.UnmatchedBlock, cfg.Unmatched),
		})
	}

	checkTopics := func(field string, topics []TopicConfig) {
		for i, t := range topics {
			f := fmt.Sprintf("%s.%s[%d]", prefix, field, i)
			if strings.TrimSpace(t.Name) == "" {
				errs = append(errs, FieldError{Field: f + ".name", Message: "topic name is required"})
			}
			if len(t.Keywords) == 0 {
				errs = append(errs, FieldError{Field: f + ".keywords", Message: "at least one keyword is required"})
			}
			for j, kw := range t.Keywords {
				if strings.TrimSpace(kw) == "" {
					errs = append(errs, FieldError{Field: fmt.Sprintf("%s.keywords[%d]", f, j), Message: "keyword cannot be blank"})
				}
			}
		}
	}
	checkTopics("allowed", cfg.Allowed)
	checkTopics("denied", cfg.Denied)

	return errs
}

func validateSanitizer(cfg *SanitizerConfig) []FieldError {
	var errs []FieldError
	if cfg.MaxLength < 0 {
		errs = append(errs, FieldError{Field: "rails.config.input_sanitizer.max_length", Message: "max length must be non-negative"})
	}
	for i, m := range cfg.Markers {
		if m == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("rails.config.input_sanitizer.markers[%d]", i), Message: "marker cannot be empty"})
		}
	}
	return errs
}

func validateFactCheck(cfg *FactCheckConfig) []FieldError {
	var errs []FieldError
	prefix := "rails.config.fact_checking"

	for _, f := range []struct {
		name  string
		value float64
	}{
		{"match_threshold", cfg.MatchThreshold},
		{"relatedness_threshold", cfg.RelatednessThreshold},
		{"min_confidence", cfg.MinConfidence},
	} {
		if f.value < 0 || f.value > 1 {
			errs = append(errs, FieldError{Field: prefix + "." + f.name, Message: "must be between 0 and 1"})
		}
	}
	if cfg.MatchThreshold > 0 && cfg.RelatednessThreshold > cfg.MatchThreshold {
		errs = append(errs, FieldError{
			Field:   prefix + ".relatedness_threshold",
			Message: "relatedness threshold cannot exceed match threshold",
		})
	}
	return errs
}

func validateKnowledge(cfg *KnowledgeConfig) []FieldError {
	var errs []FieldError
	for i, e := range cfg.Entries {
		f := fmt.Sprintf("knowledge.entries[%d]", i)
		if strings.TrimSpace(e.Topic) == "" {
			errs = append(errs, FieldError{Field: f + ".topic", Message: "topic is required"})
		}
		if strings.TrimSpace(e.Claim) == "" {
			errs = append(errs, FieldError{Field: f + ".claim", Message: "claim is required"})
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			errs = append(errs, FieldError{Field: f + ".confidence", Message: "confidence must be between 0 and 1"})
		}
	}
	return errs
}

func validateActions(cfg *ActionsConfig) []FieldError {
	var errs []FieldError

	if cfg.Timeout < 0 {
		errs = append(errs, FieldError{Field: "actions.timeout", Message: "timeout must be positive"})
	}

	seen := make(map[string]bool)
	for i, a := range cfg.Registered {
		f := fmt.Sprintf("actions.registered[%d]", i)
		if a.Name == "" {
			errs = append(errs, FieldError{Field: f + ".name", Message: "action name is required"})
			continue
		}
		if seen[a.Name] {
			errs = append(errs, FieldError{Field: f + ".name", Message: fmt.Sprintf("action %q registered more than once", a.Name)})
		}
		seen[a.Name] = true
		if a.Timeout < 0 {
			errs = append(errs, FieldError{Field: f + ".timeout", Message: "timeout must be positive"})
		}
		if a.Parameters != nil {
			if t, _ := a.Parameters["type"].(string); t != "" && t != "object" {
				errs = append(errs, FieldError{Field: f + ".parameters.type", Message: "action parameters must be an object schema"})
			}
		}
	}
	return errs
}

func validateOrchestrator(cfg *OrchestratorConfig) []FieldError {
	var errs []FieldError
	if cfg.MaxActionRounds < 0 {
		errs = append(errs, FieldError{Field: "orchestrator.max_action_rounds", Message: "max action rounds must be non-negative"})
	}
	if cfg.Retries < 0 || cfg.Retries > 10 {
		errs = append(errs, FieldError{Field: "orchestrator.retries", Message: "retries must be between 0 and 10"})
	}
	if cfg.RetryInitialInterval < 0 {
		errs = append(errs, FieldError{Field: "orchestrator.retry_initial_interval", Message: "interval must be positive"})
	}
	if cfg.RetryMaxInterval < cfg.RetryInitialInterval {
		errs = append(errs, FieldError{Field: "orchestrator.retry_max_interval", Message: "max interval cannot be below the initial interval"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (valid: json, text)", cfg.Logging.Format),
		})
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}

	return errs
}

func validateReload(cfg *ReloadConfig) []FieldError {
	var errs []FieldError
	if cfg.Debounce < 0 {
		errs = append(errs, FieldError{Field: "reload.debounce", Message: "debounce must be positive"})
	}
	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{Field: "reload.schedule", Message: fmt.Sprintf("invalid cron expression: %v", err)})
		}
	}
	return errs
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError
	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "max body bytes must be non-negative"})
	}
	return errs
}
