package stages

import (
	"context"
	"fmt"
	"strings"

	"mercator-hq/railguard/pkg/knowledge"
	"mercator-hq/railguard/pkg/rails"
)

// TopicalStageName is the configuration name of the topical filter.
const TopicalStageName = "topical"

// UnmatchedPolicy decides the verdict for turns matching no configured topic.
type UnmatchedPolicy string

const (
	// UnmatchedAllow lets unclassified turns through (fail-open).
	UnmatchedAllow UnmatchedPolicy = "allow"

	// UnmatchedBlock rejects unclassified turns (fail-closed).
	UnmatchedBlock UnmatchedPolicy = "block"
)

// DefaultTopicalMessage is the block reason template. The %s verb receives
// the topic name.
const DefaultTopicalMessage = "I'm sorry, I can't discuss %s. I'm configured to avoid that topic, but I'm happy to help with something else."

// DefaultUnmatchedMessage is the block reason under the fail-closed policy.
const DefaultUnmatchedMessage = "I'm sorry, I can only help with the topics I'm configured for."

// Topic is a named group of keywords. Single-word keywords match whole
// words, including simple plurals; multi-word keywords match the phrase.
type Topic struct {
	Name     string
	Keywords []string
}

// TopicalConfig configures the topical filter.
type TopicalConfig struct {
	// Allowed topics pass explicitly.
	Allowed []Topic

	// Denied topics are blocked. Deny matches win over allow matches.
	Denied []Topic

	// Unmatched is the policy for turns matching no topic. Empty means
	// UnmatchedAllow, and the verdict reason says the default was applied.
	Unmatched UnmatchedPolicy

	// Message is the deny block template; %s receives the topic name.
	Message string

	// UnmatchedMessage is the block reason under UnmatchedBlock.
	UnmatchedMessage string
}

type compiledTopic struct {
	name    string
	phrases [][]string
}

// TopicalFilter restricts the subject areas the assistant engages with.
type TopicalFilter struct {
	allowed          []compiledTopic
	denied           []compiledTopic
	unmatched        UnmatchedPolicy
	explicit         bool
	message          string
	unmatchedMessage string
}

// NewTopicalFilter validates and compiles the topic lists.
func NewTopicalFilter(cfg TopicalConfig) (*TopicalFilter, error) {
	f := &TopicalFilter{
		unmatched:        cfg.Unmatched,
		explicit:         cfg.Unmatched != "",
		message:          cfg.Message,
		unmatchedMessage: cfg.UnmatchedMessage,
	}

	switch f.unmatched {
	case "":
		f.unmatched = UnmatchedAllow
	case UnmatchedAllow, UnmatchedBlock:
	default:
		return nil, fmt.Errorf("unknown unmatched policy %q (want %q or %q)", cfg.Unmatched, UnmatchedAllow, UnmatchedBlock)
	}

	if f.message == "" {
		f.message = DefaultTopicalMessage
	}
	if f.unmatchedMessage == "" {
		f.unmatchedMessage = DefaultUnmatchedMessage
	}

	var err error
	if f.allowed, err = compileTopics(cfg.Allowed); err != nil {
		return nil, fmt.Errorf("allowed topics: %w", err)
	}
	if f.denied, err = compileTopics(cfg.Denied); err != nil {
		return nil, fmt.Errorf("denied topics: %w", err)
	}
	if len(f.allowed) == 0 && len(f.denied) == 0 {
		return nil, fmt.Errorf("at least one allowed or denied topic is required")
	}

	return f, nil
}

func compileTopics(topics []Topic) ([]compiledTopic, error) {
	out := make([]compiledTopic, 0, len(topics))
	for i, t := range topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return nil, fmt.Errorf("topic %d: name is required", i)
		}
		if len(t.Keywords) == 0 {
			return nil, fmt.Errorf("topic %q: at least one keyword is required", name)
		}

		ct := compiledTopic{name: name}
		for _, kw := range t.Keywords {
			tokens := knowledge.Tokenize(kw)
			if len(tokens) == 0 {
				return nil, fmt.Errorf("topic %q: empty keyword", name)
			}
			ct.phrases = append(ct.phrases, tokens)
		}
		out = append(out, ct)
	}
	return out, nil
}

// Name returns the stage name.
func (f *TopicalFilter) Name() string { return TopicalStageName }

// Phase returns the input phase.
func (f *TopicalFilter) Phase() rails.Phase { return rails.PhaseInput }

// Evaluate classifies the latest user turn.
func (f *TopicalFilter) Evaluate(ctx context.Context, tc *rails.TurnContext) (rails.Verdict, error) {
	tokens := knowledge.Tokenize(tc.UserMessage())

	if topic, ok := matchTopics(f.denied, tokens); ok {
		return rails.Block(f.Name(), fmt.Sprintf(f.message, topic)), nil
	}

	if topic, ok := matchTopics(f.allowed, tokens); ok {
		return rails.Allow(f.Name(), fmt.Sprintf("on-topic: %s", topic)), nil
	}

	if f.unmatched == UnmatchedBlock {
		return rails.Block(f.Name(), f.unmatchedMessage), nil
	}

	reason := "no configured topic matched; unmatched policy is allow"
	if !f.explicit {
		reason += " (default)"
	}
	return rails.Allow(f.Name(), reason), nil
}

// Classify returns the name of the first denied, then allowed, topic that
// matches text.
func (f *TopicalFilter) Classify(text string) (topic string, denied bool, ok bool) {
	tokens := knowledge.Tokenize(text)
	if topic, ok := matchTopics(f.denied, tokens); ok {
		return topic, true, true
	}
	if topic, ok := matchTopics(f.allowed, tokens); ok {
		return topic, false, true
	}
	return "", false, false
}

func matchTopics(topics []compiledTopic, tokens []string) (string, bool) {
	for _, t := range topics {
		for _, phrase := range t.phrases {
			if containsPhrase(tokens, phrase) {
				return t.name, true
			}
		}
	}
	return "", false
}

// containsPhrase reports whether phrase occurs as a contiguous token run.
// The last word of the phrase also matches its "s" and "es" plurals.
func containsPhrase(tokens, phrase []string) bool {
	n := len(phrase)
	for i := 0; i+n <= len(tokens); i++ {
		match := true
		for j := 0; j < n; j++ {
			if !wordMatches(tokens[i+j], phrase[j], j == n-1) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func wordMatches(token, word string, last bool) bool {
	if token == word {
		return true
	}
	if !last {
		return false
	}
	return token == word+"s" || token == word+"es"
}
