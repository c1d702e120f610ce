package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"mercator-hq/railguard/pkg/knowledge"
	"mercator-hq/railguard/pkg/rails"
)

// JailbreakStageName is the configuration name of the jailbreak detector.
const JailbreakStageName = "jailbreak_detection"

// DefaultJailbreakThreshold is the score at or above which a turn is blocked.
const DefaultJailbreakThreshold = 0.8

// DefaultJailbreakMessage is returned to the caller when a turn is blocked.
const DefaultJailbreakMessage = "I'm sorry, I can't help with that. The request was flagged by jailbreak detection as an attempt to override my instructions."

// extraMatchBonus is added to the score for each additional matched pattern.
const extraMatchBonus = 0.1

// JailbreakPattern is a weighted adversarial phrase pattern.
type JailbreakPattern struct {
	// Label names the technique in logs and verdict reasons.
	Label string

	// Pattern is a regular expression matched against the normalized,
	// lower-cased user turn.
	Pattern string

	// Weight is the score contributed by a match, from 0.0 to 1.0.
	Weight float64
}

// DefaultJailbreakPatterns covers common role-override and persona-hijack
// phrasing.
var DefaultJailbreakPatterns = []JailbreakPattern{
	{Label: "instruction_override", Pattern: `\bignore\s+(all\s+|any\s+|the\s+)?(previous|prior|above|earlier)\s+(instructions|rules|prompts|directions)`, Weight: 0.95},
	{Label: "instruction_override", Pattern: `\b(disregard|forget)\s+(all\s+|any\s+|your\s+|the\s+)?(previous\s+|prior\s+)?(instructions|rules|guidelines|programming)`, Weight: 0.9},
	{Label: "persona_hijack", Pattern: `\bdan\s+mode\b|\bdo\s+anything\s+now\b`, Weight: 0.95},
	{Label: "persona_hijack", Pattern: `\b(developer|god|jailbreak|unrestricted)\s+mode\b`, Weight: 0.8},
	{Label: "persona_hijack", Pattern: `\b(act|behave|respond)\s+as\s+(an?\s+)?(unrestricted|unfiltered|uncensored)`, Weight: 0.85},
	{Label: "persona_hijack", Pattern: `\byou\s+are\s+no\s+longer\s+(bound|restricted|an?\s+ai)`, Weight: 0.85},
	{Label: "safety_bypass", Pattern: `\b(ignore|bypass|disable|override)\s+(your\s+|all\s+|any\s+)?(ethical|safety|content)\s+(guidelines|filters|restrictions|policies|rules)`, Weight: 0.9},
	{Label: "safety_bypass", Pattern: `\bwithout\s+any\s+(restrictions|limitations|filters)`, Weight: 0.6},
	{Label: "prompt_extraction", Pattern: `\b(reveal|print|show|repeat)\s+(me\s+)?(your|the)\s+(system\s+prompt|hidden\s+instructions|initial\s+instructions)`, Weight: 0.75},
	{Label: "roleplay_pretext", Pattern: `\bpretend\s+(that\s+)?(you\s+are|to\s+be)\b.*\b(no|without)\s+(rules|restrictions|limits)`, Weight: 0.7},
}

// JailbreakConfig configures the jailbreak detector.
type JailbreakConfig struct {
	// Patterns replaces the default pattern set when non-empty.
	Patterns []JailbreakPattern

	// Threshold is the blocking score. Zero means DefaultJailbreakThreshold.
	Threshold float64

	// Message is the block reason returned to the caller.
	Message string
}

type compiledJailbreakPattern struct {
	label  string
	regex  *regexp.Regexp
	weight float64
}

// JailbreakDetector blocks user turns that match adversarial patterns with a
// combined score at or above the threshold.
type JailbreakDetector struct {
	patterns  []compiledJailbreakPattern
	threshold float64
	message   string
}

// NewJailbreakDetector compiles the configured patterns.
func NewJailbreakDetector(cfg JailbreakConfig) (*JailbreakDetector, error) {
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = DefaultJailbreakPatterns
	}

	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultJailbreakThreshold
	}
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("jailbreak threshold %.2f outside (0, 1]", threshold)
	}

	message := cfg.Message
	if strings.TrimSpace(message) == "" {
		message = DefaultJailbreakMessage
	}

	d := &JailbreakDetector{
		patterns:  make([]compiledJailbreakPattern, 0, len(patterns)),
		threshold: threshold,
		message:   message,
	}

	for i, p := range patterns {
		regex, err := regexp.Compile(p.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid jailbreak pattern at index %d: %w", i, err)
		}
		if p.Weight <= 0 || p.Weight > 1 {
			return nil, fmt.Errorf("jailbreak pattern at index %d: weight %.2f outside (0, 1]", i, p.Weight)
		}
		label := p.Label
		if label == "" {
			label = fmt.Sprintf("pattern_%d", i)
		}
		d.patterns = append(d.patterns, compiledJailbreakPattern{label: label, regex: regex, weight: p.Weight})
	}

	return d, nil
}

// Name returns the stage name.
func (d *JailbreakDetector) Name() string { return JailbreakStageName }

// Phase returns the input phase.
func (d *JailbreakDetector) Phase() rails.Phase { return rails.PhaseInput }

// Evaluate scores the latest user turn.
func (d *JailbreakDetector) Evaluate(ctx context.Context, tc *rails.TurnContext) (rails.Verdict, error) {
	score, labels := d.Score(tc.UserMessage())

	if score >= d.threshold {
		reason := fmt.Sprintf("%s (score %.2f, matched: %s)", d.message, score, strings.Join(labels, ", "))
		return rails.Block(d.Name(), reason).WithConfidence(score), nil
	}

	reason := "no jailbreak patterns matched"
	if len(labels) > 0 {
		reason = fmt.Sprintf("jailbreak score %.2f below threshold %.2f", score, d.threshold)
	}
	return rails.Allow(d.Name(), reason).WithConfidence(score), nil
}

// Score returns the combined score for text and the labels of the matched
// patterns, deduplicated in pattern order.
func (d *JailbreakDetector) Score(text string) (float64, []string) {
	normalized := knowledge.Normalize(text)

	var (
		best    float64
		matches int
		labels  []string
		seen    = make(map[string]bool)
	)

	for _, p := range d.patterns {
		if !p.regex.MatchString(normalized) {
			continue
		}
		matches++
		if p.weight > best {
			best = p.weight
		}
		if !seen[p.label] {
			seen[p.label] = true
			labels = append(labels, p.label)
		}
	}

	if matches == 0 {
		return 0, nil
	}

	score := best + extraMatchBonus*float64(matches-1)
	if score > 1 {
		score = 1
	}
	return score, labels
}
