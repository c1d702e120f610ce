package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"mercator-hq/railguard/pkg/knowledge"
	"mercator-hq/railguard/pkg/rails"
)

// FactCheckStageName is the configuration name of the fact verifier.
const FactCheckStageName = "fact_checking"

// Fact verifier defaults.
const (
	DefaultMatchThreshold       = 0.5
	DefaultRelatednessThreshold = 0.2
	DefaultMinConfidence        = 0.7
	DefaultHedgePrefix          = "Unconfirmed: "
	DefaultFactDisclaimer       = "Note: some of this information could not be verified against the knowledge base, so please double-check it."
	DefaultCorrectionNote       = "Note: part of this answer was corrected against the knowledge base."
)

// KnowledgeBase is the read-only view of the fact store the verifier needs.
type KnowledgeBase interface {
	Lookup(topic string) []knowledge.Entry
	NearestTopic(text string) (string, bool)
	Similarity(a, b string) float64
}

// FactCheckConfig configures the fact verifier.
type FactCheckConfig struct {
	// MatchThreshold is the similarity at which a stored claim corroborates
	// a sentence.
	MatchThreshold float64

	// RelatednessThreshold is the similarity below which a stored claim is
	// considered to be about something else.
	RelatednessThreshold float64

	// MinConfidence is the entry confidence required to corroborate or
	// correct a sentence.
	MinConfidence float64

	// HedgePrefix is prepended to weakly supported sentences.
	HedgePrefix string

	// Disclaimer is attached when some claims cannot be verified.
	Disclaimer string

	// CorrectionNote is attached when a sentence is replaced.
	CorrectionNote string
}

// Outcome classifies one checked sentence.
type Outcome string

const (
	OutcomeCorroborated Outcome = "corroborated"
	OutcomeCorrected    Outcome = "corrected"
	OutcomeHedged       Outcome = "hedged"
	OutcomeUnverified   Outcome = "unverified"
)

// ClaimCheck is the result of checking one sentence of a draft.
type ClaimCheck struct {
	Sentence   string
	Topic      string
	Outcome    Outcome
	Similarity float64
	Entry      *knowledge.Entry
}

// FactVerifier reconciles claims in the draft response against the
// knowledge base.
type FactVerifier struct {
	kb  KnowledgeBase
	cfg FactCheckConfig
}

// NewFactVerifier validates thresholds and applies defaults.
func NewFactVerifier(kb KnowledgeBase, cfg FactCheckConfig) (*FactVerifier, error) {
	if kb == nil {
		return nil, fmt.Errorf("fact checking requires a knowledge base")
	}

	if cfg.MatchThreshold == 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.RelatednessThreshold == 0 {
		cfg.RelatednessThreshold = DefaultRelatednessThreshold
	}
	if cfg.MinConfidence == 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.HedgePrefix == "" {
		cfg.HedgePrefix = DefaultHedgePrefix
	}
	if cfg.Disclaimer == "" {
		cfg.Disclaimer = DefaultFactDisclaimer
	}
	if cfg.CorrectionNote == "" {
		cfg.CorrectionNote = DefaultCorrectionNote
	}

	for name, v := range map[string]float64{
		"match_threshold":       cfg.MatchThreshold,
		"relatedness_threshold": cfg.RelatednessThreshold,
		"min_confidence":        cfg.MinConfidence,
	} {
		if v < 0 || v > 1 {
			return nil, fmt.Errorf("%s %.2f outside [0, 1]", name, v)
		}
	}
	if cfg.RelatednessThreshold > cfg.MatchThreshold {
		return nil, fmt.Errorf("relatedness_threshold %.2f exceeds match_threshold %.2f", cfg.RelatednessThreshold, cfg.MatchThreshold)
	}

	return &FactVerifier{kb: kb, cfg: cfg}, nil
}

// Name returns the stage name.
func (f *FactVerifier) Name() string { return FactCheckStageName }

// Phase returns the output phase.
func (f *FactVerifier) Phase() rails.Phase { return rails.PhaseOutput }

// Evaluate checks the draft response.
func (f *FactVerifier) Evaluate(ctx context.Context, tc *rails.TurnContext) (rails.Verdict, error) {
	draft := tc.Draft
	spans := splitSentences(draft)
	fallback, _ := f.kb.NearestTopic(draft)

	var (
		b                                  strings.Builder
		checked, corrected, hedged, unsure int
		last                               int
	)

	for _, sp := range spans {
		sentence := draft[sp.start:sp.end]
		b.WriteString(draft[last:sp.start])
		last = sp.end

		if !f.checkable(sentence) {
			b.WriteString(sentence)
			continue
		}
		if err := ctx.Err(); err != nil {
			return rails.Verdict{}, err
		}

		checked++
		check := f.Check(sentence, fallback)
		switch check.Outcome {
		case OutcomeCorrected:
			corrected++
			b.WriteString(check.Entry.Claim)
		case OutcomeHedged:
			hedged++
			b.WriteString(f.cfg.HedgePrefix + sentence)
		case OutcomeUnverified:
			unsure++
			b.WriteString(sentence)
		default:
			b.WriteString(sentence)
		}
	}
	b.WriteString(draft[last:])

	if checked == 0 {
		return rails.Allow(f.Name(), "no checkable claims"), nil
	}

	verified := float64(checked-unsure) / float64(checked)

	if corrected+hedged > 0 {
		reason := fmt.Sprintf("%d of %d claims corrected, %d hedged", corrected, checked, hedged)
		v := rails.Rewrite(f.Name(), reason, b.String()).WithConfidence(verified)
		var notes []string
		if corrected > 0 {
			notes = append(notes, f.cfg.CorrectionNote)
		}
		if unsure > 0 {
			notes = append(notes, f.cfg.Disclaimer)
		}
		return v.WithDisclaimer(strings.Join(notes, " ")), nil
	}

	if unsure > 0 {
		reason := fmt.Sprintf("%d of %d claims could not be verified", unsure, checked)
		return rails.Allow(f.Name(), reason).WithDisclaimer(f.cfg.Disclaimer).WithConfidence(verified), nil
	}

	return rails.Allow(f.Name(), fmt.Sprintf("%d claims corroborated", checked)).WithConfidence(1), nil
}

// Check classifies a single sentence. fallback is the topic used when the
// sentence itself names none.
func (f *FactVerifier) Check(sentence, fallback string) ClaimCheck {
	check := ClaimCheck{Sentence: sentence, Outcome: OutcomeUnverified}

	topic, ok := f.kb.NearestTopic(sentence)
	if !ok {
		topic = fallback
	}
	if topic == "" {
		return check
	}
	check.Topic = topic

	entries := f.kb.Lookup(topic)
	if len(entries) == 0 {
		return check
	}

	best := -1
	for i, e := range entries {
		sim := f.kb.Similarity(sentence, e.Claim)
		if best < 0 || sim > check.Similarity {
			best = i
			check.Similarity = sim
		}
	}
	entry := entries[best]
	check.Entry = &entry

	if check.Similarity < f.cfg.RelatednessThreshold {
		check.Entry = nil
		return check
	}

	trusted := entry.Confidence >= f.cfg.MinConfidence

	switch {
	case numbersConflict(sentence, entry.Claim):
		if trusted {
			check.Outcome = OutcomeCorrected
		} else {
			check.Outcome = OutcomeHedged
		}
	case check.Similarity >= f.cfg.MatchThreshold && trusted:
		check.Outcome = OutcomeCorroborated
	default:
		check.Outcome = OutcomeHedged
	}
	return check
}

// checkable reports whether a sentence states something verifiable: it has
// a number or a proper noun past its first word, and is neither a question
// nor already hedged.
func (f *FactVerifier) checkable(sentence string) bool {
	s := strings.TrimSpace(sentence)
	if s == "" || strings.HasSuffix(s, "?") {
		return false
	}
	if strings.HasPrefix(s, strings.TrimSpace(f.cfg.HedgePrefix)) {
		return false
	}

	if strings.IndexFunc(s, unicode.IsDigit) >= 0 {
		return true
	}

	words := strings.Fields(s)
	for _, w := range words[1:] {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if w == "" || w == "I" || strings.HasPrefix(w, "I'") {
			continue
		}
		r, _ := utf8.DecodeRuneInString(w)
		if unicode.IsUpper(r) {
			return true
		}
	}
	return false
}

var numberPattern = regexp.MustCompile(`\d+(?:[.,]\d+)*`)

// numbersConflict reports whether sentence states a number that claim does
// not, when claim states any numbers at all.
func numbersConflict(sentence, claim string) bool {
	claimNumbers := numberPattern.FindAllString(claim, -1)
	if len(claimNumbers) == 0 {
		return false
	}
	known := make(map[string]bool, len(claimNumbers))
	for _, n := range claimNumbers {
		known[n] = true
	}
	for _, n := range numberPattern.FindAllString(sentence, -1) {
		if !known[n] {
			return true
		}
	}
	return false
}

type span struct {
	start, end int
}

// sentenceEnd matches terminal punctuation, optional closing quotes or
// brackets, and the whitespace that follows.
var sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*(\s+|$)`)

// splitSentences returns the byte spans of the sentences of text, each
// including its terminal punctuation but not the trailing whitespace.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	for _, m := range sentenceEnd.FindAllStringSubmatchIndex(text, -1) {
		end := m[2]
		if strings.TrimSpace(text[start:end]) != "" {
			spans = append(spans, trimSpan(text, start, end))
		}
		start = m[1]
	}
	if start < len(text) && strings.TrimSpace(text[start:]) != "" {
		spans = append(spans, trimSpan(text, start, len(text)))
	}
	return spans
}

func trimSpan(text string, start, end int) span {
	for start < end && unicode.IsSpace(rune(text[start])) {
		start++
	}
	for end > start && unicode.IsSpace(rune(text[end-1])) {
		end--
	}
	return span{start: start, end: end}
}
