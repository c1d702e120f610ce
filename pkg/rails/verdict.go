package rails

// Decision is the outcome of a single stage.
type Decision string

const (
	// DecisionAllow lets the turn continue unchanged.
	DecisionAllow Decision = "allow"

	// DecisionBlock stops the pipeline and returns the reason to the caller.
	DecisionBlock Decision = "block"

	// DecisionRewrite replaces the text under evaluation and continues.
	DecisionRewrite Decision = "rewrite"
)

// Verdict is the immutable result of evaluating one stage.
type Verdict struct {
	// Stage is the name of the stage that produced the verdict.
	Stage string `json:"stage"`

	// Decision is allow, block or rewrite.
	Decision Decision `json:"decision"`

	// Reason is a human-readable explanation. For blocks it is the message
	// returned to the caller.
	Reason string `json:"reason"`

	// Replacement is the new text for rewrite verdicts.
	Replacement string `json:"replacement,omitempty"`

	// Disclaimer is attached to the outgoing response when non-empty.
	Disclaimer string `json:"disclaimer,omitempty"`

	// Confidence is the stage's score behind the decision, when it has one.
	Confidence float64 `json:"confidence,omitempty"`
}

// Allow creates an allow verdict.
func Allow(stage, reason string) Verdict {
	return Verdict{Stage: stage, Decision: DecisionAllow, Reason: reason}
}

// Block creates a block verdict.
func Block(stage, reason string) Verdict {
	return Verdict{Stage: stage, Decision: DecisionBlock, Reason: reason}
}

// Rewrite creates a rewrite verdict carrying the replacement text.
func Rewrite(stage, reason, replacement string) Verdict {
	return Verdict{Stage: stage, Decision: DecisionRewrite, Reason: reason, Replacement: replacement}
}

// WithDisclaimer returns a copy of v with a disclaimer attached.
func (v Verdict) WithDisclaimer(disclaimer string) Verdict {
	v.Disclaimer = disclaimer
	return v
}

// WithConfidence returns a copy of v with a confidence score.
func (v Verdict) WithConfidence(confidence float64) Verdict {
	v.Confidence = confidence
	return v
}

// IsBlocked reports whether the verdict stops the pipeline.
func (v Verdict) IsBlocked() bool {
	return v.Decision == DecisionBlock
}

// IsRewrite reports whether the verdict replaces text.
func (v Verdict) IsRewrite() bool {
	return v.Decision == DecisionRewrite
}
