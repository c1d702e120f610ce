// Package rails defines the shared vocabulary of the rail execution engine:
// stages, verdicts, the per-request turn context and the error taxonomy.
//
// # Stages and Verdicts
//
// A Stage evaluates a TurnContext and returns a Verdict. Input stages look
// at the latest user turn; output stages look at the draft response:
//
//	v, err := stage.Evaluate(ctx, tc)
//	switch v.Decision {
//	case rails.DecisionBlock:   // stop, return v.Reason to the caller
//	case rails.DecisionRewrite: // continue with v.Replacement
//	case rails.DecisionAllow:   // continue unchanged
//	}
//
// Blocks are normal outcomes, not errors.
//
// # Errors
//
// Failures are classified with the Err* sentinels so callers can branch with
// errors.Is without inspecting messages:
//
//	if errors.Is(err, rails.ErrProviderTimeout) {
//	    // the model did not answer in time
//	}
//
// The Detail of an *Error is meant for logs. It is never returned to end
// users.
package rails
