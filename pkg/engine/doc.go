// Package engine runs guarded conversation turns.
//
// An Engine holds an immutable Snapshot built from a rail bundle: the input
// and output stages, the frozen action registry, the knowledge store and the
// model gateway. Each request runs against the snapshot that was current when
// it started, so Reload never affects requests in flight.
//
// # Request flow
//
//	user turn → input stages → gateway ⇄ actions → output stages → response
//
// Input stages run in declared order. The first block ends the request
// without a model call; a rewrite replaces the latest user turn in a copy of
// the conversation. The gateway is then called, and every round of action
// calls it returns is resolved through the registry and fed back, up to
// orchestrator.max_action_rounds re-invocations. Output stages see the final
// draft and may block it, rewrite it or attach disclaimers.
//
// Blocks are results. Errors (ProviderUnavailable, ProviderTimeout,
// InvalidArgument, ActionTimeout, ActionExecutionFailed,
// PipelineLoopExceeded) abort the request; Generate then returns the
// bundle's generic failure text and the error for logging.
//
// # Usage
//
//	bundle, err := config.Load("configs/actions")
//	if err != nil {
//	    return err
//	}
//	e, err := engine.New(ctx, bundle, engine.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer e.Close()
//
//	resp, err := e.Generate(ctx, []engine.Message{{Role: "user", Content: "What time is it?"}})
//
// # Retries
//
// Gateway calls are attempted once unless orchestrator.retries is set. Only
// ProviderUnavailable and ProviderTimeout are retried, with exponential
// backoff.
package engine
