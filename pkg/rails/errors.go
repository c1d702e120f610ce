package rails

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure surfaced by the engine matches exactly one of
// these with errors.Is. Stage blocks are not errors and never appear here.
var (
	// ErrProviderUnavailable means the model endpoint could not be reached
	// or rejected the request (network, auth, server failures).
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrProviderTimeout means no response arrived within the deadline.
	ErrProviderTimeout = errors.New("provider timeout")

	// ErrInvalidArgument means an action call did not satisfy its schema.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrActionTimeout means an action exceeded its time budget.
	ErrActionTimeout = errors.New("action timeout")

	// ErrActionExecutionFailed means an action handler returned an error
	// or panicked.
	ErrActionExecutionFailed = errors.New("action execution failed")

	// ErrPipelineLoopExceeded means the model kept requesting actions after
	// the configured number of resolution rounds.
	ErrPipelineLoopExceeded = errors.New("pipeline loop exceeded")

	// ErrConfigurationInvalid means a bundle, endpoint or registration was
	// rejected before serving.
	ErrConfigurationInvalid = errors.New("configuration invalid")
)

// Error is a classified engine failure.
type Error struct {
	// Kind is one of the Err* sentinels above.
	Kind error

	// Op names the operation that failed (e.g. "gateway.complete").
	Op string

	// Detail is an internal description; it is logged, never shown to users.
	Detail string

	// Cause is the underlying error, if any.
	Cause error
}

// NewError creates a classified error.
func NewError(kind error, op, detail string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Is matches the error kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// KindOf returns the sentinel kind of err, or nil if err is not classified.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrProviderUnavailable,
		ErrProviderTimeout,
		ErrInvalidArgument,
		ErrActionTimeout,
		ErrActionExecutionFailed,
		ErrPipelineLoopExceeded,
		ErrConfigurationInvalid,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Retryable reports whether err is a gateway failure that a caller-level
// retry policy may repeat.
func Retryable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrProviderTimeout)
}
