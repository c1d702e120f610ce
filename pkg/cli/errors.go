package cli

import (
	"errors"
	"fmt"

	"mercator-hq/railguard/pkg/rails"
)

// Exit codes returned by the railguard command.
const (
	ExitOK          = 0
	ExitFailure     = 1
	ExitConfig      = 2
	ExitUnavailable = 3
)

// CommandError represents an error from a command execution.
type CommandError struct {
	Command string
	Err     error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(command string, err error) *CommandError {
	return &CommandError{
		Command: command,
		Err:     err,
	}
}

// ExitCode maps err to a process exit code. Bundle problems exit with
// ExitConfig and unreachable model endpoints with ExitUnavailable so
// scripts can tell them apart from other failures.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, rails.ErrConfigurationInvalid):
		return ExitConfig
	case errors.Is(err, rails.ErrProviderUnavailable), errors.Is(err, rails.ErrProviderTimeout):
		return ExitUnavailable
	default:
		return ExitFailure
	}
}
