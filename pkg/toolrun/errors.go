package toolrun

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned when a tool outlives its deadline
	ErrTimeout = errors.New("tool execution timed out")

	// ErrNotFound is returned when the tool binary is not on PATH
	ErrNotFound = errors.New("tool not found")

	// ErrEmptyCommand is returned for a request without a command
	ErrEmptyCommand = errors.New("empty command")
)

// ExitError reports a tool that ran to completion with a non-zero status.
type ExitError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with status %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with status %d", e.Command, e.ExitCode)
}
