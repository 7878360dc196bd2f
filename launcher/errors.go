package launcher

import (
	"errors"
	"fmt"
	"strings"
)

// Protocol error kinds
const (
	KindSpawn         = "spawn"
	KindMalformedLine = "malformed_line"
	KindUnreadable    = "unreadable_output"
	KindConfig        = "config"
)

// ProtocolError means the sandbox environment is incompatible: the runtime
// could not be spawned, or its output was not the structured stream we asked
// for. It is never a verdict on the test itself.
type ProtocolError struct {
	Kind   string
	Err    error
	Stderr string // tail of the runtime's stderr, if any
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("sandbox protocol error (%s): %v", e.Kind, e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += "\nstderr: " + stderr
	}
	return msg
}

// Unwrap implements the errors.Unwrap interface
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a new ProtocolError
func NewProtocolError(kind string, err error) *ProtocolError {
	return &ProtocolError{Kind: kind, Err: err}
}

// IsProtocolError checks if the error is or wraps a ProtocolError
func IsProtocolError(err error) bool {
	var protoErr *ProtocolError
	return err != nil && errors.As(err, &protoErr)
}

// TargetFailureError is a failed sandboxed run whose test output could not be
// relayed, typically because the test never got to run.
type TargetFailureError struct {
	Test     string
	ExitCode int
	Stderr   string
}

func (e *TargetFailureError) Error() string {
	msg := fmt.Sprintf("sandboxed test %s exited with code %d without reporting a result", e.Test, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += "\nstderr: " + stderr
	}
	return msg
}

// IsTargetFailure checks if the error is or wraps a TargetFailureError
func IsTargetFailure(err error) bool {
	var targetErr *TargetFailureError
	return err != nil && errors.As(err, &targetErr)
}
