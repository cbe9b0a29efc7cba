// Package core wires the avatarmem service together: configuration,
// error types, and the Service that owns the session cache, the
// background sweeper, and the memory-consolidation pipeline.
package core

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig indicates that the provided configuration is invalid.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServiceError wraps errors with operation context.
//
// It records which operation failed so that log lines and API error
// payloads identify the failing stage without a stack trace.
type ServiceError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message in the form "avatarmem: <Op>: <Err>".
func (e *ServiceError) Error() string {
	return fmt.Sprintf("avatarmem: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with ServiceError.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// NewServiceError creates a new ServiceError wrapping the given error.
//
// If err is nil, returns nil, so it is safe to wrap unconditionally:
//
//	return NewServiceError("ChatStream", err)
func NewServiceError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &ServiceError{
		Op:  op,
		Err: err,
	}
}
