// Package errors provides structured error types for satfetch.
// Errors carry a numeric code for categorization while the underlying cause
// stays available to errors.Is/As for diagnostics.
//
// This package provides:
//   - Sentinel errors for common error conditions
//   - Error codes for categorizing failures
//   - Error wrapping with context preservation
//   - Process exit statuses derived from error codes
package errors

import (
	"errors"
	"fmt"
)

// Error codes for categorizing errors. The generic codes follow JSON-RPC 2.0
// numbering; application codes live in the -32000 to -32099 range.
const (
	CodeInvalidParams = -32602 // Invalid parameters
	CodeInternal      = -32603 // Internal error

	CodeNotFound      = -32003 // Object or bucket not found
	CodeTimeout       = -32005 // Operation timeout
	CodeUnavailable   = -32007 // Remote service unavailable
	CodeConnection    = -32009 // Connection could not be established
	CodeState         = -32010 // Invalid state
	CodeExhausted     = -32011 // Connection pool exhausted
	CodeClosed        = -32012 // Resource closed
	CodeCircuitOpen   = -32013 // Circuit breaker rejected the call
	CodeConfiguration = -32014 // Configuration error
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound indicates an object or bucket was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates the remote service is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrClosed indicates a resource is closed.
	ErrClosed = errors.New("closed")

	// ErrInvalidState indicates an invalid state transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrConnection indicates a connection could not be created.
	ErrConnection = errors.New("connection error")

	// ErrExhausted indicates a bounded resource has no capacity left.
	ErrExhausted = errors.New("exhausted")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")

	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Pool errors
var (
	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = fmt.Errorf("pool: %w", ErrClosed)

	// ErrPoolExhausted is returned when the pool is full and the overflow
	// policy does not allow the caller to proceed.
	ErrPoolExhausted = fmt.Errorf("pool: connection pool %w", ErrExhausted)

	// ErrPoolTimeout is returned when waiting for a pooled connection times out.
	ErrPoolTimeout = fmt.Errorf("pool: acquire: %w", ErrTimeout)
)

// Storage errors
var (
	// ErrStorageBucketRequired indicates no bucket was configured.
	ErrStorageBucketRequired = fmt.Errorf("storage: bucket %w", ErrInvalidInput)

	// ErrStorageUnsupportedClient indicates a pooled client lacks object-store methods.
	ErrStorageUnsupportedClient = fmt.Errorf("storage: unsupported client: %w", ErrInvalidState)
)

// Config errors
var (
	// ErrConfigInvalid indicates the configuration file failed validation.
	ErrConfigInvalid = fmt.Errorf("config: %w", ErrConfiguration)
)

// Error is a structured error with a code and message.
type Error struct {
	// Code is the error code for categorization
	Code int
	// Message describes the failure
	Message string
	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new structured error with the given code and message.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and message.
// The original error is preserved for errors.Is/As.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConnectionError reports that a client handle could not be created.
// The result matches both ErrConnection and cause under errors.Is.
func NewConnectionError(cause error) *Error {
	return Wrap(CodeConnection, "connection creation failed", fmt.Errorf("%w: %w", ErrConnection, cause))
}

// FromSentinel creates a structured error from a sentinel error.
// It automatically assigns an appropriate error code based on the error type.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}

	return &Error{
		Code:    codeFromError(err),
		Message: err.Error(),
		Err:     err,
	}
}

// Exit statuses returned by ExitStatus.
const (
	ExitFailure     = 1 // Unclassified failure
	ExitUsage       = 2 // Invalid input or configuration
	ExitNotFound    = 3 // Object or bucket not found
	ExitUnavailable = 4 // Store unreachable, timed out or circuit open
	ExitExhausted   = 5 // Pool had no capacity
)

// ExitStatus maps the error code to a process exit status.
func (e *Error) ExitStatus() int {
	switch e.Code {
	case CodeInvalidParams, CodeConfiguration:
		return ExitUsage
	case CodeNotFound:
		return ExitNotFound
	case CodeTimeout, CodeUnavailable, CodeConnection, CodeCircuitOpen:
		return ExitUnavailable
	case CodeExhausted:
		return ExitExhausted
	default:
		return ExitFailure
	}
}

// codeFromError maps sentinel errors to error codes.
func codeFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidParams
	case errors.Is(err, ErrInvalidState):
		return CodeState
	case errors.Is(err, ErrConnection):
		return CodeConnection
	case errors.Is(err, ErrExhausted):
		return CodeExhausted
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrCircuitOpen):
		return CodeCircuitOpen
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	default:
		return CodeInternal
	}
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable returns true if the error indicates a service is unavailable.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// IsInvalidInput returns true if the error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsConnection returns true if the error indicates a connection could not be created.
func IsConnection(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsExhausted returns true if the error indicates the pool had no capacity.
func IsExhausted(err error) bool {
	return errors.Is(err, ErrExhausted)
}

// IsClosed returns true if the error indicates a resource is closed.
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

// IsCircuitOpen returns true if the error came from an open circuit breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
