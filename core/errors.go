package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Validation errors
	ErrValidation = errors.New("validation failed")
	ErrParse      = errors.New("malformed payload")

	// Adapter errors
	ErrStoreFailure  = errors.New("store operation failed")
	ErrBrokerFailure = errors.New("broker operation failed")
	ErrKeyNotFound   = errors.New("key not found")
	ErrBadArgument   = errors.New("bad argument")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Operation errors
	ErrAlreadyStarted     = errors.New("already started")
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded")
	ErrCircuitOpen        = errors.New("circuit breaker is open")
	ErrConnectionFailed   = errors.New("connection failed")
)

// ControlError provides structured error information with context.
// It implements the error interface and supports error wrapping.
type ControlError struct {
	Op      string // Operation that failed (e.g., "broker.ReadGroup")
	Kind    string // Error kind (e.g., "store", "broker", "request")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *ControlError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *ControlError) Unwrap() error {
	return e.Err
}

// NewControlError creates a new ControlError
func NewControlError(op, kind string, err error) *ControlError {
	return &ControlError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsRetryable checks if an error is retryable.
// Retryable errors are typically transient network or availability issues.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreFailure) ||
		errors.Is(err, ErrBrokerFailure) ||
		errors.Is(err, ErrConnectionFailed)
}

// IsValidation checks if an error represents invalid input
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrParse) ||
		errors.Is(err, ErrBadArgument)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}
