package engine

import (
	"errors"
	"fmt"
)

// GenerationError represents a request that could not be served.
//
// Generation errors include:
//   - Invalid configuration: request parameters that can never be satisfied
//     regardless of randomness (bad counts, bad subsets)
//   - Constraint exhaustion: the combination space cannot supply the request
//     (analytically infeasible, or every candidate was consumed)
//
// GenerationError includes structured fields for diagnostics and recovery.
type GenerationError struct {
	// Code identifies the error category.
	Code GenerationErrorCode

	// Message is a human-readable description.
	Message string

	// Details contains additional context.
	Details map[string]string
}

// GenerationErrorCode categorizes generation errors.
type GenerationErrorCode string

const (
	// ErrCodeConfiguration indicates request parameters that cannot be valid.
	ErrCodeConfiguration GenerationErrorCode = "CONFIGURATION_INVALID"

	// ErrCodeExhausted indicates the constrained combination space cannot
	// supply the requested count.
	ErrCodeExhausted GenerationErrorCode = "CONSTRAINT_EXHAUSTED"
)

// Error implements the error interface.
func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsConfigurationError returns true if the error is an invalid-configuration
// error. Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeConfiguration
	}
	return false
}

// IsExhaustionError returns true if the error is a constraint-exhaustion
// error. Uses errors.As to handle wrapped errors.
func IsExhaustionError(err error) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeExhausted
	}
	return false
}

// NewConfigurationError creates a GenerationError for an invalid request.
func NewConfigurationError(format string, args ...any) *GenerationError {
	return &GenerationError{
		Code:    ErrCodeConfiguration,
		Message: fmt.Sprintf(format, args...),
	}
}

// NewExhaustionError creates a GenerationError for an unsatisfiable request.
func NewExhaustionError(requested int, available int64) *GenerationError {
	return &GenerationError{
		Code:    ErrCodeExhausted,
		Message: fmt.Sprintf("constrained space holds %d combinations, %d requested", available, requested),
		Details: map[string]string{
			"requested": fmt.Sprintf("%d", requested),
			"available": fmt.Sprintf("%d", available),
		},
	}
}
