// Package ragerrors provides sentinel and custom error types for the application.
package ragerrors

// ErrNotFound represents a "not found" error.
// Use when a requested resource doesn't exist.
var ErrNotFound = &NotFoundError{}

// NotFoundError is a sentinel error for resources that are not found.
type NotFoundError struct {
	Resource string
	Message  string
}

// NewNotFoundError creates a new NotFoundError with a custom message.
func NewNotFoundError(resource, message string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		Message:  message,
	}
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Resource != "" {
		return e.Resource + " not found"
	}

	return "resource not found"
}

// Is implements the error interface for error comparison.
func (e *NotFoundError) Is(target error) bool {
	_, ok := target.(*NotFoundError)

	return ok
}

// ErrValidation represents a validation error.
// Use when client input fails validation.
var ErrValidation = &ValidationError{}

// ValidationError is a sentinel error for validation failures.
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new ValidationError with a custom message.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	if e.Field != "" {
		return "validation failed for field: " + e.Field
	}

	return "validation error"
}

// Is implements the error interface for error comparison.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)

	return ok
}

// ErrUpstream is the sentinel for upstream model/service failures after
// retries are exhausted. The query is aborted and nothing is persisted;
// the caller sees a retryable failure.
var ErrUpstream = &UpstreamError{}

// UpstreamError is a sentinel error for upstream failures (embedder,
// generator, verifier).
type UpstreamError struct {
	Stage   string
	Message string
}

// NewUpstreamError creates an UpstreamError for the given pipeline stage.
func NewUpstreamError(stage, message string) *UpstreamError {
	return &UpstreamError{Stage: stage, Message: message}
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Message != "" {
		if e.Stage != "" {
			return e.Stage + ": " + e.Message
		}

		return e.Message
	}

	return "upstream failure"
}

// Is implements the error interface for error comparison.
func (e *UpstreamError) Is(target error) bool {
	_, ok := target.(*UpstreamError)

	return ok
}

// ErrConcurrency is the sentinel for operations rejected because an
// exclusive job is already in flight (e.g. atlas recompute).
var ErrConcurrency = &ConcurrencyError{}

// ConcurrencyError is a sentinel error for exclusive-operation conflicts.
type ConcurrencyError struct {
	Message string
}

// NewConcurrencyError creates a ConcurrencyError with a custom message.
func NewConcurrencyError(message string) *ConcurrencyError {
	return &ConcurrencyError{Message: message}
}

// Error implements the error interface.
func (e *ConcurrencyError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return "operation already in progress"
}

// Is implements the error interface for error comparison.
func (e *ConcurrencyError) Is(target error) bool {
	_, ok := target.(*ConcurrencyError)

	return ok
}
