package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrRateLimited indicates that the request was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates that an external service is unavailable.
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrInternalError indicates an internal server error.
	ErrInternalError = errors.New("internal error")

	// ErrCancelled indicates that an operation was cancelled.
	ErrCancelled = errors.New("cancelled")

	// ErrCycleInProgress indicates that an ingestion cycle is already running.
	ErrCycleInProgress = errors.New("ingestion cycle already in progress")

	// ErrProviderFailure indicates that a single provider fetch failed.
	ErrProviderFailure = errors.New("provider failure")

	// ErrPersistence indicates that the snapshot store could not be read or written.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError represents a validation error for a specific field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NotFoundError provides details about a not found entity.
type NotFoundError struct {
	Entity string
	ID     string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// RateLimitError provides details about a rate limit error.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s: retry after %s", e.Source, e.RetryAfter)
}

// Unwrap returns the underlying sentinel error for use with errors.Is.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// ExternalAPIError provides details about an external API error.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ExternalAPIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Unwrap returns the underlying cause error, or ErrServiceUnavailable when
// the failure carried no cause.
func (e *ExternalAPIError) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return ErrServiceUnavailable
}

// ProviderError wraps a failure from one upstream provider.
type ProviderError struct {
	Provider string
	Cause    error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Cause)
}

// Unwrap returns both the provider sentinel and the cause.
func (e *ProviderError) Unwrap() []error {
	return []error{ErrProviderFailure, e.Cause}
}

// PersistenceError wraps a snapshot store failure.
type PersistenceError struct {
	Op    string
	Cause error
}

// Error implements the error interface.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("snapshot %s: %v", e.Op, e.Cause)
}

// Unwrap returns both the persistence sentinel and the cause.
func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Cause}
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(entity, id string) *NotFoundError {
	return &NotFoundError{
		Entity: entity,
		ID:     id,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewRateLimitError creates a new RateLimitError.
func NewRateLimitError(source string, retryAfter time.Duration) *RateLimitError {
	return &RateLimitError{
		Source:     source,
		RetryAfter: retryAfter,
	}
}

// NewExternalAPIError creates a new ExternalAPIError.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider string, cause error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Cause:    cause,
	}
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op string, cause error) *PersistenceError {
	return &PersistenceError{
		Op:    op,
		Cause: cause,
	}
}
