package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Typed errors below unwrap to one of these so callers can
// branch with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrRateLimited        = errors.New("rate limited")
	ErrServiceUnavailable = errors.New("service unavailable")

	// ErrNotPDF means downloaded bytes are not a PDF document.
	ErrNotPDF = errors.New("not a pdf")
)

// maxErrorBody bounds how much of an upstream response body an error keeps.
const maxErrorBody = 512

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

// NewValidationError creates a ValidationError.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// EntityError names the stored entity an ErrNotFound or ErrAlreadyExists is about.
type EntityError struct {
	Entity string
	ID     string
	kind   error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Entity, e.kind, e.ID)
}

func (e *EntityError) Unwrap() error { return e.kind }

// NewNotFoundError reports a missing entity.
func NewNotFoundError(entity, id string) *EntityError {
	return &EntityError{Entity: entity, ID: id, kind: ErrNotFound}
}

// NewAlreadyExistsError reports a duplicate entity.
func NewAlreadyExistsError(entity, id string) *EntityError {
	return &EntityError{Entity: entity, ID: id, kind: ErrAlreadyExists}
}

// ExternalAPIError is a non-success response from a source API. Besides its
// cause it matches the sentinel implied by the status code: 404 is
// ErrNotFound, 429 ErrRateLimited, 5xx ErrServiceUnavailable.
type ExternalAPIError struct {
	Source     string
	StatusCode int
	Message    string
	Cause      error
}

func (e *ExternalAPIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s API error (status %d)", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

func (e *ExternalAPIError) Unwrap() error { return e.Cause }

// Is matches the status-derived sentinel.
func (e *ExternalAPIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case ErrServiceUnavailable:
		return e.StatusCode >= 500
	}
	return false
}

// NewExternalAPIError creates an ExternalAPIError. The message, usually the
// response body, is truncated.
func NewExternalAPIError(source string, statusCode int, message string, cause error) *ExternalAPIError {
	if len(message) > maxErrorBody {
		message = message[:maxErrorBody] + "..."
	}
	return &ExternalAPIError{
		Source:     source,
		StatusCode: statusCode,
		Message:    message,
		Cause:      cause,
	}
}

// ConfigError describes a missing or invalid setting. Configuration errors
// are fatal at startup.
type ConfigError struct {
	Key     string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s: %s", e.Key, e.Message)
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// NewConfigError creates a ConfigError.
func NewConfigError(key, message string) *ConfigError {
	return &ConfigError{Key: key, Message: message}
}
