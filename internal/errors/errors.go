package errors

import (
	"fmt"
)

// ScriptError is the structured error type for ScriptRAG.
// It provides rich context for error handling, logging, and user presentation.
type ScriptError struct {
	// Code is the unique error code (e.g., "ERR_201_STORE_READ").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Storage, Provider, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *ScriptError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ScriptError.
func (e *ScriptError) Is(target error) bool {
	if t, ok := target.(*ScriptError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ScriptError) WithDetail(key, value string) *ScriptError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new ScriptError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ScriptError {
	return &ScriptError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a ScriptError from an existing error.
// The error's message becomes the ScriptError message.
func Wrap(code string, err error) *ScriptError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ScriptError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StorageError creates a persistence-related error.
func StorageError(message string, cause error) *ScriptError {
	return New(ErrCodeStoreWrite, message, cause)
}

// GenerationError creates an embedding-generation error.
func GenerationError(message string, cause error) *ScriptError {
	return New(ErrCodeGenerationFailed, message, cause)
}

// AdapterError creates a semantic-adapter error.
// Adapter errors degrade gracefully: the engine logs and serves SQL results.
func AdapterError(message string, cause error) *ScriptError {
	return New(ErrCodeAdapterFailed, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is a ScriptError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*ScriptError); ok {
		return se.Retryable
	}
	return false
}

// GetCode extracts the error code from a ScriptError.
// Returns empty string if not a ScriptError.
func GetCode(err error) string {
	if se, ok := err.(*ScriptError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a ScriptError.
// Returns empty string if not a ScriptError.
func GetCategory(err error) Category {
	if se, ok := err.(*ScriptError); ok {
		return se.Category
	}
	return ""
}
