package errors

import (
	"errors"
	"fmt"
)

// ExtError is the structured error type for extsearch.
// It provides rich context for error handling, logging, and user presentation.
type ExtError struct {
	// Code is the unique error code (e.g., "ERR_104_SETTING_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinel errors for errors.Is checks. Matching is by code, so any
// ExtError carrying the same code satisfies errors.Is against these.
var (
	ErrSettingNotFound  = New(ErrCodeSettingNotFound, "setting not found", nil)
	ErrSettingInvalid   = New(ErrCodeSettingInvalid, "setting invalid", nil)
	ErrInvalidQueryNode = New(ErrCodeInvalidQueryNode, "invalid query node", nil)
	ErrUnknownModel     = New(ErrCodeUnknownModel, "unknown model", nil)
	ErrStoreUnavailable = New(ErrCodeStoreUnavailable, "settings store unavailable", nil)
)

// Error implements the error interface.
func (e *ExtError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *ExtError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with ExtError.
func (e *ExtError) Is(target error) bool {
	if t, ok := target.(*ExtError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *ExtError) WithDetail(key, value string) *ExtError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *ExtError) WithSuggestion(suggestion string) *ExtError {
	e.Suggestion = suggestion
	return e
}

// New creates a new ExtError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *ExtError {
	return &ExtError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an ExtError from an existing error.
// The error's message becomes the ExtError message.
func Wrap(code string, err error) *ExtError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *ExtError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// SettingNotFound creates the error returned when a settings key is not
// declared in any layer.
func SettingNotFound(key string) *ExtError {
	return New(ErrCodeSettingNotFound, fmt.Sprintf("setting not found: %q", key), nil).
		WithDetail("key", key)
}

// InvalidQueryNode creates the error returned by query tree constructors
// when given malformed arguments.
func InvalidQueryNode(node, message string) *ExtError {
	return New(ErrCodeInvalidQueryNode, fmt.Sprintf("%s: %s", node, message), nil).
		WithDetail("node", node)
}

// UnknownModel creates the error returned when a model label is not registered.
func UnknownModel(label string) *ExtError {
	return New(ErrCodeUnknownModel, fmt.Sprintf("unknown model: %q", label), nil).
		WithDetail("model", label).
		WithSuggestion("Run 'extsearch mapping --list' to see registered models")
}

// NetworkError creates a network-related error.
// Network errors are typically retryable.
func NetworkError(message string, cause error) *ExtError {
	return New(ErrCodeNetworkUnavailable, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *ExtError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *ExtError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if any ExtError in the chain has the Retryable flag set.
func IsRetryable(err error) bool {
	var ee *ExtError
	if errors.As(err, &ee) {
		return ee.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var ee *ExtError
	if errors.As(err, &ee) {
		return ee.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an ExtError.
// Returns empty string if not an ExtError.
func GetCode(err error) string {
	var ee *ExtError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

// GetCategory extracts the category from an ExtError.
// Returns empty string if not an ExtError.
func GetCategory(err error) Category {
	var ee *ExtError
	if errors.As(err, &ee) {
		return ee.Category
	}
	return ""
}
