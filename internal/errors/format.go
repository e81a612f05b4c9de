package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// asExtError finds the first ExtError in err's chain, wrapping plain errors
// as internal errors.
func asExtError(err error) *ExtError {
	var ee *ExtError
	if errors.As(err, &ee) {
		return ee
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForUser returns a user-friendly error message.
// If debug is true, includes the details and cause.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var ee *ExtError
	if !errors.As(err, &ee) {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(ee.Message)
	sb.WriteString("\n")

	if ee.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(ee.Suggestion)
		sb.WriteString("\n")
	}

	if debug {
		for k, v := range ee.Details {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, v))
		}
		if ee.Cause != nil {
			sb.WriteString(fmt.Sprintf("  cause: %v\n", ee.Cause))
		}
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", ee.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	ee := asExtError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", ee.Message))
	if ee.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", ee.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", ee.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	ee := asExtError(err)
	je := jsonError{
		Code:       ee.Code,
		Message:    ee.Message,
		Category:   string(ee.Category),
		Severity:   string(ee.Severity),
		Details:    ee.Details,
		Suggestion: ee.Suggestion,
		Retryable:  ee.Retryable,
	}
	if ee.Cause != nil {
		je.Cause = ee.Cause.Error()
	}

	return json.Marshal(je)
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var ee *ExtError
	if !errors.As(err, &ee) {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": ee.Code,
		"message":    ee.Message,
		"category":   string(ee.Category),
		"severity":   string(ee.Severity),
		"retryable":  ee.Retryable,
	}
	if ee.Cause != nil {
		result["cause"] = ee.Cause.Error()
	}
	if ee.Suggestion != "" {
		result["suggestion"] = ee.Suggestion
	}
	for k, v := range ee.Details {
		result["detail_"+k] = v
	}

	return result
}
