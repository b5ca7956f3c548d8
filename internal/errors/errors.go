// Package errors provides the structured error type used across Docdex.
// Every user-actionable failure carries a stable code so that API handlers
// and the pipeline can react without string matching.
package errors

import (
	"fmt"
)

// Error codes. These are part of the API surface: handlers map them to
// response payloads and tests assert on them.
const (
	CodeInvalidURL      = "INVALID_URL"
	CodeInvalidVersion  = "INVALID_VERSION"
	CodeVersionNotFound = "VERSION_NOT_FOUND"
	CodeDimensionError  = "DIMENSION_ERROR"
	CodeScrape4xx       = "SCRAPE_4XX"
	CodeScrape5xx       = "SCRAPE_5XX"
	CodeProcessingError = "PROCESSING_ERROR"
	CodeEmptyURL        = "EMPTY_URL"
	CodeMigrationFailed = "MIGRATION_FAILED"
	CodeBusy            = "BUSY"
	CodeJobNotFound     = "JOB_NOT_FOUND"
	CodeInvalidOptions  = "INVALID_OPTIONS"
)

// retryableCodes marks codes for which the originating operation may be
// retried with backoff.
var retryableCodes = map[string]bool{
	CodeScrape4xx: true,
	CodeBusy:      true,
}

// Error is the structured error type for Docdex.
type Error struct {
	// Code is the stable error code (e.g. "VERSION_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestions carries user-actionable alternatives, e.g. the list of
	// indexed versions when a requested version is not found.
	Suggestions []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches by code so errors.Is works across wrapping.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestions attaches user-actionable alternatives.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// New creates a new Error with the given code and message.
// The retryable flag is derived from the code.
func New(code, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryableCodes[code],
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code string, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates an Error from an existing error.
// The error's message becomes the Error message.
func Wrap(code string, err error) *Error {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// IsRetryable reports whether the error carries a retryable code.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetCode extracts the code from an Error, or "" for foreign errors.
func GetCode(err error) string {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
