package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components use these instead of hardcoded strings so
// the retry sweeper and logs can classify failures consistently.
const (
	// Configuration: fatal at startup, never retried.
	ErrCodeConfigMissing ErrorCode = "config_missing_required"
	ErrCodeConfigInvalid ErrorCode = "config_invalid"

	// Database.
	ErrCodeInternalDB ErrorCode = "internal_database_error"
	ErrCodeNotFound   ErrorCode = "not_found"

	// Mail transport. All retry-eligible.
	ErrCodeUpstreamMail        ErrorCode = "upstream_mail_provider"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeEmailBlocked        ErrorCode = "email_blocked"

	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// AppError is the standard application error type. Domain errors are
// expressed as AppError so callers can classify them without string matching.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// CodeOf extracts the ErrorCode from err, walking the wrap chain. Returns
// ErrCodeInternalUnexpected when err carries no AppError.
func CodeOf(err error) ErrorCode {
	var app *AppError
	if errors.As(err, &app) {
		return app.Code
	}
	return ErrCodeInternalUnexpected
}
