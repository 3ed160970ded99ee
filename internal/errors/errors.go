// Package errors defines the typed application errors used across the intake pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeRateLimited indicates the caller must wait before submitting again.
	ErrCodeRateLimited ErrorCode = "rate_limited"
	// ErrCodeTransient indicates a processing failure that may succeed on retry.
	ErrCodeTransient ErrorCode = "transient"
	// ErrCodeTerminal indicates a processing failure that will never succeed on retry.
	ErrCodeTerminal ErrorCode = "terminal"
	// ErrCodeUnauthorized indicates missing or invalid credentials.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"
)

// AppError represents a structured application error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
	// RetryAfter hints when a rate-limited caller may try again (optional)
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newf(code ErrorCode, format string, args ...any) *AppError {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &AppError{Code: code, Message: msg}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError { return newf(ErrCodeNotFound, "%s", message) }

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError { return newf(ErrCodeNotFound, format, args...) }

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError { return newf(ErrCodeConflict, "%s", message) }

// Validation creates a new Validation error.
func Validation(message string) *AppError { return newf(ErrCodeValidation, "%s", message) }

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// RateLimited creates a RateLimited error carrying a retry hint.
func RateLimited(message string, retryAfter time.Duration) *AppError {
	return &AppError{
		Code:       ErrCodeRateLimited,
		Message:    message,
		RetryAfter: retryAfter,
	}
}

// Transient wraps err as a retryable processing failure.
func Transient(err error, message string) *AppError {
	return &AppError{Code: ErrCodeTransient, Message: message, Cause: err}
}

// Terminal wraps err as a non-retryable processing failure.
func Terminal(err error, message string) *AppError {
	return &AppError{Code: ErrCodeTerminal, Message: message, Cause: err}
}

// Unauthorized creates a new Unauthorized error.
func Unauthorized(message string) *AppError { return newf(ErrCodeUnauthorized, "%s", message) }

// Internal creates a new Internal error.
func Internal(message string) *AppError { return newf(ErrCodeInternal, "%s", message) }

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError { return newf(ErrCodeInternal, format, args...) }

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool { return isCode(err, ErrCodeNotFound) }

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool { return isCode(err, ErrCodeConflict) }

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool { return isCode(err, ErrCodeValidation) }

// IsRateLimited checks if an error is a RateLimited error.
func IsRateLimited(err error) bool { return isCode(err, ErrCodeRateLimited) }

// IsTransient checks if an error is a Transient error.
func IsTransient(err error) bool { return isCode(err, ErrCodeTransient) }

// IsTerminal checks if an error is a Terminal error.
func IsTerminal(err error) bool { return isCode(err, ErrCodeTerminal) }

// IsUnauthorized checks if an error is an Unauthorized error.
func IsUnauthorized(err error) bool { return isCode(err, ErrCodeUnauthorized) }

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool { return isCode(err, ErrCodeInternal) }

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool { return isCode(err, ErrCodeTimeout) }

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool { return isCode(err, ErrCodeCanceled) }

// Retryable reports whether a worker should retry after err. Only the
// outermost AppError code is consulted; unclassified errors are retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return true
	}
	switch appErr.Code {
	case ErrCodeTerminal, ErrCodeValidation, ErrCodeNotFound, ErrCodeConflict, ErrCodeUnauthorized:
		return false
	default:
		return true
	}
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}

// GetRetryAfter returns the retry hint of a RateLimited error.
func GetRetryAfter(err error) time.Duration {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.RetryAfter
	}
	return 0
}
