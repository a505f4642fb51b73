// Package errors provides the structured error taxonomy shared by the
// coordinator and worker processes.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource (job document, storage key) was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeConfiguration indicates a fatal configuration problem. The process
	// must refuse to operate rather than degrade.
	ErrCodeConfiguration ErrorCode = "configuration"
	// ErrCodeAuthentication indicates a webhook signature mismatch.
	ErrCodeAuthentication ErrorCode = "authentication"
	// ErrCodeTransientIO indicates a storage or subprocess failure that the
	// caller may retry or route around.
	ErrCodeTransientIO ErrorCode = "transient_io"
	// ErrCodeDelivery indicates an outbound webhook delivery failure.
	ErrCodeDelivery ErrorCode = "delivery"
	// ErrCodeInternal indicates an internal server error.
	ErrCodeInternal ErrorCode = "internal"
)

// AppError represents a structured application error with a code, message, and
// optional cause. It supports error wrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Status is the HTTP status an upstream dependency responded with,
	// when one exists (optional, 0 when absent)
	Status int
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

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: message}
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message}
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Configuration creates a new Configuration error.
func Configuration(message string) *AppError {
	return &AppError{Code: ErrCodeConfiguration, Message: message}
}

// Authentication creates a new Authentication error.
func Authentication(message string) *AppError {
	return &AppError{Code: ErrCodeAuthentication, Message: message}
}

// TransientIO wraps a storage or subprocess failure.
func TransientIO(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeTransientIO, Message: message, Cause: cause}
}

// TransientIOStatus wraps a storage failure that carries an upstream HTTP
// status, so callers reporting the failure can surface what the dependency
// actually answered.
func TransientIOStatus(message string, status int, cause error) *AppError {
	return &AppError{Code: ErrCodeTransientIO, Message: message, Cause: cause, Status: status}
}

// Delivery wraps an outbound webhook delivery failure.
func Delivery(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeDelivery, Message: message, Cause: cause}
}

// Internal creates a new Internal error wrapping a cause.
func Internal(message string, cause error) *AppError {
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// Wrap wraps an error with additional context while preserving its code.
// Non-AppError causes are wrapped as Internal.
func Wrap(message string, cause error) *AppError {
	var appErr *AppError
	if errors.As(cause, &appErr) {
		return &AppError{Code: appErr.Code, Message: message, Cause: cause}
	}
	return &AppError{Code: ErrCodeInternal, Message: message, Cause: cause}
}

// CodeOf extracts the ErrorCode from an error chain, or ErrCodeInternal when
// the chain carries no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternal
}

// StatusOf extracts the upstream HTTP status from an error chain, or 0 when
// the chain carries none.
func StatusOf(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return 0
}

// IsNotFound reports whether the error chain contains a NotFound error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

// IsValidation reports whether the error chain contains a Validation error.
func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}
