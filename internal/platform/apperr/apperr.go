// Copyright (c) 2026 NerdHQ. All rights reserved.

/*
Package apperr defines the centralized error handling framework for Gatekeeper.

It provides a rich error type that bridges the gap between low-level Domain/Storage
errors and high-level HTTP responses.

Architecture:

  - AppError: A struct containing machine-readable ErrorCode and user-friendly messages.
  - Taxonomy: ValidationError, NotFound, Unauthorized, Forbidden, Internal.
  - Mapping: Explicit mapping from AppError to standard HTTP Status Codes.

Every error that leaves the service layer should be wrapped as an [AppError] to ensure
consistent API responses.
*/
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the canonical error type for the Gatekeeper API.
//
// It carries an HTTP status code, a machine-readable code, a client-safe
// message, and an optional slice of field-level validation errors.
//
// # Security
//
// The Cause field is for server-side logging only and is never sent to clients
// to avoid leaking internal implementation details (e.g., SQL queries).
type AppError struct {
	// Code is a machine-readable error identifier (e.g. "NOT_FOUND", "FORBIDDEN").
	Code string `json:"code"`
	// Message is a human-readable description safe to return to the client.
	Message string `json:"error"`
	// Action tells the client what to do about the error, when there is
	// something actionable.
	Action string `json:"action,omitempty"`
	// RequiredFeature names the capability the caller lacked, for FORBIDDEN
	// responses. Always populated so authorization failures are diagnosable.
	RequiredFeature string `json:"required_feature,omitempty"`
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int `json:"-"`
	// Cause is the underlying error, used for server-side logging only.
	Cause error `json:"-"`
	// Details holds per-field validation errors for VALIDATION_ERROR responses.
	Details []FieldError `json:"details,omitempty"`
}

// FieldError represents a single field-level validation failure.
type FieldError struct {
	// Field is the JSON field name that failed validation.
	Field string `json:"field"`
	// Message is the human-readable description of the failure.
	Message string `json:"message"`
}

// Error implements the error interface. It returns the client-safe message.
func (e *AppError) Error() string { return e.Message }

// Unwrap allows [errors.Is] and [errors.As] to traverse the cause chain.
func (e *AppError) Unwrap() error { return e.Cause }

// As extracts an [*AppError] from an error chain, or returns nil.
func As(err error) *AppError {
	var appError *AppError
	if errors.As(err, &appError) {
		return appError
	}
	return nil
}

// IsNotFound reports whether err carries a NOT_FOUND [AppError].
func IsNotFound(err error) bool {
	appError := As(err)
	return appError != nil && appError.HTTPStatus == http.StatusNotFound
}

// # Client Errors (4xx)

// NotFound creates a 404 [AppError] with a client-safe message and a
// suggested follow-up action.
//
// The same NotFound is returned for entities that never existed and for
// tokens that are expired or already used, so callers cannot probe token
// lifecycle state.
func NotFound(message, action string) *AppError {
	return &AppError{
		Code:       "NOT_FOUND",
		Message:    message,
		Action:     action,
		HTTPStatus: http.StatusNotFound,
	}
}

// Unauthorized creates a 401 [AppError] for credential failures.
func Unauthorized(message, action string) *AppError {
	return &AppError{
		Code:       "UNAUTHORIZED",
		Message:    message,
		Action:     action,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden creates a 403 [AppError].
func Forbidden(message, action string) *AppError {
	return &AppError{
		Code:       "FORBIDDEN",
		Message:    message,
		Action:     action,
		HTTPStatus: http.StatusForbidden,
	}
}

// ForbiddenFeature creates a 403 [AppError] that records which capability the
// caller would have needed.
func ForbiddenFeature(feature, message, action string) *AppError {
	return &AppError{
		Code:            "FORBIDDEN",
		Message:         message,
		Action:          action,
		RequiredFeature: feature,
		HTTPStatus:      http.StatusForbidden,
	}
}

// ValidationError creates a 400 [AppError] with optional per-field details.
func ValidationError(message string, details ...FieldError) *AppError {
	return &AppError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    details,
	}
}

// MethodNotAllowed creates a 405 [AppError] for unsupported HTTP methods.
func MethodNotAllowed(method string) *AppError {
	return &AppError{
		Code:       "METHOD_NOT_ALLOWED",
		Message:    fmt.Sprintf("Method %q is not allowed for this resource", method),
		HTTPStatus: http.StatusMethodNotAllowed,
	}
}

// # Server Errors (5xx)

// Internal creates a 500 [AppError] wrapping an unexpected server-side error.
// The cause is stored for logging but is never sent to the client.
//
// Programmer errors (unknown feature strings, missing user context) and
// Persistence Port failures all surface through this constructor; they are
// never silently swallowed.
func Internal(cause error) *AppError {
	return &AppError{
		Code:       "INTERNAL_ERROR",
		Message:    "An unexpected internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Cause:      cause,
	}
}

// Internalf is shorthand for Internal(fmt.Errorf(...)).
func Internalf(format string, args ...any) *AppError {
	return Internal(fmt.Errorf(format, args...))
}
