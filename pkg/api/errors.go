// Structured wire errors for the API server.

package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes used in wire responses.
const (
	CodeValidation       = "validation_error"
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeMethodNotAllowed = "method_not_allowed"
	CodeRateLimited      = "rate_limit_exceeded"
	CodeInternal         = "internal_error"
)

// Error is a structured API error that maps directly to a wire response.
// Anything else raised in the middleware/handler chain is wrapped into a
// generic internal Error before being written, so internal detail never
// leaks onto the wire.
type Error struct {
	// Status is the HTTP status code.
	Status int `json:"-"`
	// Code is a stable, machine-readable error code.
	Code string `json:"code"`
	// Message is a human-readable description safe for clients.
	Message string `json:"message"`
	// Details carries optional structured context (field errors, retry hints).
	Details any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("api: %s (%d): %s", e.Code, e.Status, e.Message)
}

// WithDetails returns a copy of the error with Details set.
func (e *Error) WithDetails(details any) *Error {
	clone := *e
	clone.Details = details
	return &clone
}

// NewError creates a structured error with the given status, code and message.
func NewError(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// ValidationError reports malformed client input (400).
func ValidationError(message string) *Error {
	return NewError(http.StatusBadRequest, CodeValidation, message)
}

// UnauthorizedError reports missing or invalid credentials (401).
func UnauthorizedError(message string) *Error {
	return NewError(http.StatusUnauthorized, CodeUnauthorized, message)
}

// ForbiddenError reports insufficient permissions (403).
func ForbiddenError(message string) *Error {
	return NewError(http.StatusForbidden, CodeForbidden, message)
}

// NotFoundError reports a missing resource or unroutable path (404).
func NotFoundError(message string) *Error {
	return NewError(http.StatusNotFound, CodeNotFound, message)
}

// MethodNotAllowedError reports a routable path with no handler for the
// request method (405).
func MethodNotAllowedError(message string) *Error {
	return NewError(http.StatusMethodNotAllowed, CodeMethodNotAllowed, message)
}

// RateLimitedError reports an exhausted rate limit budget (429).
func RateLimitedError(message string) *Error {
	return NewError(http.StatusTooManyRequests, CodeRateLimited, message)
}

// InternalError reports an unclassified failure (500). The message is
// intentionally generic; the original error belongs in the server log.
func InternalError() *Error {
	return NewError(http.StatusInternalServerError, CodeInternal, "an internal error occurred")
}

// asAPIError coerces any error into a structured *Error. Structured errors
// pass through unchanged; everything else becomes a generic 500.
func asAPIError(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return InternalError()
}
