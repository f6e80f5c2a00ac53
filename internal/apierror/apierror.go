// Package apierror provides the typed error vocabulary shared by the engine,
// storage providers, and the HTTP shell.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the kind of failure, independent of transport.
type Code string

const (
	CodeNotFound          Code = "not_found"
	CodeForbidden         Code = "forbidden"
	CodeConflict          Code = "conflict"
	CodeValidationFailed  Code = "validation_failed"
	CodeCycleDetected     Code = "cycle_detected"
	CodeIOError           Code = "io_error"
	CodeUnavailable       Code = "unavailable"
)

// Error is a structured error carrying a Code, an HTTP status, and optional
// per-field validation detail.
type Error struct {
	Code       Code           `json:"code"`
	Message    string         `json:"error"`
	HTTPStatus int            `json:"-"`
	Fields     []FieldError   `json:"details,omitempty"`
	Err        error          `json:"-"`
}

// FieldError names one failed field and why.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithField appends a field-level detail and returns the receiver.
func (e *Error) WithField(field, reason string) *Error {
	e.Fields = append(e.Fields, FieldError{Field: field, Reason: reason})
	return e
}

func httpStatusFor(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeForbidden:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeValidationFailed, CodeCycleDetected:
		return http.StatusBadRequest
	case CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeIOError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// New creates an Error of the given code with a default HTTP status.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatusFor(code)}
}

// Wrap creates an Error of the given code, preserving the causing error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, HTTPStatus: httpStatusFor(code), Err: err}
}

// NotFound builds a not_found error for a class/id pair.
func NotFound(class, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s/%s not found", class, id))
}

// Forbidden builds a forbidden error.
func Forbidden(message string) *Error {
	return New(CodeForbidden, message)
}

// Conflict builds a conflict error.
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// ValidationFailed builds a validation_failed error with zero or more field details.
func ValidationFailed(fields ...FieldError) *Error {
	e := New(CodeValidationFailed, "validation failed")
	e.Fields = fields
	return e
}

// CycleDetected builds a cycle_detected error.
func CycleDetected(classID string) *Error {
	return New(CodeCycleDetected, fmt.Sprintf("extends_id cycle detected at %s", classID))
}

// IOError wraps a storage-layer failure.
func IOError(operation string, err error) *Error {
	return Wrap(CodeIOError, fmt.Sprintf("storage operation %q failed", operation), err)
}

// Unavailable builds an unavailable error (provider timeout, hub unreachable).
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// As extracts an *Error from err's chain, if present.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// HTTPStatus returns the HTTP status code to use for err, defaulting to 500
// when err carries no *Error.
func HTTPStatus(err error) int {
	if apiErr, ok := As(err); ok {
		return apiErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
