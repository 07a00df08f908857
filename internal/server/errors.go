package server

import (
	"fmt"
	"net/http"
)

// ErrorType classifies a request-level failure
type ErrorType string

const (
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeBadRequest   ErrorType = "bad_request"
	ErrorTypeStorage      ErrorType = "storage"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInternal     ErrorType = "internal"
)

// APIError is a structured request-level error. Only the critical image
// write surfaces as a storage error to the uploading client; degraded
// writes (metadata, journal) and broadcast failures are logged, never
// returned.
type APIError struct {
	Type    ErrorType
	Message string
	Code    int
	err     error // internal cause, for logging
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap exposes the internal cause
func (e *APIError) Unwrap() error {
	return e.err
}

// NewUnauthorizedError creates an authentication failure
func NewUnauthorizedError(msg string) *APIError {
	return &APIError{Type: ErrorTypeUnauthorized, Message: msg, Code: http.StatusUnauthorized}
}

// NewBadRequestError creates a malformed-request failure
func NewBadRequestError(msg string) *APIError {
	return &APIError{Type: ErrorTypeBadRequest, Message: msg, Code: http.StatusBadRequest}
}

// NewStorageError creates a critical-write failure
func NewStorageError(msg string, err error) *APIError {
	return &APIError{Type: ErrorTypeStorage, Message: msg, Code: http.StatusInternalServerError, err: err}
}

// NewInternalError creates a generic server-side failure
func NewInternalError(msg string, err error) *APIError {
	return &APIError{Type: ErrorTypeInternal, Message: msg, Code: http.StatusInternalServerError, err: err}
}
