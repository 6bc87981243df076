package errors

import (
	"net/http"

	"github.com/go-chi/render"
)

// APIError represents a structured API error response
type APIError struct {
	StatusCode int         `json:"status_code"`
	ErrorCode  string      `json:"error_code"`
	Message    string      `json:"message"`
	Details    interface{} `json:"details,omitempty"`
	// Cause is the underlying failure, kept out of the response body.
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// Render implements the render.Renderer interface for chi/render
func (e *APIError) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.StatusCode)
	return nil
}

// New creates a new APIError with the given parameters
func New(statusCode int, errorCode, message string) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
	}
}

// NewWithDetails creates a new APIError with additional details
func NewWithDetails(statusCode int, errorCode, message string, details interface{}) *APIError {
	return &APIError{
		StatusCode: statusCode,
		ErrorCode:  errorCode,
		Message:    message,
		Details:    details,
	}
}

var (
	ErrNotFound          = New(http.StatusNotFound, "NOT_FOUND", "Resource not found")
	ErrMethodNotAllowed  = New(http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
	ErrRateLimitExceeded = New(http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED", "Rate limit exceeded")

	// ErrGuardNotReady is returned while the guard is not monitoring
	ErrGuardNotReady = New(http.StatusServiceUnavailable, "GUARD_NOT_READY", "License guard is not monitoring")
)

// GuardNotReady reports the guard state that made a readiness check fail.
// cause is the guard's shutdown error, nil while it is still verifying.
func GuardNotReady(state string, cause error) *APIError {
	details := map[string]string{"state": state}
	if cause != nil {
		details["reason"] = cause.Error()
	}
	apiErr := NewWithDetails(ErrGuardNotReady.StatusCode, ErrGuardNotReady.ErrorCode, ErrGuardNotReady.Message, details)
	apiErr.Cause = cause
	return apiErr
}
