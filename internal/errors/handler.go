package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/go-chi/render"

	"meowauth/internal/guard"
	"meowauth/internal/infrastructure"
)

// ErrorHandler provides centralized error handling
type ErrorHandler struct {
	logger       *slog.Logger
	includeStack bool
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *slog.Logger, includeStack bool) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{
		logger:       logger.With(slog.String("component", "error_handler")),
		includeStack: includeStack,
	}
}

// HandleError converts any error to RFC 7807 format and responds
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	problem := h.ErrorToProblem(err, r)
	h.logger.LogAttrs(r.Context(), logLevel(problem.Status), "request failed",
		slog.String("error", err.Error()),
		slog.Int("status", problem.Status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)

	problem.WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))
	_ = render.Render(w, r, problem)
}

// logLevel keeps expected refusals, such as readiness polls while the guard
// is verifying, out of the error log.
func logLevel(status int) slog.Level {
	switch {
	case status == http.StatusServiceUnavailable:
		return slog.LevelDebug
	case status >= 500:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// ErrorToProblem converts an error to RFC 7807 Problem Details
func (h *ErrorHandler) ErrorToProblem(err error, r *http.Request) *ProblemDetails {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErrorToProblem(apiErr, r)
	}

	return NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred while processing your request",
		r.URL.Path,
	)
}

func apiErrorToProblem(apiErr *APIError, r *http.Request) *ProblemDetails {
	problemType := TypeInternal
	switch apiErr.StatusCode {
	case http.StatusNotFound:
		problemType = TypeNotFound
	case http.StatusMethodNotAllowed:
		problemType = TypeMethodNotAllowed
	case http.StatusTooManyRequests:
		problemType = TypeRateLimit
	}
	if apiErr.ErrorCode == ErrGuardNotReady.ErrorCode {
		problemType = guardProblemType(apiErr.Cause)
	}

	problem := NewProblemDetails(
		apiErr.StatusCode,
		problemType,
		http.StatusText(apiErr.StatusCode),
		apiErr.Message,
		r.URL.Path,
	).WithExtension("error_code", apiErr.ErrorCode)

	if apiErr.Details != nil {
		problem.WithExtension("details", apiErr.Details)
	}
	return problem
}

// guardProblemType names why the guard stopped serving
func guardProblemType(cause error) string {
	switch {
	case errors.Is(cause, guard.ErrRejected):
		return TypeGuardRejected
	case errors.Is(cause, guard.ErrTransport):
		return TypeGuardNetwork
	default:
		return TypeGuardNotReady
	}
}

// HandlePanic logs a recovered panic and responds with a 500 problem
func (h *ErrorHandler) HandlePanic(w http.ResponseWriter, r *http.Request, recovered interface{}) {
	traceID := infrastructure.GetTraceID(r.Context())

	h.logger.ErrorContext(r.Context(), "panic recovered",
		slog.Any("panic", recovered),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("stack", string(debug.Stack())),
	)

	problem := NewProblemDetails(
		http.StatusInternalServerError,
		TypeInternal,
		"Internal Server Error",
		"An unexpected error occurred",
		r.URL.Path,
	).WithExtension("trace_id", traceID)

	if h.includeStack {
		problem.WithExtension("panic", fmt.Sprintf("%v", recovered))
		problem.WithExtension("stack", string(debug.Stack()))
	}

	_ = render.Render(w, r, problem)
}

// NotFound is installed as the router's 404 handler
func (h *ErrorHandler) NotFound(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, h.problemFor(ErrNotFound, r))
}

// MethodNotAllowed is installed as the router's 405 handler
func (h *ErrorHandler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	apiErr := New(http.StatusMethodNotAllowed, ErrMethodNotAllowed.ErrorCode,
		fmt.Sprintf("Method %s is not allowed for this endpoint", r.Method))
	_ = render.Render(w, r, h.problemFor(apiErr, r))
}

// RateLimited responds with a 429 problem and a Retry-After hint
func (h *ErrorHandler) RateLimited(w http.ResponseWriter, r *http.Request, retryAfterSeconds int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds))
	problem := h.problemFor(ErrRateLimitExceeded, r).WithExtension("retry_after", retryAfterSeconds)
	_ = render.Render(w, r, problem)
}

func (h *ErrorHandler) problemFor(apiErr *APIError, r *http.Request) *ProblemDetails {
	return apiErrorToProblem(apiErr, r).WithExtension("trace_id", infrastructure.GetTraceID(r.Context()))
}
