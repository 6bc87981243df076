package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	apierrors "meowauth/internal/errors"
	"meowauth/internal/guard"
)

// GuardStatusProvider is the read side of the guard controller
type GuardStatusProvider interface {
	Status() guard.Status
}

// HealthResponse is the liveness body
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse is the readiness body when the guard is monitoring
type ReadinessResponse struct {
	Status     string `json:"status"`
	GuardState string `json:"guard_state"`
	Identity   string `json:"identity"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	guard     GuardStatusProvider
	errors    *apierrors.ErrorHandler
	version   string
	startedAt time.Time
	now       func() time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(guard GuardStatusProvider, errs *apierrors.ErrorHandler, version string) *HealthHandler {
	return &HealthHandler{
		guard:     guard,
		errors:    errs,
		version:   version,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// LivenessCheck handles GET /health and GET /health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	render.JSON(w, r, HealthResponse{
		Status:    "healthy",
		Version:   h.version,
		Uptime:    now.Sub(h.startedAt).Round(time.Second).String(),
		Timestamp: now.UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /health/ready
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	st := h.guard.Status()
	if !st.Monitoring() {
		h.errors.HandleError(w, r, apierrors.GuardNotReady(st.State, st.ShutdownErr))
		return
	}

	render.JSON(w, r, ReadinessResponse{
		Status:     "ready",
		GuardState: st.State,
		Identity:   st.Identity,
	})
}
