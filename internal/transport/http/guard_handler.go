package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// GuardHandler serves the guard status snapshot
type GuardHandler struct {
	guard  GuardStatusProvider
	logger *slog.Logger
}

func NewGuardHandler(guard GuardStatusProvider, logger *slog.Logger) *GuardHandler {
	return &GuardHandler{
		guard:  guard,
		logger: logger.With(slog.String("handler", "guard")),
	}
}

// Status handles GET /api/guard/status
func (h *GuardHandler) Status(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.guard.Status())
}
