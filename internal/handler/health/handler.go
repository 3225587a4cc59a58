package health

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lumenlabs/chat-starter/backend/pkg/utils"
)

// Version is reported by the health endpoint so load balancers and
// container probes can tell which build is running.
const Version = "0.1.0"

// Handler serves the liveness probe.
type Handler struct{}

// New creates a health handler.
func New() *Handler {
	return &Handler{}
}

// RegisterRoutes mounts the health routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleCheck)
}

func (h *Handler) handleCheck(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}
