package handler

import (
	"log/slog"
	"net/http"

	"opsgate/internal/platform/httputil"
)

type statusResponse struct {
	Status string `json:"status"`
}

// HTTP serves /healthz and /readyz.
type HTTP struct {
	checker *Checker
	logger  *slog.Logger
}

// NewHTTP returns the HTTP health handlers.
func NewHTTP(checker *Checker, logger *slog.Logger) *HTTP {
	return &HTTP{checker: checker, logger: logger}
}

// Live always answers ok while the process serves requests.
func (h *HTTP) Live(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// Ready answers 503 when a dependency is down. The cause is logged, never returned.
func (h *HTTP) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.checker.Ready(r.Context()); err != nil {
		h.logger.WarnContext(r.Context(), "readiness check failed", "error", err)
		httputil.WriteJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
