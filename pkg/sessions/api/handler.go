package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/tendant/simple-device-auth/pkg/errors"
	"github.com/tendant/simple-device-auth/pkg/sessions"
)

// Handler handles HTTP requests for session management
type Handler struct {
	service *sessions.Service
}

// NewHandler creates a new session handler
func NewHandler(service *sessions.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the session management routes.
// These routes must be mounted behind the session middleware.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.ListSessions)
	r.Post("/{sessionId}/revoke", h.RevokeSession)
}

// ListSessions handles GET /sessions - List live sessions of the caller
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	current, ok := sessions.FromContext(r.Context())
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	response, err := h.service.ListActiveSessionSummaries(r.Context(), current.AccountID, current.ID)
	if err != nil {
		slog.Error("Failed to list sessions", "account_id", current.AccountID, "err", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, response)
}

// RevokeSession handles POST /sessions/{sessionId}/revoke
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	current, ok := sessions.FromContext(r.Context())
	if !ok {
		renderError(w, r, errors.Unauthorized("authentication required"))
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	target, err := h.service.GetSession(r.Context(), sessionID)
	if err != nil {
		renderError(w, r, err)
		return
	}

	// Sessions of other accounts are reported as missing.
	if target.AccountID != current.AccountID {
		slog.Warn("Attempted to revoke session of another account",
			"requester_account_id", current.AccountID,
			"session_id", sessionID)
		renderError(w, r, errors.NotFound("session"))
		return
	}

	if err := h.service.RevokeSession(r.Context(), sessionID); err != nil {
		slog.Error("Failed to revoke session", "session_id", sessionID, "err", err)
		renderError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{
		"message": "Session revoked successfully",
	})
}

// Router returns a router serving the session routes
func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func renderError(w http.ResponseWriter, r *http.Request, err error) {
	render.Status(r, errors.MapErrorCodeToHTTPStatus(errors.GetCode(err)))
	render.JSON(w, r, map[string]string{
		"code":    string(errors.GetCode(err)),
		"message": errors.SafeMessage(err),
	})
}
