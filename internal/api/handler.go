// Package api provides the HTTP handlers the embedded web UI calls.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voicedesk/voicedesk/internal/docs"
	"github.com/voicedesk/voicedesk/internal/gateway"
	"github.com/voicedesk/voicedesk/internal/history"
	"github.com/voicedesk/voicedesk/internal/session"
	"github.com/voicedesk/voicedesk/internal/voice"
)

// Handler serves the UI-facing REST API. It only dispatches into the
// stores and orchestrator; no business rules live here.
type Handler struct {
	docs  *docs.Store
	sess  *session.Store
	orch  *voice.Orchestrator
	calls history.Store // may be nil when call logging is disabled
}

// NewHandler creates a Handler with its dependencies.
func NewHandler(docStore *docs.Store, sessStore *session.Store, orch *voice.Orchestrator, calls history.Store) *Handler {
	return &Handler{
		docs:  docStore,
		sess:  sessStore,
		orch:  orch,
		calls: calls,
	}
}

// RegisterRoutes mounts all API routes on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/documents", h.ListDocuments)
		r.Post("/documents/upload", h.UploadDocuments)
		r.Delete("/documents/{id}", h.DeleteDocument)

		r.Get("/agent/prompt", h.GetPrompt)
		r.Put("/agent/prompt", h.UpdatePrompt)
		r.Post("/agent/prompt/reset", h.ResetPrompt)

		r.Get("/session", h.GetSession)
		r.Post("/session/connect", h.Connect)
		r.Post("/session/disconnect", h.Disconnect)
		r.Post("/session/mute", h.SetMuted)
		r.Post("/session/clear", h.ClearSession)

		r.Get("/calls", h.ListCalls)
		r.Get("/calls/{id}", h.GetCall)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// gatewayError maps a failed store operation to an HTTP response,
// forwarding the backend's status and detail when the failure came from
// the gateway.
func gatewayError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		Error(w, gwErr.StatusCode, gwErr.Message)
		return
	}
	Error(w, http.StatusBadGateway, err.Error())
}
