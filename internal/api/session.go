package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/voicedesk/voicedesk/internal/voice"
)

// GetSession returns the live-call snapshot.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// Connect starts a voice session.
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	if err := h.orch.Connect(r.Context()); err != nil {
		if errors.Is(err, voice.ErrAlreadyConnected) {
			Error(w, http.StatusConflict, "session already connected")
			return
		}
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// Disconnect ends the voice session. Safe to call when none is live.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.orch.Disconnect()
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// SetMuted records the microphone mute flag.
func (h *Handler) SetMuted(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Muted bool `json:"muted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.sess.SetMuted(body.Muted)
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// ClearSession drops the transcript and source lists on explicit user
// request.
func (h *Handler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.sess.ClearTranscript()
	h.sess.ClearSources()
	JSON(w, http.StatusOK, h.sess.Snapshot())
}

// ListCalls returns recent archived calls, newest first.
func (h *Handler) ListCalls(w http.ResponseWriter, r *http.Request) {
	if h.calls == nil {
		Error(w, http.StatusNotFound, "call history disabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.calls.ListCalls(r.Context(), limit)
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to list calls")
		return
	}
	JSON(w, http.StatusOK, map[string]any{"calls": records})
}

// GetCall returns one archived call including its transcript.
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	if h.calls == nil {
		Error(w, http.StatusNotFound, "call history disabled")
		return
	}

	record, err := h.calls.GetCall(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		Error(w, http.StatusInternalServerError, "failed to load call")
		return
	}
	if record == nil {
		Error(w, http.StatusNotFound, "call not found")
		return
	}
	JSON(w, http.StatusOK, record)
}
