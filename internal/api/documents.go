package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/voicedesk/voicedesk/internal/gateway"
)

// maxUploadBytes caps a whole upload batch held in memory while it is
// forwarded to the backend.
const maxUploadBytes = 64 << 20

// ListDocuments refreshes from the backend and returns the store snapshot.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.Refresh(r.Context()); err != nil {
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.docs.Snapshot())
}

// UploadDocuments forwards a multipart batch (field "files") to the
// backend and returns the refreshed snapshot.
func (h *Handler) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		Error(w, http.StatusBadRequest, "no files provided")
		return
	}

	files := make([]gateway.File, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			Error(w, http.StatusBadRequest, "unreadable file: "+fh.Filename)
			return
		}
		defer func() {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("Failed to close upload part", "filename", fh.Filename, "error", closeErr)
			}
		}()
		files = append(files, gateway.File{Filename: fh.Filename, Content: f})
	}

	if err := h.docs.Upload(r.Context(), files); err != nil {
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.docs.Snapshot())
}

// DeleteDocument removes one document server-side and returns the
// refreshed snapshot.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		Error(w, http.StatusBadRequest, "missing document id")
		return
	}
	if err := h.docs.Delete(r.Context(), id); err != nil {
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, h.docs.Snapshot())
}

// GetPrompt loads the current system prompt.
func (h *Handler) GetPrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.LoadPrompt(r.Context()); err != nil {
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"prompt": h.docs.Prompt()})
}

// UpdatePrompt persists a new system prompt.
func (h *Handler) UpdatePrompt(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Prompt == "" {
		Error(w, http.StatusBadRequest, "prompt cannot be empty")
		return
	}
	if err := h.docs.SavePrompt(r.Context(), body.Prompt); err != nil {
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"prompt": h.docs.Prompt()})
}

// ResetPrompt restores the backend default prompt.
func (h *Handler) ResetPrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.docs.ResetPrompt(r.Context()); err != nil {
		gatewayError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"prompt": h.docs.Prompt()})
}
