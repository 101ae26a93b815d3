// Package docs holds the uploaded-document list and the agent's system
// prompt, and orchestrates fetch/upload/delete against the backend
// gateway. The backend stays authoritative: mutations always re-fetch the
// list instead of patching it locally, so a server-side failure can never
// desync the view.
package docs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voicedesk/voicedesk/internal/domain"
	"github.com/voicedesk/voicedesk/internal/gateway"
)

// Gateway is the slice of the backend client this store uses.
type Gateway interface {
	ListDocuments(ctx context.Context) ([]domain.Document, error)
	UploadDocuments(ctx context.Context, files []gateway.File) (*domain.UploadResult, error)
	DeleteDocument(ctx context.Context, id string) error
	GetPrompt(ctx context.Context) (string, error)
	UpdatePrompt(ctx context.Context, prompt string) (string, error)
	ResetPrompt(ctx context.Context) (string, error)
}

// Notifier receives store-change events for fan-out to connected views.
type Notifier interface {
	Broadcast(event string, payload any)
}

// Snapshot is the document/prompt state as rendered by views.
type Snapshot struct {
	Documents []domain.Document `json:"documents"`
	Prompt    string            `json:"prompt"`
	IsLoading bool              `json:"is_loading"`
	Error     string            `json:"error,omitempty"`
}

// Store is the document/prompt state container. A single loading flag is
// shared across all operations; the view disables mutating controls while
// it is set.
type Store struct {
	mu        sync.RWMutex
	documents []domain.Document
	prompt    string
	isLoading bool
	lastError string

	gw     Gateway
	notify Notifier
}

// New creates a document store backed by the given gateway. notify may be
// nil.
func New(gw Gateway, notify Notifier) *Store {
	return &Store{gw: gw, notify: notify}
}

// Refresh replaces the document list with the backend's authoritative
// state.
func (s *Store) Refresh(ctx context.Context) error {
	s.setLoading(true)
	docs, err := s.gw.ListDocuments(ctx)
	if err != nil {
		s.fail("fetch documents", err)
		return err
	}

	s.mu.Lock()
	s.documents = docs
	s.isLoading = false
	s.lastError = ""
	s.mu.Unlock()

	s.broadcast("documents", docs)
	s.broadcast("loading", false)
	return nil
}

// Upload sends a batch to the backend, reports per-file outcome notices,
// and refreshes the list regardless of how many files succeeded. No
// optimistic insertion happens here.
func (s *Store) Upload(ctx context.Context, files []gateway.File) error {
	s.setLoading(true)
	result, err := s.gw.UploadDocuments(ctx, files)
	if err != nil {
		s.fail("upload documents", err)
		return err
	}

	if result.TotalUploaded > 0 {
		s.notice("success", fmt.Sprintf("Successfully uploaded %d document(s)", result.TotalUploaded))
	}
	if result.TotalFailed > 0 {
		s.notice("error", fmt.Sprintf("Failed to upload %d document(s)", result.TotalFailed))
	}

	return s.Refresh(ctx)
}

// Delete removes a document server-side, then refreshes so the list
// reflects what the backend actually holds.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.setLoading(true)
	if err := s.gw.DeleteDocument(ctx, id); err != nil {
		s.fail("delete document", err)
		return err
	}
	s.notice("success", "Document deleted")

	return s.Refresh(ctx)
}

// LoadPrompt fetches the agent's current system prompt.
func (s *Store) LoadPrompt(ctx context.Context) error {
	s.setLoading(true)
	prompt, err := s.gw.GetPrompt(ctx)
	if err != nil {
		s.fail("fetch prompt", err)
		return err
	}
	s.applyPrompt(prompt)
	return nil
}

// SavePrompt persists a new prompt and stores exactly what the backend
// returned for this call. Whichever of save/reset completes last wins.
func (s *Store) SavePrompt(ctx context.Context, prompt string) error {
	s.setLoading(true)
	stored, err := s.gw.UpdatePrompt(ctx, prompt)
	if err != nil {
		s.fail("update prompt", err)
		return err
	}
	s.applyPrompt(stored)
	s.notice("success", "Prompt updated")
	return nil
}

// ResetPrompt restores the backend default prompt.
func (s *Store) ResetPrompt(ctx context.Context) error {
	s.setLoading(true)
	stored, err := s.gw.ResetPrompt(ctx)
	if err != nil {
		s.fail("reset prompt", err)
		return err
	}
	s.applyPrompt(stored)
	s.notice("success", "Prompt reset to default")
	return nil
}

// Documents returns a copy of the current document list.
func (s *Store) Documents() []domain.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, len(s.documents))
	copy(out, s.documents)
	return out
}

// Prompt returns the current system prompt.
func (s *Store) Prompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prompt
}

// IsLoading reports whether any document/prompt operation is in flight.
func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoading
}

// Err returns the last operation's error message, empty after a success.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Snapshot returns the full current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]domain.Document, len(s.documents))
	copy(docs, s.documents)
	return Snapshot{
		Documents: docs,
		Prompt:    s.prompt,
		IsLoading: s.isLoading,
		Error:     s.lastError,
	}
}

func (s *Store) applyPrompt(prompt string) {
	s.mu.Lock()
	s.prompt = prompt
	s.isLoading = false
	s.lastError = ""
	s.mu.Unlock()

	s.broadcast("prompt", prompt)
	s.broadcast("loading", false)
}

func (s *Store) setLoading(loading bool) {
	s.mu.Lock()
	s.isLoading = loading
	if loading {
		s.lastError = ""
	}
	s.mu.Unlock()

	s.broadcast("loading", loading)
}

// fail records an operation failure: error set, loading cleared, prior
// lists and prompt retained untouched.
func (s *Store) fail(op string, err error) {
	msg := err.Error()
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		msg = gwErr.Message
	}
	slog.Warn("Document store operation failed", "op", op, "error", err)

	s.mu.Lock()
	s.lastError = msg
	s.isLoading = false
	s.mu.Unlock()

	s.broadcast("loading", false)
	s.notice("error", msg)
}

func (s *Store) notice(level, message string) {
	s.broadcast("notice", domain.Notice{Level: level, Message: message})
}

func (s *Store) broadcast(event string, payload any) {
	if s.notify != nil {
		s.notify.Broadcast(event, payload)
	}
}
