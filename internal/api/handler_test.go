package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/voicedesk/voicedesk/internal/docs"
	"github.com/voicedesk/voicedesk/internal/domain"
	"github.com/voicedesk/voicedesk/internal/gateway"
	"github.com/voicedesk/voicedesk/internal/history"
	"github.com/voicedesk/voicedesk/internal/session"
	"github.com/voicedesk/voicedesk/internal/transport"
	"github.com/voicedesk/voicedesk/internal/voice"
)

type stubGateway struct {
	documents []domain.Document
	listErr   error
	prompt    string
	uploaded  []string
}

func (s *stubGateway) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.documents, nil
}

func (s *stubGateway) UploadDocuments(ctx context.Context, files []gateway.File) (*domain.UploadResult, error) {
	for _, f := range files {
		s.uploaded = append(s.uploaded, f.Filename)
	}
	return &domain.UploadResult{TotalUploaded: len(files)}, nil
}

func (s *stubGateway) DeleteDocument(ctx context.Context, id string) error { return nil }

func (s *stubGateway) GetPrompt(ctx context.Context) (string, error) { return s.prompt, nil }

func (s *stubGateway) UpdatePrompt(ctx context.Context, prompt string) (string, error) {
	s.prompt = prompt
	return prompt, nil
}

func (s *stubGateway) ResetPrompt(ctx context.Context) (string, error) {
	s.prompt = "default"
	return s.prompt, nil
}

type stubIssuer struct{}

func (stubIssuer) IssueSessionToken(ctx context.Context, roomName, participantName string) (*domain.TokenGrant, error) {
	return &domain.TokenGrant{Token: "jwt", URL: "ws://lk:7880", RoomName: roomName}, nil
}

type stubConn struct{}

func (stubConn) Close() error { return nil }

type stubDialer struct{}

func (stubDialer) Dial(ctx context.Context, url, token string, h transport.Handlers) (transport.Conn, error) {
	return stubConn{}, nil
}

type stubHistory struct {
	records []domain.CallRecord
}

func (s *stubHistory) SaveCall(ctx context.Context, record domain.CallRecord) error {
	s.records = append(s.records, record)
	return nil
}

func (s *stubHistory) ListCalls(ctx context.Context, limit int) ([]domain.CallRecord, error) {
	if limit < len(s.records) {
		return s.records[:limit], nil
	}
	return s.records, nil
}

func (s *stubHistory) GetCall(ctx context.Context, id string) (*domain.CallRecord, error) {
	for i := range s.records {
		if s.records[i].ID == id {
			return &s.records[i], nil
		}
	}
	return nil, nil
}

func (s *stubHistory) Ping(ctx context.Context) error { return nil }
func (s *stubHistory) Close() error                   { return nil }

func newTestRouter(t *testing.T, gw *stubGateway, hist *stubHistory) (chi.Router, *session.Store) {
	t.Helper()
	docStore := docs.New(gw, nil)
	sessStore := session.New(nil)
	orch := voice.New(voice.Options{
		Store:      sessStore,
		Tokens:     stubIssuer{},
		Dialer:     stubDialer{},
		RoomPrefix: "voice-ai-room",
	})

	var calls history.Store
	if hist != nil {
		calls = hist
	}

	r := chi.NewRouter()
	NewHandler(docStore, sessStore, orch, calls).RegisterRoutes(r)
	return r, sessStore
}

func TestListDocumentsRoute(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{documents: []domain.Document{{ID: "d1", Filename: "a.pdf"}}}
	r, _ := newTestRouter(t, gw, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var snap docs.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(snap.Documents) != 1 || snap.Documents[0].ID != "d1" {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
	if snap.IsLoading {
		t.Error("expected loading cleared in response")
	}
}

func TestGatewayErrorForwarded(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{listErr: &gateway.Error{StatusCode: 503, Message: "index rebuilding"}}
	r, _ := newTestRouter(t, gw, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/documents", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected backend status forwarded, got %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["error"] != "index rebuilding" {
		t.Errorf("expected backend detail, got %q", body["error"])
	}
}

func TestUploadRoutePassesFilesThrough(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{}
	r, _ := newTestRouter(t, gw, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range []string{"a.txt", "b.txt"} {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = io.Copy(part, strings.NewReader("content of "+name))
	}
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if len(gw.uploaded) != 2 || gw.uploaded[0] != "a.txt" || gw.uploaded[1] != "b.txt" {
		t.Errorf("expected both filenames forwarded, got %v", gw.uploaded)
	}
}

func TestUploadRouteRejectsEmptyBatch(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubGateway{}, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("unrelated", "x")
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/documents/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", w.Code)
	}
}

func TestPromptRoutes(t *testing.T) {
	t.Parallel()

	gw := &stubGateway{prompt: "original"}
	r, _ := newTestRouter(t, gw, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/agent/prompt", strings.NewReader(`{"prompt":"be brief"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/agent/prompt/reset", nil))
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["prompt"] != "default" {
		t.Errorf("expected reset prompt, got %q", body["prompt"])
	}

	req = httptest.NewRequest(http.MethodPut, "/api/agent/prompt", strings.NewReader(`{"prompt":""}`))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty prompt, got %d", w.Code)
	}
}

func TestSessionLifecycleRoutes(t *testing.T) {
	t.Parallel()

	r, sessStore := newTestRouter(t, &stubGateway{}, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/connect", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("connect: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !sessStore.Connected() {
		t.Fatal("expected session connected")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/connect", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("second connect: expected 409, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/mute", strings.NewReader(`{"muted":true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("mute: expected 200, got %d", w.Code)
	}
	if !sessStore.Snapshot().Muted {
		t.Error("expected muted flag set")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/disconnect", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("disconnect: expected 200, got %d", w.Code)
	}
	if sessStore.Connected() {
		t.Error("expected session disconnected")
	}
}

func TestClearSessionRoute(t *testing.T) {
	t.Parallel()

	r, sessStore := newTestRouter(t, &stubGateway{}, nil)
	sessStore.AppendTranscript(domain.SpeakerUser, "hello")
	sessStore.SetSources([]domain.Source{{DocumentName: "a.pdf"}})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/session/clear", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	snap := sessStore.Snapshot()
	if len(snap.Transcript) != 0 || len(snap.Sources) != 0 {
		t.Errorf("expected cleared lists, got %+v", snap)
	}
}

func TestCallHistoryRoutes(t *testing.T) {
	t.Parallel()

	hist := &stubHistory{records: []domain.CallRecord{{ID: "c1", RoomName: "room", EntryCount: 2}}}
	r, _ := newTestRouter(t, &stubGateway{}, hist)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls/c1", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for existing call, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing call, got %d", w.Code)
	}
}

func TestCallHistoryDisabled(t *testing.T) {
	t.Parallel()

	r, _ := newTestRouter(t, &stubGateway{}, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/calls", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when history disabled, got %d", w.Code)
	}
}

func TestJSONHelper(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	JSON(w, http.StatusOK, map[string]string{"foo": "bar"})

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got["foo"] != "bar" {
		t.Errorf("expected foo=bar, got %v", got["foo"])
	}
}
