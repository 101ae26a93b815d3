// Package gateway wraps the backend HTTP API for documents, prompt
// management, and session-token issuance. It is a thin request/response
// layer: no retries, no caching, no state beyond the HTTP client itself.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/voicedesk/voicedesk/internal/domain"
)

// Error is a failed backend call. Callers surface Message to the user and
// leave their prior in-memory state untouched.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway: backend returned %d: %s", e.StatusCode, e.Message)
}

// Client issues REST calls against the backend gateway.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a gateway client for the given base URL. A zero timeout
// leaves round trips unbounded; callers wanting deadlines should also pass
// a context with one.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// File is one upload payload: a filename plus its content stream.
type File struct {
	Filename string
	Content  io.Reader
}

type documentListResponse struct {
	Success bool              `json:"success"`
	Data    []domain.Document `json:"data"`
}

type uploadResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Successful []domain.Document      `json:"successful"`
		Failed     []domain.UploadFailure `json:"failed"`
	} `json:"data"`
	TotalUploaded int `json:"total_uploaded"`
	TotalFailed   int `json:"total_failed"`
}

type promptResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Prompt string `json:"prompt"`
	} `json:"data"`
}

type tokenResponse struct {
	Success bool              `json:"success"`
	Data    domain.TokenGrant `json:"data"`
}

// ListDocuments fetches the authoritative document list.
func (c *Client) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	var out documentListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/documents", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// UploadDocuments posts a multipart batch under the "files" field. Partial
// failure is not an error here: the result carries per-file accounting and
// the caller is expected to re-fetch the list afterward.
func (c *Client) UploadDocuments(ctx context.Context, files []File) (*domain.UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		part, err := mw.CreateFormFile("files", f.Filename)
		if err != nil {
			return nil, fmt.Errorf("gateway: create form file %q: %w", f.Filename, err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("gateway: read upload %q: %w", f.Filename, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("gateway: finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: upload request: %w", err)
	}

	var out uploadResponse
	if err := decodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &domain.UploadResult{
		Successful:    out.Data.Successful,
		Failed:        out.Data.Failed,
		TotalUploaded: out.TotalUploaded,
		TotalFailed:   out.TotalFailed,
	}, nil
}

// DeleteDocument removes a document and its chunks from the backend index.
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/documents/"+id, nil, nil)
}

// GetPrompt fetches the agent's current system prompt.
func (c *Client) GetPrompt(ctx context.Context) (string, error) {
	var out promptResponse
	if err := c.doJSON(ctx, http.MethodGet, "/agent/prompt", nil, &out); err != nil {
		return "", err
	}
	return out.Data.Prompt, nil
}

// UpdatePrompt persists a new system prompt and returns the stored value.
func (c *Client) UpdatePrompt(ctx context.Context, prompt string) (string, error) {
	var out promptResponse
	body := map[string]string{"prompt": prompt}
	if err := c.doJSON(ctx, http.MethodPut, "/agent/prompt", body, &out); err != nil {
		return "", err
	}
	return out.Data.Prompt, nil
}

// ResetPrompt restores the backend-defined default prompt and returns it.
func (c *Client) ResetPrompt(ctx context.Context) (string, error) {
	var out promptResponse
	if err := c.doJSON(ctx, http.MethodPost, "/agent/prompt/reset", nil, &out); err != nil {
		return "", err
	}
	return out.Data.Prompt, nil
}

// IssueSessionToken asks the backend to mint a room token for the given
// participant.
func (c *Client) IssueSessionToken(ctx context.Context, roomName, participantName string) (*domain.TokenGrant, error) {
	var out tokenResponse
	body := map[string]string{
		"room_name":        roomName,
		"participant_name": participantName,
	}
	if err := c.doJSON(ctx, http.MethodPost, "/livekit/token", body, &out); err != nil {
		return nil, err
	}
	grant := out.Data
	return &grant, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, v any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: backend not reachable: %w", err)
	}
	return decodeJSON(resp, v)
}

func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return errorFromResponse(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("gateway: decode response: %w", err)
	}
	return nil
}

// errorFromResponse maps a non-2xx response to *Error, preferring the
// backend's "detail" field when the body carries one.
func errorFromResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return &Error{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return &Error{StatusCode: resp.StatusCode, Message: detail.Detail}
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{StatusCode: resp.StatusCode, Message: msg}
}
