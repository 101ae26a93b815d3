// Package voice bridges the real-time transport's event stream into the
// session store. It owns the single live connection's lifecycle
// (open → active → closed) and translates transport events into
// deterministic store mutations: one transcript entry per accepted final
// segment, wholesale source replacement per accepted payload, and the
// agent-speaking flag per state change.
package voice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voicedesk/voicedesk/internal/domain"
	"github.com/voicedesk/voicedesk/internal/session"
	"github.com/voicedesk/voicedesk/internal/transport"
)

// ErrAlreadyConnected is returned when Connect is called while a session
// is live. Exactly one session exists at a time.
var ErrAlreadyConnected = errors.New("voice: session already connected")

// sourcesPayloadType is the data-channel discriminator for retrieval
// batches.
const sourcesPayloadType = "rag_sources"

// TokenIssuer is the slice of the gateway client the orchestrator uses.
type TokenIssuer interface {
	IssueSessionToken(ctx context.Context, roomName, participantName string) (*domain.TokenGrant, error)
}

// Archiver persists finished calls. Optional.
type Archiver interface {
	SaveCall(ctx context.Context, record domain.CallRecord) error
}

// Notifier receives user-visible notices (connection results, errors).
type Notifier interface {
	Broadcast(event string, payload any)
}

// Options configures an Orchestrator.
type Options struct {
	Store   *session.Store
	Tokens  TokenIssuer
	Dialer  transport.Dialer
	Archive Archiver // nil disables call archiving
	Notify  Notifier // nil disables notices

	// FallbackURL is used when the token grant carries no server URL.
	FallbackURL string

	// RoomPrefix prefixes generated room names.
	RoomPrefix string

	// IsAgent overrides DefaultAgentMatcher when set.
	IsAgent AgentMatcher
}

// Orchestrator connects to the transport and feeds its events into the
// session store.
type Orchestrator struct {
	store   *session.Store
	tokens  TokenIssuer
	dialer  transport.Dialer
	archive Archiver
	notify  Notifier

	fallbackURL string
	roomPrefix  string
	isAgent     AgentMatcher

	mu        sync.Mutex
	active    bool
	gen       uint64 // bumped on every connect and teardown; stale handlers compare against it
	conn      transport.Conn
	roomName  string
	startedAt time.Time
}

// New creates an orchestrator. Store, Tokens and Dialer are required.
func New(opts Options) *Orchestrator {
	matcher := opts.IsAgent
	if matcher == nil {
		matcher = DefaultAgentMatcher
	}
	return &Orchestrator{
		store:       opts.Store,
		tokens:      opts.Tokens,
		dialer:      opts.Dialer,
		archive:     opts.Archive,
		notify:      opts.Notify,
		fallbackURL: opts.FallbackURL,
		roomPrefix:  opts.RoomPrefix,
		isAgent:     matcher,
	}
}

// Connect starts a new session: mints a fresh room name and participant
// identity, asks the gateway for a token, clears any leftover transcript
// and sources from a previous call, and dials the transport. Token
// failure leaves no partial session behind.
func (o *Orchestrator) Connect(ctx context.Context) error {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return ErrAlreadyConnected
	}
	o.gen++
	g := o.gen
	o.active = true
	o.mu.Unlock()

	roomName := fmt.Sprintf("%s-%s", o.roomPrefix, shortID())
	participant := "user-" + shortID()

	grant, err := o.tokens.IssueSessionToken(ctx, roomName, participant)
	if err != nil {
		o.abort(g)
		o.notice("error", "Failed to connect to voice room")
		return fmt.Errorf("issue session token: %w", err)
	}

	// A new connection never inherits entries from the previous call.
	o.store.ClearTranscript()
	o.store.ClearSources()

	url := grant.URL
	if url == "" {
		url = o.fallbackURL
	}

	conn, err := o.dialer.Dial(ctx, url, grant.Token, transport.Handlers{
		OnAgentState:   func(state string) { o.handleAgentState(g, state) },
		OnData:         func(msg transport.DataMessage) { o.handleData(g, msg) },
		OnTextSegment:  func(seg transport.TextSegment) { o.handleTextSegment(g, seg) },
		OnDisconnected: func() { o.teardown(g, false) },
	})
	if err != nil {
		o.abort(g)
		o.notice("error", "Failed to connect to voice room")
		return fmt.Errorf("dial transport: %w", err)
	}

	o.mu.Lock()
	if !o.active || o.gen != g {
		// Torn down while dialing (e.g. an immediate transport disconnect).
		o.mu.Unlock()
		_ = conn.Close()
		return errors.New("voice: connection closed during setup")
	}
	o.conn = conn
	o.roomName = roomName
	o.startedAt = time.Now()
	o.mu.Unlock()

	o.store.SetConnected(true, roomName)
	o.notice("success", "Connected to voice room")
	slog.Info("Voice session connected", "room", roomName, "participant", participant)
	return nil
}

// Disconnect ends the live session: listeners are detached before the
// store is reset, so a stale callback can never mutate state after
// logical disconnect. Idempotent.
func (o *Orchestrator) Disconnect() {
	o.teardown(0, true)
}

// Connected reports whether a session is live.
func (o *Orchestrator) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// teardown detaches the transport connection and resets the store. When
// force is false it only applies to the given generation, so a transport
// disconnect callback for an already-closed session is a no-op.
func (o *Orchestrator) teardown(g uint64, force bool) {
	o.mu.Lock()
	if !o.active || (!force && o.gen != g) {
		o.mu.Unlock()
		return
	}
	conn := o.conn
	roomName := o.roomName
	startedAt := o.startedAt
	o.conn = nil
	o.active = false
	o.gen++
	o.mu.Unlock()

	entries := o.store.Transcript()

	// Detach first, reset second.
	if conn != nil {
		if err := conn.Close(); err != nil {
			slog.Warn("Failed to close transport connection", "error", err)
		}
	}
	o.store.Reset()

	o.archiveCall(roomName, startedAt, entries)
	o.notice("success", "Disconnected from voice room")
	slog.Info("Voice session disconnected", "room", roomName, "entries", len(entries))
}

// abort rolls back a half-open connect attempt.
func (o *Orchestrator) abort(g uint64) {
	o.mu.Lock()
	if o.gen == g {
		o.active = false
		o.gen++
	}
	o.mu.Unlock()
}

// Handlers hold the mutex across the store mutation, not just the
// generation check. Teardown bumps the generation under the same mutex,
// so once it runs no handler can slip a write in after Reset.
func (o *Orchestrator) handleAgentState(g uint64, state string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active || o.gen != g {
		return
	}
	o.store.SetAgentState(domain.ParseAgentState(state))
}

// handleData accepts a data-channel payload only if it decodes as JSON
// carrying the rag_sources discriminator and a non-null sources array.
// Everything else is logged and dropped; this is a best-effort side
// channel and a malformed message must never disturb the session.
func (o *Orchestrator) handleData(g uint64, msg transport.DataMessage) {
	var payload struct {
		Type    string          `json:"type"`
		Sources json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		slog.Debug("Dropping undecodable data message", "sender", msg.SenderIdentity, "error", err)
		return
	}
	if payload.Type != sourcesPayloadType || len(payload.Sources) == 0 || string(payload.Sources) == "null" {
		slog.Debug("Dropping unrecognized data message", "sender", msg.SenderIdentity, "type", payload.Type)
		return
	}

	var sources []domain.Source
	if err := json.Unmarshal(payload.Sources, &sources); err != nil {
		slog.Debug("Dropping malformed sources payload", "sender", msg.SenderIdentity, "error", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active || o.gen != g {
		return
	}
	o.store.SetSources(sources)
}

// handleTextSegment appends exactly one transcript entry per final
// non-empty segment. Interim segments are ignored entirely; there is no
// live partial rendering.
func (o *Orchestrator) handleTextSegment(g uint64, seg transport.TextSegment) {
	if !seg.Final || strings.TrimSpace(seg.Text) == "" {
		return
	}

	speaker := domain.SpeakerUser
	if o.isAgent(seg.ParticipantIdentity) {
		speaker = domain.SpeakerAgent
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.active || o.gen != g {
		return
	}
	o.store.AppendTranscript(speaker, seg.Text)
}

func (o *Orchestrator) archiveCall(roomName string, startedAt time.Time, entries []domain.TranscriptEntry) {
	if o.archive == nil || len(entries) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	record := domain.CallRecord{
		ID:         uuid.NewString(),
		RoomName:   roomName,
		StartedAt:  startedAt,
		EndedAt:    time.Now(),
		EntryCount: len(entries),
		Entries:    entries,
	}
	if err := o.archive.SaveCall(ctx, record); err != nil {
		slog.Warn("Failed to archive call", "room", roomName, "error", err)
	}
}

func (o *Orchestrator) notice(level, message string) {
	if o.notify != nil {
		o.notify.Broadcast("notice", domain.Notice{Level: level, Message: message})
	}
}

// shortID returns the first uuid block, enough uniqueness for room and
// participant names.
func shortID() string {
	return uuid.NewString()[:8]
}
