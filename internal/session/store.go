// Package session holds live-call state: connection and mute flags, the
// assistant's reported state, the finalized transcript, and the retrieval
// sources the agent is currently grounding on.
package session

import (
	"sync"
	"time"

	"github.com/voicedesk/voicedesk/internal/domain"
)

// Notifier receives store-change events for fan-out to connected views.
type Notifier interface {
	Broadcast(event string, payload any)
}

// Snapshot is the full session state as rendered by views.
type Snapshot struct {
	Connected     bool                     `json:"connected"`
	Muted         bool                     `json:"muted"`
	AgentSpeaking bool                     `json:"agent_speaking"`
	AgentState    domain.AgentState        `json:"agent_state"`
	RoomName      string                   `json:"room_name"`
	Transcript    []domain.TranscriptEntry `json:"transcript"`
	Sources       []domain.Source          `json:"sources"`
}

// Store is the session state container. All business rules live in the
// orchestrator; the store only applies and publishes mutations.
type Store struct {
	mu         sync.RWMutex
	connected  bool
	muted      bool
	agentState domain.AgentState
	roomName   string
	transcript []domain.TranscriptEntry
	sources    []domain.Source
	nextID     int64

	notify Notifier
}

// New creates an empty session store. notify may be nil.
func New(notify Notifier) *Store {
	return &Store{
		agentState: domain.StateIdle,
		nextID:     1,
		notify:     notify,
	}
}

func (s *Store) broadcast(event string, payload any) {
	if s.notify != nil {
		s.notify.Broadcast(event, payload)
	}
}

// SetConnected records the connection flag and room name. An empty room
// name leaves the previous one in place so the UI can still label the
// call that just ended.
func (s *Store) SetConnected(connected bool, roomName string) {
	s.mu.Lock()
	s.connected = connected
	if roomName != "" {
		s.roomName = roomName
	}
	snap := s.snapshotLocked(false)
	s.mu.Unlock()

	s.broadcast("session", snap)
}

// SetMuted records the microphone mute flag.
func (s *Store) SetMuted(muted bool) {
	s.mu.Lock()
	s.muted = muted
	snap := s.snapshotLocked(false)
	s.mu.Unlock()

	s.broadcast("session", snap)
}

// SetAgentState records the assistant state. AgentSpeaking is derived:
// true exactly while the state is speaking.
func (s *Store) SetAgentState(state domain.AgentState) {
	s.mu.Lock()
	s.agentState = state
	s.mu.Unlock()

	s.broadcast("agent_state", map[string]any{
		"state":    state,
		"speaking": state == domain.StateSpeaking,
	})
}

// AgentSpeaking reports whether the assistant is currently speaking.
func (s *Store) AgentSpeaking() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.agentState == domain.StateSpeaking
}

// AppendTranscript creates one finalized entry with the next synthetic id
// and the acceptance timestamp, and returns it.
func (s *Store) AppendTranscript(speaker domain.Speaker, text string) domain.TranscriptEntry {
	s.mu.Lock()
	entry := domain.TranscriptEntry{
		ID:        s.nextID,
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now(),
	}
	s.nextID++
	s.transcript = append(s.transcript, entry)
	s.mu.Unlock()

	s.broadcast("transcript_appended", entry)
	return entry
}

// Transcript returns a copy of the transcript in arrival order.
func (s *Store) Transcript() []domain.TranscriptEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TranscriptEntry, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// ClearTranscript drops all entries. IDs keep increasing across clears.
func (s *Store) ClearTranscript() {
	s.mu.Lock()
	s.transcript = nil
	s.mu.Unlock()

	s.broadcast("transcript_cleared", nil)
}

// SetSources replaces the current source list wholesale.
func (s *Store) SetSources(sources []domain.Source) {
	s.mu.Lock()
	s.sources = sources
	s.mu.Unlock()

	s.broadcast("sources", sources)
}

// Sources returns a copy of the current source list.
func (s *Store) Sources() []domain.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Source, len(s.sources))
	copy(out, s.sources)
	return out
}

// ClearSources empties the source list.
func (s *Store) ClearSources() {
	s.SetSources(nil)
}

// Reset returns the store to its disconnected defaults, dropping the
// transcript and sources. The room name is kept so views can still show
// which room the finished call used.
func (s *Store) Reset() {
	s.mu.Lock()
	s.connected = false
	s.muted = false
	s.agentState = domain.StateIdle
	s.transcript = nil
	s.sources = nil
	snap := s.snapshotLocked(true)
	s.mu.Unlock()

	s.broadcast("session", snap)
}

// Connected reports whether a call is live.
func (s *Store) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Snapshot returns the full current state, including transcript and
// sources copies.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked(true)
}

// snapshotLocked builds a Snapshot; callers hold at least the read lock.
// Lists are copied only when full is set, broadcast paths that don't need
// them skip the allocation.
func (s *Store) snapshotLocked(full bool) Snapshot {
	snap := Snapshot{
		Connected:     s.connected,
		Muted:         s.muted,
		AgentSpeaking: s.agentState == domain.StateSpeaking,
		AgentState:    s.agentState,
		RoomName:      s.roomName,
	}
	if full {
		snap.Transcript = make([]domain.TranscriptEntry, len(s.transcript))
		copy(snap.Transcript, s.transcript)
		snap.Sources = make([]domain.Source, len(s.sources))
		copy(snap.Sources, s.sources)
	}
	return snap
}
