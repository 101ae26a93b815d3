package session

import (
	"sync"
	"testing"

	"github.com/voicedesk/voicedesk/internal/domain"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Broadcast(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

func TestAppendTranscriptOrderAndIDs(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.AppendTranscript(domain.SpeakerUser, "hello")
	s.AppendTranscript(domain.SpeakerAgent, "hi there")
	s.AppendTranscript(domain.SpeakerUser, "what is RAG?")

	entries := s.Transcript()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, e := range entries {
		if e.ID != int64(i+1) {
			t.Errorf("entry %d: expected id %d, got %d", i, i+1, e.ID)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("entry %d: missing timestamp", i)
		}
	}
	if entries[1].Speaker != domain.SpeakerAgent || entries[1].Text != "hi there" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}
}

func TestClearDoesNotReuseIDs(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.AppendTranscript(domain.SpeakerUser, "one")
	s.ClearTranscript()
	entry := s.AppendTranscript(domain.SpeakerUser, "two")

	if entry.ID != 2 {
		t.Errorf("expected id to keep increasing across clears, got %d", entry.ID)
	}
	if got := len(s.Transcript()); got != 1 {
		t.Errorf("expected 1 entry after clear, got %d", got)
	}
}

func TestSetSourcesReplacesWholesale(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.SetSources([]domain.Source{{DocumentName: "a.pdf", Text: "aa"}, {DocumentName: "b.pdf", Text: "bb"}})
	s.SetSources([]domain.Source{{DocumentName: "c.pdf", Text: "cc"}})

	sources := s.Sources()
	if len(sources) != 1 || sources[0].DocumentName != "c.pdf" {
		t.Fatalf("expected wholesale replacement, got %+v", sources)
	}
}

func TestAgentSpeakingDerivedFromState(t *testing.T) {
	t.Parallel()

	s := New(nil)
	sequence := []domain.AgentState{
		domain.StateIdle, domain.StateListening, domain.StateThinking, domain.StateSpeaking, domain.StateIdle,
	}
	want := []bool{false, false, false, true, false}

	for i, state := range sequence {
		s.SetAgentState(state)
		if got := s.AgentSpeaking(); got != want[i] {
			t.Errorf("state %q: AgentSpeaking = %v, want %v", state, got, want[i])
		}
	}
}

func TestResetClearsStateButKeepsRoomName(t *testing.T) {
	t.Parallel()

	s := New(nil)
	s.SetConnected(true, "voice-ai-room-1")
	s.SetMuted(true)
	s.SetAgentState(domain.StateSpeaking)
	s.AppendTranscript(domain.SpeakerAgent, "bye")
	s.SetSources([]domain.Source{{DocumentName: "a.pdf"}})

	s.Reset()

	snap := s.Snapshot()
	if snap.Connected || snap.Muted || snap.AgentSpeaking {
		t.Errorf("expected flags cleared, got %+v", snap)
	}
	if len(snap.Transcript) != 0 || len(snap.Sources) != 0 {
		t.Errorf("expected transcript and sources cleared, got %+v", snap)
	}
	if snap.RoomName != "voice-ai-room-1" {
		t.Errorf("expected room name retained, got %q", snap.RoomName)
	}
}

func TestMutationsNotify(t *testing.T) {
	t.Parallel()

	n := &recordingNotifier{}
	s := New(n)
	s.SetConnected(true, "room")
	s.AppendTranscript(domain.SpeakerUser, "hi")
	s.SetSources([]domain.Source{{DocumentName: "a.pdf"}})
	s.SetAgentState(domain.StateSpeaking)
	s.Reset()

	if n.count("transcript_appended") != 1 {
		t.Errorf("expected one transcript_appended event, got %d", n.count("transcript_appended"))
	}
	if n.count("sources") != 1 {
		t.Errorf("expected one sources event, got %d", n.count("sources"))
	}
	if n.count("session") != 2 {
		t.Errorf("expected two session events (connect, reset), got %d", n.count("session"))
	}
	if n.count("agent_state") != 1 {
		t.Errorf("expected one agent_state event, got %d", n.count("agent_state"))
	}
}
