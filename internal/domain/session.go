// Package domain defines the entities shared across the control surface.
package domain

import (
	"time"
)

// AgentState is the discrete assistant state reported by the transport.
type AgentState string

const (
	StateIdle      AgentState = "idle"
	StateListening AgentState = "listening"
	StateThinking  AgentState = "thinking"
	StateSpeaking  AgentState = "speaking"
)

// ParseAgentState normalizes a transport-reported state string. Anything
// outside the known set (e.g. "initializing") collapses to idle.
func ParseAgentState(s string) AgentState {
	switch AgentState(s) {
	case StateListening, StateThinking, StateSpeaking:
		return AgentState(s)
	default:
		return StateIdle
	}
}

// Speaker attributes a transcript entry to one side of the call.
type Speaker string

const (
	SpeakerUser  Speaker = "user"
	SpeakerAgent Speaker = "agent"
)

// TranscriptEntry is one finalized utterance. Entries are append-only and
// never mutated after creation; IDs increase monotonically within a store.
type TranscriptEntry struct {
	ID        int64     `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Source is one retrieval excerpt the agent is currently grounding on.
// The source list is replaced wholesale per retrieval batch, not appended.
type Source struct {
	DocumentName string   `json:"document_name"`
	Text         string   `json:"text"`
	Similarity   *float64 `json:"similarity,omitempty"`
}

// TokenGrant is the gateway's answer to a session-token request.
type TokenGrant struct {
	Token           string `json:"token"`
	URL             string `json:"url"`
	RoomName        string `json:"room_name"`
	ParticipantName string `json:"participant_name"`
}
