package domain

import "time"

// CallRecord is an archived voice session: the finalized transcript of a
// call plus timing metadata. Written when a non-empty call ends.
type CallRecord struct {
	ID         string            `json:"id"`
	RoomName   string            `json:"room_name"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	EntryCount int               `json:"entry_count"`
	Entries    []TranscriptEntry `json:"entries,omitempty"`
}

// Notice is a transient user-visible message surfaced by the view layer.
type Notice struct {
	Level   string `json:"level"` // "success" or "error"
	Message string `json:"message"`
}
