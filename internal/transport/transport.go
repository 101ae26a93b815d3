// Package transport defines the boundary to the external real-time
// session provider. The orchestrator consumes three event sources —
// assistant-state changes, opaque data-channel messages, and text-stream
// segments — through the Handlers struct, and never touches the concrete
// provider SDK. Event callbacks may arrive interleaved and in any order
// relative to each other.
package transport

import "context"

// TextSegment is one unit of the transport's transcription stream.
type TextSegment struct {
	// ParticipantIdentity is the transport-level identity of whoever
	// produced the segment. Speaker attribution is derived from it.
	ParticipantIdentity string

	// SegmentID is the transport's segment identifier, when it sends one.
	SegmentID string

	// Text is the accumulated segment content.
	Text string

	// Final marks a segment the transport guarantees will not be revised.
	// Non-final segments carry interim text and are ignored upstream.
	Final bool
}

// DataMessage is an opaque data-channel payload plus its sender identity.
// Payloads are expected to decode as UTF-8 JSON but may be anything.
type DataMessage struct {
	SenderIdentity string
	Payload        []byte
}

// Handlers receives transport events. Any handler may be nil. Handlers
// must not panic; a handler error is the handler's own problem and must
// never tear down the connection.
type Handlers struct {
	OnAgentState   func(state string)
	OnData         func(msg DataMessage)
	OnTextSegment  func(seg TextSegment)
	OnDisconnected func()
}

// Conn is one live connection to a room. Close detaches all listeners and
// leaves the room; it is safe to call more than once.
type Conn interface {
	Close() error
}

// Dialer opens connections to the transport. The returned Conn has the
// given handlers attached for its whole lifetime; there is no separate
// subscribe step, so a connection can never leak listeners across
// connect/disconnect cycles.
type Dialer interface {
	Dial(ctx context.Context, url, token string, h Handlers) (Conn, error)
}
