package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	lksdk "github.com/livekit/server-sdk-go/v2"
)

const (
	// transcriptionTopic is the text-stream topic LiveKit agents publish
	// transcription segments on.
	transcriptionTopic = "lk.transcription"

	// agentStateAttr is the participant attribute carrying the assistant
	// state (listening, thinking, speaking, ...).
	agentStateAttr = "lk.agent.state"

	// finalAttr marks a transcription segment the agent will not revise.
	finalAttr = "lk.transcription_final"

	segmentIDAttr = "lk.segment_id"
)

// LiveKit dials rooms on a LiveKit server. The zero value is ready to use.
type LiveKit struct{}

// Dial joins the room the token grants access to and wires the room's
// callbacks to the given handlers. All SDK-facing code lives here; the
// rest of the system sees only the transport boundary types.
func (LiveKit) Dial(ctx context.Context, url, token string, h Handlers) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cb := &lksdk.RoomCallback{
		OnDisconnected: func() {
			if h.OnDisconnected != nil {
				h.OnDisconnected()
			}
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnDataPacket: func(data lksdk.DataPacket, params lksdk.DataReceiveParams) {
				user, ok := data.(*lksdk.UserDataPacket)
				if !ok || h.OnData == nil {
					return
				}
				h.OnData(DataMessage{
					SenderIdentity: params.SenderIdentity,
					Payload:        user.Payload,
				})
			},
			OnAttributesChanged: func(changed map[string]string, p lksdk.Participant) {
				state, ok := changed[agentStateAttr]
				if !ok || h.OnAgentState == nil {
					return
				}
				h.OnAgentState(state)
			},
		},
	}

	room, err := lksdk.ConnectToRoomWithToken(url, token, cb)
	if err != nil {
		return nil, fmt.Errorf("transport: join room: %w", err)
	}

	err = room.RegisterTextStreamHandler(transcriptionTopic, func(reader *lksdk.TextStreamReader, participantIdentity string) {
		if h.OnTextSegment == nil {
			return
		}
		// ReadAll blocks until the sender closes the stream; one stream
		// carries one segment revision.
		text := reader.ReadAll()
		h.OnTextSegment(textSegment(participantIdentity, text, reader.Info.Attributes))
	})
	if err != nil {
		room.Disconnect()
		return nil, fmt.Errorf("transport: register transcription handler: %w", err)
	}

	slog.Info("Joined room", "url", url, "room", room.Name())
	return &liveKitConn{room: room}, nil
}

// textSegment builds a TextSegment from a finished stream's content and
// its attributes. A segment is final only when the attribute says exactly
// "true"; a missing or empty attribute map means interim.
func textSegment(participantIdentity, text string, attrs map[string]string) TextSegment {
	return TextSegment{
		ParticipantIdentity: participantIdentity,
		SegmentID:           attrs[segmentIDAttr],
		Text:                text,
		Final:               attrs[finalAttr] == "true",
	}
}

type liveKitConn struct {
	once sync.Once
	room *lksdk.Room
}

func (c *liveKitConn) Close() error {
	c.once.Do(func() {
		c.room.UnregisterTextStreamHandler(transcriptionTopic)
		c.room.Disconnect()
	})
	return nil
}
