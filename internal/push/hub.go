// Package push fans store-change events out to connected browser views
// over WebSocket. The hub is the Notifier the stores publish into; views
// get a full snapshot on connect and incremental events afterwards.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// Event is one message on the push channel.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// sendBuffer bounds how far a slow client may fall behind before it is
// dropped.
const sendBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks active view connections and broadcasts events to all of
// them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	// snapshot builds the initial full-state payload for a new client.
	snapshot func() any

	allowedOrigin string
	isDev         bool
}

// NewHub creates a hub. snapshot may be nil when no initial state is
// wanted; it runs with the hub lock held and must not call Broadcast.
func NewHub(snapshot func() any, allowedOrigin string, isDev bool) *Hub {
	return &Hub{
		clients:       make(map[*client]struct{}),
		snapshot:      snapshot,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// Broadcast encodes the event once and queues it on every connected
// client. A client whose buffer is full is disconnected rather than
// allowed to stall the rest.
func (h *Hub) Broadcast(event string, payload any) {
	data, err := json.Marshal(Event{Type: event, Payload: payload})
	if err != nil {
		slog.Error("Failed to encode push event", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	var overflow []*client
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			overflow = append(overflow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range overflow {
		slog.Warn("Dropping slow push client")
		h.unregister(c)
		_ = c.conn.Close(websocket.StatusPolicyViolation, "client too slow")
	}
}

// ClientCount returns the number of connected views.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client goes
// away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept push WebSocket", "error", err)
		return
	}
	defer func() {
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
	}()

	c := &client{conn: ws, send: make(chan []byte, sendBuffer)}

	// Build the snapshot and register under the write lock so no
	// broadcast can slip between them: every event published after the
	// snapshot was built is queued behind it, and nothing is missed.
	// Snapshot functions must not call Broadcast.
	h.mu.Lock()
	if h.snapshot != nil {
		if data, err := json.Marshal(Event{Type: "snapshot", Payload: h.snapshot()}); err == nil {
			c.send <- data
		}
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.unregister(c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The read loop only services control frames and detects the client
	// going away.
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, writeCancel := context.WithTimeout(ctx, 10*time.Second)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			writeCancel()
			if err != nil {
				slog.Debug("Push write failed", "error", err)
				return
			}
		}
	}
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("Push WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}
