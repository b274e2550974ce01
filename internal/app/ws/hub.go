/*
Package ws is the realtime transport: a hub of gorilla/websocket connections that implements
chat.Hub, plus the per-connection read and write pumps and the inbound frame dispatcher.

Every frame on the wire is a JSON envelope {"type": ..., "payload": ...}. Broadcast payloads
are encoded once and queued on each connection without blocking; a connection whose queue is
full is dropped rather than allowed to stall the room.
*/
package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"tempchat/internal/app/chat"
	"tempchat/internal/pkg/logx"
)

// Envelope is the outbound frame format.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Hub tracks the live connections by handle.
type Hub struct {
	// mu protects clients and their admitted flags.
	mu sync.RWMutex

	// clients holds every connection that completed the upgrade, admitted or not.
	clients map[chat.Handle]*Client

	// structured logger with Hub context.
	logger zerolog.Logger
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[chat.Handle]*Client),
		logger:  logx.Component("hub"),
	}
}

// Register adds c so that it can receive events.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c.Handle()] = c
}

// Unregister removes the connection with handle.
func (h *Hub) Unregister(handle chat.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, handle)
}

// Admit marks the connection with handle as admitted, so that it starts receiving
// broadcasts. Unknown handles are ignored.
func (h *Hub) Admit(handle chat.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, ok := h.clients[handle]; ok {
		c.admitted = true
	}
}

// Len returns the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(Envelope{Type: event, Payload: payload})
	if err != nil {
		h.logger.Error().Err(err).Str("event", event).Msg("Failed to encode event")
		return nil, false
	}
	return data, true
}

// SendToAll queues event for every admitted connection. Pending connections, which may
// still be rejected, never see room traffic.
func (h *Hub) SendToAll(event string, payload any) {
	data, ok := h.encode(event, payload)
	if !ok {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.admitted {
			c.enqueue(data)
		}
	}
}

// SendTo queues event for a single connection. Unknown handles are ignored.
func (h *Hub) SendTo(handle chat.Handle, event string, payload any) {
	c := h.get(handle)
	if c == nil {
		return
	}

	if data, ok := h.encode(event, payload); ok {
		c.enqueue(data)
	}
}

// Close asks the connection to close with reason once its queued frames are written.
func (h *Hub) Close(handle chat.Handle, reason string) {
	if c := h.get(handle); c != nil {
		c.CloseWith(reason)
	}
}

// Shutdown closes every connection, as on process exit.
func (h *Hub) Shutdown(reason string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		c.CloseWith(reason)
	}
	h.logger.Info().Int("connections", len(h.clients)).Msg("Hub shut down")
}

func (h *Hub) get(handle chat.Handle) *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.clients[handle]
}
