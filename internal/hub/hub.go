package hub

import (
	"encoding/json"
	"sync"

	"github.com/gabrielkumagai/beezy-api/internal/config"
	"github.com/gabrielkumagai/beezy-api/pkg/log"
)

// Hub owns the live-connection registry: which connections are open and
// which chat room each one is currently watching. All mutation and every
// membership snapshot go through the hub's lock, so a publish never
// observes a connection in two rooms or lost mid-move.
type Hub struct {
	clients map[string]*Client            // connection id -> client
	rooms   map[string]map[string]*Client // chat id -> connection id -> client
	mu      sync.RWMutex
	config  config.WebSocketConfig
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		config:  cfg,
	}
}

// Register adds a freshly opened connection. It belongs to no room until a
// join frame arrives.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client registered")
}

// Unregister removes a closed connection from the registry and from
// whatever room it occupied. Safe to call for connections that never
// joined, and idempotent.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	if _, ok := h.clients[client.ID]; ok {
		h.removeFromRoomLocked(client)
		delete(h.clients, client.ID)
		client.closeSend()
	}
	h.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldConnectionID, client.ID).Msg("client unregistered")
}

// Join registers the connection's interest in a chat room. A connection
// watches at most one room: a later join replaces the previous one.
func (h *Hub) Join(client *Client, chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		// Connection already closed; never resurrect registry state.
		return
	}

	h.removeFromRoomLocked(client)

	if _, ok := h.rooms[chatID]; !ok {
		h.rooms[chatID] = make(map[string]*Client)
	}
	h.rooms[chatID][client.ID] = client
	client.room = chatID

	l := log.L()
	l.Info().Str(log.FieldConnectionID, client.ID).Str(log.FieldChatID, chatID).Msg("client joined room")
}

// Publish delivers a payload to every connection currently in the room.
// Delivery is at-most-once and best-effort: a member whose outbound queue
// is full or already closed is skipped for this publish only, and nothing
// is reported back to the caller. The snapshot may contain a member that
// disconnects mid-publish; the client's own queue guard makes the send to
// it a no-op rather than a panic.
func (h *Hub) Publish(chatID string, payload interface{}) {
	l := log.L()

	data, err := json.Marshal(payload)
	if err != nil {
		l.Error().Err(err).Str(log.FieldChatID, chatID).Msg("failed to marshal broadcast payload")
		return
	}

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[chatID]))
	for _, client := range h.rooms[chatID] {
		members = append(members, client)
	}
	h.mu.RUnlock()

	for _, client := range members {
		if !client.enqueue(data) {
			l.Warn().
				Str(log.FieldConnectionID, client.ID).
				Str(log.FieldChatID, chatID).
				Msg("client unavailable, dropping broadcast for this client")
		}
	}
}

// RoomSize returns the current member count of a room.
func (h *Hub) RoomSize(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[chatID])
}

// removeFromRoomLocked clears the client's room membership. Callers hold
// the write lock.
func (h *Hub) removeFromRoomLocked(client *Client) {
	if client.room == "" {
		return
	}
	if members, ok := h.rooms[client.room]; ok {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, client.room)
		}
	}
	client.room = ""
}
