package services

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type     string      `json:"type"`
	FauxtoID string      `json:"fauxto_id,omitempty"`
	FilePath string      `json:"file_path,omitempty"`
	Message  string      `json:"message,omitempty"`
	Data     interface{} `json:"data,omitempty"`
}

// WSHub manages live connections, keyed by booth slug and identity.
// Delivery is best effort; the persisted booth state is authoritative and
// a missed message is recovered on the next poll or reconnect.
type WSHub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*websocket.Conn
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{rooms: make(map[string]map[string]*websocket.Conn)}
}

// Register registers a connection for an identity watching a booth. An
// existing connection for the same identity is closed and replaced.
func (h *WSHub) Register(boothSlug, identity string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[boothSlug]
	if !ok {
		room = make(map[string]*websocket.Conn)
		h.rooms[boothSlug] = room
	}
	if existing, ok := room[identity]; ok {
		existing.Close()
	}
	room[identity] = conn

	log.Info().Str("booth", boothSlug).Str("identity", identity).
		Msg("WebSocket connection registered")
}

// Unregister removes a connection for an identity watching a booth
func (h *WSHub) Unregister(boothSlug, identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[boothSlug]
	if !ok {
		return
	}
	if conn, ok := room[identity]; ok {
		conn.Close()
		delete(room, identity)
		log.Info().Str("booth", boothSlug).Str("identity", identity).
			Msg("WebSocket connection unregistered")
	}
	if len(room) == 0 {
		delete(h.rooms, boothSlug)
	}
}

// SendToIdentity sends a message to one identity's connection on a booth
func (h *WSHub) SendToIdentity(boothSlug, identity string, message WSMessage) error {
	h.mu.RLock()
	conn, ok := h.rooms[boothSlug][identity]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("identity %s is not connected to booth %s", identity, boothSlug)
	}
	return h.write(boothSlug, identity, conn, message)
}

// BroadcastBooth sends a message to every connection watching a booth
func (h *WSHub) BroadcastBooth(boothSlug string, message WSMessage) {
	h.mu.RLock()
	conns := make(map[string]*websocket.Conn, len(h.rooms[boothSlug]))
	for identity, conn := range h.rooms[boothSlug] {
		conns[identity] = conn
	}
	h.mu.RUnlock()

	for identity, conn := range conns {
		if err := h.write(boothSlug, identity, conn, message); err != nil {
			log.Debug().Err(err).Str("booth", boothSlug).Str("identity", identity).
				Msg("Failed to broadcast to connection")
		}
	}
}

// IsOnline checks whether an identity has a live connection on a booth
func (h *WSHub) IsOnline(boothSlug, identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[boothSlug][identity]
	return ok
}

func (h *WSHub) write(boothSlug, identity string, conn *websocket.Conn, message WSMessage) error {
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.Unregister(boothSlug, identity)
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}
