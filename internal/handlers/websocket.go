package handlers

import (
	"net/http"

	"fauxto-booth-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketHandler handles live booth subscriptions
type WebSocketHandler struct {
	hub          *services.WSHub
	boothService *services.BoothService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(hub *services.WSHub, boothService *services.BoothService) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, boothService: boothService}
}

// HandleWebSocket handles GET /ws?booth={slug}&identity={token}
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	slug := r.URL.Query().Get("booth")
	if slug == "" {
		respondError(w, "booth is required", http.StatusBadRequest)
		return
	}
	identity := r.URL.Query().Get("identity")
	if identity == "" {
		identity = r.Header.Get("X-Identity-Token")
	}
	if identity == "" {
		respondError(w, "identity is required", http.StatusUnauthorized)
		return
	}

	snapshot, err := h.boothService.Get(r.Context(), slug)
	if err != nil {
		respondError(w, "Booth not found", statusFor(err))
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	defer conn.Close()

	h.hub.Register(slug, identity, conn)
	defer h.hub.Unregister(slug, identity)

	// Seed the viewer with the current state so it never renders blind.
	if err := h.hub.SendToIdentity(slug, identity, services.WSMessage{
		Type: "boothState",
		Data: snapshot,
	}); err != nil {
		log.Error().Err(err).Str("booth", slug).Str("identity", identity).
			Msg("Failed to send initial booth state")
		return
	}

	// The socket is server-push only; reads just detect disconnects.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("booth", slug).Str("identity", identity).
					Msg("WebSocket closed")
			}
			return
		}
	}
}
