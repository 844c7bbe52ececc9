package handlers

import (
	"encoding/json"
	"net/http"

	"fauxto-booth-backend/internal/middleware"
	"fauxto-booth-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// GalleryHandler serves the per-identity views
type GalleryHandler struct {
	galleryService *services.GalleryService
}

// NewGalleryHandler creates a new gallery handler
func NewGalleryHandler(galleryService *services.GalleryService) *GalleryHandler {
	return &GalleryHandler{galleryService: galleryService}
}

// MyFauxtos handles GET /api/v1/me/fauxtos
func (h *GalleryHandler) MyFauxtos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	fauxtos, err := h.galleryService.ListFauxtos(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("Failed to list gallery fauxtos")
		respondError(w, "Failed to list fauxtos", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"fauxtos": fauxtos})
}

// MyBooths handles GET /api/v1/me/booths
func (h *GalleryHandler) MyBooths(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	booths, err := h.galleryService.ListBooths(ctx, identity)
	if err != nil {
		log.Error().Err(err).Str("identity", identity).Msg("Failed to list gallery booths")
		respondError(w, "Failed to list booths", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"booths": booths})
}

// RegisterPushToken handles POST /api/v1/me/push-token
func (h *GalleryHandler) RegisterPushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity := middleware.GetIdentity(ctx)

	var req struct {
		DeviceToken string `json:"device_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.galleryService.RegisterPushToken(ctx, identity, req.DeviceToken); err != nil {
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}
