package handlers

import (
	"errors"
	"net/http"
	"strings"

	"fauxto-booth-backend/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// ImageHandler serves stored images back to clients
type ImageHandler struct {
	store storage.ImageStore
}

// NewImageHandler creates a new image handler
func NewImageHandler(store storage.ImageStore) *ImageHandler {
	return &ImageHandler{store: store}
}

// GetImage handles GET /api/v1/images/*
func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if path == "" || strings.Contains(path, "..") {
		respondError(w, "Invalid image path", http.StatusBadRequest)
		return
	}

	body, contentType, err := h.store.Get(r.Context(), path)
	if err != nil {
		if errors.Is(err, storage.ErrAbsent) {
			respondError(w, "Image not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("path", path).Msg("Failed to load image")
		respondError(w, "Failed to load image", http.StatusInternalServerError)
		return
	}

	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}
