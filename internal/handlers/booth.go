package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"fauxto-booth-backend/internal/middleware"
	"fauxto-booth-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const maxUploadBytes = 15 << 20

// BoothHandler handles booth-related HTTP requests
type BoothHandler struct {
	directoryService *services.DirectoryService
	boothService     *services.BoothService
}

// NewBoothHandler creates a new booth handler
func NewBoothHandler(
	directoryService *services.DirectoryService,
	boothService *services.BoothService,
) *BoothHandler {
	return &BoothHandler{
		directoryService: directoryService,
		boothService:     boothService,
	}
}

// CreateBooth handles POST /api/v1/booths
func (h *BoothHandler) CreateBooth(w http.ResponseWriter, r *http.Request) {
	var req services.CreateBoothRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	booth, err := h.directoryService.CreateBooth(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("display_name", req.DisplayName).Msg("Failed to create booth")
		respondError(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"booth":     booth,
		"share_url": h.boothService.ShareURL(booth.Slug),
	})
}

// ListLatest handles GET /api/v1/booths
func (h *BoothHandler) ListLatest(w http.ResponseWriter, r *http.Request) {
	entries, err := h.directoryService.Latest(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list booths")
		respondError(w, "Failed to list booths", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"booths": entries})
}

// GetBooth handles GET /api/v1/booths/{slug}
func (h *BoothHandler) GetBooth(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	snapshot, err := h.boothService.Get(r.Context(), slug)
	if err != nil {
		respondError(w, "Booth not found", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

// UploadSelfie handles POST /api/v1/booths/{slug}/uploads
func (h *BoothHandler) UploadSelfie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	slug := chi.URLParam(r, "slug")
	identity := middleware.GetIdentity(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("selfie")
	if err != nil {
		respondError(w, "selfie file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	filename := filepath.Base(header.Filename)

	upload, err := h.boothService.RecordUpload(ctx, slug, identity, filename, contentType, body)
	if err != nil {
		var joined *services.AlreadyJoinedError
		if errors.As(err, &joined) {
			respondJSON(w, http.StatusConflict, map[string]interface{}{
				"error":     joined.Error(),
				"share_url": joined.ShareURL,
			})
			return
		}
		log.Error().Err(err).Str("booth", slug).Str("identity", identity).
			Msg("Failed to record upload")
		respondError(w, err.Error(), statusFor(err))
		return
	}

	respondJSON(w, http.StatusCreated, upload)
}

// Reshoot handles POST /api/v1/booths/{slug}/reshoot
func (h *BoothHandler) Reshoot(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.boothService.Reshoot(r.Context(), slug); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "reshoot requested"})
}

// RefreshBackdrop handles POST /api/v1/booths/{slug}/backdrop
func (h *BoothHandler) RefreshBackdrop(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.boothService.RefreshBackdrop(r.Context(), slug); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "backdrop regenerating"})
}

// SetGroupSize handles PUT /api/v1/booths/{slug}/group-size
func (h *BoothHandler) SetGroupSize(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req struct {
		IdealMemberSize int `json:"ideal_member_size"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.boothService.SetIdealMemberSize(r.Context(), slug, req.IdealMemberSize); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "group size updated"})
}
