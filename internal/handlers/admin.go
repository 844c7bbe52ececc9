package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fauxto-booth-backend/internal/repository"
	"fauxto-booth-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// AdminHandler serves the administrative surface
type AdminHandler struct {
	authService      *services.AuthService
	boothService     *services.BoothService
	directoryService *services.DirectoryService
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	authService *services.AuthService,
	boothService *services.BoothService,
	directoryService *services.DirectoryService,
) *AdminHandler {
	return &AdminHandler{
		authService:      authService,
		boothService:     boothService,
		directoryService: directoryService,
	}
}

// Login handles POST /api/v1/admin/login
func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.authService.Login(req.Password)
	if err != nil {
		respondError(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

// ListBooths handles GET /api/v1/admin/booths
func (h *AdminHandler) ListBooths(w http.ResponseWriter, r *http.Request) {
	booths, err := h.boothService.ListAll(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list booths")
		respondError(w, "Failed to list booths", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"booths": booths})
}

// ListUploads handles GET /api/v1/admin/booths/{slug}/uploads
func (h *AdminHandler) ListUploads(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	uploads, err := h.boothService.ListUploads(r.Context(), slug)
	if err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"uploads": uploads})
}

// ListFauxtos handles GET /api/v1/admin/fauxtos
func (h *AdminHandler) ListFauxtos(w http.ResponseWriter, r *http.Request) {
	filter := repository.FauxtoFilter{
		BoothSlug:     r.URL.Query().Get("booth"),
		OnlyCompleted: r.URL.Query().Get("completed") == "true",
		Limit:         50,
	}
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	fauxtos, err := h.boothService.ListFauxtos(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list fauxtos")
		respondError(w, "Failed to list fauxtos", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"fauxtos": fauxtos})
}

// DeleteBooth handles DELETE /api/v1/admin/booths/{slug}
func (h *AdminHandler) DeleteBooth(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if err := h.directoryService.DeleteBooth(r.Context(), slug); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteFauxto handles DELETE /api/v1/admin/fauxtos/{id}
func (h *AdminHandler) DeleteFauxto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.boothService.DeleteFauxto(r.Context(), id); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// DeleteUpload handles DELETE /api/v1/admin/uploads/{id}
func (h *AdminHandler) DeleteUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.boothService.DeleteUpload(r.Context(), id); err != nil {
		respondError(w, err.Error(), statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
