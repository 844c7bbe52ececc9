package handlers

import (
	"net/http"

	"fauxto-booth-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// FauxtoHandler handles fauxto lookup requests
type FauxtoHandler struct {
	recordService *services.RecordService
}

// NewFauxtoHandler creates a new fauxto handler
func NewFauxtoHandler(recordService *services.RecordService) *FauxtoHandler {
	return &FauxtoHandler{recordService: recordService}
}

// GetFauxto handles GET /api/v1/fauxtos/{id}
func (h *FauxtoHandler) GetFauxto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	record, err := h.recordService.Get(r.Context(), id)
	if err != nil {
		respondError(w, "Fauxto not found", statusFor(err))
		return
	}
	respondJSON(w, http.StatusOK, record)
}
