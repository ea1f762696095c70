package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"bonus-tracker-api/internal/database"
	"bonus-tracker-api/internal/lifecycle"
	"bonus-tracker-api/internal/models"
	"bonus-tracker-api/internal/service"
	"bonus-tracker-api/internal/validation"
)

// Handler provides HTTP handlers for the API.
type Handler struct {
	service     *service.Service
	maxBodySize int64
}

// NewHandlerOptions holds options for creating a handler.
type NewHandlerOptions struct {
	MaxBodySize int64
}

// DefaultHandlerOptions returns default handler options.
func DefaultHandlerOptions() NewHandlerOptions {
	return NewHandlerOptions{
		MaxBodySize: 1 << 20, // 1MB default
	}
}

// NewHandler creates a new handler instance.
func NewHandler(svc *service.Service) *Handler {
	return NewHandlerWithOptions(svc, DefaultHandlerOptions())
}

// NewHandlerWithOptions creates a new handler instance with custom options.
func NewHandlerWithOptions(svc *service.Service, opts NewHandlerOptions) *Handler {
	return &Handler{
		service:     svc,
		maxBodySize: opts.MaxBodySize,
	}
}

// Routes mounts every bonus endpoint on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/bonuses", func(r chi.Router) {
		r.Post("/", h.CreateBonus)
		r.Get("/{id}", h.GetBonus)
		r.Patch("/{id}", h.UpdateBonus)
		r.Delete("/{id}", h.DeleteBonus)
		r.Post("/{id}/transition", h.TransitionBonus)
	})

	r.Route("/users/{user_id}", func(r chi.Router) {
		r.Get("/bonuses", h.ListBonuses)
		r.Get("/dashboard", h.Dashboard)
		r.Get("/tax-summary", h.TaxSummary)
	})
}

// CreateBonus handles POST /bonuses
func (h *Handler) CreateBonus(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req models.CreateBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	req.UserID = validation.SanitizeString(req.UserID)
	req.InstitutionName = validation.SanitizeString(req.InstitutionName)
	req.CardName = validation.SanitizeString(req.CardName)

	rec, err := h.service.CreateBonus(r.Context(), req, time.Now().UTC())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusCreated, rec)
}

// GetBonus handles GET /bonuses/{id}
func (h *Handler) GetBonus(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))
	if err := validation.ValidateUUID(id, "id"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	now, ok := h.parseNow(w, r)
	if !ok {
		return
	}

	view, err := h.service.GetBonus(r.Context(), id, now)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, view)
}

// ListBonuses handles GET /users/{user_id}/bonuses
func (h *Handler) ListBonuses(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	now, ok := h.parseNow(w, r)
	if !ok {
		return
	}

	response, err := h.service.ListBonuses(r.Context(), userID, now)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// UpdateBonus handles PATCH /bonuses/{id}
func (h *Handler) UpdateBonus(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	id := validation.SanitizeString(chi.URLParam(r, "id"))
	if err := validation.ValidateUUID(id, "id"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.UpdateBonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	rec, err := h.service.UpdateBonus(r.Context(), id, req, time.Now().UTC())
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// DeleteBonus handles DELETE /bonuses/{id}
func (h *Handler) DeleteBonus(w http.ResponseWriter, r *http.Request) {
	id := validation.SanitizeString(chi.URLParam(r, "id"))
	if err := validation.ValidateUUID(id, "id"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.service.DeleteBonus(r.Context(), id); err != nil {
		h.respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TransitionBonus handles POST /bonuses/{id}/transition
func (h *Handler) TransitionBonus(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent abuse
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	id := validation.SanitizeString(chi.URLParam(r, "id"))
	if err := validation.ValidateUUID(id, "id"); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err == io.EOF {
			h.respondError(w, http.StatusBadRequest, "request body is required")
			return
		}
		h.respondError(w, http.StatusBadRequest, "invalid JSON in request body")
		return
	}

	now, ok := h.parseNow(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Transition(r.Context(), id, req.Target, now)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, rec)
}

// Dashboard handles GET /users/{user_id}/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	now, ok := h.parseNow(w, r)
	if !ok {
		return
	}

	response, err := h.service.Dashboard(r.Context(), userID, now)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// TaxSummary handles GET /users/{user_id}/tax-summary?year=YYYY
func (h *Handler) TaxSummary(w http.ResponseWriter, r *http.Request) {
	userID := validation.SanitizeString(chi.URLParam(r, "user_id"))
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	yearParam := validation.SanitizeString(r.URL.Query().Get("year"))
	if yearParam == "" {
		h.respondError(w, http.StatusBadRequest, "year query parameter is required")
		return
	}
	year, err := strconv.Atoi(yearParam)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "year must be an integer")
		return
	}

	response, err := h.service.TaxSummary(r.Context(), userID, year)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	h.respondJSON(w, http.StatusOK, response)
}

// parseNow reads the optional 'now' query parameter, defaulting to the wall
// clock. An explicit now keeps deadline math reproducible for clients and
// tests. Returns ok=false after responding with an error.
func (h *Handler) parseNow(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	nowParam := r.URL.Query().Get("now")
	if nowParam == "" {
		return time.Now().UTC(), true
	}
	parsed, err := validation.ValidateTimeString(validation.SanitizeString(nowParam))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid 'now' parameter, must be RFC3339 format")
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// respondServiceError maps service-layer errors onto HTTP statuses.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	var ve *validation.ValidationError
	var ite *lifecycle.IllegalTransitionError
	switch {
	case errors.As(err, &ve):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &ite):
		h.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, database.ErrNotFound):
		h.respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, database.ErrConflict):
		h.respondError(w, http.StatusConflict, err.Error())
	default:
		h.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// respondJSON sends a JSON response with the given status code.
func (h *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response with the given status code and message.
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, models.ErrorResponse{Error: message})
}
