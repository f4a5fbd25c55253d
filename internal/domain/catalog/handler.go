package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/schedule"
	"github.com/slotbook/slotbook-api/internal/middleware"
	"github.com/slotbook/slotbook-api/internal/pkg/errorhandler"
	"github.com/slotbook/slotbook-api/internal/pkg/response"
	"github.com/slotbook/slotbook-api/internal/pkg/validator"
)

// Handler handles catalog HTTP requests
type Handler struct {
	manager *Manager
}

// NewHandler creates catalog handler
func NewHandler(manager *Manager) *Handler {
	return &Handler{manager: manager}
}

// GetHours handles GET /businesses/{businessID}/hours
func (h *Handler) GetHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseBusinessID(w, r)
	if !ok {
		return
	}

	from := h.manager.Today()
	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := schedule.ParseDate(raw)
		if err != nil {
			response.ValidationError(w, map[string]string{"from": err.Error()})
			return
		}
		from = d
	}

	hours, err := h.manager.Hours(r.Context(), businessID, from)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, hours)
}

// ListServices handles GET /businesses/{businessID}/services
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseBusinessID(w, r)
	if !ok {
		return
	}

	services, err := h.manager.ListServices(r.Context(), businessID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, services)
}

// UpdateService handles PUT /businesses/{businessID}/services/{serviceID}
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseBusinessID(w, r)
	if !ok {
		return
	}
	serviceID, err := uuid.Parse(chi.URLParam(r, "serviceID"))
	if err != nil {
		response.BadRequest(w, "Invalid service ID")
		return
	}

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return
	}

	svc, err := h.manager.UpdateService(r.Context(), middleware.GetUserID(r.Context()), businessID, serviceID, &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, svc)
}

// SetRegularHours handles PUT /businesses/{businessID}/hours/regular/{day}
func (h *Handler) SetRegularHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseBusinessID(w, r)
	if !ok {
		return
	}
	day, err := strconv.Atoi(chi.URLParam(r, "day"))
	if err != nil || day < 0 || day > 6 {
		response.ValidationError(w, map[string]string{"day_of_week": "Must be 0 (Sunday) to 6 (Saturday)"})
		return
	}

	req, ok := decodeHours(w, r)
	if !ok {
		return
	}

	hours, err := h.manager.SetRegularHours(r.Context(), middleware.GetUserID(r.Context()), businessID, day, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, hours)
}

// SetSpecialHours handles PUT /businesses/{businessID}/hours/special/{date}
func (h *Handler) SetSpecialHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseBusinessID(w, r)
	if !ok {
		return
	}
	date, err := schedule.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		response.ValidationError(w, map[string]string{"date": err.Error()})
		return
	}

	req, ok := decodeHours(w, r)
	if !ok {
		return
	}

	hours, err := h.manager.SetSpecialHours(r.Context(), middleware.GetUserID(r.Context()), businessID, date, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.OK(w, hours)
}

// DeleteSpecialHours handles DELETE /businesses/{businessID}/hours/special/{date}
func (h *Handler) DeleteSpecialHours(w http.ResponseWriter, r *http.Request) {
	businessID, ok := parseBusinessID(w, r)
	if !ok {
		return
	}
	date, err := schedule.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		response.ValidationError(w, map[string]string{"date": err.Error()})
		return
	}

	if err := h.manager.RemoveSpecialHours(r.Context(), middleware.GetUserID(r.Context()), businessID, date); err != nil {
		h.writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBusinessNotFound):
		response.NotFound(w, "Business not found")
	case errors.Is(err, ErrServiceNotFound):
		response.NotFound(w, "Service not found")
	case errors.Is(err, schedule.ErrHoursNotFound):
		response.NotFound(w, "Hours not found")
	case errors.Is(err, ErrNotOwner):
		response.Forbidden(w, err.Error())
	case errors.Is(err, ErrInvalidHours):
		response.ValidationError(w, map[string]string{"close_time": err.Error()})
	case errors.Is(err, ErrInvalidService):
		response.ValidationError(w, map[string]string{"price": "Price must not be negative"})
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Catalog request failed", err)
	}
}

func parseBusinessID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		response.BadRequest(w, "Invalid business ID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeHours(w http.ResponseWriter, r *http.Request) (*HoursRequest, bool) {
	var req HoursRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return nil, false
	}
	if errs := validator.Validate(&req); errs != nil {
		response.ValidationError(w, errs)
		return nil, false
	}
	return &req, true
}
