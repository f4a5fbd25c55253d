package booking

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/slotbook/slotbook-api/internal/domain/catalog"
	"github.com/slotbook/slotbook-api/internal/domain/schedule"
	"github.com/slotbook/slotbook-api/internal/middleware"
	"github.com/slotbook/slotbook-api/internal/pkg/errorhandler"
	"github.com/slotbook/slotbook-api/internal/pkg/response"
	"github.com/slotbook/slotbook-api/internal/pkg/validator"
)

// Handler handles booking HTTP requests
type Handler struct {
	service *Service
}

// NewHandler creates booking handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Availability handles GET /businesses/{businessID}/services/{serviceID}/availability?date=YYYY-MM-DD
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		response.BadRequest(w, "Invalid business ID")
		return
	}
	serviceID, err := uuid.Parse(chi.URLParam(r, "serviceID"))
	if err != nil {
		response.BadRequest(w, "Invalid service ID")
		return
	}
	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		response.ValidationError(w, map[string]string{"date": err.Error()})
		return
	}

	slots, err := h.service.GetAvailability(r.Context(), businessID, serviceID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, slots)
}

// Create handles POST /bookings
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}

	b, err := h.service.CreateBooking(r.Context(), actorFrom(r), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, b)
}

// GetByID handles GET /bookings/{id}
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid booking ID")
		return
	}

	b, err := h.service.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, b)
}

// UpdateStatus handles PATCH /bookings/{id}
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "Invalid booking ID")
		return
	}

	var req UpdateStatusRequest
	if err := response.DecodeJSON(r.Body, &req); err != nil {
		response.BadRequest(w, "Invalid JSON body")
		return
	}
	if errs := validator.Validate(&req); errs != nil {
		errorhandler.LogValidationError(r.Context(), errs)
		response.ValidationError(w, errs)
		return
	}

	b, err := h.service.Transition(r.Context(), actorFrom(r), id, Action(req.Action), TransitionOptions{
		AllowAlreadyCancelled: req.AllowAlreadyCancelled,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, b)
}

// ListForBusiness handles GET /businesses/{businessID}/bookings?date=YYYY-MM-DD
func (h *Handler) ListForBusiness(w http.ResponseWriter, r *http.Request) {
	businessID, err := uuid.Parse(chi.URLParam(r, "businessID"))
	if err != nil {
		response.BadRequest(w, "Invalid business ID")
		return
	}
	date, err := schedule.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		response.ValidationError(w, map[string]string{"date": err.Error()})
		return
	}

	bookings, err := h.service.ListForBusiness(r.Context(), actorFrom(r), businessID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.WithMeta(w, bookings, response.Meta{Total: len(bookings)})
}

func actorFrom(r *http.Request) Actor {
	return Actor{UserID: middleware.GetUserID(r.Context())}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *ValidationError
	switch {
	case errors.As(err, &vErr):
		response.ValidationError(w, vErr.Fields)
	case errors.Is(err, ErrOutsideBusinessHours):
		response.Unprocessable(w, "OUTSIDE_BUSINESS_HOURS", err.Error())
	case errors.Is(err, ErrCapacityExceeded):
		response.Unprocessable(w, "CAPACITY_EXCEEDED", err.Error())
	case errors.Is(err, ErrSlotUnavailable):
		response.Conflict(w, "SLOT_UNAVAILABLE", err.Error())
	case errors.Is(err, ErrInvalidTransition):
		response.Conflict(w, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, ErrPersistenceConflict):
		response.Conflict(w, "PERSISTENCE_CONFLICT", err.Error())
	case errors.Is(err, ErrBookingNotFound):
		response.NotFound(w, "Booking not found")
	case errors.Is(err, catalog.ErrBusinessNotFound):
		response.NotFound(w, "Business not found")
	case errors.Is(err, catalog.ErrServiceNotFound):
		response.NotFound(w, "Service not found")
	case errors.Is(err, ErrForbidden):
		response.Forbidden(w, err.Error())
	default:
		errorhandler.HandleError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "Booking request failed", err)
	}
}
