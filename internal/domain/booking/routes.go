package booking

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns /bookings routes. All of them need an identity.
func (h *Handler) Routes(authMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(authMiddleware)

	r.Post("/", h.Create)
	r.Get("/{id}", h.GetByID)
	r.Patch("/{id}", h.UpdateStatus)

	return r
}

// RegisterBusinessRoutes adds booking routes to a router already scoped to
// /businesses/{businessID}.
func (h *Handler) RegisterBusinessRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/services/{serviceID}/availability", h.Availability)
	r.With(authMiddleware).Get("/bookings", h.ListForBusiness)
}
