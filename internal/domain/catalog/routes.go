package catalog

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterBusinessRoutes adds catalog routes to a router already scoped to
// /businesses/{businessID}.
func (h *Handler) RegisterBusinessRoutes(r chi.Router, authMiddleware func(http.Handler) http.Handler) {
	// Public
	r.Get("/hours", h.GetHours)
	r.Get("/services", h.ListServices)

	// Owner
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Put("/hours/regular/{day}", h.SetRegularHours)
		r.Put("/hours/special/{date}", h.SetSpecialHours)
		r.Delete("/hours/special/{date}", h.DeleteSpecialHours)
		r.Put("/services/{serviceID}", h.UpdateService)
	})
}
