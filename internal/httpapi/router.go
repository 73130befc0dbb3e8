package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the chi router exposing the LNURL-withdraw and
// provisioning endpoints.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.HandleHealthz)

	r.Get("/ln", h.HandleTap)
	r.Get("/ln/{card_id}", h.HandleTap)
	r.Get("/ln/callback", h.HandleCallback)

	r.Get("/new", h.HandleCardRegistration)
	r.Post("/api/createboltcard", h.HandleCreateCard)

	return r
}
