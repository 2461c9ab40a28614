package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the storefront HTTP routes.
func NewRouter(deps Dependencies) http.Handler {
	h := newStorefrontHTTPHandler(deps)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(h.recoverPanics)

	r.Get("/healthz", h.Healthz)

	r.Group(func(r chi.Router) {
		r.Use(h.loadSession)

		r.Get("/session", h.Session)
		r.Post("/logout", h.Logout)
		r.Get("/check-email", h.CheckEmail)
		r.Get("/new-password/{token}", h.GetNewPassword)

		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)

			r.Post("/signup", h.Signup)
			r.Post("/login", h.Login)
			r.Post("/reset", h.RequestPasswordReset)
			r.Post("/new-password", h.ResetPassword)
		})
	})

	return r
}
