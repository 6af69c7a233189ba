package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes mounts the auth endpoints. sensitive wraps the endpoints that get
// the stricter rate limit and requireAuth guards /me.
func (h *AuthHandler) Routes(sensitive, requireAuth func(http.Handler) http.Handler, csrfToken http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/csrf", csrfToken)

	r.Group(func(r chi.Router) {
		r.Use(sensitive)
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/forgot-password", h.ForgotPassword)
		r.Post("/reset-password", h.ResetPassword)
	})

	r.Post("/refresh", h.Refresh)
	r.Post("/logout", h.Logout)
	r.Post("/verify-email", h.VerifyEmail)
	r.Get("/oauth/{provider}", h.OAuthBegin)
	r.Get("/oauth/{provider}/callback", h.OAuthCallback)

	r.With(requireAuth).Get("/me", h.Me)

	return r
}
