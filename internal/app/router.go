package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
)

const healthTimeout = 2 * time.Second

// Router builds the public HTTP handler.
func (d *Dependencies) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer(d.Logger))
	r.Use(middleware.RequestLogger(d.Logger, d.IPResolver))
	r.Use(d.Metrics.Middleware)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(d.Config.Server.AllowedOrigins))
	r.Use(d.GlobalLimiter.Middleware)

	r.Get("/healthz", d.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(d.CSRF.Middleware)

		r.Mount("/auth", d.AuthHandler.Routes(d.AuthLimiter.Middleware, d.Authenticator.RequireAuth, d.CSRF.TokenHandler))

		r.Group(func(r chi.Router) {
			r.Use(d.Authenticator.RequireAuth)
			r.Mount("/budget", d.BudgetHandler.Routes())
			r.Mount("/categories", d.CategoryHandler.Routes())
			r.Mount("/transactions", d.TransactionHandler.Routes())
			r.Mount("/imports", d.ImportHandler.Routes())
			r.Mount("/summaries", d.SummaryHandler.Routes())
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		web.JSON(w, http.StatusNotFound, web.ErrorBody{Error: web.ErrorDetail{Code: "not_found", Message: "route not found"}})
	})
	return r
}

func (d *Dependencies) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := d.DB.Health(ctx); err != nil {
		d.Logger.Warn("health check failed", slog.Any("error", err))
		web.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	web.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
