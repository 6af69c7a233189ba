// Package handler exposes category CRUD over JSON HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/category"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
)

// Service is implemented by category.Service.
type Service interface {
	List(ctx context.Context, userID uuid.UUID) ([]*category.Category, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*category.Category, error)
	Create(ctx context.Context, userID uuid.UUID, in category.Input) (*category.Category, error)
	Update(ctx context.Context, userID, id uuid.UUID, in category.Input) (*category.Category, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// CategoryHandler serves /api/v1/categories.
type CategoryHandler struct {
	svc    Service
	logger *slog.Logger
}

func NewCategoryHandler(svc Service, logger *slog.Logger) *CategoryHandler {
	return &CategoryHandler{svc: svc, logger: logger}
}

func (h *CategoryHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	cs, err := h.svc.List(r.Context(), userID)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"categories": cs})
}

func (h *CategoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	c, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	var in category.Input
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	c, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusCreated, c)
}

func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var in category.Input
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	c, err := h.svc.Update(r.Context(), userID, id, in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, c)
}

func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.NoContent(w)
}

func (h *CategoryHandler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.Error(w, h.logger, common.Invalid("id", "must be a UUID"))
		return uuid.Nil, uuid.Nil, false
	}
	return userID, id, true
}
