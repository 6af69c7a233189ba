// Package handler exposes monthly and annual summaries over JSON HTTP.
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/summary"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
)

const (
	minYear = 1900
	maxYear = 9999
)

// Service is implemented by summary.Service.
type Service interface {
	Monthly(ctx context.Context, userID uuid.UUID, year int) ([]*summary.MonthlySummary, error)
	Month(ctx context.Context, userID uuid.UUID, year int, month time.Month) (*summary.MonthlySummary, error)
	Annual(ctx context.Context, userID uuid.UUID, year int) (*summary.Annual, error)
	Years(ctx context.Context, userID uuid.UUID) ([]*summary.Annual, error)
	Export(ctx context.Context, userID uuid.UUID, year int, w io.Writer) (int, error)
	RecomputeAll(ctx context.Context, userID uuid.UUID) error
	RecomputeFrom(ctx context.Context, userID uuid.UUID, year int, month time.Month) error
}

// SummaryHandler serves /api/v1/summaries.
type SummaryHandler struct {
	svc    Service
	logger *slog.Logger
}

func NewSummaryHandler(svc Service, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{svc: svc, logger: logger}
}

func (h *SummaryHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/annual", h.Years)
	r.Get("/annual/{year}", h.Annual)
	r.Post("/recompute", h.Recompute)
	r.Get("/{year}", h.Monthly)
	r.Get("/{year}/export.csv", h.Export)
	r.Get("/{year}/{month}", h.Month)
	return r
}

func (h *SummaryHandler) Monthly(w http.ResponseWriter, r *http.Request) {
	userID, year, err := userAndYear(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	months, err := h.svc.Monthly(r.Context(), userID, year)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, months)
}

func (h *SummaryHandler) Month(w http.ResponseWriter, r *http.Request) {
	userID, year, err := userAndYear(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		web.Error(w, h.logger, common.Invalid("month", "must be between 1 and 12"))
		return
	}
	m, err := h.svc.Month(r.Context(), userID, year, time.Month(month))
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, m)
}

func (h *SummaryHandler) Annual(w http.ResponseWriter, r *http.Request) {
	userID, year, err := userAndYear(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	a, err := h.svc.Annual(r.Context(), userID, year)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, a)
}

func (h *SummaryHandler) Years(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	years, err := h.svc.Years(r.Context(), userID)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, years)
}

func (h *SummaryHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, year, err := userAndYear(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	web.Attachment(w, "text/csv; charset=utf-8", fmt.Sprintf("summaries-%d.csv", year))
	if _, err := h.svc.Export(r.Context(), userID, year, w); err != nil {
		// headers are already sent
		h.logger.ErrorContext(r.Context(), "summary export failed", slog.Any("error", err))
	}
}

// Recompute rebuilds every summary, or those from ?from=YYYY-MM onwards.
func (h *SummaryHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse("2006-01", raw)
		if err != nil {
			web.Error(w, h.logger, common.Invalid("from", "must be a month such as 2024-01"))
			return
		}
		err = h.svc.RecomputeFrom(r.Context(), userID, from.Year(), from.Month())
		if err != nil {
			web.Error(w, h.logger, err)
			return
		}
		web.NoContent(w)
		return
	}

	if err := h.svc.RecomputeAll(r.Context(), userID); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.NoContent(w)
}

func userAndYear(r *http.Request) (uuid.UUID, int, error) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		return uuid.Nil, 0, err
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < minYear || year > maxYear {
		return uuid.Nil, 0, common.Invalid("year", "must be a four digit year")
	}
	return userID, year, nil
}
