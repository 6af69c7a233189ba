// Package handler exposes budget rules over JSON HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

// Service is implemented by budget.Service.
type Service interface {
	GetRule(ctx context.Context, userID uuid.UUID) (*budget.Rule, error)
	UpdateRule(ctx context.Context, userID uuid.UUID, rule budget.Rule) (*budget.Rule, error)
	Allocation(ctx context.Context, userID uuid.UUID, incomeCents int64) (budget.Allocation, error)
}

// BudgetHandler serves /api/v1/budget.
type BudgetHandler struct {
	svc    Service
	logger *slog.Logger
}

func NewBudgetHandler(svc Service, logger *slog.Logger) *BudgetHandler {
	return &BudgetHandler{svc: svc, logger: logger}
}

// Routes mounts the budget endpoints.
func (h *BudgetHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/rule", h.GetRule)
	r.Put("/rule", h.UpdateRule)
	r.Get("/allocation", h.Allocation)
	return r
}

type ruleRequest struct {
	NeedsPct       int `json:"needs_pct"`
	WantsPct       int `json:"wants_pct"`
	ReservesPct    int `json:"reserves_pct"`
	InvestmentsPct int `json:"investments_pct"`
}

func (h *BudgetHandler) GetRule(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	rule, err := h.svc.GetRule(r.Context(), userID)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, rule)
}

func (h *BudgetHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	var req ruleRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	rule, err := h.svc.UpdateRule(r.Context(), userID, budget.Rule{
		NeedsPct:       req.NeedsPct,
		WantsPct:       req.WantsPct,
		ReservesPct:    req.ReservesPct,
		InvestmentsPct: req.InvestmentsPct,
	})
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, rule)
}

// Allocation splits ?income=1234.56 (major units of the user's currency).
func (h *BudgetHandler) Allocation(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	raw := r.URL.Query().Get("income")
	if raw == "" {
		web.Error(w, h.logger, common.Invalid("income", "is required"))
		return
	}

	rule, err := h.svc.GetRule(r.Context(), userID)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	income, err := money.NewFromString(raw, rule.Currency)
	if err != nil {
		web.Error(w, h.logger, common.Invalid("income", "must be a decimal amount"))
		return
	}

	alloc, err := h.svc.Allocation(r.Context(), userID, income.Amount())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, alloc)
}
