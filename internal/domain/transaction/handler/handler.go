// Package handler exposes transactions over JSON HTTP.
package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
)

// Service is implemented by transaction.Service.
type Service interface {
	Create(ctx context.Context, userID uuid.UUID, in transaction.Input) (*transaction.Transaction, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*transaction.Transaction, error)
	Update(ctx context.Context, userID, id uuid.UUID, in transaction.Input) (*transaction.Transaction, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, f transaction.Filter) ([]*transaction.Transaction, int, error)
	Export(ctx context.Context, userID uuid.UUID, f transaction.Filter, w io.Writer) (int, error)
}

// TransactionHandler serves /api/v1/transactions.
type TransactionHandler struct {
	svc    Service
	logger *slog.Logger
}

func NewTransactionHandler(svc Service, logger *slog.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, logger: logger}
}

func (h *TransactionHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/export.csv", h.Export)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	items, total, err := h.svc.List(r.Context(), userID, f)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Page[*transaction.Transaction]{
		Items:  items,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

func (h *TransactionHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	web.Attachment(w, "text/csv; charset=utf-8", fmt.Sprintf("transactions-%s.csv", time.Now().UTC().Format("20060102")))
	if _, err := h.svc.Export(r.Context(), userID, f, w); err != nil {
		// headers are already sent
		h.logger.ErrorContext(r.Context(), "transaction export failed", slog.Any("error", err))
	}
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	var in transaction.Input
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	t, err := h.svc.Create(r.Context(), userID, in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusCreated, t)
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	t, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.ids(w, r)
	if !ok {
		return
	}

	var in transaction.Input
	if err := web.Decode(w, r, &in); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	t, err := h.svc.Update(r.Context(), userID, id, in)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, t)
}

func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *TransactionHandler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
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

// parseFilter reads from, to, category, type, q, import, limit and offset.
// category=none selects uncategorized transactions.
func parseFilter(r *http.Request) (transaction.Filter, error) {
	q := r.URL.Query()
	var f transaction.Filter

	for key, dst := range map[string]**time.Time{"from": &f.From, "to": &f.To} {
		if raw := q.Get(key); raw != "" {
			d, err := time.Parse(transaction.DateLayout, raw)
			if err != nil {
				return f, common.Invalid(key, "must be a date formatted as YYYY-MM-DD")
			}
			*dst = &d
		}
	}

	if raw := q.Get("category"); raw != "" {
		if raw == "none" {
			f.Uncategorized = true
		} else {
			id, err := uuid.Parse(raw)
			if err != nil {
				return f, common.Invalid("category", "must be a UUID or none")
			}
			f.CategoryID = &id
		}
	}

	if raw := q.Get("import"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, common.Invalid("import", "must be a UUID")
		}
		f.ImportID = &id
	}

	if raw := q.Get("type"); raw != "" {
		t, err := transaction.ParseType(raw)
		if err != nil {
			return f, err
		}
		f.Type = &t
	}

	f.Text = q.Get("q")

	var err error
	if f.Limit, err = web.QueryInt(r, "limit", transaction.DefaultLimit, 1, transaction.MaxLimit); err != nil {
		return f, err
	}
	if f.Offset, err = web.QueryInt(r, "offset", 0, 0, 1<<31-1); err != nil {
		return f, err
	}
	return f, nil
}
