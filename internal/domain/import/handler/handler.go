// Package handler exposes statement imports over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	"github.com/FACorreiaa/split-budget/internal/domain/import/repository"
	importservice "github.com/FACorreiaa/split-budget/internal/domain/import/service"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	// room for the multipart envelope and option fields around the file
	multipartOverhead = 1 << 20
	maxMemory         = 8 << 20
)

// Service is implemented by service.ImportService.
type Service interface {
	ImportStatement(ctx context.Context, userID uuid.UUID, upload importservice.Upload, opts importservice.Options) (*importservice.Report, error)
	DryRun(ctx context.Context, userID uuid.UUID, upload importservice.Upload, opts importservice.Options) (*importservice.Report, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Import, int, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*repository.Import, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

// ImportHandler serves /api/v1/imports.
type ImportHandler struct {
	svc            Service
	maxUploadBytes int64
	logger         *slog.Logger
}

func NewImportHandler(svc Service, maxUploadBytes int64, logger *slog.Logger) *ImportHandler {
	return &ImportHandler{svc: svc, maxUploadBytes: maxUploadBytes, logger: logger}
}

func (h *ImportHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Post("/", h.Import)
	r.Post("/preview", h.Preview)
	r.Get("/{id}", h.Get)
	r.Delete("/{id}", h.Delete)
	return r
}

func (h *ImportHandler) Import(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.svc.ImportStatement, http.StatusCreated)
}

// Preview runs the import without writing anything.
func (h *ImportHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, h.svc.DryRun, http.StatusOK)
}

type uploadFunc func(ctx context.Context, userID uuid.UUID, upload importservice.Upload, opts importservice.Options) (*importservice.Report, error)

func (h *ImportHandler) handleUpload(w http.ResponseWriter, r *http.Request, run uploadFunc, status int) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			web.Error(w, h.logger, err)
			return
		}
		web.Error(w, h.logger, common.Invalid("file", "expected a multipart/form-data upload"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		web.Error(w, h.logger, common.Invalid("file", "is required"))
		return
	}
	defer file.Close()

	opts, err := parseOptions(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	report, err := run(r.Context(), userID, importservice.Upload{Name: header.Filename, Reader: file}, opts)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, status, report)
}

func (h *ImportHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	limit, err := web.QueryInt(r, "limit", defaultLimit, 1, maxLimit)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	offset, err := web.QueryInt(r, "offset", 0, 0, 1<<30)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	items, total, err := h.svc.List(r.Context(), userID, limit, offset)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, web.Page[*repository.Import]{Items: items, Total: total, Limit: limit, Offset: offset})
}

func (h *ImportHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, id, err := ids(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	imp, err := h.svc.Get(r.Context(), userID, id)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, imp)
}

// Delete removes the import together with the transactions it created.
func (h *ImportHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, err := ids(r)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := h.svc.Delete(r.Context(), userID, id); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.NoContent(w)
}

func ids(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, uuid.Nil, common.Invalid("id", "must be a UUID")
	}
	return userID, id, nil
}

// parseOptions reads the optional form fields: locale, date_layout,
// date_order, header_row, delimiter and columns (a JSON object).
func parseOptions(r *http.Request) (importservice.Options, error) {
	opts := importservice.DefaultOptions()

	locale, err := parser.ParseLocale(r.FormValue("locale"))
	if err != nil {
		return opts, common.Invalid("locale", "must be auto, dot or comma")
	}
	opts.Locale = locale
	opts.DateLayout = strings.TrimSpace(r.FormValue("date_layout"))

	switch order := parser.DateOrder(strings.TrimSpace(r.FormValue("date_order"))); order {
	case "":
	case parser.DayFirst, parser.MonthFirst:
		opts.DateOrder = order
	default:
		return opts, common.Invalid("date_order", "must be day_first or month_first")
	}

	if raw := strings.TrimSpace(r.FormValue("header_row")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return opts, common.Invalid("header_row", "must be a non-negative integer")
		}
		opts.HeaderRow = n
	}

	if raw := r.FormValue("delimiter"); raw != "" {
		d, err := parseDelimiter(raw)
		if err != nil {
			return opts, err
		}
		opts.Delimiter = d
	}

	if raw := strings.TrimSpace(r.FormValue("columns")); raw != "" {
		cols := parser.NoColumns()
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return opts, common.Invalid("columns", "must be a JSON object of column indexes")
		}
		if err := cols.Validate(); err != nil {
			return opts, common.Invalid("columns", "%s", err.Error())
		}
		opts.Columns = &cols
	}
	return opts, nil
}

func parseDelimiter(raw string) (rune, error) {
	switch strings.ToLower(raw) {
	case "tab", `\t`:
		return '\t', nil
	}
	if utf8.RuneCountInString(raw) != 1 {
		return 0, common.Invalid("delimiter", "must be a single character")
	}
	d, _ := utf8.DecodeRuneInString(raw)
	if d == '"' || d == '\n' || d == '\r' {
		return 0, common.Invalid("delimiter", "cannot be a quote or line break")
	}
	return d, nil
}
