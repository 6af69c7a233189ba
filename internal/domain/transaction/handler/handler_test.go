package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/internal/middleware"
)

type mockService struct {
	filter transaction.Filter
	input  transaction.Input
}

func (m *mockService) Create(_ context.Context, userID uuid.UUID, in transaction.Input) (*transaction.Transaction, error) {
	m.input = in
	return &transaction.Transaction{ID: uuid.New(), UserID: userID, Description: in.Description}, nil
}

func (m *mockService) Get(_ context.Context, _, id uuid.UUID) (*transaction.Transaction, error) {
	return nil, transaction.ErrTransactionNotFound
}

func (m *mockService) Update(_ context.Context, _, id uuid.UUID, in transaction.Input) (*transaction.Transaction, error) {
	return &transaction.Transaction{ID: id, Description: in.Description}, nil
}

func (m *mockService) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (m *mockService) List(_ context.Context, _ uuid.UUID, f transaction.Filter) ([]*transaction.Transaction, int, error) {
	m.filter = f
	return []*transaction.Transaction{{Description: "one"}}, 7, nil
}

func (m *mockService) Export(_ context.Context, _ uuid.UUID, f transaction.Filter, w io.Writer) (int, error) {
	m.filter = f
	_, err := io.WriteString(w, "date,type\n")
	return 0, err
}

func serve(svc Service, method, target, body string) *httptest.ResponseRecorder {
	h := NewTransactionHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req = req.WithContext(middleware.WithUser(req.Context(), uuid.New(), "u@example.com"))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestList_ParsesFilter(t *testing.T) {
	svc := &mockService{}
	cat := uuid.New()

	rec := serve(svc, http.MethodGet, "/?from=2024-01-01&to=2024-01-31&category="+cat.String()+"&type=expense&q=cafe&limit=20&offset=40", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Items []json.RawMessage `json:"items"`
		Total int               `json:"total"`
		Limit int               `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 7, page.Total)
	assert.Equal(t, 20, page.Limit)

	require.NotNil(t, svc.filter.From)
	assert.Equal(t, "2024-01-01", svc.filter.From.Format(transaction.DateLayout))
	assert.Equal(t, cat, *svc.filter.CategoryID)
	assert.Equal(t, transaction.TypeExpense, *svc.filter.Type)
	assert.Equal(t, "cafe", svc.filter.Text)
	assert.Equal(t, 40, svc.filter.Offset)
}

func TestList_BadQuery(t *testing.T) {
	for _, q := range []string{"from=yesterday", "category=abc", "type=transfer", "limit=0", "limit=9999", "offset=-1"} {
		t.Run(q, func(t *testing.T) {
			rec := serve(&mockService{}, http.MethodGet, "/?"+q, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestList_Uncategorized(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodGet, "/?category=none", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.filter.Uncategorized)
}

func TestExport(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodGet, "/export.csv?type=income", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "date,type\n", rec.Body.String())
}

func TestCreateAndGet(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodPost, "/", `{"type":"expense","amount":"3.20","description":"bus","occurred_on":"2024-02-02"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "3.20", svc.input.Amount)

	rec = serve(svc, http.MethodGet, "/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(svc, http.MethodDelete, "/"+uuid.NewString(), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
