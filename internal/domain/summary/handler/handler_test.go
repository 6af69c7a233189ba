package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/split-budget/internal/domain/summary"
	"github.com/FACorreiaa/split-budget/internal/middleware"
)

type mockService struct {
	year       int
	month      time.Month
	recomputed string
}

func (m *mockService) Monthly(_ context.Context, _ uuid.UUID, year int) ([]*summary.MonthlySummary, error) {
	m.year = year
	return []*summary.MonthlySummary{{Year: year, Month: time.January, IncomeCents: 100}}, nil
}

func (m *mockService) Month(_ context.Context, _ uuid.UUID, year int, month time.Month) (*summary.MonthlySummary, error) {
	m.year, m.month = year, month
	return &summary.MonthlySummary{Year: year, Month: month}, nil
}

func (m *mockService) Annual(_ context.Context, _ uuid.UUID, year int) (*summary.Annual, error) {
	if year == 1999 {
		return nil, summary.ErrSummaryNotFound
	}
	return &summary.Annual{Year: year, IncomeCents: 1200}, nil
}

func (m *mockService) Years(context.Context, uuid.UUID) ([]*summary.Annual, error) {
	return []*summary.Annual{{Year: 2023}, {Year: 2024}}, nil
}

func (m *mockService) Export(_ context.Context, _ uuid.UUID, year int, w io.Writer) (int, error) {
	m.year = year
	_, err := io.WriteString(w, "month,currency\n")
	return 0, err
}

func (m *mockService) RecomputeAll(context.Context, uuid.UUID) error {
	m.recomputed = "all"
	return nil
}

func (m *mockService) RecomputeFrom(_ context.Context, _ uuid.UUID, year int, month time.Month) error {
	m.recomputed = "from"
	m.year, m.month = year, month
	return nil
}

func serve(svc Service, method, target string) *httptest.ResponseRecorder {
	h := NewSummaryHandler(svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	req := httptest.NewRequest(method, target, nil)
	req = req.WithContext(middleware.WithUser(req.Context(), uuid.New(), "u@example.com"))
	rec := httptest.NewRecorder()
	h.Routes().ServeHTTP(rec, req)
	return rec
}

func TestMonthly(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodGet, "/2024")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2024, svc.year)

	var months []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &months))
	require.Len(t, months, 1)
	assert.EqualValues(t, 1, months[0]["month"])
	assert.EqualValues(t, 100, months[0]["income_cents"])
}

func TestMonth(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodGet, "/2024/3")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.March, svc.month)

	for _, target := range []string{"/2024/13", "/2024/0", "/2024/x", "/24/1", "/abcd"} {
		t.Run(target, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, serve(&mockService{}, http.MethodGet, target).Code)
		})
	}
}

func TestAnnual(t *testing.T) {
	rec := serve(&mockService{}, http.MethodGet, "/annual/2024")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"income_cents":1200`)

	rec = serve(&mockService{}, http.MethodGet, "/annual/1999")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(&mockService{}, http.MethodGet, "/annual")
	require.Equal(t, http.StatusOK, rec.Code)
	var years []summary.Annual
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &years))
	assert.Len(t, years, 2)
}

func TestExport(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodGet, "/2023/export.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2023, svc.year)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "summaries-2023.csv")
	assert.Equal(t, "month,currency\n", rec.Body.String())
}

func TestRecompute(t *testing.T) {
	svc := &mockService{}
	rec := serve(svc, http.MethodPost, "/recompute")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "all", svc.recomputed)

	svc = &mockService{}
	rec = serve(svc, http.MethodPost, "/recompute?from=2024-02")
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "from", svc.recomputed)
	assert.Equal(t, 2024, svc.year)
	assert.Equal(t, time.February, svc.month)

	rec = serve(&mockService{}, http.MethodPost, "/recompute?from=feb")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
