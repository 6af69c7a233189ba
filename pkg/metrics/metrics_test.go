package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/categories/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories/42", nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	got := testutil.ToFloat64(m.httpRequests.WithLabelValues(http.MethodGet, "/api/v1/categories/{id}", "404"))
	assert.Equal(t, float64(3), got)
}

func TestObserveImport(t *testing.T) {
	m := New()
	m.ObserveImport("csv", "completed", 10, 2, 1)
	m.ObserveImport("xlsx", "completed", 5, 0, 0)

	assert.Equal(t, float64(15), testutil.ToFloat64(m.importRows.WithLabelValues("imported")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.importRows.WithLabelValues("duplicate")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.imports.WithLabelValues("xlsx", "completed")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RateLimited("global")
		m.ObserveImport("csv", "failed", 0, 0, 3)
		m.SummaryRecomputed("cron")
	})

	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestHandler_ExposesCollectors(t *testing.T) {
	m := New()
	m.SummaryRecomputed("transaction")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "split_budget_summary_recomputes_total")
}
