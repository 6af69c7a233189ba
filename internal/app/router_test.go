package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/FACorreiaa/split-budget/internal/common"
	authhandler "github.com/FACorreiaa/split-budget/internal/domain/auth/handler"
	budgethandler "github.com/FACorreiaa/split-budget/internal/domain/budget/handler"
	categoryhandler "github.com/FACorreiaa/split-budget/internal/domain/category/handler"
	importhandler "github.com/FACorreiaa/split-budget/internal/domain/import/handler"
	summaryhandler "github.com/FACorreiaa/split-budget/internal/domain/summary/handler"
	transactionhandler "github.com/FACorreiaa/split-budget/internal/domain/transaction/handler"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/pkg/config"
)

const validToken = "valid-token"

type stubValidator struct{}

func (stubValidator) ValidateAccessToken(_ context.Context, token string) (uuid.UUID, string, error) {
	if token != validToken {
		return uuid.Nil, "", common.ErrUnauthenticated
	}
	return uuid.New(), "user@example.com", nil
}

// newTestDeps wires the HTTP layer only. Handlers get nil services, so
// requests must be rejected before reaching them.
func newTestDeps(t *testing.T, burst int) *Dependencies {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{Server: config.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}}}

	resolver, err := middleware.NewClientIPResolver(nil)
	require.NoError(t, err)
	store := middleware.NewCookieStore("0123456789abcdef0123456789abcdef", false, "")

	d := &Dependencies{
		Config:        cfg,
		Logger:        logger,
		IPResolver:    resolver,
		SessionStore:  store,
		Authenticator: middleware.NewAuthenticator(stubValidator{}, logger),
		CSRF:          middleware.NewCSRF(store, logger, middleware.AccessTokenCookie, authhandler.RefreshTokenCookie),
		GlobalLimiter: middleware.NewRateLimiter("global", rate.Limit(1), burst, resolver, nil, logger),
		AuthLimiter:   middleware.NewRateLimiter("auth", rate.Limit(1), burst, resolver, nil, logger),

		AuthHandler:        authhandler.NewAuthHandler(nil, resolver, authhandler.CookieConfig{}, nil, logger),
		BudgetHandler:      budgethandler.NewBudgetHandler(nil, logger),
		CategoryHandler:    categoryhandler.NewCategoryHandler(nil, logger),
		TransactionHandler: transactionhandler.NewTransactionHandler(nil, logger),
		ImportHandler:      importhandler.NewImportHandler(nil, 1<<20, logger),
		SummaryHandler:     summaryhandler.NewSummaryHandler(nil, logger),
	}
	t.Cleanup(func() {
		d.GlobalLimiter.Stop()
		d.AuthLimiter.Stop()
	})
	return d
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	router := newTestDeps(t, 100).Router()

	for _, path := range []string{
		"/api/v1/budget/rule",
		"/api/v1/categories",
		"/api/v1/transactions",
		"/api/v1/imports",
		"/api/v1/summaries/2024",
		"/api/v1/auth/me",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestRouter_BearerReachesHandler(t *testing.T) {
	router := newTestDeps(t, 100).Router()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/summaries/abc", nil)
	req.Header.Set("Authorization", "Bearer "+validToken)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_CookieWriteNeedsCSRFToken(t *testing.T) {
	router := newTestDeps(t, 100).Router()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/summaries/recompute", nil)
	req.AddCookie(&http.Cookie{Name: middleware.AccessTokenCookie, Value: validToken})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	router := newTestDeps(t, 100).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/csrf", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["csrf_token"])
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestRouter_NotFound(t *testing.T) {
	router := newTestDeps(t, 100).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"not_found"`)
}

func TestRouter_GlobalRateLimit(t *testing.T) {
	router := newTestDeps(t, 1).Router()

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	assert.Equal(t, http.StatusUnauthorized, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestRouter_SecurityHeaders(t *testing.T) {
	router := newTestDeps(t, 100).Router()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/categories", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}
