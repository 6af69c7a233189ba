package middleware

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/sessions"

	"github.com/FACorreiaa/split-budget/internal/web"
)

const (
	// CSRFHeader carries the token on unsafe requests.
	CSRFHeader = "X-CSRF-Token"

	csrfSessionName = "split_budget_csrf"
	csrfTokenKey    = "token"
)

// CSRF implements a session-bound synchronizer token. Only requests that
// carry the auth cookies are checked; bearer-token clients send no ambient
// credentials.
type CSRF struct {
	store       sessions.Store
	authCookies []string
	logger      *slog.Logger
}

// NewCSRF builds the protector on a gorilla/sessions store.
func NewCSRF(store sessions.Store, logger *slog.Logger, authCookies ...string) *CSRF {
	return &CSRF{store: store, authCookies: authCookies, logger: logger}
}

// NewCookieStore builds the signed and encrypted cookie store used for CSRF
// and OAuth state.
func NewCookieStore(secret string, secure bool, domain string) *sessions.CookieStore {
	key := []byte(secret)
	encKey := key
	if len(encKey) > 32 {
		encKey = encKey[:32]
	}
	store := sessions.NewCookieStore(key, encKey)
	store.Options = &sessions.Options{
		Path:     "/",
		Domain:   domain,
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Token returns the session's CSRF token, creating and persisting one if needed.
func (c *CSRF) Token(w http.ResponseWriter, r *http.Request) (string, error) {
	session, err := c.store.Get(r, csrfSessionName)
	if err != nil && session == nil {
		return "", fmt.Errorf("failed to load csrf session: %w", err)
	}

	if token, ok := session.Values[csrfTokenKey].(string); ok && token != "" {
		return token, nil
	}

	token, err := newCSRFToken()
	if err != nil {
		return "", err
	}
	session.Values[csrfTokenKey] = token
	if err := session.Save(r, w); err != nil {
		return "", fmt.Errorf("failed to save csrf session: %w", err)
	}
	return token, nil
}

// TokenHandler serves {"csrf_token": "..."}.
func (c *CSRF) TokenHandler(w http.ResponseWriter, r *http.Request) {
	token, err := c.Token(w, r)
	if err != nil {
		web.Error(w, c.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	web.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

// Middleware rejects unsafe cookie-authenticated requests without a valid token.
func (c *CSRF) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !c.requiresCheck(r) {
			next.ServeHTTP(w, r)
			return
		}

		session, err := c.store.Get(r, csrfSessionName)
		expected, _ := session.Values[csrfTokenKey].(string)
		provided := r.Header.Get(CSRFHeader)

		if err != nil || expected == "" || provided == "" ||
			subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
			c.logger.Warn("csrf validation failed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			web.JSON(w, http.StatusForbidden, web.ErrorBody{Error: web.ErrorDetail{
				Code:    "csrf_failed",
				Message: "missing or invalid CSRF token",
			}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c *CSRF) requiresCheck(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false
	}
	if strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
		return false
	}
	for _, name := range c.authCookies {
		if _, err := r.Cookie(name); err == nil {
			return true
		}
	}
	return false
}

func newCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
