package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/web"
)

// OAuthConfig configures the social login providers.
type OAuthConfig struct {
	GoogleClientID      string
	GoogleClientSecret  string
	CallbackBaseURL     string
	FrontendRedirectURL string
}

// OAuth holds the provider registry used by the begin and callback routes.
type OAuth struct {
	providers           map[string]bool
	frontendRedirectURL string
}

// NewOAuth registers the configured goth providers and points gothic at the
// given session store. It returns nil when no provider is configured.
func NewOAuth(cfg OAuthConfig, store sessions.Store) *OAuth {
	if cfg.GoogleClientID == "" || cfg.GoogleClientSecret == "" {
		return nil
	}

	goth.UseProviders(
		google.New(cfg.GoogleClientID, cfg.GoogleClientSecret,
			cfg.CallbackBaseURL+"/api/v1/auth/oauth/google/callback",
			"email", "profile"),
	)
	gothic.Store = store
	gothic.GetProviderName = providerFromRoute

	return &OAuth{
		providers:           map[string]bool{"google": true},
		frontendRedirectURL: cfg.FrontendRedirectURL,
	}
}

func providerFromRoute(r *http.Request) (string, error) {
	if p := chi.URLParam(r, "provider"); p != "" {
		return p, nil
	}
	if p := r.URL.Query().Get("provider"); p != "" {
		return p, nil
	}
	return "", errors.New("oauth provider not specified")
}

func (h *AuthHandler) oauthProvider(w http.ResponseWriter, r *http.Request) (string, bool) {
	provider := chi.URLParam(r, "provider")
	if h.oauth == nil || !h.oauth.providers[provider] {
		web.Error(w, h.logger, common.ErrNotFound)
		return "", false
	}
	return provider, true
}

// OAuthBegin redirects the browser to the provider's consent page.
func (h *AuthHandler) OAuthBegin(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.oauthProvider(w, r); !ok {
		return
	}
	gothic.BeginAuthHandler(w, r)
}

// OAuthCallback completes the provider flow, sets the auth cookies and
// redirects back to the frontend.
func (h *AuthHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	provider, ok := h.oauthProvider(w, r)
	if !ok {
		return
	}

	gothUser, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		h.logger.WarnContext(r.Context(), "oauth callback failed", slog.String("provider", provider), slog.Any("error", err))
		h.redirectWithError(w, r, "oauth_failed")
		return
	}

	res, isNew, err := h.svc.LoginOrRegisterOAuth(r.Context(), provider, &gothUser, h.metadata(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "oauth login failed", slog.String("provider", provider), slog.Any("error", err))
		h.redirectWithError(w, r, "login_failed")
		return
	}
	_ = gothic.Logout(w, r)

	h.setCookies(w, res.Tokens)

	target := h.oauth.frontendRedirectURL
	if isNew {
		target = appendQuery(target, "new_user", "1")
	}
	http.Redirect(w, r, target, http.StatusFound)
}

func (h *AuthHandler) redirectWithError(w http.ResponseWriter, r *http.Request, code string) {
	http.Redirect(w, r, appendQuery(h.oauth.frontendRedirectURL, "error", code), http.StatusFound)
}

func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
