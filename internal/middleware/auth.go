package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/web"
)

// AccessTokenCookie holds the access token for browser clients.
const AccessTokenCookie = "access_token"

// TokenValidator resolves an access token to its subject.
type TokenValidator interface {
	ValidateAccessToken(ctx context.Context, token string) (userID uuid.UUID, email string, err error)
}

// Authenticator guards routes that need a signed-in user.
type Authenticator struct {
	validator TokenValidator
	logger    *slog.Logger
}

func NewAuthenticator(validator TokenValidator, logger *slog.Logger) *Authenticator {
	return &Authenticator{validator: validator, logger: logger}
}

// RequireAuth accepts a bearer token or the access token cookie.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			web.Error(w, a.logger, common.ErrUnauthenticated)
			return
		}

		userID, email, err := a.validator.ValidateAccessToken(r.Context(), token)
		if err != nil {
			a.logger.Debug("access token rejected", slog.Any("error", err))
			web.Error(w, a.logger, common.ErrUnauthenticated)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID, email)))
	})
}

func extractToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(AccessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
