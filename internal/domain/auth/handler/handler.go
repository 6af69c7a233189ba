// Package handler exposes the auth service over JSON HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/markbates/goth"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/repository"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/service"
	"github.com/FACorreiaa/split-budget/internal/middleware"
	"github.com/FACorreiaa/split-budget/internal/web"
)

const (
	RefreshTokenCookie = "refresh_token"
	refreshCookiePath  = "/api/v1/auth"
)

// Service is the subset of the auth service the handler needs.
type Service interface {
	Register(ctx context.Context, params service.RegisterParams) (*service.AuthResult, error)
	Login(ctx context.Context, params service.LoginParams) (*service.AuthResult, error)
	RefreshTokens(ctx context.Context, refreshToken string, meta service.SessionMetadata) (*service.AuthResult, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*repository.User, error)
	VerifyEmail(ctx context.Context, token string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	LoginOrRegisterOAuth(ctx context.Context, provider string, user *goth.User, meta service.SessionMetadata) (*service.AuthResult, bool, error)
}

// CookieConfig controls the auth cookies set for browser clients.
type CookieConfig struct {
	Domain string
	Secure bool
}

// AuthHandler serves /api/v1/auth.
type AuthHandler struct {
	svc      Service
	resolver *middleware.ClientIPResolver
	cookies  CookieConfig
	oauth    *OAuth
	logger   *slog.Logger
}

// NewAuthHandler creates a new auth handler. oauth may be nil.
func NewAuthHandler(svc Service, resolver *middleware.ClientIPResolver, cookies CookieConfig, oauth *OAuth, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		svc:      svc,
		resolver: resolver,
		cookies:  cookies,
		oauth:    oauth,
		logger:   logger,
	}
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Currency    string `json:"currency"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type authResponse struct {
	User             *repository.User `json:"user"`
	AccessToken      string           `json:"access_token"`
	RefreshToken     string           `json:"refresh_token"`
	AccessExpiresAt  time.Time        `json:"access_expires_at"`
	RefreshExpiresAt time.Time        `json:"refresh_expires_at"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}

	res, err := h.svc.Register(r.Context(), service.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Currency:    req.Currency,
		Metadata:    h.metadata(r),
	})
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.writeAuth(w, http.StatusCreated, res)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if req.Email == "" || req.Password == "" {
		web.Error(w, h.logger, common.Invalid("", "email and password are required"))
		return
	}

	res, err := h.svc.Login(r.Context(), service.LoginParams{
		Email:    req.Email,
		Password: req.Password,
		Metadata: h.metadata(r),
	})
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	h.writeAuth(w, http.StatusOK, res)
}

// Refresh reads the refresh token from the body, falling back to the cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(w, r)
	if token == "" {
		web.Error(w, h.logger, common.ErrUnauthenticated)
		return
	}

	res, err := h.svc.RefreshTokens(r.Context(), token, h.metadata(r))
	if err != nil {
		h.clearCookies(w)
		web.Error(w, h.logger, err)
		return
	}

	h.writeAuth(w, http.StatusOK, res)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.refreshTokenFrom(w, r)
	if err := h.svc.Logout(r.Context(), token); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	h.clearCookies(w)
	web.NoContent(w)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.RequireUserID(r.Context())
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}

	user, err := h.svc.Me(r.Context(), userID)
	if err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, user)
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := h.svc.VerifyEmail(r.Context(), req.Token); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	web.JSON(w, http.StatusAccepted, map[string]string{
		"message": "if an account exists for this email, a reset link has been sent",
	})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := web.Decode(w, r, &req); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		web.Error(w, h.logger, err)
		return
	}
	h.clearCookies(w)
	web.NoContent(w)
}

func (h *AuthHandler) metadata(r *http.Request) service.SessionMetadata {
	meta := service.SessionMetadata{UserAgent: r.UserAgent()}
	if h.resolver != nil {
		meta.ClientIP = h.resolver.ClientIP(r)
	}
	return meta
}

func (h *AuthHandler) refreshTokenFrom(w http.ResponseWriter, r *http.Request) string {
	if r.ContentLength > 0 {
		var req refreshRequest
		if err := web.Decode(w, r, &req); err == nil && req.RefreshToken != "" {
			return req.RefreshToken
		}
	}
	if c, err := r.Cookie(RefreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

func (h *AuthHandler) writeAuth(w http.ResponseWriter, status int, res *service.AuthResult) {
	h.setCookies(w, res.Tokens)
	web.JSON(w, status, authResponse{
		User:             res.User,
		AccessToken:      res.Tokens.AccessToken,
		RefreshToken:     res.Tokens.RefreshToken,
		AccessExpiresAt:  res.Tokens.AccessExpiresAt,
		RefreshExpiresAt: res.Tokens.RefreshExpiresAt,
	})
}

func (h *AuthHandler) setCookies(w http.ResponseWriter, tokens *service.TokenPair) {
	http.SetCookie(w, h.cookie(middleware.AccessTokenCookie, tokens.AccessToken, "/", tokens.AccessExpiresAt))
	http.SetCookie(w, h.cookie(RefreshTokenCookie, tokens.RefreshToken, refreshCookiePath, tokens.RefreshExpiresAt))
}

func (h *AuthHandler) clearCookies(w http.ResponseWriter) {
	for _, c := range []*http.Cookie{
		h.cookie(middleware.AccessTokenCookie, "", "/", time.Time{}),
		h.cookie(RefreshTokenCookie, "", refreshCookiePath, time.Time{}),
	} {
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

func (h *AuthHandler) cookie(name, value, path string, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   h.cookies.Domain,
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
