package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Email token purposes.
const (
	TokenPurposeVerifyEmail   = "verify_email"
	TokenPurposePasswordReset = "password_reset"
)

// User is an account row.
type User struct {
	ID              uuid.UUID  `json:"id"`
	Email           string     `json:"email"`
	PasswordHash    string     `json:"-"`
	DisplayName     string     `json:"display_name"`
	Currency        string     `json:"currency"`
	Provider        *string    `json:"provider,omitempty"`
	ProviderUserID  *string    `json:"-"`
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// CreateUserParams holds the columns set on insert. PasswordHash is empty
// for accounts created through OAuth.
type CreateUserParams struct {
	Email          string
	PasswordHash   string
	DisplayName    string
	Currency       string
	Provider       *string
	ProviderUserID *string
	EmailVerified  bool
}

// Session is a refresh token session.
type Session struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	UserAgent string
	ClientIP  string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// AuthRepository persists users, sessions and one-time email tokens.
type AuthRepository interface {
	CreateUser(ctx context.Context, params CreateUserParams) (*User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error)
	LinkProvider(ctx context.Context, userID uuid.UUID, provider, providerUserID string) error
	ListUserIDs(ctx context.Context) ([]uuid.UUID, error)
	UpdateLastLogin(ctx context.Context, userID uuid.UUID) error
	UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error
	MarkEmailVerified(ctx context.Context, userID uuid.UUID) error

	CreateSession(ctx context.Context, userID uuid.UUID, tokenHash, userAgent, clientIP string, expiresAt time.Time) error
	GetActiveSession(ctx context.Context, tokenHash string) (*Session, error)
	RevokeSession(ctx context.Context, tokenHash string) error
	RevokeAllSessions(ctx context.Context, userID uuid.UUID) error
	DeleteExpiredSessions(ctx context.Context) (int64, error)

	CreateEmailToken(ctx context.Context, userID uuid.UUID, tokenHash, purpose string, expiresAt time.Time) error
	ConsumeEmailToken(ctx context.Context, tokenHash, purpose string) (uuid.UUID, error)
}
