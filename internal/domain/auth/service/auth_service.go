package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/markbates/goth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/auth/repository"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

const (
	defaultSessionTTL    = 30 * 24 * time.Hour
	verificationTokenTTL = 24 * time.Hour
	passwordResetTTL     = time.Hour
)

var tracer = otel.Tracer("split-budget/auth")

// EmailSender delivers account emails.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, name, token string) error
	SendPasswordResetEmail(ctx context.Context, email, name, token string) error
	SendWelcomeEmail(ctx context.Context, email, name string) error
}

// CategorySeeder creates the starter categories of a new account.
type CategorySeeder interface {
	SeedDefaults(ctx context.Context, userID uuid.UUID) error
}

// SessionMetadata captures client information stored with a refresh session.
type SessionMetadata struct {
	UserAgent string
	ClientIP  string
}

type RegisterParams struct {
	Email       string
	Password    string
	DisplayName string
	Currency    string
	Metadata    SessionMetadata
}

type LoginParams struct {
	Email    string
	Password string
	Metadata SessionMetadata
}

// AuthResult is produced after register, login and OAuth login.
type AuthResult struct {
	User   *repository.User `json:"user"`
	Tokens *TokenPair       `json:"tokens"`
}

// AuthService coordinates account and session logic.
type AuthService struct {
	repo         repository.AuthRepository
	tokenManager TokenManager
	emailService EmailSender
	seeder       CategorySeeder
	sessionTTL   time.Duration
	logger       *slog.Logger
	now          func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(
	repo repository.AuthRepository,
	tokenManager TokenManager,
	emailService EmailSender,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}

	return &AuthService{
		repo:         repo,
		tokenManager: tokenManager,
		emailService: emailService,
		sessionTTL:   sessionTTL,
		logger:       logger,
		now:          time.Now,
	}
}

// WithCategorySeeder sets the seeder run after a new account is created.
func (s *AuthService) WithCategorySeeder(seeder CategorySeeder) *AuthService {
	s.seeder = seeder
	return s
}

// Register creates a password account, seeds its categories and issues tokens.
func (s *AuthService) Register(ctx context.Context, params RegisterParams) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Register")
	defer span.End()

	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}
	if err := ValidatePassword(params.Password); err != nil {
		return nil, err
	}
	currency := money.NormalizeCurrency(params.Currency)
	if err := money.ValidateCurrency(currency); err != nil {
		return nil, common.Invalid("currency", "unknown currency %q", params.Currency)
	}
	displayName := strings.TrimSpace(params.DisplayName)
	if displayName == "" {
		displayName = strings.Split(email, "@")[0]
	}

	hashedPassword, err := HashPassword(params.Password)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.CreateUser(ctx, repository.CreateUserParams{
		Email:        email,
		PasswordHash: hashedPassword,
		DisplayName:  displayName,
		Currency:     currency,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if err := s.seedCategories(ctx, user.ID); err != nil {
		return nil, err
	}

	tokens, err := s.issueSession(ctx, user, params.Metadata)
	if err != nil {
		return nil, err
	}

	if err := s.sendEmailVerification(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "failed to queue verification email", slog.Any("error", err))
	}

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login authenticates a user against stored credentials.
func (s *AuthService) Login(ctx context.Context, params LoginParams) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "auth.Login")
	defer span.End()

	user, err := s.repo.GetUserByEmail(ctx, strings.TrimSpace(params.Email))
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	if !ComparePassword(user.PasswordHash, params.Password) {
		span.SetStatus(codes.Error, "invalid credentials")
		return nil, common.ErrInvalidCredentials
	}

	tokens, err := s.issueSession(ctx, user, params.Metadata)
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	return &AuthResult{User: user, Tokens: tokens}, nil
}

// RefreshTokens validates the refresh token, revokes its session and issues a new pair.
func (s *AuthService) RefreshTokens(ctx context.Context, refreshToken string, meta SessionMetadata) (*AuthResult, error) {
	ctx, span := tracer.Start(ctx, "auth.RefreshTokens")
	defer span.End()

	claims, err := s.tokenManager.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	hashedToken := hashToken(refreshToken)
	session, err := s.repo.GetActiveSession(ctx, hashedToken)
	if err != nil {
		if errors.Is(err, common.ErrSessionNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, err
	}
	if session.UserID.String() != claims.UserID {
		return nil, common.ErrTokenInvalid
	}

	user, err := s.repo.GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil, common.ErrTokenInvalid
		}
		return nil, err
	}

	if err := s.repo.RevokeSession(ctx, hashedToken); err != nil {
		if errors.Is(err, common.ErrSessionNotFound) {
			// lost a race with a concurrent refresh of the same token
			return nil, common.ErrTokenInvalid
		}
		return nil, err
	}

	tokens, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Logout revokes the refresh token session. Unknown tokens are ignored.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.repo.RevokeSession(ctx, hashToken(refreshToken)); err != nil && !errors.Is(err, common.ErrSessionNotFound) {
		return err
	}
	return nil
}

// Me returns the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID uuid.UUID) (*repository.User, error) {
	return s.repo.GetUserByID(ctx, userID)
}

// ValidateAccessToken returns the user id and email carried by a valid access token.
func (s *AuthService) ValidateAccessToken(_ context.Context, accessToken string) (uuid.UUID, string, error) {
	claims, err := s.tokenManager.ValidateAccessToken(accessToken)
	if err != nil {
		return uuid.Nil, "", err
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, "", common.ErrTokenInvalid
	}
	return userID, claims.Email, nil
}

// VerifyEmail consumes a verification token and marks the address verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) error {
	if token == "" {
		return common.Invalid("token", "is required")
	}

	userID, err := s.repo.ConsumeEmailToken(ctx, hashToken(token), repository.TokenPurposeVerifyEmail)
	if err != nil {
		return err
	}
	if err := s.repo.MarkEmailVerified(ctx, userID); err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}

	if user, err := s.repo.GetUserByID(ctx, userID); err == nil {
		s.sendAsync(ctx, "welcome", func(ctx context.Context) error {
			return s.emailService.SendWelcomeEmail(ctx, user.Email, user.DisplayName)
		})
	}
	return nil
}

// RequestPasswordReset emails a reset link. It reports success for unknown
// addresses so callers cannot probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return common.Invalid("email", "is required")
	}

	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrUserNotFound) {
			return nil
		}
		return err
	}

	resetToken, err := generateOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.repo.CreateEmailToken(ctx, user.ID, hashToken(resetToken), repository.TokenPurposePasswordReset, s.now().Add(passwordResetTTL)); err != nil {
		return err
	}

	s.sendAsync(ctx, "password reset", func(ctx context.Context) error {
		return s.emailService.SendPasswordResetEmail(ctx, user.Email, user.DisplayName, resetToken)
	})
	return nil
}

// ResetPassword consumes a reset token, sets the new password and revokes every session.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	userID, err := s.repo.ConsumeEmailToken(ctx, hashToken(resetToken), repository.TokenPurposePasswordReset)
	if err != nil {
		return err
	}

	hashedPassword, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, userID, hashedPassword); err != nil {
		return err
	}
	return s.repo.RevokeAllSessions(ctx, userID)
}

// LoginOrRegisterOAuth finds the user by provider identity, then by email,
// creating the account when neither exists. The bool reports a new account.
func (s *AuthService) LoginOrRegisterOAuth(ctx context.Context, provider string, gothUser *goth.User, meta SessionMetadata) (*AuthResult, bool, error) {
	ctx, span := tracer.Start(ctx, "auth.LoginOrRegisterOAuth")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.provider", provider))

	if gothUser == nil || gothUser.UserID == "" {
		return nil, false, common.Invalid("provider", "returned no user id")
	}

	isNewUser := false
	user, err := s.repo.GetUserByProvider(ctx, provider, gothUser.UserID)
	if errors.Is(err, common.ErrUserNotFound) {
		email, emailErr := normalizeEmail(gothUser.Email)
		if emailErr != nil {
			return nil, false, emailErr
		}

		user, err = s.repo.GetUserByEmail(ctx, email)
		switch {
		case errors.Is(err, common.ErrUserNotFound):
			displayName := strings.TrimSpace(gothUser.Name)
			if displayName == "" {
				displayName = strings.Split(email, "@")[0]
			}
			user, err = s.repo.CreateUser(ctx, repository.CreateUserParams{
				Email:          email,
				DisplayName:    displayName,
				Currency:       money.EUR,
				Provider:       &provider,
				ProviderUserID: &gothUser.UserID,
				EmailVerified:  true,
			})
			if err != nil {
				return nil, false, fmt.Errorf("failed to create user: %w", err)
			}
			isNewUser = true
			if err := s.seedCategories(ctx, user.ID); err != nil {
				return nil, false, err
			}
		case err != nil:
			return nil, false, err
		default:
			if err := s.repo.LinkProvider(ctx, user.ID, provider, gothUser.UserID); err != nil {
				return nil, false, fmt.Errorf("failed to link provider: %w", err)
			}
		}
	} else if err != nil {
		return nil, false, err
	}

	tokens, err := s.issueSession(ctx, user, meta)
	if err != nil {
		return nil, false, err
	}

	if err := s.repo.UpdateLastLogin(ctx, user.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to update last login", slog.Any("error", err))
	}

	return &AuthResult{User: user, Tokens: tokens}, isNewUser, nil
}

// CleanupSessions deletes expired and revoked sessions.
func (s *AuthService) CleanupSessions(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpiredSessions(ctx)
}

func (s *AuthService) issueSession(ctx context.Context, user *repository.User, meta SessionMetadata) (*TokenPair, error) {
	tokens, err := s.tokenManager.GenerateTokenPair(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}

	userAgent := meta.UserAgent
	if userAgent == "" {
		userAgent = "unknown"
	}
	clientIP := meta.ClientIP
	if clientIP == "" {
		clientIP = "unknown"
	}

	if err := s.repo.CreateSession(ctx, user.ID, hashToken(tokens.RefreshToken), userAgent, clientIP, s.now().Add(s.sessionTTL)); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (s *AuthService) seedCategories(ctx context.Context, userID uuid.UUID) error {
	if s.seeder == nil {
		return nil
	}
	if err := s.seeder.SeedDefaults(ctx, userID); err != nil {
		return fmt.Errorf("failed to seed default categories: %w", err)
	}
	return nil
}

func (s *AuthService) sendEmailVerification(ctx context.Context, user *repository.User) error {
	token, err := generateOpaqueToken()
	if err != nil {
		return err
	}

	if err := s.repo.CreateEmailToken(ctx, user.ID, hashToken(token), repository.TokenPurposeVerifyEmail, s.now().Add(verificationTokenTTL)); err != nil {
		return err
	}

	s.sendAsync(ctx, "verification", func(ctx context.Context) error {
		return s.emailService.SendVerificationEmail(ctx, user.Email, user.DisplayName, token)
	})
	return nil
}

// sendAsync sends an email off the request path.
func (s *AuthService) sendAsync(ctx context.Context, kind string, send func(context.Context) error) {
	if s.emailService == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := send(ctx); err != nil {
			s.logger.WarnContext(ctx, "failed to send email", slog.String("kind", kind), slog.Any("error", err))
		}
	}()
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", common.Invalid("email", "is not a valid address")
	}
	return email, nil
}
