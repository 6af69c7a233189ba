package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

var _ AuthRepository = (*PostgresAuthRepository)(nil)

const userColumns = `id, email, COALESCE(password_hash, ''), display_name, currency, provider,
	provider_user_id, email_verified_at, last_login_at, created_at, updated_at`

// PostgresAuthRepository implements AuthRepository on PostgreSQL.
type PostgresAuthRepository struct {
	db db.Querier
}

func NewPostgresAuthRepository(q db.Querier) *PostgresAuthRepository {
	return &PostgresAuthRepository{db: q}
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.DisplayName, &u.Currency, &u.Provider,
		&u.ProviderUserID, &u.EmailVerifiedAt, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresAuthRepository) CreateUser(ctx context.Context, params CreateUserParams) (*User, error) {
	var passwordHash *string
	if params.PasswordHash != "" {
		passwordHash = &params.PasswordHash
	}

	query := `
		INSERT INTO users (email, password_hash, display_name, currency, provider, provider_user_id, email_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6, CASE WHEN $7::boolean THEN now() END)
		RETURNING ` + userColumns

	user, err := scanUser(r.db.QueryRow(ctx, query,
		strings.TrimSpace(params.Email),
		passwordHash,
		params.DisplayName,
		params.Currency,
		params.Provider,
		params.ProviderUserID,
		params.EmailVerified,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, common.ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

func (r *PostgresAuthRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *PostgresAuthRepository) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		strings.TrimSpace(email),
	))
}

func (r *PostgresAuthRepository) GetUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error) {
	return scanUser(r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE provider = $1 AND provider_user_id = $2`,
		provider, providerUserID,
	))
}

func (r *PostgresAuthRepository) LinkProvider(ctx context.Context, userID uuid.UUID, provider, providerUserID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET provider = $2, provider_user_id = $3,
			email_verified_at = COALESCE(email_verified_at, now()), updated_at = now()
		WHERE id = $1`,
		userID, provider, providerUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to link provider: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func (r *PostgresAuthRepository) ListUserIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("failed to scan user ids: %w", err)
	}
	return ids, nil
}

func (r *PostgresAuthRepository) UpdateLastLogin(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE users SET last_login_at = now() WHERE id = $1`, userID)
	return err
}

func (r *PostgresAuthRepository) UpdatePassword(ctx context.Context, userID uuid.UUID, passwordHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE users SET password_hash = $2, updated_at = now() WHERE id = $1`,
		userID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrUserNotFound
	}
	return nil
}

func (r *PostgresAuthRepository) MarkEmailVerified(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, now()), updated_at = now() WHERE id = $1`,
		userID,
	)
	return err
}

func (r *PostgresAuthRepository) CreateSession(ctx context.Context, userID uuid.UUID, tokenHash, userAgent, clientIP string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_sessions (user_id, refresh_token_hash, user_agent, client_ip, expires_at)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, tokenHash, userAgent, clientIP, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepository) GetActiveSession(ctx context.Context, tokenHash string) (*Session, error) {
	var s Session
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, user_agent, client_ip, expires_at, created_at
		FROM user_sessions
		WHERE refresh_token_hash = $1 AND revoked_at IS NULL AND expires_at > now()`,
		tokenHash,
	).Scan(&s.ID, &s.UserID, &s.UserAgent, &s.ClientIP, &s.ExpiresAt, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &s, nil
}

func (r *PostgresAuthRepository) RevokeSession(ctx context.Context, tokenHash string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = now() WHERE refresh_token_hash = $1 AND revoked_at IS NULL`,
		tokenHash,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrSessionNotFound
	}
	return nil
}

func (r *PostgresAuthRepository) RevokeAllSessions(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_sessions SET revoked_at = now() WHERE user_id = $1 AND revoked_at IS NULL`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}

func (r *PostgresAuthRepository) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM user_sessions
		WHERE expires_at < now() OR revoked_at < now() - interval '7 days'`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresAuthRepository) CreateEmailToken(ctx context.Context, userID uuid.UUID, tokenHash, purpose string, expiresAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO email_tokens (user_id, token_hash, purpose, expires_at)
		VALUES ($1, $2, $3, $4)`,
		userID, tokenHash, purpose, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email token: %w", err)
	}
	return nil
}

// ConsumeEmailToken marks a token used and returns its owner. Expired, used
// or unknown tokens yield common.ErrTokenInvalid.
func (r *PostgresAuthRepository) ConsumeEmailToken(ctx context.Context, tokenHash, purpose string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.db.QueryRow(ctx, `
		UPDATE email_tokens SET used_at = now()
		WHERE token_hash = $1 AND purpose = $2 AND used_at IS NULL AND expires_at > now()
		RETURNING user_id`,
		tokenHash, purpose,
	).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, common.ErrTokenInvalid
		}
		return uuid.Nil, fmt.Errorf("failed to consume email token: %w", err)
	}
	return userID, nil
}
