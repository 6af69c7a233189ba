package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

// Repository reads and stores budget rules.
type Repository interface {
	// GetRule returns the stored rule or the default one in the user's currency.
	GetRule(ctx context.Context, userID uuid.UUID) (*Rule, error)
	UpsertRule(ctx context.Context, rule *Rule) (*Rule, error)
}

// PostgresRepository implements Repository.
type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository creates a new budget rule repository
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) GetRule(ctx context.Context, userID uuid.UUID) (*Rule, error) {
	var (
		currency                        string
		needs, wants, reserves, invests *int16
		updatedAt                       *time.Time
	)
	err := r.db.QueryRow(ctx, `
		SELECT u.currency, b.needs_pct, b.wants_pct, b.reserves_pct, b.investments_pct, b.updated_at
		FROM users u
		LEFT JOIN budget_rules b ON b.user_id = u.id
		WHERE u.id = $1`,
		userID,
	).Scan(&currency, &needs, &wants, &reserves, &invests, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get budget rule: %w", err)
	}

	if needs == nil {
		return DefaultRule(userID, currency), nil
	}
	return &Rule{
		UserID:         userID,
		NeedsPct:       int(*needs),
		WantsPct:       int(*wants),
		ReservesPct:    int(*reserves),
		InvestmentsPct: int(*invests),
		Currency:       currency,
		UpdatedAt:      *updatedAt,
	}, nil
}

func (r *PostgresRepository) UpsertRule(ctx context.Context, rule *Rule) (*Rule, error) {
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, `
		INSERT INTO budget_rules (user_id, needs_pct, wants_pct, reserves_pct, investments_pct)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			needs_pct = EXCLUDED.needs_pct,
			wants_pct = EXCLUDED.wants_pct,
			reserves_pct = EXCLUDED.reserves_pct,
			investments_pct = EXCLUDED.investments_pct,
			updated_at = now()
		RETURNING updated_at`,
		rule.UserID, rule.NeedsPct, rule.WantsPct, rule.ReservesPct, rule.InvestmentsPct,
	).Scan(&updatedAt)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return nil, common.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to save budget rule: %w", err)
	}

	saved := *rule
	saved.IsDefault = false
	saved.UpdatedAt = updatedAt
	return &saved, nil
}
