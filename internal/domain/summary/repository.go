package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

// Bounds are the first and last months a user has transactions or stored
// summaries in. Nil fields mean none.
type Bounds struct {
	FirstTransaction *time.Time
	LastTransaction  *time.Time
	FirstSummary     *time.Time
	LastSummary      *time.Time
}

// Stored is the closing balance of a stored month.
type Stored struct {
	Period       Period
	ClosingCents int64
}

// Repository reads transaction totals and stores monthly summaries.
type Repository interface {
	Bounds(ctx context.Context, userID uuid.UUID) (Bounds, error)
	// Totals groups the user's transactions in [from, to) by month, type
	// and category bucket.
	Totals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Total, error)
	// LastBefore returns the latest stored month before p, nil if none.
	LastBefore(ctx context.Context, userID uuid.UUID, p Period) (*Stored, error)
	Upsert(ctx context.Context, userID uuid.UUID, months []*MonthlySummary) error
	// Locked runs fn in one transaction holding the user's summary lock.
	// The repository passed to fn reads and writes inside that transaction.
	Locked(ctx context.Context, userID uuid.UUID, fn func(repo Repository) error) error
	ListYear(ctx context.Context, userID uuid.UUID, year int) ([]*MonthlySummary, error)
	Get(ctx context.Context, userID uuid.UUID, p Period) (*MonthlySummary, error)
	Years(ctx context.Context, userID uuid.UUID) ([]int, error)
	// ActiveUsers lists users with transactions in [from, to).
	ActiveUsers(ctx context.Context, from, to time.Time) ([]uuid.UUID, error)
}

const selectSummaries = `
	SELECT user_id, year, month, currency, income_cents, expense_cents, net_cents,
	       opening_balance_cents, closing_balance_cents,
	       needs_cents, wants_cents, reserves_cents, investments_cents, uncategorized_cents,
	       target_needs_cents, target_wants_cents, target_reserves_cents, target_investments_cents,
	       transaction_count, updated_at
	FROM monthly_summaries`

// PostgresRepository implements Repository.
type PostgresRepository struct {
	db db.Querier
	// set on the repository handed out by Locked
	locked bool
}

func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func (r *PostgresRepository) Bounds(ctx context.Context, userID uuid.UUID) (Bounds, error) {
	var b Bounds
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT min(occurred_on) FROM transactions WHERE user_id = $1),
			(SELECT max(occurred_on) FROM transactions WHERE user_id = $1),
			(SELECT min(make_date(year, month, 1)) FROM monthly_summaries WHERE user_id = $1),
			(SELECT max(make_date(year, month, 1)) FROM monthly_summaries WHERE user_id = $1)`,
		userID,
	).Scan(&b.FirstTransaction, &b.LastTransaction, &b.FirstSummary, &b.LastSummary)
	if err != nil {
		return Bounds{}, fmt.Errorf("failed to get summary bounds: %w", err)
	}
	return b, nil
}

func (r *PostgresRepository) Totals(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]Total, error) {
	rows, err := r.db.Query(ctx, `
		SELECT EXTRACT(YEAR FROM t.occurred_on)::int, EXTRACT(MONTH FROM t.occurred_on)::int,
		       t.type, c.bucket, sum(t.amount_cents)::bigint, count(*)::int
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.user_id = $1 AND t.occurred_on >= $2 AND t.occurred_on < $3
		GROUP BY 1, 2, 3, 4
		ORDER BY 1, 2`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}
	defer rows.Close()

	var totals []Total
	for rows.Next() {
		var (
			t      Total
			month  int
			txType string
			bucket *string
		)
		if err := rows.Scan(&t.Period.Year, &month, &txType, &bucket, &t.AmountCents, &t.Count); err != nil {
			return nil, fmt.Errorf("failed to scan total: %w", err)
		}
		t.Period.Month = time.Month(month)
		t.Type = transaction.Type(txType)
		if bucket != nil {
			b := budget.Bucket(*bucket)
			t.Bucket = &b
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *PostgresRepository) LastBefore(ctx context.Context, userID uuid.UUID, p Period) (*Stored, error) {
	var (
		s     Stored
		month int
	)
	err := r.db.QueryRow(ctx, `
		SELECT year, month, closing_balance_cents FROM monthly_summaries
		WHERE user_id = $1 AND (year, month) < ($2, $3)
		ORDER BY year DESC, month DESC
		LIMIT 1`,
		userID, p.Year, int(p.Month),
	).Scan(&s.Period.Year, &month, &s.ClosingCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get previous summary: %w", err)
	}
	s.Period.Month = time.Month(month)
	return &s, nil
}

func (r *PostgresRepository) Locked(ctx context.Context, userID uuid.UUID, fn func(repo Repository) error) error {
	if r.locked {
		return fn(r)
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "summary:"+userID.String()); err != nil {
		return fmt.Errorf("failed to lock summaries: %w", err)
	}
	if err := fn(&PostgresRepository{db: tx, locked: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit summaries: %w", err)
	}
	return nil
}

// Upsert writes months keyed by (user, year, month) in one locked transaction.
func (r *PostgresRepository) Upsert(ctx context.Context, userID uuid.UUID, months []*MonthlySummary) error {
	if len(months) == 0 {
		return nil
	}
	if !r.locked {
		return r.Locked(ctx, userID, func(repo Repository) error {
			return repo.Upsert(ctx, userID, months)
		})
	}

	for _, m := range months {
		err := r.db.QueryRow(ctx, `
			INSERT INTO monthly_summaries
				(user_id, year, month, currency, income_cents, expense_cents, net_cents,
				 opening_balance_cents, closing_balance_cents,
				 needs_cents, wants_cents, reserves_cents, investments_cents, uncategorized_cents,
				 target_needs_cents, target_wants_cents, target_reserves_cents, target_investments_cents,
				 transaction_count, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
			ON CONFLICT (user_id, year, month) DO UPDATE SET
				currency = EXCLUDED.currency,
				income_cents = EXCLUDED.income_cents,
				expense_cents = EXCLUDED.expense_cents,
				net_cents = EXCLUDED.net_cents,
				opening_balance_cents = EXCLUDED.opening_balance_cents,
				closing_balance_cents = EXCLUDED.closing_balance_cents,
				needs_cents = EXCLUDED.needs_cents,
				wants_cents = EXCLUDED.wants_cents,
				reserves_cents = EXCLUDED.reserves_cents,
				investments_cents = EXCLUDED.investments_cents,
				uncategorized_cents = EXCLUDED.uncategorized_cents,
				target_needs_cents = EXCLUDED.target_needs_cents,
				target_wants_cents = EXCLUDED.target_wants_cents,
				target_reserves_cents = EXCLUDED.target_reserves_cents,
				target_investments_cents = EXCLUDED.target_investments_cents,
				transaction_count = EXCLUDED.transaction_count,
				updated_at = now()
			RETURNING updated_at`,
			userID, m.Year, int(m.Month), m.Currency, m.IncomeCents, m.ExpenseCents, m.NetCents,
			m.OpeningBalanceCents, m.ClosingBalanceCents,
			m.Spent.NeedsCents, m.Spent.WantsCents, m.Spent.ReservesCents, m.Spent.InvestmentsCents, m.Spent.UncategorizedCents,
			m.Targets.NeedsCents, m.Targets.WantsCents, m.Targets.ReservesCents, m.Targets.InvestmentsCents,
			m.TransactionCount,
		).Scan(&m.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert summary %s: %w", m.Period(), err)
		}
	}
	return nil
}

func scanSummary(row pgx.Row) (*MonthlySummary, error) {
	var (
		m     MonthlySummary
		month int
	)
	err := row.Scan(
		&m.UserID, &m.Year, &month, &m.Currency, &m.IncomeCents, &m.ExpenseCents, &m.NetCents,
		&m.OpeningBalanceCents, &m.ClosingBalanceCents,
		&m.Spent.NeedsCents, &m.Spent.WantsCents, &m.Spent.ReservesCents, &m.Spent.InvestmentsCents, &m.Spent.UncategorizedCents,
		&m.Targets.NeedsCents, &m.Targets.WantsCents, &m.Targets.ReservesCents, &m.Targets.InvestmentsCents,
		&m.TransactionCount, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Month = time.Month(month)
	return &m, nil
}

func (r *PostgresRepository) ListYear(ctx context.Context, userID uuid.UUID, year int) ([]*MonthlySummary, error) {
	rows, err := r.db.Query(ctx, selectSummaries+`
		WHERE user_id = $1 AND year = $2
		ORDER BY month`,
		userID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	defer rows.Close()

	months := make([]*MonthlySummary, 0, 12)
	for rows.Next() {
		m, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		months = append(months, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list summaries: %w", err)
	}
	return months, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID uuid.UUID, p Period) (*MonthlySummary, error) {
	m, err := scanSummary(r.db.QueryRow(ctx, selectSummaries+`
		WHERE user_id = $1 AND year = $2 AND month = $3`,
		userID, p.Year, int(p.Month),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return m, nil
}

func (r *PostgresRepository) Years(ctx context.Context, userID uuid.UUID) ([]int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT year FROM monthly_summaries
		WHERE user_id = $1
		ORDER BY year`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list summary years: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int])
}

func (r *PostgresRepository) ActiveUsers(ctx context.Context, from, to time.Time) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT user_id FROM transactions
		WHERE occurred_on >= $1 AND occurred_on < $2`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active users: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
