package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

// ErrTransactionNotFound is returned for unknown ids or transactions of another user.
var ErrTransactionNotFound = fmt.Errorf("transaction %w", common.ErrNotFound)

// Repository persists transactions.
type Repository interface {
	Create(ctx context.Context, t *Transaction) (uuid.UUID, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Transaction, error)
	Update(ctx context.Context, t *Transaction) error
	Delete(ctx context.Context, userID, id uuid.UUID) error
	List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Transaction, int, error)
	UserCurrency(ctx context.Context, userID uuid.UUID) (string, error)
}

const selectTransactions = `
	SELECT t.id, t.user_id, t.category_id, c.name, c.bucket, t.type, t.amount_cents, t.currency,
	       t.description, t.occurred_on, t.notes, t.source, t.import_id, t.dedup_key,
	       t.created_at, t.updated_at`

// PostgresRepository implements Repository.
type PostgresRepository struct {
	db db.Querier
}

func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func scanTransaction(row pgx.Row, extra ...any) (*Transaction, error) {
	var (
		t          Transaction
		bucket     *string
		txType     string
		source     string
		occurredOn time.Time
	)
	dest := []any{
		&t.ID, &t.UserID, &t.CategoryID, &t.CategoryName, &bucket, &txType, &t.AmountCents, &t.Currency,
		&t.Description, &occurredOn, &t.Notes, &source, &t.ImportID, &t.DedupKey,
		&t.CreatedAt, &t.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	t.Type = Type(txType)
	t.Source = Source(source)
	t.OccurredOn = Date(occurredOn)
	if bucket != nil {
		b := budget.Bucket(*bucket)
		t.Bucket = &b
	}
	return &t, nil
}

func (r *PostgresRepository) Create(ctx context.Context, t *Transaction) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, `
		INSERT INTO transactions
			(user_id, category_id, type, amount_cents, currency, description, occurred_on, notes, source, import_id, dedup_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		t.UserID, t.CategoryID, string(t.Type), t.AmountCents, t.Currency, t.Description,
		t.OccurredOn, t.Notes, string(t.Source), t.ImportID, t.DedupKey,
	).Scan(&id)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return uuid.Nil, common.Invalid("category_id", "unknown category")
		}
		return uuid.Nil, fmt.Errorf("failed to create transaction: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id uuid.UUID) (*Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, selectTransactions+`
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE t.id = $1 AND t.user_id = $2`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

func (r *PostgresRepository) Update(ctx context.Context, t *Transaction) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE transactions
		SET category_id = $3, type = $4, amount_cents = $5, currency = $6, description = $7,
		    occurred_on = $8, notes = $9, dedup_key = $10, updated_at = now()
		WHERE id = $1 AND user_id = $2`,
		t.ID, t.UserID, t.CategoryID, string(t.Type), t.AmountCents, t.Currency, t.Description,
		t.OccurredOn, t.Notes, t.DedupKey,
	)
	if err != nil {
		if db.IsForeignKeyViolation(err) {
			return common.Invalid("category_id", "unknown category")
		}
		return fmt.Errorf("failed to update transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// List returns one page of matching transactions, newest first, and the
// total number of matches. A Limit of zero returns every match.
func (r *PostgresRepository) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Transaction, int, error) {
	where, args := buildFilter(userID, f)
	countArgs := args

	query := selectTransactions + `, count(*) OVER ()
		FROM transactions t
		LEFT JOIN categories c ON c.id = t.category_id
		WHERE ` + where + `
		ORDER BY t.occurred_on DESC, t.id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var (
		out   []*Transaction
		total int64
	)
	for rows.Next() {
		t, err := scanTransaction(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	// an offset past the end yields no rows to carry the window count
	if len(out) == 0 && f.Limit > 0 && f.Offset > 0 {
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM transactions t WHERE `+where, countArgs...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
		}
	}
	return out, int(total), nil
}

func (r *PostgresRepository) UserCurrency(ctx context.Context, userID uuid.UUID) (string, error) {
	var currency string
	if err := r.db.QueryRow(ctx, `SELECT currency FROM users WHERE id = $1`, userID).Scan(&currency); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", common.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to get user currency: %w", err)
	}
	return currency, nil
}

func buildFilter(userID uuid.UUID, f Filter) (string, []any) {
	conds := []string{"t.user_id = $1"}
	args := []any{userID}
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.From != nil {
		add("t.occurred_on >= $%d", *f.From)
	}
	if f.To != nil {
		add("t.occurred_on <= $%d", *f.To)
	}
	switch {
	case f.Uncategorized:
		conds = append(conds, "t.category_id IS NULL")
	case f.CategoryID != nil:
		add("t.category_id = $%d", *f.CategoryID)
	}
	if f.Type != nil {
		add("t.type = $%d", string(*f.Type))
	}
	if f.ImportID != nil {
		add("t.import_id = $%d", *f.ImportID)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		args = append(args, "%"+escapeLike(text)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(t.description ILIKE $%d OR t.notes ILIKE $%d)", n, n))
	}
	return strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
