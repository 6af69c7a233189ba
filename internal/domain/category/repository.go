package category

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

// ErrCategoryNotFound is returned for unknown ids or categories of another user.
var ErrCategoryNotFound = fmt.Errorf("category %w", common.ErrNotFound)

// ErrDuplicateName is returned when the user already has a category with the name.
var ErrDuplicateName = fmt.Errorf("a category with this name already exists: %w", common.ErrConflict)

// Repository persists categories.
type Repository interface {
	List(ctx context.Context, userID uuid.UUID) ([]*Category, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Category, error)
	Create(ctx context.Context, c *Category) (*Category, error)
	// CreateMany inserts categories, skipping names the user already has.
	CreateMany(ctx context.Context, userID uuid.UUID, cs []*Category) (int, error)
	Update(ctx context.Context, c *Category) (*Category, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
	// EarliestTransaction returns the date of the oldest transaction in the
	// category, or nil when it has none.
	EarliestTransaction(ctx context.Context, userID, id uuid.UUID) (*time.Time, error)
}

const categoryColumns = `id, user_id, name, kind, bucket, keywords, color, created_at, updated_at`

// PostgresRepository implements Repository.
type PostgresRepository struct {
	db db.Querier
}

func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

func scanCategory(row pgx.Row) (*Category, error) {
	var (
		c      Category
		kind   string
		bucket *string
	)
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &kind, &bucket, &c.Keywords, &c.Color, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.Kind = Kind(kind)
	if bucket != nil {
		b := budget.Bucket(*bucket)
		c.Bucket = &b
	}
	if c.Keywords == nil {
		c.Keywords = []string{}
	}
	return &c, nil
}

func bucketArg(b *budget.Bucket) *string {
	if b == nil {
		return nil
	}
	s := string(*b)
	return &s
}

func (r *PostgresRepository) List(ctx context.Context, userID uuid.UUID) ([]*Category, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 ORDER BY kind DESC, lower(name)`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Get(ctx context.Context, userID, id uuid.UUID) (*Category, error) {
	c, err := scanCategory(r.db.QueryRow(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

func (r *PostgresRepository) Create(ctx context.Context, c *Category) (*Category, error) {
	created, err := scanCategory(r.db.QueryRow(ctx, `
		INSERT INTO categories (user_id, name, kind, bucket, keywords, color)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+categoryColumns,
		c.UserID, c.Name, string(c.Kind), bucketArg(c.Bucket), c.Keywords, c.Color,
	))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) CreateMany(ctx context.Context, userID uuid.UUID, cs []*Category) (int, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created := 0
	for _, c := range cs {
		tag, err := tx.Exec(ctx, `
			INSERT INTO categories (user_id, name, kind, bucket, keywords, color)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (user_id, lower(name)) DO NOTHING`,
			userID, c.Name, string(c.Kind), bucketArg(c.Bucket), c.Keywords, c.Color,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to create category %q: %w", c.Name, err)
		}
		created += int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit categories: %w", err)
	}
	return created, nil
}

func (r *PostgresRepository) Update(ctx context.Context, c *Category) (*Category, error) {
	updated, err := scanCategory(r.db.QueryRow(ctx, `
		UPDATE categories
		SET name = $3, kind = $4, bucket = $5, keywords = $6, color = $7, updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+categoryColumns,
		c.ID, c.UserID, c.Name, string(c.Kind), bucketArg(c.Bucket), c.Keywords, c.Color,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCategoryNotFound
		}
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateName
		}
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	return updated, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (r *PostgresRepository) EarliestTransaction(ctx context.Context, userID, id uuid.UUID) (*time.Time, error) {
	var earliest *time.Time
	err := r.db.QueryRow(ctx,
		`SELECT min(occurred_on) FROM transactions WHERE user_id = $1 AND category_id = $2`,
		userID, id,
	).Scan(&earliest)
	if err != nil {
		return nil, fmt.Errorf("failed to find category transactions: %w", err)
	}
	return earliest, nil
}
