// Package repository persists statement imports and their transactions.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/db"
)

var ErrImportNotFound = fmt.Errorf("import %w", common.ErrNotFound)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

const (
	FileTypeCSV  = "csv"
	FileTypeXLSX = "xlsx"
)

// Import is the record of one uploaded statement.
type Import struct {
	ID            uuid.UUID         `json:"id"`
	UserID        uuid.UUID         `json:"-"`
	FileName      string            `json:"file_name"`
	FileKey       string            `json:"-"`
	FileType      string            `json:"file_type"`
	Status        Status            `json:"status"`
	Locale        string            `json:"locale"`
	Delimiter     string            `json:"delimiter,omitempty"`
	RowsTotal     int               `json:"rows_total"`
	RowsImported  int               `json:"rows_imported"`
	RowsDuplicate int               `json:"rows_duplicate"`
	RowsFailed    int               `json:"rows_failed"`
	Errors        []parser.RowError `json:"errors"`
	CreatedAt     time.Time         `json:"created_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
}

// ImportRepository stores imports.
type ImportRepository interface {
	UserCurrency(ctx context.Context, userID uuid.UUID) (string, error)
	// ExistingKeys returns which of keys the user already has transactions for.
	ExistingKeys(ctx context.Context, userID uuid.UUID, keys []string) (map[string]bool, error)
	// Save stores imp together with the transactions whose dedup key the
	// user does not have yet, under a per-user lock. imp.RowsImported and
	// imp.RowsDuplicate are updated and the keys found in the database are
	// returned.
	Save(ctx context.Context, imp *Import, txs []*transaction.Transaction) (map[string]bool, error)
	// CreateFailed records an import that could not be processed.
	CreateFailed(ctx context.Context, imp *Import) error
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Import, int, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*Import, error)
	// Delete removes the import and its transactions, returning the earliest
	// date among them (nil when it had none).
	Delete(ctx context.Context, userID, id uuid.UUID) (*time.Time, error)
}

var transactionColumns = []string{
	"user_id", "category_id", "type", "amount_cents", "currency", "description",
	"occurred_on", "notes", "source", "import_id", "dedup_key",
}

const selectImports = `
	SELECT id, user_id, file_name, file_key, file_type, status, locale, delimiter,
	       rows_total, rows_imported, rows_duplicate, rows_failed, row_errors, created_at, finished_at`

// PostgresImportRepository implements ImportRepository.
type PostgresImportRepository struct {
	db db.Querier
}

func NewPostgresImportRepository(q db.Querier) *PostgresImportRepository {
	return &PostgresImportRepository{db: q}
}

func (r *PostgresImportRepository) UserCurrency(ctx context.Context, userID uuid.UUID) (string, error) {
	var currency string
	err := r.db.QueryRow(ctx, `SELECT currency FROM users WHERE id = $1`, userID).Scan(&currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", common.ErrUserNotFound
		}
		return "", fmt.Errorf("failed to get user currency: %w", err)
	}
	return currency, nil
}

func (r *PostgresImportRepository) ExistingKeys(ctx context.Context, userID uuid.UUID, keys []string) (map[string]bool, error) {
	return existingKeys(ctx, r.db, userID, keys)
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func existingKeys(ctx context.Context, q queryer, userID uuid.UUID, keys []string) (map[string]bool, error) {
	found := make(map[string]bool)
	if len(keys) == 0 {
		return found, nil
	}
	rows, err := q.Query(ctx, `
		SELECT DISTINCT dedup_key FROM transactions
		WHERE user_id = $1 AND dedup_key = ANY($2)`,
		userID, keys,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up dedup keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan dedup key: %w", err)
		}
		found[key] = true
	}
	return found, rows.Err()
}

func (r *PostgresImportRepository) Save(ctx context.Context, imp *Import, txs []*transaction.Transaction) (map[string]bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "import:"+imp.UserID.String()); err != nil {
		return nil, fmt.Errorf("failed to lock imports: %w", err)
	}

	keys := make([]string, len(txs))
	for i, t := range txs {
		keys[i] = t.DedupKey
	}
	existing, err := existingKeys(ctx, tx, imp.UserID, keys)
	if err != nil {
		return nil, err
	}

	fresh := make([]*transaction.Transaction, 0, len(txs))
	for _, t := range txs {
		if !existing[t.DedupKey] {
			fresh = append(fresh, t)
		}
	}
	imp.RowsImported = len(fresh)
	imp.RowsDuplicate += len(txs) - len(fresh)
	imp.Status = StatusCompleted

	if err := insertImport(ctx, tx, imp); err != nil {
		return nil, err
	}

	if len(fresh) > 0 {
		n, err := tx.CopyFrom(ctx, pgx.Identifier{"transactions"}, transactionColumns,
			pgx.CopyFromSlice(len(fresh), func(i int) ([]any, error) {
				t := fresh[i]
				return []any{
					t.UserID, t.CategoryID, string(t.Type), t.AmountCents, t.Currency, t.Description,
					t.OccurredOn, t.Notes, string(transaction.SourceImport), imp.ID, t.DedupKey,
				}, nil
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert transactions: %w", err)
		}
		if int(n) != len(fresh) {
			return nil, fmt.Errorf("inserted %d of %d transactions", n, len(fresh))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit import: %w", err)
	}
	return existing, nil
}

func (r *PostgresImportRepository) CreateFailed(ctx context.Context, imp *Import) error {
	imp.Status = StatusFailed
	return insertImport(ctx, r.db, imp)
}

type rowQueryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertImport(ctx context.Context, q rowQueryer, imp *Import) error {
	errs := imp.Errors
	if errs == nil {
		errs = []parser.RowError{}
	}
	rowErrors, err := json.Marshal(errs)
	if err != nil {
		return fmt.Errorf("failed to encode row errors: %w", err)
	}

	err = q.QueryRow(ctx, `
		INSERT INTO imports
			(id, user_id, file_name, file_key, file_type, status, locale, delimiter,
			 rows_total, rows_imported, rows_duplicate, rows_failed, row_errors, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
		RETURNING created_at, finished_at`,
		imp.ID, imp.UserID, imp.FileName, imp.FileKey, imp.FileType, string(imp.Status), imp.Locale, imp.Delimiter,
		imp.RowsTotal, imp.RowsImported, imp.RowsDuplicate, imp.RowsFailed, rowErrors,
	).Scan(&imp.CreatedAt, &imp.FinishedAt)
	if err != nil {
		return fmt.Errorf("failed to create import: %w", err)
	}
	return nil
}

func scanImport(row pgx.Row, extra ...any) (*Import, error) {
	var (
		imp       Import
		status    string
		rowErrors []byte
	)
	dest := []any{
		&imp.ID, &imp.UserID, &imp.FileName, &imp.FileKey, &imp.FileType, &status, &imp.Locale, &imp.Delimiter,
		&imp.RowsTotal, &imp.RowsImported, &imp.RowsDuplicate, &imp.RowsFailed, &rowErrors,
		&imp.CreatedAt, &imp.FinishedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	imp.Status = Status(status)
	imp.Errors = []parser.RowError{}
	if len(rowErrors) > 0 {
		if err := json.Unmarshal(rowErrors, &imp.Errors); err != nil {
			return nil, fmt.Errorf("failed to decode row errors: %w", err)
		}
	}
	return &imp, nil
}

func (r *PostgresImportRepository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Import, int, error) {
	rows, err := r.db.Query(ctx, selectImports+`, count(*) OVER ()
		FROM imports
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	var (
		imports = make([]*Import, 0)
		total   int
	)
	for rows.Next() {
		imp, err := scanImport(rows, &total)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan import: %w", err)
		}
		imports = append(imports, imp)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list imports: %w", err)
	}

	// an offset past the end yields no rows to carry the window count
	if len(imports) == 0 && offset > 0 {
		if err := r.db.QueryRow(ctx, `SELECT count(*) FROM imports WHERE user_id = $1`, userID).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count imports: %w", err)
		}
	}
	return imports, total, nil
}

func (r *PostgresImportRepository) Get(ctx context.Context, userID, id uuid.UUID) (*Import, error) {
	imp, err := scanImport(r.db.QueryRow(ctx, selectImports+`
		FROM imports
		WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrImportNotFound
		}
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return imp, nil
}

func (r *PostgresImportRepository) Delete(ctx context.Context, userID, id uuid.UUID) (*time.Time, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var earliest *time.Time
	if err := tx.QueryRow(ctx, `
		SELECT min(occurred_on) FROM transactions
		WHERE import_id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&earliest); err != nil {
		return nil, fmt.Errorf("failed to find import range: %w", err)
	}

	// transactions go with the import row through ON DELETE CASCADE
	tag, err := tx.Exec(ctx, `DELETE FROM imports WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrImportNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit import delete: %w", err)
	}
	return earliest, nil
}
