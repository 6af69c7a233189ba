// Package e2etest runs statement imports through the real sniffer, parser,
// categorizer and encrypted archive, with only the database replaced.
package e2etest

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"filippo.io/age"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/internal/domain/categorization"
	"github.com/FACorreiaa/split-budget/internal/domain/category"
	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	"github.com/FACorreiaa/split-budget/internal/domain/import/repository"
	"github.com/FACorreiaa/split-budget/internal/domain/import/service"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/config"
	"github.com/FACorreiaa/split-budget/pkg/storage"
)

// cgdStatement mimics a Caixa Geral de Depósitos export: a preamble,
// semicolons, comma decimals, split debit and credit columns and a
// balance footer. The first purchase appears twice.
const cgdStatement = `Consultar saldos e movimentos à ordem - 19-01-2024
Conta ;0123456789012 - EUR - Conta Extracto

Data mov. ;Data valor ;Descrição ;Débito ;Crédito ;Saldo contabilístico ;Saldo disponível ;Categoria
15-01-2024;15-01-2024;COMPRA CONTINENTE LISBOA;45,30;;1.954,70;1.954,70;Alimentação
15-01-2024;15-01-2024;COMPRA CONTINENTE LISBOA;45,30;;1.909,40;1.909,40;Alimentação
16-01-2024;16-01-2024;TRF SALARIO EMPRESA XYZ;;2.000,00;3.909,40;3.909,40;Salário
17-01-2024;17-01-2024;COMPRA FARMACIA CENTRAL;12,50;;3.896,90;3.896,90;Saúde
;;;;;Saldo final;3.896,90;
`

const usStatement = `Date,Description,Amount,Category
01/31/2024,"Netflix, Inc.",-15.99,Entertainment
02/01/2024,Payroll ACME,"3,250.00",Income
02/03/2024,Whole Foods Market,-82.10,Groceries
02/05/2024,Broken row,abc,
,Closing balance,3152.01,
`

type memoryRepo struct {
	mu       sync.Mutex
	currency string
	keys     map[string]bool
	imports  []*repository.Import
	txs      []*transaction.Transaction
}

func newMemoryRepo(currency string) *memoryRepo {
	return &memoryRepo{currency: currency, keys: make(map[string]bool)}
}

func (r *memoryRepo) UserCurrency(context.Context, uuid.UUID) (string, error) {
	return r.currency, nil
}

func (r *memoryRepo) ExistingKeys(_ context.Context, _ uuid.UUID, keys []string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make(map[string]bool)
	for _, k := range keys {
		if r.keys[k] {
			found[k] = true
		}
	}
	return found, nil
}

func (r *memoryRepo) Save(ctx context.Context, imp *repository.Import, txs []*transaction.Transaction) (map[string]bool, error) {
	keys := make([]string, len(txs))
	for i, t := range txs {
		keys[i] = t.DedupKey
	}
	existing, _ := r.ExistingKeys(ctx, imp.UserID, keys)

	r.mu.Lock()
	defer r.mu.Unlock()
	fresh := 0
	for _, t := range txs {
		if existing[t.DedupKey] {
			continue
		}
		r.keys[t.DedupKey] = true
		t.ImportID = &imp.ID
		r.txs = append(r.txs, t)
		fresh++
	}
	imp.RowsImported = fresh
	imp.RowsDuplicate += len(txs) - fresh
	imp.Status = repository.StatusCompleted
	imp.CreatedAt = time.Now()
	r.imports = append(r.imports, imp)
	return existing, nil
}

func (r *memoryRepo) CreateFailed(_ context.Context, imp *repository.Import) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	imp.Status = repository.StatusFailed
	r.imports = append(r.imports, imp)
	return nil
}

func (r *memoryRepo) List(context.Context, uuid.UUID, int, int) ([]*repository.Import, int, error) {
	return r.imports, len(r.imports), nil
}

func (r *memoryRepo) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (*repository.Import, error) {
	for _, imp := range r.imports {
		if imp.ID == id {
			return imp, nil
		}
	}
	return nil, repository.ErrImportNotFound
}

func (r *memoryRepo) Delete(context.Context, uuid.UUID, uuid.UUID) (*time.Time, error) {
	return nil, repository.ErrImportNotFound
}

type staticCategories []*category.Category

func (c staticCategories) List(context.Context, uuid.UUID) ([]*category.Category, error) {
	return c, nil
}

type recordingRecomputer struct {
	calls []string
}

func (r *recordingRecomputer) RecomputeFrom(_ context.Context, _ uuid.UUID, year int, month time.Month) error {
	r.calls = append(r.calls, time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).Format("2006-01"))
	return nil
}

type harness struct {
	svc        *service.ImportService
	repo       *memoryRepo
	store      storage.Storage
	recomputer *recordingRecomputer
	categories map[string]uuid.UUID
}

func newHarness(t *testing.T, currency string) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	needs := budget.BucketNeeds
	groceries := &category.Category{ID: uuid.New(), Name: "Groceries", Kind: category.KindExpense, Bucket: &needs, Keywords: []string{"continente"}}
	health := &category.Category{ID: uuid.New(), Name: "Health", Kind: category.KindExpense, Bucket: &needs, Keywords: []string{"farmacia"}}
	salary := &category.Category{ID: uuid.New(), Name: "Salary", Kind: category.KindIncome, Keywords: []string{"salario", "payroll"}}

	categorizer := categorization.NewService(staticCategories{groceries, health, salary}, logger)
	t.Cleanup(categorizer.Close)

	identity, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	store, err := storage.New(config.StorageConfig{
		LocalPath:    t.TempDir(),
		AgeRecipient: identity.Recipient().String(),
		AgeIdentity:  identity.String(),
	})
	require.NoError(t, err)

	repo := newMemoryRepo(currency)
	rec := &recordingRecomputer{}
	svc := service.NewImportService(repo, categorizer, config.ImportConfig{
		MaxFileSizeBytes: 1 << 20,
		BatchSize:        2,
		DefaultCurrency:  "EUR",
	}, logger).WithStorage(store).WithRecomputer(rec)

	return &harness{
		svc:        svc,
		repo:       repo,
		store:      store,
		recomputer: rec,
		categories: map[string]uuid.UUID{"groceries": groceries.ID, "health": health.ID, "salary": salary.ID},
	}
}

func latin1(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.Windows1252.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func TestCGD_CSVImport(t *testing.T) {
	h := newHarness(t, "EUR")
	ctx := context.Background()
	userID := uuid.New()
	data := latin1(t, cgdStatement)

	t.Run("DryRun", func(t *testing.T) {
		report, err := h.svc.DryRun(ctx, userID, service.Upload{Name: "comprovativo.csv", Reader: bytes.NewReader(data)}, service.DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, "latin-1", report.Encoding)
		assert.Equal(t, ";", report.Delimiter)
		assert.Equal(t, 2, report.HeaderRow)
		assert.Equal(t, parser.LocaleComma, report.Locale)
		assert.Equal(t, parser.DayFirst, report.DateOrder)
		assert.Equal(t, 4, report.RowsTotal)
		assert.Equal(t, 3, report.RowsImported)
		assert.Equal(t, 1, report.RowsDuplicate)
		assert.Equal(t, 1, report.RowsSkipped)
		assert.Empty(t, h.repo.txs)
	})

	t.Run("Import", func(t *testing.T) {
		report, err := h.svc.ImportStatement(ctx, userID, service.Upload{Name: "comprovativo.csv", Reader: bytes.NewReader(data)}, service.DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, repository.StatusCompleted, report.Status)
		assert.Equal(t, 3, report.RowsImported)
		assert.Equal(t, 1, report.RowsDuplicate)
		assert.Equal(t, 0, report.RowsFailed)
		assert.Equal(t, []string{"2024-01"}, h.recomputer.calls)

		require.Len(t, h.repo.txs, 3)
		byDescription := make(map[string]*transaction.Transaction)
		for _, tx := range h.repo.txs {
			byDescription[tx.Description] = tx
		}

		grocery := byDescription["COMPRA CONTINENTE LISBOA"]
		require.NotNil(t, grocery)
		assert.Equal(t, transaction.TypeExpense, grocery.Type)
		assert.Equal(t, int64(4530), grocery.AmountCents)
		assert.Equal(t, "EUR", grocery.Currency)
		assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), grocery.OccurredOn)
		require.NotNil(t, grocery.CategoryID)
		assert.Equal(t, h.categories["groceries"], *grocery.CategoryID)

		pay := byDescription["TRF SALARIO EMPRESA XYZ"]
		require.NotNil(t, pay)
		assert.Equal(t, transaction.TypeIncome, pay.Type)
		assert.Equal(t, int64(200000), pay.AmountCents)
		require.NotNil(t, pay.CategoryID)
		assert.Equal(t, h.categories["salary"], *pay.CategoryID)

		pharmacy := byDescription["COMPRA FARMACIA CENTRAL"]
		require.NotNil(t, pharmacy)
		require.NotNil(t, pharmacy.CategoryID)
		assert.Equal(t, h.categories["health"], *pharmacy.CategoryID)
	})

	t.Run("ArchiveIsEncrypted", func(t *testing.T) {
		require.Len(t, h.repo.imports, 1)
		key := h.repo.imports[0].FileKey
		require.NotEmpty(t, key)

		rc, err := h.store.Get(ctx, key)
		require.NoError(t, err)
		defer rc.Close()
		plain, err := io.ReadAll(rc)
		require.NoError(t, err)
		assert.Equal(t, data, plain)
	})

	t.Run("ReimportIsAllDuplicates", func(t *testing.T) {
		report, err := h.svc.ImportStatement(ctx, userID, service.Upload{Name: "comprovativo.csv", Reader: bytes.NewReader(data)}, service.DefaultOptions())
		require.NoError(t, err)

		assert.Equal(t, 0, report.RowsImported)
		assert.Equal(t, 4, report.RowsDuplicate)
		assert.Len(t, h.repo.txs, 3)
		assert.Len(t, h.recomputer.calls, 1)
		for _, row := range report.Rows {
			assert.Equal(t, service.RowDuplicate, row.Status)
		}
	})
}

func TestUS_CSVImport(t *testing.T) {
	h := newHarness(t, "USD")
	ctx := context.Background()

	report, err := h.svc.ImportStatement(ctx, uuid.New(), service.Upload{Name: "checking.csv", Reader: strings.NewReader(usStatement)}, service.DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, "utf-8", report.Encoding)
	assert.Equal(t, ",", report.Delimiter)
	assert.Equal(t, 0, report.HeaderRow)
	assert.Equal(t, parser.LocaleDot, report.Locale)
	assert.Equal(t, parser.MonthFirst, report.DateOrder)
	assert.Equal(t, "USD", report.Currency)
	assert.Equal(t, 4, report.RowsTotal)
	assert.Equal(t, 3, report.RowsImported)
	assert.Equal(t, 1, report.RowsFailed)
	assert.Equal(t, 1, report.RowsSkipped)
	require.Len(t, report.Errors, 1)
	assert.Equal(t, "amount", report.Errors[0].Column)

	require.Len(t, report.Rows, 3)
	assert.Equal(t, "2024-01-31", report.Rows[0].Date)
	assert.Equal(t, "Netflix, Inc.", report.Rows[0].Description)
	assert.Equal(t, int64(1599), report.Rows[0].AmountCents)
	assert.Equal(t, transaction.TypeExpense, report.Rows[0].Type)

	assert.Equal(t, int64(325000), report.Rows[1].AmountCents)
	assert.Equal(t, transaction.TypeIncome, report.Rows[1].Type)
	require.NotNil(t, report.Rows[1].CategoryID)
	assert.Equal(t, h.categories["salary"], *report.Rows[1].CategoryID)

	assert.Equal(t, []string{"2024-01"}, h.recomputer.calls)
}

func TestUnreadableStatementIsRecordedAsFailed(t *testing.T) {
	h := newHarness(t, "EUR")

	_, err := h.svc.ImportStatement(context.Background(), uuid.New(), service.Upload{Name: "notes.csv", Reader: strings.NewReader("just some text\nwith no columns\n")}, service.DefaultOptions())
	require.Error(t, err)

	require.Len(t, h.repo.imports, 1)
	assert.Equal(t, repository.StatusFailed, h.repo.imports[0].Status)
	assert.Empty(t, h.repo.txs)
	assert.Empty(t, h.recomputer.calls)
}
