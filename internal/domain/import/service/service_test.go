package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	"github.com/FACorreiaa/split-budget/internal/domain/import/repository"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/config"
	"github.com/FACorreiaa/split-budget/pkg/storage"
)

const portugueseStatement = "Extrato de conta\n" +
	"Conta;PT50 0000\n" +
	"Data Mov.;Data Valor;Descrição;Montante;Saldo\n" +
	"02-01-2024;02-01-2024;COMPRA CONTINENTE LISBOA;-45,20;1.000,00\n" +
	"05-01-2024;05-01-2024;SALARIO ACME;2.500,00;3.454,80\n" +
	"05-01-2024;05-01-2024;SALARIO ACME;2.500,00;5.954,80\n" +
	"07-01-2024;07-01-2024;NETFLIX.COM;abc;0\n" +
	";;Saldo final;;5.954,80\n"

type fakeRepo struct {
	keys     map[string]bool
	imports  map[uuid.UUID]*repository.Import
	saved    []*transaction.Transaction
	failed   []*repository.Import
	saveErr  error
	currency string
	earliest *time.Time
	deleted  []uuid.UUID
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{keys: map[string]bool{}, imports: map[uuid.UUID]*repository.Import{}, currency: "EUR"}
}

func (f *fakeRepo) UserCurrency(context.Context, uuid.UUID) (string, error) {
	return f.currency, nil
}

func (f *fakeRepo) ExistingKeys(_ context.Context, _ uuid.UUID, keys []string) (map[string]bool, error) {
	found := map[string]bool{}
	for _, k := range keys {
		if f.keys[k] {
			found[k] = true
		}
	}
	return found, nil
}

func (f *fakeRepo) Save(ctx context.Context, imp *repository.Import, txs []*transaction.Transaction) (map[string]bool, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	keys := make([]string, len(txs))
	for i, t := range txs {
		keys[i] = t.DedupKey
	}
	existing, _ := f.ExistingKeys(ctx, imp.UserID, keys)
	fresh := 0
	for _, t := range txs {
		if existing[t.DedupKey] {
			continue
		}
		fresh++
		f.saved = append(f.saved, t)
		f.keys[t.DedupKey] = true
	}
	imp.RowsImported = fresh
	imp.RowsDuplicate += len(txs) - fresh
	imp.Status = repository.StatusCompleted
	f.imports[imp.ID] = imp
	return existing, nil
}

func (f *fakeRepo) CreateFailed(_ context.Context, imp *repository.Import) error {
	imp.Status = repository.StatusFailed
	f.failed = append(f.failed, imp)
	return nil
}

func (f *fakeRepo) List(context.Context, uuid.UUID, int, int) ([]*repository.Import, int, error) {
	out := make([]*repository.Import, 0, len(f.imports))
	for _, imp := range f.imports {
		out = append(out, imp)
	}
	return out, len(out), nil
}

func (f *fakeRepo) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (*repository.Import, error) {
	imp, ok := f.imports[id]
	if !ok {
		return nil, repository.ErrImportNotFound
	}
	return imp, nil
}

func (f *fakeRepo) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) (*time.Time, error) {
	if _, ok := f.imports[id]; !ok {
		return nil, repository.ErrImportNotFound
	}
	delete(f.imports, id)
	f.deleted = append(f.deleted, id)
	return f.earliest, nil
}

// fakeCategorizer assigns a category when the description contains a keyword.
type fakeCategorizer struct {
	mu       sync.Mutex
	keywords map[string]uuid.UUID
	calls    []string
	err      error
}

func (f *fakeCategorizer) Categorize(_ context.Context, _ uuid.UUID, description string, _ int64) (*uuid.UUID, float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, description)
	if f.err != nil {
		return nil, 0, f.err
	}
	for kw, id := range f.keywords {
		if strings.Contains(strings.ToUpper(description), kw) {
			id := id
			return &id, 1, nil
		}
	}
	return nil, 0, nil
}

type recompute struct {
	year  int
	month time.Month
}

type fakeRecomputer struct {
	calls []recompute
}

func (f *fakeRecomputer) RecomputeFrom(_ context.Context, _ uuid.UUID, year int, month time.Month) error {
	f.calls = append(f.calls, recompute{year, month})
	return nil
}

type fixture struct {
	svc        *ImportService
	repo       *fakeRepo
	cat        *fakeCategorizer
	recomputer *fakeRecomputer
	store      *storage.LocalStorage
	dir        string
	groceries  uuid.UUID
	salary     uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)

	f := &fixture{
		repo:       newFakeRepo(),
		recomputer: &fakeRecomputer{},
		store:      store,
		dir:        dir,
		groceries:  uuid.New(),
		salary:     uuid.New(),
	}
	f.cat = &fakeCategorizer{keywords: map[string]uuid.UUID{"CONTINENTE": f.groceries, "SALARIO": f.salary}}
	cfg := config.ImportConfig{MaxFileSizeBytes: 1 << 20, BatchSize: 2, DefaultCurrency: "EUR"}
	f.svc = NewImportService(f.repo, f.cat, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))).
		WithStorage(store).
		WithRecomputer(f.recomputer)
	return f
}

func upload(name, content string) Upload {
	return Upload{Name: name, Reader: strings.NewReader(content)}
}

func TestImportStatement(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	existing := transaction.DedupKey(userID, -4520, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "compra continente lisboa")
	f.repo.keys[existing] = true

	report, err := f.svc.ImportStatement(ctx, userID, upload("extrato.csv", portugueseStatement), DefaultOptions())
	require.NoError(t, err)

	require.NotNil(t, report.ImportID)
	assert.Equal(t, repository.StatusCompleted, report.Status)
	assert.Equal(t, repository.FileTypeCSV, report.FileType)
	assert.Equal(t, ";", report.Delimiter)
	assert.Equal(t, 2, report.HeaderRow)
	assert.Equal(t, parser.LocaleComma, report.Locale)
	assert.Equal(t, parser.DayFirst, report.DateOrder)
	assert.Equal(t, "EUR", report.Currency)

	assert.Equal(t, 4, report.RowsTotal)
	assert.Equal(t, 1, report.RowsImported)
	assert.Equal(t, 2, report.RowsDuplicate)
	assert.Equal(t, 1, report.RowsFailed)
	assert.Equal(t, 1, report.RowsSkipped)
	assert.Equal(t, report.RowsTotal, report.RowsImported+report.RowsDuplicate+report.RowsFailed)

	require.Len(t, report.Errors, 1)
	assert.Equal(t, 7, report.Errors[0].Row)
	assert.Equal(t, "amount", report.Errors[0].Column)

	require.Len(t, report.Rows, 3)
	assert.Equal(t, RowDuplicate, report.Rows[0].Status)
	assert.Equal(t, RowNew, report.Rows[1].Status)
	assert.Equal(t, RowDuplicate, report.Rows[2].Status)

	require.Len(t, f.repo.saved, 1)
	tx := f.repo.saved[0]
	assert.Equal(t, transaction.TypeIncome, tx.Type)
	assert.Equal(t, int64(250000), tx.AmountCents)
	assert.Equal(t, "EUR", tx.Currency)
	assert.Equal(t, "SALARIO ACME", tx.Description)
	assert.Equal(t, transaction.SourceImport, tx.Source)
	require.NotNil(t, tx.CategoryID)
	assert.Equal(t, f.salary, *tx.CategoryID)

	imp := f.repo.imports[*report.ImportID]
	require.NotNil(t, imp)
	assert.Equal(t, "comma", imp.Locale)
	assert.Equal(t, archiveKey(userID, imp.ID, "csv"), imp.FileKey)
	ok, err := f.store.Exists(ctx, imp.FileKey)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []recompute{{2024, time.January}}, f.recomputer.calls)
}

func TestImportStatement_ReimportIsAllDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	_, err := f.svc.ImportStatement(ctx, userID, upload("a.csv", portugueseStatement), DefaultOptions())
	require.NoError(t, err)

	report, err := f.svc.ImportStatement(ctx, userID, upload("a.csv", portugueseStatement), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, report.RowsImported)
	assert.Equal(t, 3, report.RowsDuplicate)
	assert.Len(t, f.repo.saved, 2)
	// nothing new, nothing to recompute the second time
	assert.Len(t, f.recomputer.calls, 1)
}

func TestImportStatement_CategoryColumnFallback(t *testing.T) {
	f := newFixture(t)
	csv := "Date,Description,Amount,Category\n" +
		"2024-03-01,Mystery shop,-10.00,Continente\n" +
		"2024-03-02,Unknown,-5.00,\n"

	report, err := f.svc.ImportStatement(context.Background(), uuid.New(), upload("x.csv", csv), DefaultOptions())
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)
	require.NotNil(t, report.Rows[0].CategoryID)
	assert.Equal(t, f.groceries, *report.Rows[0].CategoryID)
	assert.Nil(t, report.Rows[1].CategoryID)
	assert.Equal(t, transaction.TypeExpense, report.Rows[1].Type)
	assert.Equal(t, int64(500), report.Rows[1].AmountCents)
}

func TestImportStatement_UnreadableFileIsRecorded(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ImportStatement(context.Background(), uuid.New(), upload("notes.csv", "hello world\nfoo bar\n"), DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	require.Len(t, f.repo.failed, 1)
	assert.Equal(t, repository.StatusFailed, f.repo.failed[0].Status)
	assert.Equal(t, "notes.csv", f.repo.failed[0].FileName)
	assert.Equal(t, "auto", f.repo.failed[0].Locale)
	require.Len(t, f.repo.failed[0].Errors, 1)
	assert.Empty(t, f.repo.saved)
}

func TestImportStatement_TooLarge(t *testing.T) {
	f := newFixture(t)
	f.svc.cfg.MaxFileSizeBytes = 10

	_, err := f.svc.ImportStatement(context.Background(), uuid.New(), upload("big.csv", portugueseStatement), DefaultOptions())
	assert.ErrorIs(t, err, ErrFileTooLarge)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, f.repo.failed)
}

func TestImportStatement_SaveErrorDiscardsArchive(t *testing.T) {
	f := newFixture(t)
	f.repo.saveErr = errors.New("connection reset")
	userID := uuid.New()

	_, err := f.svc.ImportStatement(context.Background(), userID, upload("a.csv", portugueseStatement), DefaultOptions())
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(f.dir, "imports", userID.String()))
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, f.recomputer.calls)
}

func TestImportStatement_CategorizerError(t *testing.T) {
	f := newFixture(t)
	f.cat.err = errors.New("db down")

	_, err := f.svc.ImportStatement(context.Background(), uuid.New(), upload("a.csv", portugueseStatement), DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to categorize")
	assert.Empty(t, f.repo.imports)
	assert.Empty(t, f.repo.failed)
}

func TestImportStatement_ColumnOverride(t *testing.T) {
	f := newFixture(t)
	csv := "a,b,c\n2024-03-01,Coffee,-2.50\n"

	opts := DefaultOptions()
	opts.Columns = &parser.Columns{Date: 0, Description: 1, Amount: 2, Debit: -1, Credit: -1, Category: -1}
	report, err := f.svc.ImportStatement(context.Background(), uuid.New(), upload("x.csv", csv), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowsImported)

	opts.Columns = &parser.Columns{Date: 0, Description: 1, Amount: 7, Debit: -1, Credit: -1, Category: -1}
	_, err = f.svc.ImportStatement(context.Background(), uuid.New(), upload("x.csv", csv), opts)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestImportStatement_XLSX(t *testing.T) {
	wb := excelize.NewFile()
	rows := [][]any{
		{"Date", "Description", "Amount"},
		{45352, "Uber trip", -12.5},
		{45353, "Refund", 30},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, wb.SetSheetRow("Sheet1", cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, wb.Write(&buf))

	f := newFixture(t)
	// the zip signature wins over a misleading extension
	report, err := f.svc.ImportStatement(context.Background(), uuid.New(),
		Upload{Name: "statement.csv", Reader: &buf}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, repository.FileTypeXLSX, report.FileType)
	assert.Equal(t, "Sheet1", report.Sheet)
	assert.Equal(t, parser.LocaleDot, report.Locale)
	require.Len(t, report.Rows, 2)
	assert.Equal(t, "2024-03-01", report.Rows[0].Date)
	assert.Equal(t, int64(1250), report.Rows[0].AmountCents)
	assert.Equal(t, transaction.TypeExpense, report.Rows[0].Type)
	assert.Equal(t, transaction.TypeIncome, report.Rows[1].Type)
	assert.Equal(t, 2, report.RowsImported)
	assert.Equal(t, []recompute{{2024, time.March}}, f.recomputer.calls)
}

func TestDryRun(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	existing := transaction.DedupKey(userID, -4520, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), "COMPRA CONTINENTE LISBOA")
	f.repo.keys[existing] = true

	report, err := f.svc.DryRun(context.Background(), userID, upload("a.csv", portugueseStatement), DefaultOptions())
	require.NoError(t, err)

	assert.Nil(t, report.ImportID)
	assert.Equal(t, 1, report.RowsImported)
	assert.Equal(t, 2, report.RowsDuplicate)
	assert.Equal(t, 1, report.RowsFailed)
	assert.Equal(t, []RowStatus{RowDuplicate, RowNew, RowDuplicate},
		[]RowStatus{report.Rows[0].Status, report.Rows[1].Status, report.Rows[2].Status})
	require.NotNil(t, report.Rows[0].CategoryID)
	assert.Equal(t, f.groceries, *report.Rows[0].CategoryID)

	assert.Empty(t, f.repo.saved)
	assert.Empty(t, f.repo.imports)
	assert.Empty(t, f.recomputer.calls)
}

func TestDryRun_UnreadableFileIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.DryRun(context.Background(), uuid.New(), upload("x.csv", "just text\n"), DefaultOptions())
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Empty(t, f.repo.failed)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := uuid.New()

	report, err := f.svc.ImportStatement(ctx, userID, upload("a.csv", portugueseStatement), DefaultOptions())
	require.NoError(t, err)
	key := f.repo.imports[*report.ImportID].FileKey

	earliest := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	f.repo.earliest = &earliest
	f.recomputer.calls = nil

	require.NoError(t, f.svc.Delete(ctx, userID, *report.ImportID))
	assert.Equal(t, []uuid.UUID{*report.ImportID}, f.repo.deleted)
	assert.Equal(t, []recompute{{2024, time.January}}, f.recomputer.calls)

	ok, err := f.store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Delete(ctx, userID, uuid.New()), common.ErrNotFound)
}
