// Package service orchestrates statement imports: reading the upload,
// detecting its layout, parsing, categorizing, deduplicating and storing.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	"github.com/FACorreiaa/split-budget/internal/domain/import/repository"
	"github.com/FACorreiaa/split-budget/internal/domain/import/sniffer"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/config"
	"github.com/FACorreiaa/split-budget/pkg/metrics"
	"github.com/FACorreiaa/split-budget/pkg/storage"
)

var tracer = otel.Tracer("split-budget/import")

var errNoRows = errors.New("no transaction rows found")

// Categorizer picks a category for a description and signed amount.
type Categorizer interface {
	Categorize(ctx context.Context, userID uuid.UUID, description string, amountCents int64) (*uuid.UUID, float64, error)
}

// Recomputer rebuilds monthly summaries from a month onwards.
type Recomputer interface {
	RecomputeFrom(ctx context.Context, userID uuid.UUID, year int, month time.Month) error
}

// Options overrides what is otherwise detected from the file.
type Options struct {
	Locale     parser.Locale
	DateLayout string
	DateOrder  parser.DateOrder
	// HeaderRow is a 0-based record index, -1 to detect.
	HeaderRow int
	Delimiter rune
	Columns   *parser.Columns
}

// DefaultOptions detects everything.
func DefaultOptions() Options {
	return Options{HeaderRow: -1}
}

// ImportService orchestrates file analysis and import operations
type ImportService struct {
	repo        repository.ImportRepository
	categorizer Categorizer
	storage     storage.Storage
	recomputer  Recomputer
	metrics     *metrics.Metrics
	cfg         config.ImportConfig
	logger      *slog.Logger
}

func NewImportService(repo repository.ImportRepository, categorizer Categorizer, cfg config.ImportConfig, logger *slog.Logger) *ImportService {
	return &ImportService{repo: repo, categorizer: categorizer, cfg: cfg, logger: logger}
}

// WithStorage archives every imported statement.
func (s *ImportService) WithStorage(st storage.Storage) *ImportService {
	s.storage = st
	return s
}

func (s *ImportService) WithRecomputer(r Recomputer) *ImportService {
	s.recomputer = r
	return s
}

func (s *ImportService) WithMetrics(m *metrics.Metrics) *ImportService {
	s.metrics = m
	return s
}

type prepared struct {
	report *Report
	data   []byte
}

// ImportStatement stores the new rows of a statement. Rows already present
// (same dedup key) in the database or earlier in the file are counted as
// duplicates. A file that cannot be read at all is recorded as a failed
// import and reported as invalid input.
func (s *ImportService) ImportStatement(ctx context.Context, userID uuid.UUID, upload Upload, opts Options) (*Report, error) {
	ctx, span := tracer.Start(ctx, "import.ImportStatement")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID.String()), attribute.String("import.file_name", upload.Name))

	prep, err := s.prepare(ctx, userID, upload, opts)
	if err != nil {
		if fe, ok := asFileError(err); ok {
			s.recordFailure(ctx, userID, prep.report, fe)
			span.SetStatus(codes.Error, "unreadable statement")
			return nil, common.Invalid("file", "%s", fe.Error())
		}
		span.RecordError(err)
		return nil, err
	}
	report := prep.report

	imp := &repository.Import{
		ID:            uuid.New(),
		UserID:        userID,
		FileName:      report.FileName,
		FileType:      report.FileType,
		Locale:        string(report.Locale),
		Delimiter:     report.Delimiter,
		RowsTotal:     report.RowsTotal,
		RowsDuplicate: report.RowsDuplicate,
		RowsFailed:    report.RowsFailed,
		Errors:        report.Errors,
	}

	if s.storage != nil {
		key := archiveKey(userID, imp.ID, report.FileType)
		if _, err := s.storage.Save(ctx, key, bytes.NewReader(prep.data)); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to archive statement: %w", err)
		}
		imp.FileKey = key
	}

	existing, err := s.repo.Save(ctx, imp, report.newTransactions(userID))
	if err != nil {
		s.discardArchive(ctx, imp.FileKey)
		span.RecordError(err)
		return nil, err
	}

	report.markExisting(existing)
	report.ImportID = &imp.ID
	report.Status = imp.Status
	report.RowsImported = imp.RowsImported
	report.RowsDuplicate = imp.RowsDuplicate

	if from, ok := report.earliestNew(); ok {
		s.recompute(ctx, userID, from)
	}

	s.metrics.ObserveImport(report.FileType, string(imp.Status), imp.RowsImported, imp.RowsDuplicate, imp.RowsFailed)
	span.SetAttributes(
		attribute.Int("import.rows_imported", imp.RowsImported),
		attribute.Int("import.rows_duplicate", imp.RowsDuplicate),
		attribute.Int("import.rows_failed", imp.RowsFailed),
	)
	s.logger.Info("statement imported",
		slog.String("user_id", userID.String()),
		slog.String("import_id", imp.ID.String()),
		slog.String("file_type", report.FileType),
		slog.Int("rows_total", imp.RowsTotal),
		slog.Int("rows_imported", imp.RowsImported),
		slog.Int("rows_duplicate", imp.RowsDuplicate),
		slog.Int("rows_failed", imp.RowsFailed),
	)
	return report, nil
}

// DryRun reports what ImportStatement would do without writing anything.
// RowsImported counts the rows that would be stored.
func (s *ImportService) DryRun(ctx context.Context, userID uuid.UUID, upload Upload, opts Options) (*Report, error) {
	ctx, span := tracer.Start(ctx, "import.DryRun")
	defer span.End()

	prep, err := s.prepare(ctx, userID, upload, opts)
	if err != nil {
		if fe, ok := asFileError(err); ok {
			return nil, common.Invalid("file", "%s", fe.Error())
		}
		span.RecordError(err)
		return nil, err
	}
	report := prep.report

	keys := make([]string, 0, len(report.Rows))
	for _, row := range report.Rows {
		if row.Status == RowNew {
			keys = append(keys, row.dedupKey)
		}
	}
	existing, err := s.repo.ExistingKeys(ctx, userID, keys)
	if err != nil {
		return nil, err
	}

	fresh := report.markExisting(existing)
	report.RowsImported = fresh
	report.RowsDuplicate = len(report.Rows) - fresh
	return report, nil
}

func (s *ImportService) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*repository.Import, int, error) {
	return s.repo.List(ctx, userID, limit, offset)
}

func (s *ImportService) Get(ctx context.Context, userID, id uuid.UUID) (*repository.Import, error) {
	return s.repo.Get(ctx, userID, id)
}

// Delete removes an import with its transactions and archived file, then
// recomputes the summaries it touched.
func (s *ImportService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	ctx, span := tracer.Start(ctx, "import.Delete")
	defer span.End()

	imp, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	earliest, err := s.repo.Delete(ctx, userID, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	s.discardArchive(ctx, imp.FileKey)

	if earliest != nil {
		s.recompute(ctx, userID, *earliest)
	}
	s.logger.Info("import deleted", slog.String("user_id", userID.String()), slog.String("import_id", id.String()))
	return nil
}

// prepare reads and parses the upload. On a fileError the returned value
// still carries the partial report.
func (s *ImportService) prepare(ctx context.Context, userID uuid.UUID, upload Upload, opts Options) (*prepared, error) {
	data, err := readLimited(upload.Reader, s.cfg.MaxFileSizeBytes)
	if err != nil {
		return nil, err
	}
	fileType, err := detectFileType(upload.Name, data)
	if err != nil {
		return nil, err
	}

	prep := &prepared{
		report: &Report{FileName: upload.Name, FileType: fileType, Locale: opts.Locale, Errors: []parser.RowError{}},
		data:   data,
	}
	report := prep.report

	fc, err := s.sniff(report, data, opts)
	if err != nil {
		return prep, &fileError{err}
	}

	cols := fc.Columns
	if opts.Columns != nil {
		cols = *opts.Columns
		if err := checkColumnRange(cols, len(fc.Headers)); err != nil {
			return nil, err
		}
	}
	report.HeaderRow = fc.HeaderRow
	report.Headers = fc.Headers
	report.Columns = cols
	report.Fingerprint = fc.Fingerprint

	locale := opts.Locale
	if fileType == repository.FileTypeXLSX && locale == "" {
		// raw numeric cells always use a decimal point
		locale = parser.LocaleDot
	}
	p, err := parser.New(cols, parser.Options{
		Locale:           locale,
		DateLayout:       opts.DateLayout,
		DateOrder:        opts.DateOrder,
		ExcelSerialDates: fileType == repository.FileTypeXLSX,
	})
	if err != nil {
		return prep, &fileError{fmt.Errorf("could not map columns: %w", err)}
	}

	result := p.Parse(fc.DataRecords())
	report.Locale = result.Locale
	report.DateOrder = result.DateOrder
	report.RowsSkipped = result.Skipped
	if result.Total() == 0 {
		return prep, &fileError{errNoRows}
	}
	report.RowsTotal = result.Total()
	report.RowsFailed = len(result.Errors)
	if result.Errors != nil {
		report.Errors = result.Errors
	}

	currency, err := s.repo.UserCurrency(ctx, userID)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		currency = s.cfg.DefaultCurrency
	}
	report.Currency = currency

	rows := make([]ReportRow, len(result.Rows))
	for i, r := range result.Rows {
		typ, amount := transaction.TypeIncome, r.AmountCents
		if amount < 0 {
			typ, amount = transaction.TypeExpense, -amount
		}
		rows[i] = ReportRow{
			Line:        r.Line,
			Date:        r.Date.Format(transaction.DateLayout),
			Description: r.Description,
			Type:        typ,
			AmountCents: amount,
			Status:      RowNew,
			dedupKey:    transaction.DedupKey(userID, r.AmountCents, r.Date, r.Description),
			occurredOn:  r.Date,
		}
	}
	if err := s.categorize(ctx, userID, result.Rows, rows); err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(rows))
	for i := range rows {
		if seen[rows[i].dedupKey] {
			rows[i].Status = RowDuplicate
			report.RowsDuplicate++
			continue
		}
		seen[rows[i].dedupKey] = true
	}
	report.Rows = rows
	return prep, nil
}

func (s *ImportService) sniff(report *Report, data []byte, opts Options) (*sniffer.FileConfig, error) {
	detect := &sniffer.DetectOptions{HeaderRow: opts.HeaderRow, Delimiter: opts.Delimiter}

	if report.FileType == repository.FileTypeXLSX {
		records, sheet, err := parser.ReadXLSX(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		report.Sheet = sheet
		return sniffer.DetectRecords(records, detect)
	}

	decoded, encoding := sniffer.Decode(data)
	report.Encoding = encoding
	fc, err := sniffer.DetectConfig(decoded, detect)
	if err != nil {
		return nil, err
	}
	report.Delimiter = string(fc.Delimiter)
	return fc, nil
}

// categorize fills CategoryID in rows, trying the description first and
// the statement's own category column second. Chunks of BatchSize rows
// run concurrently.
func (s *ImportService) categorize(ctx context.Context, userID uuid.UUID, parsed []parser.Row, rows []ReportRow) error {
	if s.categorizer == nil || len(rows) == 0 {
		return nil
	}
	size := s.cfg.BatchSize
	if size <= 0 {
		size = len(rows)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		g.Go(func() error {
			for i := start; i < end; i++ {
				id, confidence, err := s.categorizer.Categorize(gctx, userID, parsed[i].Description, parsed[i].AmountCents)
				if err != nil {
					return fmt.Errorf("failed to categorize row %d: %w", parsed[i].Line, err)
				}
				if id == nil && parsed[i].Category != "" {
					id, confidence, err = s.categorizer.Categorize(gctx, userID, parsed[i].Category, parsed[i].AmountCents)
					if err != nil {
						return fmt.Errorf("failed to categorize row %d: %w", parsed[i].Line, err)
					}
				}
				rows[i].CategoryID, rows[i].Confidence = id, confidence
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *ImportService) recordFailure(ctx context.Context, userID uuid.UUID, report *Report, fe *fileError) {
	imp := &repository.Import{
		ID:       uuid.New(),
		UserID:   userID,
		FileName: report.FileName,
		FileType: report.FileType,
		Locale:   string(report.Locale),
		Errors:   []parser.RowError{{Message: fe.Error()}},
	}
	if imp.Locale == "" {
		imp.Locale = string(parser.LocaleAuto)
	}
	if err := s.repo.CreateFailed(ctx, imp); err != nil {
		s.logger.Error("failed to record failed import", slog.String("user_id", userID.String()), slog.Any("error", err))
	}
	s.metrics.ObserveImport(report.FileType, string(repository.StatusFailed), 0, 0, 0)
	s.logger.Warn("statement could not be read",
		slog.String("user_id", userID.String()),
		slog.String("file_name", report.FileName),
		slog.Any("error", fe.err),
	)
}

// recompute failures are logged; the import is already committed and the
// nightly job rebuilds the months.
func (s *ImportService) recompute(ctx context.Context, userID uuid.UUID, from time.Time) {
	if s.recomputer == nil {
		return
	}
	if err := s.recomputer.RecomputeFrom(ctx, userID, from.Year(), from.Month()); err != nil {
		s.logger.Error("failed to recompute summaries",
			slog.String("user_id", userID.String()),
			slog.String("from", from.Format("2006-01")),
			slog.Any("error", err),
		)
	}
}

func (s *ImportService) discardArchive(ctx context.Context, key string) {
	if s.storage == nil || key == "" {
		return
	}
	if err := s.storage.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to delete archived statement", slog.String("key", key), slog.Any("error", err))
	}
}

func archiveKey(userID, importID uuid.UUID, fileType string) string {
	return fmt.Sprintf("imports/%s/%s.%s", userID, importID, fileType)
}

func checkColumnRange(cols parser.Columns, n int) error {
	for name, idx := range map[string]int{
		"date": cols.Date, "description": cols.Description, "amount": cols.Amount,
		"debit": cols.Debit, "credit": cols.Credit, "category": cols.Category,
	} {
		if idx >= n {
			return common.Invalid("columns", "%s column %d is out of range, the file has %d columns", name, idx, n)
		}
	}
	return nil
}
