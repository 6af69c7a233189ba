package transaction

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/category"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

// CategoryLookup resolves a user's category.
type CategoryLookup interface {
	Get(ctx context.Context, userID, id uuid.UUID) (*category.Category, error)
}

// Recomputer rebuilds monthly summaries from a month onwards.
type Recomputer interface {
	RecomputeFrom(ctx context.Context, userID uuid.UUID, year int, month time.Month) error
}

// Service implements manual transaction CRUD and export.
type Service struct {
	repo       Repository
	categories CategoryLookup
	recomputer Recomputer
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(repo Repository, categories CategoryLookup, logger *slog.Logger) *Service {
	return &Service{repo: repo, categories: categories, logger: logger, now: time.Now}
}

// WithRecomputer sets the summary recomputer run after every write.
func (s *Service) WithRecomputer(r Recomputer) *Service {
	s.recomputer = r
	return s
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, in Input) (*Transaction, error) {
	t, err := s.build(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	t.Source = SourceManual

	id, err := s.repo.Create(ctx, t)
	if err != nil {
		return nil, err
	}

	s.recompute(ctx, userID, t.OccurredOn)
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*Transaction, error) {
	return s.repo.Get(ctx, userID, id)
}

// Update replaces the writable fields and recomputes from the earlier of
// the old and new month.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, in Input) (*Transaction, error) {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	t, err := s.build(ctx, userID, in)
	if err != nil {
		return nil, err
	}
	t.ID = id

	if err := s.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	from := t.OccurredOn
	if current.OccurredOn.Before(from) {
		from = current.OccurredOn
	}
	s.recompute(ctx, userID, from)
	return s.repo.Get(ctx, userID, id)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	current, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.recompute(ctx, userID, current.OccurredOn)
	return nil
}

// List returns a page of transactions and the total match count.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*Transaction, int, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return nil, 0, common.Invalid("to", "must not be before from")
	}

	items, total, err := s.repo.List(ctx, userID, f)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Transaction{}
	}
	return items, total, nil
}

type exportRow struct {
	Date        string `csv:"date"`
	Type        string `csv:"type"`
	Amount      string `csv:"amount"`
	Currency    string `csv:"currency"`
	Category    string `csv:"category"`
	Bucket      string `csv:"bucket"`
	Description string `csv:"description"`
	Notes       string `csv:"notes"`
}

// Export writes every transaction matching f as CSV, ignoring pagination.
func (s *Service) Export(ctx context.Context, userID uuid.UUID, f Filter, w io.Writer) (int, error) {
	f.Limit, f.Offset = 0, 0
	items, _, err := s.repo.List(ctx, userID, f)
	if err != nil {
		return 0, err
	}

	rows := make([]*exportRow, 0, len(items))
	for _, t := range items {
		row := &exportRow{
			Date:        t.OccurredOn.Format(DateLayout),
			Type:        string(t.Type),
			Amount:      money.New(t.AmountCents, t.Currency).String(),
			Currency:    t.Currency,
			Description: t.Description,
			Notes:       t.Notes,
		}
		if t.CategoryName != nil {
			row.Category = *t.CategoryName
		}
		if t.Bucket != nil {
			row.Bucket = string(*t.Bucket)
		}
		rows = append(rows, row)
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, fmt.Errorf("failed to write csv: %w", err)
	}
	return len(rows), nil
}

// build validates input into a transaction owned by userID.
func (s *Service) build(ctx context.Context, userID uuid.UUID, in Input) (*Transaction, error) {
	txType, err := ParseType(in.Type)
	if err != nil {
		return nil, err
	}

	currency, err := s.repo.UserCurrency(ctx, userID)
	if err != nil {
		return nil, err
	}
	if in.Currency != "" && money.NormalizeCurrency(in.Currency) != currency {
		return nil, common.Invalid("currency", "must be the account currency %s", currency)
	}

	amount, err := money.NewFromString(in.Amount, currency)
	if err != nil {
		return nil, common.Invalid("amount", "must be a decimal number such as 12.34")
	}
	if !amount.IsPositive() {
		return nil, common.Invalid("amount", "must be greater than zero")
	}

	occurredOn, err := time.Parse(DateLayout, strings.TrimSpace(in.OccurredOn))
	if err != nil {
		return nil, common.Invalid("occurred_on", "must be a date formatted as YYYY-MM-DD")
	}
	if occurredOn.After(s.now().AddDate(1, 0, 0)) {
		return nil, common.Invalid("occurred_on", "is too far in the future")
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		return nil, common.Invalid("description", "is required")
	}
	if len(description) > maxDescriptionLength {
		return nil, common.Invalid("description", "must be at most %d characters", maxDescriptionLength)
	}
	notes := strings.TrimSpace(in.Notes)
	if len(notes) > maxNotesLength {
		return nil, common.Invalid("notes", "must be at most %d characters", maxNotesLength)
	}

	if in.CategoryID != nil {
		c, err := s.categories.Get(ctx, userID, *in.CategoryID)
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.Invalid("category_id", "unknown category")
		}
		if err != nil {
			return nil, err
		}
		if string(c.Kind) != string(txType) {
			return nil, common.Invalid("category_id", "a %s category cannot hold a %s transaction", c.Kind, txType)
		}
	}

	t := &Transaction{
		UserID:      userID,
		CategoryID:  in.CategoryID,
		Type:        txType,
		AmountCents: amount.Amount(),
		Currency:    currency,
		Description: description,
		OccurredOn:  occurredOn,
		Notes:       notes,
	}
	t.DedupKey = DedupKey(userID, t.SignedCents(), t.OccurredOn, t.Description)
	return t, nil
}

// recompute refreshes summaries after a committed write. A failure is
// logged only; the nightly job rebuilds recent months.
func (s *Service) recompute(ctx context.Context, userID uuid.UUID, from time.Time) {
	if s.recomputer == nil {
		return
	}
	if err := s.recomputer.RecomputeFrom(ctx, userID, from.Year(), from.Month()); err != nil {
		s.logger.ErrorContext(ctx, "failed to recompute summaries",
			slog.String("user_id", userID.String()),
			slog.String("from", from.Format("2006-01")),
			slog.Any("error", err),
		)
	}
}
