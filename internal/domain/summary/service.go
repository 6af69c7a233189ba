package summary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/pkg/metrics"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

var tracer = otel.Tracer("split-budget/summary")

// Recompute triggers, used as the metric label.
const (
	TriggerChange  = "change"
	TriggerFull    = "full"
	TriggerNightly = "nightly"
)

// RuleSource returns a user's budget rule.
type RuleSource interface {
	GetRule(ctx context.Context, userID uuid.UUID) (*budget.Rule, error)
}

// Service keeps monthly summaries in step with transactions.
type Service struct {
	repo    Repository
	rules   RuleSource
	metrics *metrics.Metrics
	logger  *slog.Logger
	// per-user *sync.Mutex
	locks sync.Map
}

func NewService(repo Repository, rules RuleSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, rules: rules, logger: logger}
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) lock(userID uuid.UUID) func() {
	v, _ := s.locks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// RecomputeFrom rebuilds the month and every later one up to the last
// month with transactions or a stored summary.
func (s *Service) RecomputeFrom(ctx context.Context, userID uuid.UUID, year int, month time.Month) error {
	if month < time.January || month > time.December {
		return fmt.Errorf("invalid month %d", month)
	}
	_, err := s.recompute(ctx, userID, Period{Year: year, Month: month}, TriggerChange)
	return err
}

// RecomputeAll rebuilds every summary of the user.
func (s *Service) RecomputeAll(ctx context.Context, userID uuid.UUID) error {
	b, err := s.repo.Bounds(ctx, userID)
	if err != nil {
		return err
	}
	first := earliest(b.FirstTransaction, b.FirstSummary)
	if first == nil {
		return nil
	}
	_, err = s.recompute(ctx, userID, PeriodOf(*first), TriggerFull)
	return err
}

// RecomputeRecent rebuilds the previous and current month of every user
// with transactions in that window. It returns how many users were done.
func (s *Service) RecomputeRecent(ctx context.Context, now time.Time) (int, error) {
	current := PeriodOf(now)
	from := current.Prev()
	users, err := s.repo.ActiveUsers(ctx, from.Start(), current.Next().Start())
	if err != nil {
		return 0, err
	}

	done := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.recompute(ctx, userID, from, TriggerNightly); err != nil {
			s.logger.Error("nightly recompute failed",
				slog.String("user_id", userID.String()),
				slog.Any("error", err),
			)
			continue
		}
		done++
	}
	return done, nil
}

func (s *Service) recompute(ctx context.Context, userID uuid.UUID, start Period, trigger string) ([]*MonthlySummary, error) {
	ctx, span := tracer.Start(ctx, "summary.Recompute")
	defer span.End()
	span.SetAttributes(
		attribute.String("user_id", userID.String()),
		attribute.String("from", start.String()),
		attribute.String("trigger", trigger),
	)

	unlock := s.lock(userID)
	defer unlock()

	var months []*MonthlySummary
	err := s.repo.Locked(ctx, userID, func(repo Repository) error {
		var err error
		if months, err = s.rebuild(ctx, repo, userID, start); err != nil || len(months) == 0 {
			return err
		}
		return repo.Upsert(ctx, userID, months)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recompute failed")
		return nil, err
	}
	if len(months) == 0 {
		return nil, nil
	}

	s.metrics.SummaryRecomputed(trigger)
	span.SetAttributes(attribute.Int("months", len(months)))
	s.logger.Debug("summaries recomputed",
		slog.String("user_id", userID.String()),
		slog.String("from", months[0].Period().String()),
		slog.String("to", months[len(months)-1].Period().String()),
		slog.String("trigger", trigger),
	)
	return months, nil
}

// rebuild computes the months from start to the horizon. A gap between the
// last stored month and start is filled; without any stored month before
// start, computation begins at the first transaction.
func (s *Service) rebuild(ctx context.Context, repo Repository, userID uuid.UUID, start Period) ([]*MonthlySummary, error) {
	b, err := repo.Bounds(ctx, userID)
	if err != nil {
		return nil, err
	}
	prev, err := repo.LastBefore(ctx, userID, start)
	if err != nil {
		return nil, err
	}

	var opening int64
	switch {
	case prev != nil:
		opening = prev.ClosingCents
		if next := prev.Period.Next(); next.Before(start) {
			start = next
		}
	case b.FirstTransaction != nil:
		if first := PeriodOf(*b.FirstTransaction); first.Before(start) {
			start = first
		}
	}

	last := latest(b.LastTransaction, b.LastSummary)
	if last == nil {
		return nil, nil
	}
	end := PeriodOf(*last)
	if end.Before(start) {
		return nil, nil
	}

	rule, err := s.rules.GetRule(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := repo.Totals(ctx, userID, start.Start(), end.Next().Start())
	if err != nil {
		return nil, err
	}
	return Build(userID, rule, start, end, opening, totals)
}

func earliest(ts ...*time.Time) *time.Time {
	var out *time.Time
	for _, t := range ts {
		if t != nil && (out == nil || t.Before(*out)) {
			out = t
		}
	}
	return out
}

func latest(ts ...*time.Time) *time.Time {
	var out *time.Time
	for _, t := range ts {
		if t != nil && (out == nil || t.After(*out)) {
			out = t
		}
	}
	return out
}

// Monthly returns the stored summaries of a year in month order.
func (s *Service) Monthly(ctx context.Context, userID uuid.UUID, year int) ([]*MonthlySummary, error) {
	return s.repo.ListYear(ctx, userID, year)
}

// Month returns a stored summary, computing it on the fly when the month
// has not been stored. The computed summary is not persisted.
func (s *Service) Month(ctx context.Context, userID uuid.UUID, year int, month time.Month) (*MonthlySummary, error) {
	p := Period{Year: year, Month: month}
	m, err := s.repo.Get(ctx, userID, p)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrSummaryNotFound) {
		return nil, err
	}

	var opening int64
	prev, err := s.repo.LastBefore(ctx, userID, p)
	if err != nil {
		return nil, err
	}
	if prev != nil {
		opening = prev.ClosingCents
	}
	rule, err := s.rules.GetRule(ctx, userID)
	if err != nil {
		return nil, err
	}
	totals, err := s.repo.Totals(ctx, userID, p.Start(), p.Next().Start())
	if err != nil {
		return nil, err
	}
	months, err := Build(userID, rule, p, p, opening, totals)
	if err != nil {
		return nil, err
	}
	return months[0], nil
}

// Annual rolls up a year. A year without stored months is not found.
func (s *Service) Annual(ctx context.Context, userID uuid.UUID, year int) (*Annual, error) {
	rule, err := s.rules.GetRule(ctx, userID)
	if err != nil {
		return nil, err
	}
	months, err := s.repo.ListYear(ctx, userID, year)
	if err != nil {
		return nil, err
	}
	if len(months) == 0 {
		return nil, ErrSummaryNotFound
	}
	return Rollup(year, months, rule), nil
}

// Years returns the rollup of every year with stored months, oldest first.
func (s *Service) Years(ctx context.Context, userID uuid.UUID) ([]*Annual, error) {
	rule, err := s.rules.GetRule(ctx, userID)
	if err != nil {
		return nil, err
	}
	years, err := s.repo.Years(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]*Annual, len(years))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, year := range years {
		g.Go(func() error {
			months, err := s.repo.ListYear(gctx, userID, year)
			if err != nil {
				return err
			}
			out[i] = Rollup(year, months, rule)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type exportRow struct {
	Month         string `csv:"month"`
	Currency      string `csv:"currency"`
	Income        string `csv:"income"`
	Expense       string `csv:"expense"`
	Net           string `csv:"net"`
	Opening       string `csv:"opening_balance"`
	Closing       string `csv:"closing_balance"`
	Needs         string `csv:"needs"`
	Wants         string `csv:"wants"`
	Reserves      string `csv:"reserves"`
	Investments   string `csv:"investments"`
	Uncategorized string `csv:"uncategorized"`
	TargetNeeds   string `csv:"target_needs"`
	TargetWants   string `csv:"target_wants"`
	TargetRes     string `csv:"target_reserves"`
	TargetInv     string `csv:"target_investments"`
	Transactions  int    `csv:"transactions"`
}

// Export writes a year's stored months as CSV.
func (s *Service) Export(ctx context.Context, userID uuid.UUID, year int, w io.Writer) (int, error) {
	months, err := s.repo.ListYear(ctx, userID, year)
	if err != nil {
		return 0, err
	}

	rows := make([]*exportRow, 0, len(months))
	for _, m := range months {
		amount := func(cents int64) string { return money.New(cents, m.Currency).String() }
		rows = append(rows, &exportRow{
			Month:         m.Period().String(),
			Currency:      m.Currency,
			Income:        amount(m.IncomeCents),
			Expense:       amount(m.ExpenseCents),
			Net:           amount(m.NetCents),
			Opening:       amount(m.OpeningBalanceCents),
			Closing:       amount(m.ClosingBalanceCents),
			Needs:         amount(m.Spent.NeedsCents),
			Wants:         amount(m.Spent.WantsCents),
			Reserves:      amount(m.Spent.ReservesCents),
			Investments:   amount(m.Spent.InvestmentsCents),
			Uncategorized: amount(m.Spent.UncategorizedCents),
			TargetNeeds:   amount(m.Targets.NeedsCents),
			TargetWants:   amount(m.Targets.WantsCents),
			TargetRes:     amount(m.Targets.ReservesCents),
			TargetInv:     amount(m.Targets.InvestmentsCents),
			Transactions:  m.TransactionCount,
		})
	}

	if err := gocsv.Marshal(rows, w); err != nil {
		return 0, fmt.Errorf("failed to write csv: %w", err)
	}
	return len(rows), nil
}
