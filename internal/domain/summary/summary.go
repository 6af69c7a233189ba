// Package summary maintains the rolling monthly summaries of a user's
// transactions and rolls them up into annual views.
package summary

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

var ErrSummaryNotFound = fmt.Errorf("summary %w", common.ErrNotFound)

// Period is a calendar month.
type Period struct {
	Year  int
	Month time.Month
}

// PeriodOf returns the month t falls in.
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) Start() time.Time {
	return time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) Next() Period {
	return PeriodOf(p.Start().AddDate(0, 1, 0))
}

func (p Period) Prev() Period {
	return PeriodOf(p.Start().AddDate(0, -1, 0))
}

func (p Period) Before(o Period) bool {
	return p.Year < o.Year || (p.Year == o.Year && p.Month < o.Month)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Spent holds expenses per bucket. Expenses without a bucketed category
// are uncategorized.
type Spent struct {
	NeedsCents         int64 `json:"needs_cents"`
	WantsCents         int64 `json:"wants_cents"`
	ReservesCents      int64 `json:"reserves_cents"`
	InvestmentsCents   int64 `json:"investments_cents"`
	UncategorizedCents int64 `json:"uncategorized_cents"`
}

func (s Spent) Get(b budget.Bucket) int64 {
	switch b {
	case budget.BucketNeeds:
		return s.NeedsCents
	case budget.BucketWants:
		return s.WantsCents
	case budget.BucketReserves:
		return s.ReservesCents
	case budget.BucketInvestments:
		return s.InvestmentsCents
	}
	return 0
}

func (s *Spent) add(b *budget.Bucket, cents int64) {
	if b == nil {
		s.UncategorizedCents += cents
		return
	}
	switch *b {
	case budget.BucketNeeds:
		s.NeedsCents += cents
	case budget.BucketWants:
		s.WantsCents += cents
	case budget.BucketReserves:
		s.ReservesCents += cents
	case budget.BucketInvestments:
		s.InvestmentsCents += cents
	default:
		s.UncategorizedCents += cents
	}
}

func (s Spent) plus(o Spent) Spent {
	return Spent{
		NeedsCents:         s.NeedsCents + o.NeedsCents,
		WantsCents:         s.WantsCents + o.WantsCents,
		ReservesCents:      s.ReservesCents + o.ReservesCents,
		InvestmentsCents:   s.InvestmentsCents + o.InvestmentsCents,
		UncategorizedCents: s.UncategorizedCents + o.UncategorizedCents,
	}
}

// Targets holds the budget rule's allocation of the month's income.
type Targets struct {
	NeedsCents       int64 `json:"needs_cents"`
	WantsCents       int64 `json:"wants_cents"`
	ReservesCents    int64 `json:"reserves_cents"`
	InvestmentsCents int64 `json:"investments_cents"`
}

func targetsOf(a budget.Allocation) Targets {
	return Targets{
		NeedsCents:       a.NeedsCents,
		WantsCents:       a.WantsCents,
		ReservesCents:    a.ReservesCents,
		InvestmentsCents: a.InvestmentsCents,
	}
}

func (t Targets) Get(b budget.Bucket) int64 {
	switch b {
	case budget.BucketNeeds:
		return t.NeedsCents
	case budget.BucketWants:
		return t.WantsCents
	case budget.BucketReserves:
		return t.ReservesCents
	case budget.BucketInvestments:
		return t.InvestmentsCents
	}
	return 0
}

func (t Targets) plus(o Targets) Targets {
	return Targets{
		NeedsCents:       t.NeedsCents + o.NeedsCents,
		WantsCents:       t.WantsCents + o.WantsCents,
		ReservesCents:    t.ReservesCents + o.ReservesCents,
		InvestmentsCents: t.InvestmentsCents + o.InvestmentsCents,
	}
}

// MonthlySummary is the stored aggregate of one month.
// ClosingBalanceCents = OpeningBalanceCents + NetCents, and the opening
// balance is the previous month's closing balance.
type MonthlySummary struct {
	UserID              uuid.UUID  `json:"-"`
	Year                int        `json:"year"`
	Month               time.Month `json:"month"`
	Currency            string     `json:"currency"`
	IncomeCents         int64      `json:"income_cents"`
	ExpenseCents        int64      `json:"expense_cents"`
	NetCents            int64      `json:"net_cents"`
	OpeningBalanceCents int64      `json:"opening_balance_cents"`
	ClosingBalanceCents int64      `json:"closing_balance_cents"`
	Spent               Spent      `json:"spent"`
	Targets             Targets    `json:"targets"`
	TransactionCount    int        `json:"transaction_count"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (m *MonthlySummary) Period() Period {
	return Period{Year: m.Year, Month: m.Month}
}

// Total is one grouped sum of a user's transactions: a month, a type and
// the bucket of the transactions' category (nil when none).
type Total struct {
	Period      Period
	Type        transaction.Type
	Bucket      *budget.Bucket
	AmountCents int64
	Count       int
}

// Build computes the summaries of every month in [from, to], carrying the
// balance forward from openingCents. Months without totals get zero rows.
func Build(userID uuid.UUID, rule *budget.Rule, from, to Period, openingCents int64, totals []Total) ([]*MonthlySummary, error) {
	byMonth := make(map[Period][]Total)
	for _, t := range totals {
		byMonth[t.Period] = append(byMonth[t.Period], t)
	}

	var out []*MonthlySummary
	opening := openingCents
	for p := from; !to.Before(p); p = p.Next() {
		m := &MonthlySummary{
			UserID:              userID,
			Year:                p.Year,
			Month:               p.Month,
			Currency:            rule.Currency,
			OpeningBalanceCents: opening,
		}
		for _, t := range byMonth[p] {
			m.TransactionCount += t.Count
			switch t.Type {
			case transaction.TypeIncome:
				m.IncomeCents += t.AmountCents
			case transaction.TypeExpense:
				m.ExpenseCents += t.AmountCents
				m.Spent.add(t.Bucket, t.AmountCents)
			}
		}
		m.NetCents = m.IncomeCents - m.ExpenseCents
		m.ClosingBalanceCents = m.OpeningBalanceCents + m.NetCents

		alloc, err := budget.Allocate(rule, m.IncomeCents)
		if err != nil {
			return nil, fmt.Errorf("failed to allocate %s: %w", p, err)
		}
		m.Targets = targetsOf(alloc)

		out = append(out, m)
		opening = m.ClosingBalanceCents
	}
	return out, nil
}

// BucketShare compares what a bucket got with what the rule allots it.
type BucketShare struct {
	Bucket      budget.Bucket `json:"bucket"`
	SpentCents  int64         `json:"spent_cents"`
	TargetCents int64         `json:"target_cents"`
	// ActualPct is the spending as a percentage of income.
	ActualPct decimal.Decimal `json:"actual_pct"`
	RulePct   int             `json:"rule_pct"`
}

// Annual is the rollup of a year's monthly summaries.
type Annual struct {
	Year                   int             `json:"year"`
	Currency               string          `json:"currency"`
	IncomeCents            int64           `json:"income_cents"`
	ExpenseCents           int64           `json:"expense_cents"`
	NetCents               int64           `json:"net_cents"`
	OpeningBalanceCents    int64           `json:"opening_balance_cents"`
	ClosingBalanceCents    int64           `json:"closing_balance_cents"`
	Spent                  Spent           `json:"spent"`
	Targets                Targets         `json:"targets"`
	Months                 int             `json:"months"`
	ActiveMonths           int             `json:"active_months"`
	AvgMonthlyIncomeCents  int64           `json:"avg_monthly_income_cents"`
	AvgMonthlyExpenseCents int64           `json:"avg_monthly_expense_cents"`
	SavingsRate            decimal.Decimal `json:"savings_rate"`
	Shares                 []BucketShare   `json:"shares"`
	TransactionCount       int             `json:"transaction_count"`
}

// Rollup aggregates months, which must belong to year and be ordered.
// Averages cover months with transactions; the savings rate is net over
// income and zero without income.
func Rollup(year int, months []*MonthlySummary, rule *budget.Rule) *Annual {
	a := &Annual{Year: year, Currency: rule.Currency, Months: len(months)}
	if len(months) > 0 {
		a.Currency = months[0].Currency
		a.OpeningBalanceCents = months[0].OpeningBalanceCents
		a.ClosingBalanceCents = months[len(months)-1].ClosingBalanceCents
	}

	for _, m := range months {
		a.IncomeCents += m.IncomeCents
		a.ExpenseCents += m.ExpenseCents
		a.Spent = a.Spent.plus(m.Spent)
		a.Targets = a.Targets.plus(m.Targets)
		a.TransactionCount += m.TransactionCount
		if m.TransactionCount > 0 {
			a.ActiveMonths++
		}
	}
	a.NetCents = a.IncomeCents - a.ExpenseCents

	a.SavingsRate = decimal.Zero
	if a.ActiveMonths > 0 {
		n := decimal.NewFromInt(int64(a.ActiveMonths))
		a.AvgMonthlyIncomeCents = decimal.NewFromInt(a.IncomeCents).Div(n).Round(0).IntPart()
		a.AvgMonthlyExpenseCents = decimal.NewFromInt(a.ExpenseCents).Div(n).Round(0).IntPart()
	}
	if a.IncomeCents > 0 {
		a.SavingsRate = decimal.NewFromInt(a.NetCents).Div(decimal.NewFromInt(a.IncomeCents)).Round(4)
	}

	income := money.New(a.IncomeCents, a.Currency)
	a.Shares = make([]BucketShare, 0, len(budget.Buckets))
	for _, b := range budget.Buckets {
		spent := a.Spent.Get(b)
		a.Shares = append(a.Shares, BucketShare{
			Bucket:      b,
			SpentCents:  spent,
			TargetCents: a.Targets.Get(b),
			ActualPct:   money.New(spent, a.Currency).PercentageOf(income),
			RulePct:     rule.Pct(b),
		})
	}
	return a
}
