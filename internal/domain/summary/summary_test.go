package summary

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
)

func bucket(b budget.Bucket) *budget.Bucket { return &b }

func TestPeriod(t *testing.T) {
	dec := Period{Year: 2023, Month: time.December}
	assert.Equal(t, Period{Year: 2024, Month: time.January}, dec.Next())
	assert.Equal(t, Period{Year: 2023, Month: time.November}, dec.Prev())
	assert.True(t, dec.Before(dec.Next()))
	assert.False(t, dec.Before(dec))
	assert.Equal(t, "2023-12", dec.String())
	assert.Equal(t, dec, PeriodOf(time.Date(2023, 12, 31, 23, 0, 0, 0, time.UTC)))
}

func TestBuild(t *testing.T) {
	userID := uuid.New()
	rule := budget.DefaultRule(userID, "EUR")
	jan := Period{Year: 2024, Month: time.January}
	mar := Period{Year: 2024, Month: time.March}

	totals := []Total{
		{Period: jan, Type: transaction.TypeIncome, AmountCents: 200000, Count: 1},
		{Period: jan, Type: transaction.TypeExpense, Bucket: bucket(budget.BucketNeeds), AmountCents: 50000, Count: 2},
		{Period: jan, Type: transaction.TypeExpense, AmountCents: 1000, Count: 1},
		{Period: mar, Type: transaction.TypeExpense, Bucket: bucket(budget.BucketWants), AmountCents: 3000, Count: 1},
	}

	months, err := Build(userID, rule, jan, mar, 1000, totals)
	require.NoError(t, err)
	require.Len(t, months, 3)

	m := months[0]
	assert.Equal(t, int64(200000), m.IncomeCents)
	assert.Equal(t, int64(51000), m.ExpenseCents)
	assert.Equal(t, int64(149000), m.NetCents)
	assert.Equal(t, int64(1000), m.OpeningBalanceCents)
	assert.Equal(t, int64(150000), m.ClosingBalanceCents)
	assert.Equal(t, Spent{NeedsCents: 50000, UncategorizedCents: 1000}, m.Spent)
	assert.Equal(t, Targets{NeedsCents: 100000, WantsCents: 60000, ReservesCents: 20000, InvestmentsCents: 20000}, m.Targets)
	assert.Equal(t, 4, m.TransactionCount)
	assert.Equal(t, "EUR", m.Currency)

	feb := months[1]
	assert.Equal(t, time.February, feb.Month)
	assert.Equal(t, int64(150000), feb.OpeningBalanceCents)
	assert.Equal(t, int64(150000), feb.ClosingBalanceCents)
	assert.Equal(t, Targets{}, feb.Targets)
	assert.Zero(t, feb.TransactionCount)

	m = months[2]
	assert.Equal(t, int64(-3000), m.NetCents)
	assert.Equal(t, int64(147000), m.ClosingBalanceCents)
	assert.Equal(t, int64(3000), m.Spent.WantsCents)
}

func TestBuild_EmptyRange(t *testing.T) {
	rule := budget.DefaultRule(uuid.New(), "EUR")
	months, err := Build(uuid.New(), rule, Period{2024, time.May}, Period{2024, time.April}, 0, nil)
	require.NoError(t, err)
	assert.Empty(t, months)
}

func TestRollup(t *testing.T) {
	userID := uuid.New()
	rule := budget.DefaultRule(userID, "EUR")
	jan := Period{Year: 2024, Month: time.January}
	mar := Period{Year: 2024, Month: time.March}
	months, err := Build(userID, rule, jan, mar, 1000, []Total{
		{Period: jan, Type: transaction.TypeIncome, AmountCents: 200000, Count: 1},
		{Period: jan, Type: transaction.TypeExpense, Bucket: bucket(budget.BucketNeeds), AmountCents: 50000, Count: 1},
		{Period: mar, Type: transaction.TypeExpense, Bucket: bucket(budget.BucketWants), AmountCents: 3000, Count: 1},
	})
	require.NoError(t, err)

	a := Rollup(2024, months, rule)
	assert.Equal(t, 3, a.Months)
	assert.Equal(t, 2, a.ActiveMonths)
	assert.Equal(t, int64(200000), a.IncomeCents)
	assert.Equal(t, int64(53000), a.ExpenseCents)
	assert.Equal(t, int64(147000), a.NetCents)
	assert.Equal(t, int64(1000), a.OpeningBalanceCents)
	assert.Equal(t, int64(148000), a.ClosingBalanceCents)
	assert.Equal(t, int64(100000), a.AvgMonthlyIncomeCents)
	assert.Equal(t, int64(26500), a.AvgMonthlyExpenseCents)
	assert.True(t, a.SavingsRate.Equal(decimal.RequireFromString("0.735")), a.SavingsRate.String())
	assert.Equal(t, 3, a.TransactionCount)

	require.Len(t, a.Shares, 4)
	needs := a.Shares[0]
	assert.Equal(t, budget.BucketNeeds, needs.Bucket)
	assert.Equal(t, int64(50000), needs.SpentCents)
	assert.Equal(t, int64(100000), needs.TargetCents)
	assert.Equal(t, 50, needs.RulePct)
	assert.True(t, needs.ActualPct.Equal(decimal.NewFromInt(25)), needs.ActualPct.String())
	assert.True(t, a.Shares[1].ActualPct.Equal(decimal.RequireFromString("1.5")), a.Shares[1].ActualPct.String())
}

func TestRollup_NoIncome(t *testing.T) {
	rule := budget.DefaultRule(uuid.New(), "USD")
	a := Rollup(2023, []*MonthlySummary{{
		Year: 2023, Month: time.June, Currency: "USD",
		ExpenseCents: 500, NetCents: -500, ClosingBalanceCents: -500,
		Spent:            Spent{UncategorizedCents: 500},
		TransactionCount: 1,
	}}, rule)

	assert.True(t, a.SavingsRate.IsZero())
	assert.Equal(t, int64(-500), a.ClosingBalanceCents)
	for _, s := range a.Shares {
		assert.True(t, s.ActualPct.IsZero())
	}

	empty := Rollup(2022, nil, rule)
	assert.Equal(t, "USD", empty.Currency)
	assert.Zero(t, empty.Months)
	assert.Len(t, empty.Shares, 4)
}
