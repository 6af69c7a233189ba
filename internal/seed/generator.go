// Package seed generates realistic demo transactions for development accounts.
package seed

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/domain/budget"
	"github.com/FACorreiaa/split-budget/internal/domain/category"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

var incomeDescriptions = []string{
	"Monthly salary deposit",
	"Freelance payment",
	"Client invoice payment",
	"Dividend payment",
	"Tax refund",
}

var needsDescriptions = []string{
	"Rent payment",
	"Electricity bill",
	"Weekly groceries",
	"Phone bill",
	"Public transit pass",
	"Pharmacy",
	"Water bill",
}

var wantsDescriptions = []string{
	"Coffee and pastry",
	"Restaurant dinner",
	"Movie tickets",
	"Streaming subscription",
	"Clothing purchase",
	"Concert tickets",
	"Book purchase",
	"Takeaway",
}

// Generator builds transaction inputs for a month using gofakeit.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a generator. A zero seed is random.
func New(seed int64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Month returns one month of transactions: a salary, a handful of bills, a
// spread of discretionary purchases, and transfers to reserves and
// investments. Categories are picked by kind and bucket; a missing category
// leaves the transaction uncategorized. Days after today are skipped.
func (g *Generator) Month(year int, month time.Month, currency string, categories []*category.Category, today time.Time) []transaction.Input {
	pick := g.picker(categories)
	days := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	var out []transaction.Input

	add := func(kind category.Kind, bucket *budget.Bucket, description string, minCents, maxCents int64, day int) {
		on := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if on.After(today) {
			return
		}
		out = append(out, transaction.Input{
			CategoryID:  pick(kind, bucket),
			Type:        string(kind),
			Amount:      g.amount(currency, minCents, maxCents),
			Description: description,
			OccurredOn:  on.Format(transaction.DateLayout),
		})
	}

	add(category.KindIncome, nil, incomeDescriptions[0]+" "+g.faker.Company(), 180000, 450000, 1)
	if g.faker.Bool() {
		add(category.KindIncome, nil, g.choose(incomeDescriptions[1:]), 5000, 60000, g.faker.Number(1, days))
	}

	needs, wants := budget.BucketNeeds, budget.BucketWants
	for range g.faker.Number(4, 8) {
		add(category.KindExpense, &needs, g.choose(needsDescriptions), 2000, 90000, g.faker.Number(1, days))
	}
	for range g.faker.Number(8, 20) {
		add(category.KindExpense, &wants, g.choose(wantsDescriptions)+" "+g.faker.Company(), 300, 12000, g.faker.Number(1, days))
	}

	reserves, investments := budget.BucketReserves, budget.BucketInvestments
	add(category.KindExpense, &reserves, "Transfer to savings", 10000, 40000, days)
	add(category.KindExpense, &investments, "ETF purchase", 10000, 40000, days)
	return out
}

func (g *Generator) choose(options []string) string {
	return options[g.faker.Number(0, len(options)-1)]
}

func (g *Generator) amount(currency string, minCents, maxCents int64) string {
	cents := int64(g.faker.Number(int(minCents), int(maxCents)))
	return money.New(cents, currency).String()
}

func (g *Generator) picker(categories []*category.Category) func(category.Kind, *budget.Bucket) *uuid.UUID {
	byKey := make(map[string][]*category.Category)
	for _, c := range categories {
		byKey[key(c.Kind, c.Bucket)] = append(byKey[key(c.Kind, c.Bucket)], c)
	}
	return func(kind category.Kind, bucket *budget.Bucket) *uuid.UUID {
		options := byKey[key(kind, bucket)]
		if len(options) == 0 {
			return nil
		}
		id := options[g.faker.Number(0, len(options)-1)].ID
		return &id
	}
}

func key(kind category.Kind, bucket *budget.Bucket) string {
	if bucket == nil {
		return string(kind)
	}
	return string(kind) + ":" + string(*bucket)
}
