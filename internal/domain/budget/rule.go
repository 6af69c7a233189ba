// Package budget implements the fixed-percentage split of income across
// the needs, wants, reserves and investments buckets.
package budget

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/pkg/money"
)

// Bucket is one of the four spending buckets.
type Bucket string

const (
	BucketNeeds       Bucket = "needs"
	BucketWants       Bucket = "wants"
	BucketReserves    Bucket = "reserves"
	BucketInvestments Bucket = "investments"
)

// Buckets lists the buckets in allocation order.
var Buckets = []Bucket{BucketNeeds, BucketWants, BucketReserves, BucketInvestments}

// ParseBucket validates a bucket name.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Buckets {
		if b == known {
			return b, nil
		}
	}
	return "", common.Invalid("bucket", "must be one of needs, wants, reserves, investments")
}

// Default split percentages.
const (
	DefaultNeedsPct       = 50
	DefaultWantsPct       = 30
	DefaultReservesPct    = 10
	DefaultInvestmentsPct = 10
)

// Rule is a user's percentage split. Percentages are whole numbers summing to 100.
type Rule struct {
	UserID         uuid.UUID `json:"user_id"`
	NeedsPct       int       `json:"needs_pct"`
	WantsPct       int       `json:"wants_pct"`
	ReservesPct    int       `json:"reserves_pct"`
	InvestmentsPct int       `json:"investments_pct"`
	Currency       string    `json:"currency"`
	IsDefault      bool      `json:"is_default"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// DefaultRule returns the 50/30/10/10 split.
func DefaultRule(userID uuid.UUID, currency string) *Rule {
	return &Rule{
		UserID:         userID,
		NeedsPct:       DefaultNeedsPct,
		WantsPct:       DefaultWantsPct,
		ReservesPct:    DefaultReservesPct,
		InvestmentsPct: DefaultInvestmentsPct,
		Currency:       money.NormalizeCurrency(currency),
		IsDefault:      true,
	}
}

// Percentages returns the split in bucket order.
func (r *Rule) Percentages() []int {
	return []int{r.NeedsPct, r.WantsPct, r.ReservesPct, r.InvestmentsPct}
}

// Pct returns the percentage for a bucket.
func (r *Rule) Pct(b Bucket) int {
	switch b {
	case BucketNeeds:
		return r.NeedsPct
	case BucketWants:
		return r.WantsPct
	case BucketReserves:
		return r.ReservesPct
	case BucketInvestments:
		return r.InvestmentsPct
	}
	return 0
}

// Validate checks every percentage is in [0,100] and they sum to 100.
func (r *Rule) Validate() error {
	sum := 0
	for i, p := range r.Percentages() {
		if p < 0 || p > 100 {
			return common.Invalid(string(Buckets[i])+"_pct", "must be between 0 and 100")
		}
		sum += p
	}
	if sum != 100 {
		return common.Invalid("", "percentages must sum to 100, got %d", sum)
	}
	return nil
}

// Allocation holds per-bucket targets in minor units.
type Allocation struct {
	IncomeCents      int64  `json:"income_cents"`
	Currency         string `json:"currency"`
	NeedsCents       int64  `json:"needs_cents"`
	WantsCents       int64  `json:"wants_cents"`
	ReservesCents    int64  `json:"reserves_cents"`
	InvestmentsCents int64  `json:"investments_cents"`
}

// Get returns the target for a bucket.
func (a Allocation) Get(b Bucket) int64 {
	switch b {
	case BucketNeeds:
		return a.NeedsCents
	case BucketWants:
		return a.WantsCents
	case BucketReserves:
		return a.ReservesCents
	case BucketInvestments:
		return a.InvestmentsCents
	}
	return 0
}

// Total sums the bucket targets.
func (a Allocation) Total() int64 {
	return a.NeedsCents + a.WantsCents + a.ReservesCents + a.InvestmentsCents
}

// Allocate splits income across the buckets. The targets always sum to the
// income; leftover cents go to the earliest buckets with a non-zero share.
// Zero or negative income yields zero targets.
func Allocate(rule *Rule, incomeCents int64) (Allocation, error) {
	alloc := Allocation{Currency: rule.Currency}
	if incomeCents <= 0 {
		return alloc, nil
	}
	if err := rule.Validate(); err != nil {
		return alloc, err
	}
	alloc.IncomeCents = incomeCents

	pcts := rule.Percentages()
	ratios := make([]int, 0, len(pcts))
	index := make([]int, 0, len(pcts))
	for i, p := range pcts {
		if p > 0 {
			ratios = append(ratios, p)
			index = append(index, i)
		}
	}

	parts, err := money.New(incomeCents, rule.Currency).Allocate(ratios...)
	if err != nil {
		return alloc, fmt.Errorf("failed to allocate income: %w", err)
	}

	targets := make([]int64, len(pcts))
	for i, part := range parts {
		targets[index[i]] = part.Amount()
	}
	alloc.NeedsCents = targets[0]
	alloc.WantsCents = targets[1]
	alloc.ReservesCents = targets[2]
	alloc.InvestmentsCents = targets[3]
	return alloc, nil
}
