// Package category manages the per-user income and expense categories.
package category

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
)

// Kind separates income from expense categories.
type Kind string

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
)

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindIncome, KindExpense:
		return k, nil
	}
	return "", common.Invalid("kind", "must be income or expense")
}

const (
	maxNameLength    = 64
	maxKeywords      = 100
	maxKeywordLength = 64
)

// Category groups transactions. Expense categories belong to a bucket.
type Category struct {
	ID        uuid.UUID      `json:"id"`
	UserID    uuid.UUID      `json:"user_id"`
	Name      string         `json:"name"`
	Kind      Kind           `json:"kind"`
	Bucket    *budget.Bucket `json:"bucket,omitempty"`
	Keywords  []string       `json:"keywords"`
	Color     string         `json:"color"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Input carries the writable fields of a category.
type Input struct {
	Name     string   `json:"name" yaml:"name"`
	Kind     string   `json:"kind" yaml:"kind"`
	Bucket   string   `json:"bucket" yaml:"bucket"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Color    string   `json:"color" yaml:"color"`
}

// normalize validates the input and returns the category fields it describes.
func (in Input) normalize() (*Category, error) {
	name := strings.Join(strings.Fields(in.Name), " ")
	if name == "" {
		return nil, common.Invalid("name", "is required")
	}
	if len(name) > maxNameLength {
		return nil, common.Invalid("name", "must be at most %d characters", maxNameLength)
	}

	kind, err := ParseKind(in.Kind)
	if err != nil {
		return nil, err
	}

	c := &Category{Name: name, Kind: kind, Color: strings.TrimSpace(in.Color)}
	switch kind {
	case KindExpense:
		b, err := budget.ParseBucket(in.Bucket)
		if err != nil {
			return nil, err
		}
		c.Bucket = &b
	case KindIncome:
		if strings.TrimSpace(in.Bucket) != "" {
			return nil, common.Invalid("bucket", "income categories have no bucket")
		}
	}

	keywords, err := NormalizeKeywords(in.Keywords)
	if err != nil {
		return nil, err
	}
	c.Keywords = keywords
	return c, nil
}

// NormalizeKeywords trims, lowercases, drops empties and de-duplicates.
func NormalizeKeywords(raw []string) ([]string, error) {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = strings.ToLower(strings.Join(strings.Fields(k), " "))
		if k == "" {
			continue
		}
		if len(k) > maxKeywordLength {
			return nil, common.Invalid("keywords", "keyword %q is longer than %d characters", k, maxKeywordLength)
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	if len(out) > maxKeywords {
		return nil, common.Invalid("keywords", "at most %d keywords", maxKeywords)
	}
	sort.Strings(out)
	return out, nil
}
