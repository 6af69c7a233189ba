// Package transaction records income and expense entries.
package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/common"
	"github.com/FACorreiaa/split-budget/internal/domain/budget"
)

// Type is the direction of a transaction.
type Type string

const (
	TypeIncome  Type = "income"
	TypeExpense Type = "expense"
)

// ParseType validates a transaction type.
func ParseType(s string) (Type, error) {
	switch t := Type(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeIncome, TypeExpense:
		return t, nil
	}
	return "", common.Invalid("type", "must be income or expense")
}

// Source records how a transaction was created.
type Source string

const (
	SourceManual Source = "manual"
	SourceImport Source = "import"
)

// DateLayout is the wire format of OccurredOn.
const DateLayout = "2006-01-02"

const (
	maxDescriptionLength = 500
	maxNotesLength       = 2000
)

// Transaction is a single income or expense. AmountCents is always positive;
// Type carries the sign.
type Transaction struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	CategoryID   *uuid.UUID     `json:"category_id,omitempty"`
	CategoryName *string        `json:"category_name,omitempty"`
	Bucket       *budget.Bucket `json:"bucket,omitempty"`
	Type         Type           `json:"type"`
	AmountCents  int64          `json:"amount_cents"`
	Currency     string         `json:"currency"`
	Description  string         `json:"description"`
	OccurredOn   time.Time      `json:"occurred_on"`
	Notes        string         `json:"notes"`
	Source       Source         `json:"source"`
	ImportID     *uuid.UUID     `json:"import_id,omitempty"`
	DedupKey     string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// SignedCents returns the amount negative for expenses.
func (t *Transaction) SignedCents() int64 {
	if t.Type == TypeExpense {
		return -t.AmountCents
	}
	return t.AmountCents
}

// NormalizeDescription lowercases, trims and collapses whitespace.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// DedupKey identifies a transaction by user, signed amount, day and
// normalized description.
func DedupKey(userID uuid.UUID, signedCents int64, occurredOn time.Time, description string) string {
	h := sha256.New()
	h.Write([]byte(userID.String()))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(signedCents, 10)))
	h.Write([]byte{0})
	h.Write([]byte(occurredOn.Format(DateLayout)))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeDescription(description)))
	return hex.EncodeToString(h.Sum(nil))
}

// Date truncates t to a UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Input carries the writable fields of a manual transaction.
type Input struct {
	CategoryID  *uuid.UUID `json:"category_id"`
	Type        string     `json:"type"`
	Amount      string     `json:"amount"`
	Currency    string     `json:"currency"`
	Description string     `json:"description"`
	OccurredOn  string     `json:"occurred_on"`
	Notes       string     `json:"notes"`
}

// Filter narrows List and Export.
type Filter struct {
	From       *time.Time
	To         *time.Time
	CategoryID *uuid.UUID
	// Uncategorized selects transactions without a category.
	Uncategorized bool
	Type          *Type
	Text          string
	ImportID      *uuid.UUID
	Limit         int
	Offset        int
}

const (
	DefaultLimit = 50
	MaxLimit     = 500
)
