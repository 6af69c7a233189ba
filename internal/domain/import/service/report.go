package service

import (
	"time"

	"github.com/google/uuid"

	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
	"github.com/FACorreiaa/split-budget/internal/domain/import/repository"
	"github.com/FACorreiaa/split-budget/internal/domain/transaction"
)

// RowStatus tells what happens (or happened) to a parsed row.
type RowStatus string

const (
	RowNew       RowStatus = "new"
	RowDuplicate RowStatus = "duplicate"
)

// ReportRow is one parsed statement line.
type ReportRow struct {
	Line        int              `json:"line"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Type        transaction.Type `json:"type"`
	AmountCents int64            `json:"amount_cents"`
	CategoryID  *uuid.UUID       `json:"category_id,omitempty"`
	Confidence  float64          `json:"confidence,omitempty"`
	Status      RowStatus        `json:"status"`

	dedupKey   string
	occurredOn time.Time
}

// Report describes how a statement was read and what the import did.
// Every data row lands in exactly one of imported, duplicate or failed;
// skipped rows (such as balance footers) are outside the total.
type Report struct {
	ImportID      *uuid.UUID        `json:"import_id,omitempty"`
	Status        repository.Status `json:"status,omitempty"`
	FileName      string            `json:"file_name"`
	FileType      string            `json:"file_type"`
	Encoding      string            `json:"encoding,omitempty"`
	Sheet         string            `json:"sheet,omitempty"`
	Delimiter     string            `json:"delimiter,omitempty"`
	HeaderRow     int               `json:"header_row"`
	Headers       []string          `json:"headers"`
	Columns       parser.Columns    `json:"columns"`
	Locale        parser.Locale     `json:"locale"`
	DateOrder     parser.DateOrder  `json:"date_order,omitempty"`
	Fingerprint   string            `json:"fingerprint"`
	Currency      string            `json:"currency"`
	RowsTotal     int               `json:"rows_total"`
	RowsImported  int               `json:"rows_imported"`
	RowsDuplicate int               `json:"rows_duplicate"`
	RowsFailed    int               `json:"rows_failed"`
	RowsSkipped   int               `json:"rows_skipped"`
	Errors        []parser.RowError `json:"errors"`
	Rows          []ReportRow       `json:"rows,omitempty"`
}

// markExisting flags rows whose key is already stored and returns how
// many new rows remain.
func (r *Report) markExisting(existing map[string]bool) int {
	fresh := 0
	for i := range r.Rows {
		row := &r.Rows[i]
		if row.Status == RowNew && existing[row.dedupKey] {
			row.Status = RowDuplicate
		}
		if row.Status == RowNew {
			fresh++
		}
	}
	return fresh
}

// earliestNew returns the first day among rows still marked new.
func (r *Report) earliestNew() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, row := range r.Rows {
		if row.Status != RowNew {
			continue
		}
		if !found || row.occurredOn.Before(earliest) {
			earliest, found = row.occurredOn, true
		}
	}
	return earliest, found
}

// newTransactions builds the transactions for rows still marked new.
func (r *Report) newTransactions(userID uuid.UUID) []*transaction.Transaction {
	txs := make([]*transaction.Transaction, 0, len(r.Rows))
	for _, row := range r.Rows {
		if row.Status != RowNew {
			continue
		}
		txs = append(txs, &transaction.Transaction{
			UserID:      userID,
			CategoryID:  row.CategoryID,
			Type:        row.Type,
			AmountCents: row.AmountCents,
			Currency:    r.Currency,
			Description: row.Description,
			OccurredOn:  row.occurredOn,
			Source:      transaction.SourceImport,
			DedupKey:    row.dedupKey,
		})
	}
	return txs
}
