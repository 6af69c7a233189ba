// Package parser turns bank statement records into dated, signed amounts.
// It holds the quote-aware tokenizer, the locale-aware amount parser, date
// detection and the XLSX reader.
package parser

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxDescriptionLength matches the transaction description limit.
const MaxDescriptionLength = 500

// Columns maps record positions to transaction fields. -1 means absent.
type Columns struct {
	Date        int `json:"date"`
	Description int `json:"description"`
	Amount      int `json:"amount"`
	Debit       int `json:"debit"`
	Credit      int `json:"credit"`
	Category    int `json:"category"`
}

// NoColumns has every column unset.
func NoColumns() Columns {
	return Columns{Date: -1, Description: -1, Amount: -1, Debit: -1, Credit: -1, Category: -1}
}

// Validate checks that a date, a description and some amount column are set.
func (c Columns) Validate() error {
	switch {
	case c.Date < 0:
		return fmt.Errorf("no date column")
	case c.Description < 0:
		return fmt.Errorf("no description column")
	case c.Amount < 0 && c.Debit < 0 && c.Credit < 0:
		return fmt.Errorf("no amount column")
	}
	return nil
}

// Options configures row parsing. Zero values mean detect.
type Options struct {
	Locale     Locale
	DateLayout string
	DateOrder  DateOrder
	// ExcelSerialDates is set for XLSX sources.
	ExcelSerialDates bool
}

// Row is a successfully parsed statement line.
type Row struct {
	Line        int       `json:"line"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	// AmountCents is positive for money in and negative for money out.
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category,omitempty"`
}

// RowError describes a rejected statement line.
type RowError struct {
	Row     int    `json:"row"`
	Column  string `json:"column,omitempty"`
	Message string `json:"message"`
}

func (e RowError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// Result is the outcome of parsing the data records of one file.
type Result struct {
	Rows   []Row
	Errors []RowError
	// Skipped counts records without a date, such as balance footers.
	Skipped   int
	Locale    Locale
	DateOrder DateOrder
}

// Total is the number of data rows that were either parsed or rejected.
func (r *Result) Total() int {
	return len(r.Rows) + len(r.Errors)
}

// Parser maps data records through Columns.
type Parser struct {
	cols Columns
	opts Options
}

func New(cols Columns, opts Options) (*Parser, error) {
	if err := cols.Validate(); err != nil {
		return nil, err
	}
	return &Parser{cols: cols, opts: opts}, nil
}

// Parse converts data records (header excluded). Locale and date order are
// detected from the records unless set in Options; an explicit LocaleAuto
// is kept as is. A row that fails is
// reported in Result.Errors and parsing continues.
func (p *Parser) Parse(records []Record) *Result {
	locale := p.opts.Locale
	if locale == "" {
		locale = detectLocale(p.samples(records, p.cols.Amount, p.cols.Debit, p.cols.Credit))
	}
	order := p.opts.DateOrder
	if order == "" && p.opts.DateLayout == "" {
		order = detectDateOrder(p.samples(records, p.cols.Date))
	}

	result := &Result{Locale: locale, DateOrder: order}
	dates := DateParser{Layout: p.opts.DateLayout, Order: order, ExcelSerial: p.opts.ExcelSerialDates}

	for _, rec := range records {
		if rec.Blank() {
			continue
		}
		row, rowErr := p.parseRecord(rec, dates, locale)
		switch {
		case rowErr != nil:
			result.Errors = append(result.Errors, *rowErr)
		case row == nil:
			result.Skipped++
		default:
			result.Rows = append(result.Rows, *row)
		}
	}
	return result
}

func (p *Parser) samples(records []Record, cols ...int) []string {
	const maxSamples = 50
	var out []string
	for _, rec := range records {
		for _, c := range cols {
			if v := rec.Field(c); v != "" {
				out = append(out, v)
			}
		}
		if len(out) >= maxSamples {
			break
		}
	}
	return out
}

func (p *Parser) parseRecord(rec Record, dates DateParser, locale Locale) (*Row, *RowError) {
	fail := func(column, format string, args ...any) *RowError {
		return &RowError{Row: rec.Line, Column: column, Message: fmt.Sprintf(format, args...)}
	}

	dateStr := rec.Field(p.cols.Date)
	if dateStr == "" {
		return nil, nil
	}
	date, err := dates.Parse(dateStr)
	if err != nil {
		return nil, fail("date", "%s", err.Error())
	}

	desc := CleanDescription(rec.Field(p.cols.Description))
	if desc == "" {
		return nil, fail("description", "missing description")
	}

	var cents int64
	if p.cols.Amount >= 0 {
		raw := rec.Field(p.cols.Amount)
		if raw == "" {
			return nil, fail("amount", "missing amount")
		}
		cents, err = ParseAmountCents(raw, locale)
		if err != nil {
			return nil, fail("amount", "%s", err.Error())
		}
	} else {
		var column string
		cents, column, err = p.debitCredit(rec, locale)
		if err != nil {
			return nil, fail(column, "%s", err.Error())
		}
	}
	if cents == 0 {
		return nil, fail("amount", "amount is zero")
	}

	return &Row{
		Line:        rec.Line,
		Date:        date,
		Description: desc,
		AmountCents: cents,
		Category:    rec.Field(p.cols.Category),
	}, nil
}

// debitCredit reads split columns: a debit is money out whatever its sign,
// a credit is money in.
func (p *Parser) debitCredit(rec Record, locale Locale) (int64, string, error) {
	debit := rec.Field(p.cols.Debit)
	credit := rec.Field(p.cols.Credit)
	if debit == "" && credit == "" {
		return 0, "amount", fmt.Errorf("no amount found")
	}

	if debit != "" {
		cents, err := ParseAmountCents(debit, locale)
		if err != nil {
			return 0, "debit", err
		}
		if cents != 0 {
			if cents > 0 {
				cents = -cents
			}
			return cents, "debit", nil
		}
	}
	if credit != "" {
		cents, err := ParseAmountCents(credit, locale)
		if err != nil {
			return 0, "credit", err
		}
		if cents < 0 {
			cents = -cents
		}
		return cents, "credit", nil
	}
	return 0, "amount", nil
}

// CleanDescription collapses whitespace and caps the length.
func CleanDescription(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > MaxDescriptionLength {
		s = string([]rune(s)[:MaxDescriptionLength])
	}
	return s
}
