// Package sniffer detects the layout of a bank statement: text encoding,
// delimiter, header row and the columns that carry transaction fields.
package sniffer

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/FACorreiaa/split-budget/internal/domain/import/parser"
)

// Common bank statement header keywords (multi-language)
var headerKeywords = []string{
	// Portuguese
	"data mov", "data valor", "descrição", "descricao", "débito", "debito", "crédito", "credito",
	"montante", "saldo", "categoria", "valor",
	// English
	"date", "description", "amount", "debit", "credit", "balance", "category", "merchant",
	"payee", "memo",
	// Spanish
	"fecha", "descripción", "descripcion", "importe", "cargo", "abono", "concepto",
}

var delimiters = []rune{';', '\t', ',', '|'}

const (
	maxSampleLines = 30
	maxHeaderScan  = 20
	maxSampleRows  = 5
)

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// Encoding names reported by Decode.
const (
	EncodingUTF8   = "utf-8"
	EncodingLatin1 = "latin-1"
)

// FileConfig holds the detected layout of a statement.
type FileConfig struct {
	Delimiter rune
	// HeaderRow indexes Records; records before it are preamble.
	HeaderRow   int
	Headers     []string
	Fingerprint string
	Columns     parser.Columns
	Records     []parser.Record
}

// DataRecords returns the records after the header row.
func (c *FileConfig) DataRecords() []parser.Record {
	if c.HeaderRow+1 >= len(c.Records) {
		return nil
	}
	return c.Records[c.HeaderRow+1:]
}

// SampleRows returns up to five data rows for previews.
func (c *FileConfig) SampleRows() [][]string {
	data := c.DataRecords()
	if len(data) > maxSampleRows {
		data = data[:maxSampleRows]
	}
	rows := make([][]string, len(data))
	for i, r := range data {
		rows[i] = r.Fields
	}
	return rows
}

// DetectOptions allows callers to override header row or delimiter detection.
type DetectOptions struct {
	// HeaderRow is a 0-based record index for the header row. -1 auto-detects.
	HeaderRow int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

// Decode strips a UTF-8 BOM and converts Latin-1 (Windows-1252) input to UTF-8.
func Decode(data []byte) ([]byte, string) {
	data = bytes.TrimPrefix(data, []byte("\xEF\xBB\xBF"))
	if utf8.Valid(data) {
		return data, EncodingUTF8
	}
	decoded, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return bytes.ToValidUTF8(data, []byte("�")), EncodingUTF8
	}
	return decoded, EncodingLatin1
}

// DetectConfig analyzes delimited text that has already been through Decode.
func DetectConfig(data []byte, opts *DetectOptions) (*FileConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var delimiter rune
	if opts != nil && opts.Delimiter != 0 {
		delimiter = opts.Delimiter
	} else {
		delimiter = detectDelimiter(sampleLines(string(data)))
		if delimiter == 0 {
			return nil, ErrInvalidDelimiter
		}
	}

	records, err := parser.NewTokenizer(bytes.NewReader(data), delimiter).ReadAll()
	if err != nil {
		return nil, err
	}

	cfg, err := DetectRecords(records, opts)
	if err != nil {
		return nil, err
	}
	cfg.Delimiter = delimiter
	return cfg, nil
}

// DetectRecords finds the header row and columns in already split records,
// such as the rows of a spreadsheet.
func DetectRecords(records []parser.Record, opts *DetectOptions) (*FileConfig, error) {
	if len(records) == 0 {
		return nil, ErrEmptyFile
	}

	headerRow := -1
	if opts != nil && opts.HeaderRow >= 0 {
		if opts.HeaderRow >= len(records) {
			return nil, ErrNoHeadersFound
		}
		headerRow = opts.HeaderRow
	} else {
		headerRow = findHeaderRow(records)
		if headerRow < 0 {
			return nil, ErrNoHeadersFound
		}
	}

	headers := make([]string, len(records[headerRow].Fields))
	for i, h := range records[headerRow].Fields {
		headers[i] = strings.TrimSpace(h)
	}

	return &FileConfig{
		HeaderRow:   headerRow,
		Headers:     headers,
		Fingerprint: generateFingerprint(headers),
		Columns:     SuggestColumns(headers),
		Records:     records,
	}, nil
}

// SuggestColumns attempts to auto-match columns based on header names.
// Separate debit and credit columns win over a single amount column.
func SuggestColumns(headers []string) parser.Columns {
	cols := parser.NoColumns()

	for i, header := range headers {
		h := strings.ToLower(strings.TrimSpace(header))

		switch {
		case cols.Date == -1 && (containsAny(h, "data mov", "date", "fecha", "datum") || h == "data" || strings.HasPrefix(h, "data ")):
			cols.Date = i
		case cols.Description == -1 && (containsAny(h, "descri", "merchant", "payee", "memo", "details", "narrative", "concepto") || h == "nome" || h == "name"):
			cols.Description = i
		case cols.Debit == -1 && containsAny(h, "débito", "debito", "debit", "cargo", "withdrawal", "money out"):
			cols.Debit = i
		case cols.Credit == -1 && containsAny(h, "crédito", "credito", "credit", "abono", "deposit", "money in"):
			cols.Credit = i
		case cols.Amount == -1 && (containsAny(h, "amount", "importe", "montante", "montant") || h == "valor" || h == "value"):
			cols.Amount = i
		case cols.Category == -1 && containsAny(h, "categ"):
			cols.Category = i
		}
	}

	if cols.Debit != -1 && cols.Credit != -1 {
		cols.Amount = -1
	} else if cols.Amount != -1 {
		cols.Debit, cols.Credit = -1, -1
	}
	return cols
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// findHeaderRow scores the first records by how many cells carry a header
// keyword. Without any keyword row it falls back to the first record that
// has the file's most common field count.
func findHeaderRow(records []parser.Record) int {
	best, bestScore := -1, 0
	counts := make(map[int]int)

	for i, rec := range records {
		if i >= maxHeaderScan {
			break
		}
		counts[len(rec.Fields)]++
		if len(rec.Fields) < 2 {
			continue
		}
		score := 0
		for _, cell := range rec.Fields {
			cell = strings.ToLower(strings.TrimSpace(cell))
			for _, kw := range headerKeywords {
				if strings.Contains(cell, kw) {
					score++
					break
				}
			}
		}
		if score >= 2 && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return best
	}

	mode, freq := 0, 0
	for n, c := range counts {
		if n >= 2 && (c > freq || (c == freq && n > mode)) {
			mode, freq = n, c
		}
	}
	for i, rec := range records {
		if len(rec.Fields) == mode {
			return i
		}
	}
	return -1
}

// sampleLines returns the first non-blank physical lines.
func sampleLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) >= maxSampleLines {
			break
		}
	}
	return lines
}

// detectDelimiter picks the candidate whose quote-aware field count is the
// same on the most lines. Ties keep the earlier candidate.
func detectDelimiter(lines []string) rune {
	best, bestFreq := rune(0), 0
	for _, d := range delimiters {
		counts := make(map[int]int)
		for _, line := range lines {
			fields, err := parser.NewTokenizer(strings.NewReader(line), d).Next()
			if err != nil || len(fields) < 2 {
				continue
			}
			counts[len(fields)]++
		}
		freq := 0
		for _, c := range counts {
			if c > freq {
				freq = c
			}
		}
		if freq > bestFreq {
			best, bestFreq = d, freq
		}
	}
	return best
}

// generateFingerprint creates a unique hash from header names
func generateFingerprint(headers []string) string {
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	hash := sha256.Sum256([]byte(strings.Join(normalized, "|")))
	return hex.EncodeToString(hash[:])
}
