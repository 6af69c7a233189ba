package parser

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// Record is one delimited record together with the physical line it started on.
type Record struct {
	Line   int
	Fields []string
}

// Blank reports whether every field is empty after trimming.
func (r Record) Blank() bool {
	for _, f := range r.Fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// Field returns the trimmed field at idx, or "" when idx is out of range.
func (r Record) Field(idx int) string {
	if idx < 0 || idx >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[idx])
}

type tokenState int

const (
	stateFieldStart tokenState = iota
	stateUnquoted
	stateQuoted
	stateAfterQuote
)

// Tokenizer splits delimited text into records.
//
// A delimiter inside a quoted field is literal, "" inside quotes is an escaped
// quote and quoted fields may span line breaks. Whitespace around a quoted
// field is dropped. An unterminated quote consumes the rest of the input.
// Blank lines are skipped. CRLF, LF and lone CR all end a record.
type Tokenizer struct {
	r     *bufio.Reader
	delim rune
	line  int
	start int
}

func NewTokenizer(r io.Reader, delim rune) *Tokenizer {
	if delim == 0 {
		delim = ','
	}
	return &Tokenizer{r: bufio.NewReader(r), delim: delim, line: 1}
}

// Line returns the line on which the last record returned by Next started.
func (t *Tokenizer) Line() int {
	return t.start
}

// Next returns the fields of the next non-blank record, or io.EOF.
func (t *Tokenizer) Next() ([]string, error) {
	for {
		fields, err := t.readRecord()
		if err != nil {
			return nil, err
		}
		if fields != nil {
			return fields, nil
		}
	}
}

// ReadAll tokenizes the remaining input.
func (t *Tokenizer) ReadAll() ([]Record, error) {
	var records []Record
	for {
		fields, err := t.Next()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, Record{Line: t.start, Fields: fields})
	}
}

// readRune folds CRLF and CR into '\n'.
func (t *Tokenizer) readRune() (rune, error) {
	r, _, err := t.r.ReadRune()
	if err != nil {
		return 0, err
	}
	if r == '\r' {
		if next, _, err := t.r.ReadRune(); err == nil && next != '\n' {
			_ = t.r.UnreadRune()
		}
		r = '\n'
	}
	return r, nil
}

// readRecord returns nil fields for a blank line.
func (t *Tokenizer) readRecord() ([]string, error) {
	var (
		fields []string
		field  strings.Builder
		lead   strings.Builder
		state  = stateFieldStart
		read   bool
	)
	t.start = t.line

	emit := func() {
		if state == stateFieldStart {
			fields = append(fields, lead.String())
		} else {
			fields = append(fields, field.String())
		}
		field.Reset()
		lead.Reset()
		state = stateFieldStart
	}

	for {
		r, err := t.readRune()
		if errors.Is(err, io.EOF) {
			if !read {
				return nil, io.EOF
			}
			if fields == nil && state == stateFieldStart && strings.TrimSpace(lead.String()) == "" {
				return nil, nil
			}
			emit()
			return fields, nil
		}
		if err != nil {
			return nil, err
		}
		read = true

		switch state {
		case stateFieldStart:
			switch {
			case r == '"':
				lead.Reset()
				state = stateQuoted
			case r == t.delim:
				emit()
			case r == '\n':
				t.line++
				if fields == nil && strings.TrimSpace(lead.String()) == "" {
					return nil, nil
				}
				emit()
				return fields, nil
			case r == ' ' || r == '\t':
				lead.WriteRune(r)
			default:
				field.WriteString(lead.String())
				lead.Reset()
				field.WriteRune(r)
				state = stateUnquoted
			}

		case stateUnquoted:
			switch r {
			case t.delim:
				emit()
			case '\n':
				t.line++
				emit()
				return fields, nil
			default:
				field.WriteRune(r)
			}

		case stateQuoted:
			switch r {
			case '"':
				next, _, err := t.r.ReadRune()
				switch {
				case err == nil && next == '"':
					field.WriteRune('"')
				default:
					if err == nil {
						_ = t.r.UnreadRune()
					}
					state = stateAfterQuote
				}
			case '\n':
				t.line++
				field.WriteRune('\n')
			default:
				field.WriteRune(r)
			}

		case stateAfterQuote:
			switch {
			case r == t.delim:
				emit()
			case r == '\n':
				t.line++
				emit()
				return fields, nil
			case r == ' ' || r == '\t':
			default:
				field.WriteRune(r)
			}
		}
	}
}
