package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Locale decides the meaning of a lone separator followed by exactly three
// digits, which is the only case the amount text itself cannot settle.
type Locale string

const (
	// LocaleAuto reads 1,234 and 1.234 as thousands.
	LocaleAuto Locale = "auto"
	// LocaleDot uses '.' as the decimal separator.
	LocaleDot Locale = "dot"
	// LocaleComma uses ',' as the decimal separator.
	LocaleComma Locale = "comma"
)

// ParseLocale reads a locale option. An empty string yields "", which asks
// the parser to detect the locale from the file.
func ParseLocale(s string) (Locale, error) {
	switch l := Locale(strings.ToLower(strings.TrimSpace(s))); l {
	case "", LocaleAuto, LocaleDot, LocaleComma:
		return l, nil
	}
	return "", fmt.Errorf("unknown locale %q", s)
}

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount turns statement amount text into an exact decimal.
//
// Currency symbols and codes, spaces (including NBSP) and apostrophes are
// removed. A leading or trailing '-', surrounding parentheses or a DR suffix
// make the value negative; a CR suffix keeps it positive.
func ParseAmount(raw string, locale Locale) (decimal.Decimal, error) {
	s := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r), r == '\'', r == '’':
			return -1
		case unicode.Is(unicode.Sc, r):
			return -1
		case r == '−':
			return '-'
		}
		return r
	}, raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}

	negative := false

	body, suffix := trimLetters(s, false)
	if upper := strings.ToUpper(suffix); len(upper) == 2 || len(upper) == 5 {
		switch {
		case strings.HasSuffix(upper, "DR"):
			negative = true
			suffix = suffix[:len(suffix)-2]
		case strings.HasSuffix(upper, "CR"):
			suffix = suffix[:len(suffix)-2]
		}
	}
	body, prefix := trimLetters(body, true)
	if len(suffix) > 3 || len(prefix) > 3 {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	s = body

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	switch {
	case strings.HasPrefix(s, "-"):
		negative = true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		negative = true
		s = s[:len(s)-1]
	}

	number, err := normalizeNumber(s, locale)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", err, raw)
	}
	d, err := decimal.NewFromString(number)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseAmountCents is ParseAmount rounded half away from zero to cents.
func ParseAmountCents(raw string, locale Locale) (int64, error) {
	d, err := ParseAmount(raw, locale)
	if err != nil {
		return 0, err
	}
	return d.Shift(2).Round(0).IntPart(), nil
}

func trimLetters(s string, leading bool) (string, string) {
	isLetter := func(r rune) bool { return unicode.IsLetter(r) }
	if leading {
		rest := strings.TrimLeftFunc(s, isLetter)
		return rest, s[:len(s)-len(rest)]
	}
	rest := strings.TrimRightFunc(s, isLetter)
	return rest, s[len(rest):]
}

// normalizeNumber resolves the decimal and thousands separators and returns
// a plain "1234.56" string.
func normalizeNumber(s string, locale Locale) (string, error) {
	if s == "" {
		return "", ErrInvalidAmount
	}
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == ',':
		default:
			return "", ErrInvalidAmount
		}
	}
	if digits == 0 {
		return "", ErrInvalidAmount
	}

	dots := strings.Count(s, ".")
	commas := strings.Count(s, ",")

	var decimalSep, thousandsSep byte
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
			decimalSep, thousandsSep = ',', '.'
		} else {
			decimalSep, thousandsSep = '.', ','
		}
		if strings.Count(s, string(decimalSep)) > 1 {
			return "", ErrInvalidAmount
		}
	case dots+commas == 0:
		return s, nil
	default:
		sep := byte('.')
		if commas > 0 {
			sep = ','
		}
		switch {
		case dots+commas > 1:
			thousandsSep = sep
		case len(s)-strings.IndexByte(s, sep)-1 == 3 && validGrouping(s, sep):
			switch locale {
			case LocaleDot:
				if sep == '.' {
					decimalSep = sep
				} else {
					thousandsSep = sep
				}
			case LocaleComma:
				if sep == ',' {
					decimalSep = sep
				} else {
					thousandsSep = sep
				}
			default:
				thousandsSep = sep
			}
		default:
			decimalSep = sep
		}
	}

	intPart, fracPart := s, ""
	if decimalSep != 0 {
		idx := strings.IndexByte(s, decimalSep)
		intPart, fracPart = s[:idx], s[idx+1:]
	}
	if thousandsSep != 0 {
		if !validGrouping(intPart, thousandsSep) {
			return "", ErrInvalidAmount
		}
		intPart = strings.ReplaceAll(intPart, string(thousandsSep), "")
	}
	if intPart == "" {
		intPart = "0"
	}
	if fracPart == "" {
		return intPart, nil
	}
	return intPart + "." + fracPart, nil
}

// validGrouping reports whether s is digits grouped by sep as 1-3 leading
// digits followed by groups of exactly three. A leading group of "0" is not
// a thousands grouping.
func validGrouping(s string, sep byte) bool {
	groups := strings.Split(s, string(sep))
	if len(groups) < 2 {
		return true
	}
	first := groups[0]
	if len(first) == 0 || len(first) > 3 || first[0] == '0' {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// detectLocale votes over sample amounts. Values that are ambiguous on their
// own do not vote; a tie yields LocaleAuto.
func detectLocale(samples []string) Locale {
	dot, comma := 0, 0
	for _, raw := range samples {
		s := strings.Map(func(r rune) rune {
			if (r >= '0' && r <= '9') || r == '.' || r == ',' {
				return r
			}
			return -1
		}, raw)
		dots := strings.Count(s, ".")
		commas := strings.Count(s, ",")
		switch {
		case dots > 0 && commas > 0:
			if strings.LastIndex(s, ",") > strings.LastIndex(s, ".") {
				comma++
			} else {
				dot++
			}
		case dots > 1:
			comma++
		case commas > 1:
			dot++
		case dots == 1:
			if len(s)-strings.IndexByte(s, '.')-1 != 3 {
				dot++
			}
		case commas == 1:
			if len(s)-strings.IndexByte(s, ',')-1 != 3 {
				comma++
			}
		}
	}
	switch {
	case comma > dot:
		return LocaleComma
	case dot > comma:
		return LocaleDot
	}
	return LocaleAuto
}
