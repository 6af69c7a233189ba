package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateOrder tells how an all-numeric d/m date is read.
type DateOrder string

const (
	DayFirst   DateOrder = "day_first"
	MonthFirst DateOrder = "month_first"
)

var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006/01/02",
	"2006/01/02 15:04:05",
	"2006/01/02 15:04",
	"20060102",
}

var dayFirstLayouts = []string{
	"2/1/2006",
	"2.1.2006",
	"2-1-2006",
	"2/1/2006 15:04",
	"2/1/2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006 15:04:05",
	"2-1-2006 15:04",
	"2-1-2006 15:04:05",
	"2/1/06",
	"2.1.06",
}

var monthFirstLayouts = []string{
	"1/2/2006",
	"1-2-2006",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"1/2/06",
	// dotted dates are day-first everywhere
	"2.1.2006",
	"2.1.2006 15:04",
	"2.1.2006 15:04:05",
}

// DateParser parses statement dates into UTC calendar days.
type DateParser struct {
	// Layout, when set, is the only layout tried.
	Layout string
	Order  DateOrder
	// ExcelSerial accepts numeric Excel serial dates.
	ExcelSerial bool
}

func (p DateParser) Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if p.Layout != "" {
		t, err := time.Parse(p.Layout, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q does not match layout %q", s, p.Layout)
		}
		return day(t), nil
	}

	if p.ExcelSerial {
		if t, ok := excelSerialDate(s); ok {
			return t, nil
		}
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), nil
		}
	}

	layouts := dayFirstLayouts
	if p.Order == MonthFirst {
		layouts = monthFirstLayouts
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return day(t), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// detectDateOrder scans sample dates: a first field above 12 proves
// day-first, a second field above 12 proves month-first. Day-first wins
// when nothing is proven.
func detectDateOrder(samples []string) DateOrder {
	monthFirst := false
	for _, s := range samples {
		first, second, ok := leadingFields(s)
		if !ok {
			continue
		}
		if first > 12 && first <= 31 {
			return DayFirst
		}
		if second > 12 && second <= 31 {
			monthFirst = true
		}
	}
	if monthFirst {
		return MonthFirst
	}
	return DayFirst
}

// leadingFields returns the first two numeric fields of a d/m/y style date.
// ISO dates (four digit first field) and dotted dates are skipped.
func leadingFields(s string) (int, int, bool) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ".") {
		return 0, 0, false
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '/' || r == '-' || r == ' ' })
	if len(parts) < 3 || len(parts[0]) > 2 {
		return 0, 0, false
	}
	first, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	second, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return first, second, true
}
