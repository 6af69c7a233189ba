package parser

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// preferredSheets are matched case-insensitively as substrings of sheet names.
var preferredSheets = []string{"transactions", "movimentos", "extrato", "statement"}

// ReadXLSX returns the non-blank rows of the statement sheet as records.
// Cells are read raw: numbers use '.' as the decimal separator and dates
// are Excel serial numbers, see Options.ExcelSerialDates.
func ReadXLSX(r io.Reader) ([]Record, string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := findStatementSheet(f.GetSheetList())
	if sheet == "" {
		return nil, "", fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, "", fmt.Errorf("failed to read sheet %s: %w", sheet, err)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := Record{Line: i + 1, Fields: row}
		if rec.Blank() {
			continue
		}
		records = append(records, rec)
	}
	return records, sheet, nil
}

func findStatementSheet(sheets []string) string {
	if len(sheets) == 0 {
		return ""
	}
	for _, preferred := range preferredSheets {
		for _, sheet := range sheets {
			if strings.Contains(strings.ToLower(sheet), preferred) {
				return sheet
			}
		}
	}
	return sheets[0]
}

// excelSerialDate converts an Excel serial day number to a calendar day.
func excelSerialDate(s string) (time.Time, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 1 || v >= 2958466 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(v, false)
	if err != nil {
		return time.Time{}, false
	}
	return day(t), true
}
