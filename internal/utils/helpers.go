package utils

import (
	"time"

	"github.com/shopspring/decimal"
)

// receiptDateLayouts covers the date shapes the extractor's pattern can
// capture: US-style M/D/Y and ISO-order Y/M/D, with slash or dash separators
// and 2- or 4-digit years. Ambiguous D/M vs M/D is resolved as M/D, matching
// the en-US locale of the OCR corpus.
var receiptDateLayouts = []string{
	"2006-01-02",
	"2006-1-2",
	"2006/1/2",
	"1/2/2006",
	"1-2-2006",
	"1/2/06",
	"1-2-06",
}

// ParseReceiptDate parses a date string as captured by the field extractor.
// The second return is false when no known layout matches.
func ParseReceiptDate(s string) (time.Time, bool) {
	for _, layout := range receiptDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseYMD parses a strict YYYY-MM-DD date.
func ParseYMD(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// FormatMoney renders an amount with two-place currency precision.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func StrOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
