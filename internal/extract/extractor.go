// Package extract turns raw OCR text into structured receipt fields using
// line-oriented regular-expression heuristics. Extraction is best effort:
// every field is optional and absence is an expected state, never an error.
package extract

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ReceiptFields is the structured extraction result. Date and time are kept
// in whatever format the source text used; no normalization is guaranteed.
type ReceiptFields struct {
	TotalAmount     *decimal.Decimal `json:"total_amount,omitempty"`
	MerchantName    string           `json:"merchant_name,omitempty"`
	MerchantAddress string           `json:"merchant_address,omitempty"`
	TransactionDate string           `json:"transaction_date,omitempty"`
	TransactionTime string           `json:"transaction_time,omitempty"`
	TaxAmount       *decimal.Decimal `json:"tax_amount,omitempty"`
	SubtotalAmount  *decimal.Decimal `json:"subtotal_amount,omitempty"`
	Items           []string         `json:"items,omitempty"`
}

// rule is one named extraction heuristic. Rules are independent; each reads
// the shared line slice and fills at most its own fields.
type rule struct {
	name  string
	apply func(lines []string, out *ReceiptFields)
}

// rules run in order. The total fallback must follow the labeled total since
// it only fires when the labeled rule found nothing.
var rules = []rule{
	{"total", extractTotal},
	{"total-fallback", extractTotalFallback},
	{"date", extractDate},
	{"time", extractTime},
	{"tax", extractTax},
	{"subtotal", extractSubtotal},
	{"merchant", extractMerchant},
	{"items", extractItems},
}

// Extract parses raw OCR text into receipt fields. It is a pure function: no
// I/O, no hidden state, identical input yields identical output.
func Extract(text string) ReceiptFields {
	lines := splitLines(text)
	var out ReceiptFields
	for _, r := range rules {
		r.apply(lines, &out)
	}
	return out
}

// splitLines breaks text into trimmed, non-empty lines, preserving order.
func splitLines(text string) []string {
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
