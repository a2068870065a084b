package extract

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Line-oriented patterns over flat OCR text. Receipts word the grand total
// many ways ("TOTAL", "Amount Due", "Balance"), and "subtotal" contains
// "total", so the labeled-total cue deliberately over-matches and the rule
// resolves collisions by taking the largest plausible value.
var (
	reLabeledTotal = regexp.MustCompile(`(?i)(?:total|amount|sum|due|balance)[:\s]*\$?(\d+\.?\d*)`)
	reBareAmount   = regexp.MustCompile(`\$?\d+\.\d{2}`)
	reDate         = regexp.MustCompile(`(\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4})|(\d{4}[/\-]\d{1,2}[/\-]\d{1,2})`)
	reTime         = regexp.MustCompile(`(?i)(\d{1,2}:\d{2}(?::\d{2})?\s*(?:AM|PM)?)`)
	reTax          = regexp.MustCompile(`(?i)(?:tax|sales\s*tax|vat)[:\s]*\$?(\d+\.?\d*)`)
	reSubtotal     = regexp.MustCompile(`(?i)(?:subtotal|sub\s*total)[:\s]*\$?(\d+\.?\d*)`)
	rePriceToken   = regexp.MustCompile(`\$?\d+\.?\d*`)
	reDigit        = regexp.MustCompile(`\d`)
)

const (
	// maxPlausibleAmount bounds what a single consumer receipt can total;
	// anything at or above it is treated as an OCR misread and dropped.
	maxPlausibleAmount = 10000

	merchantScanLines = 8
	maxItems          = 15
)

// parseAmount converts a regex-captured number into a decimal. The loose
// capture group can yield trailing-dot forms like "12."; those are valid
// matches in the source patterns, so trim rather than reject.
func parseAmount(s string) (decimal.Decimal, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), ".")
	if s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func plausible(d decimal.Decimal) bool {
	return d.IsPositive() && d.LessThan(decimal.NewFromInt(maxPlausibleAmount))
}

// extractTotal applies the labeled-total cue to every line and keeps the
// maximum plausible match. "Largest plausible" wins over "first" because the
// cue also hits subtotal and line-item labels containing the word; the grand
// total is assumed to be the largest labeled amount on the receipt.
func extractTotal(lines []string, out *ReceiptFields) {
	var best decimal.Decimal
	found := false
	for _, line := range lines {
		m := reLabeledTotal.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		v, ok := parseAmount(m[1])
		if !ok || !plausible(v) {
			continue
		}
		if !found || v.GreaterThan(best) {
			best = v
			found = true
		}
	}
	if found {
		out.TotalAmount = &best
	}
}

// extractTotalFallback scans for bare $d+.dd tokens when no labeled total was
// found, again keeping the maximum plausible value across the whole text.
func extractTotalFallback(lines []string, out *ReceiptFields) {
	if out.TotalAmount != nil {
		return
	}
	var best decimal.Decimal
	found := false
	for _, line := range lines {
		for _, tok := range reBareAmount.FindAllString(line, -1) {
			v, ok := parseAmount(strings.TrimPrefix(tok, "$"))
			if !ok || !plausible(v) {
				continue
			}
			if !found || v.GreaterThan(best) {
				best = v
				found = true
			}
		}
	}
	if found {
		out.TotalAmount = &best
	}
}

// extractDate takes the first date-looking match in line order. Calendar
// correctness is not checked; the value is kept as captured.
func extractDate(lines []string, out *ReceiptFields) {
	for _, line := range lines {
		if m := reDate.FindString(line); m != "" {
			out.TransactionDate = m
			return
		}
	}
}

func extractTime(lines []string, out *ReceiptFields) {
	for _, line := range lines {
		if m := reTime.FindString(line); m != "" {
			out.TransactionTime = strings.TrimSpace(m)
			return
		}
	}
}

// extractTax and extractSubtotal are first-match rules; unlike the total they
// apply no range filter and no max-across-matches resolution.
func extractTax(lines []string, out *ReceiptFields) {
	for _, line := range lines {
		if m := reTax.FindStringSubmatch(line); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				out.TaxAmount = &v
				return
			}
		}
	}
}

func extractSubtotal(lines []string, out *ReceiptFields) {
	for _, line := range lines {
		if m := reSubtotal.FindStringSubmatch(line); m != nil {
			if v, ok := parseAmount(m[1]); ok {
				out.SubtotalAmount = &v
				return
			}
		}
	}
}

// extractMerchant inspects only the first few lines, where receipt headers
// put the store name: short-ish, digit-free, and not an amount label.
func extractMerchant(lines []string, out *ReceiptFields) {
	limit := merchantScanLines
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		if len(line) <= 3 || len(line) >= 60 {
			continue
		}
		if reDigit.MatchString(line) {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "total") || strings.Contains(lower, "tax") || strings.Contains(lower, "subtotal") {
			continue
		}
		out.MerchantName = line
		return
	}
}

// extractItems keeps priced lines that are not amount-label lines, in
// original order, capped at maxItems.
func extractItems(lines []string, out *ReceiptFields) {
	for _, line := range lines {
		if len(out.Items) >= maxItems {
			return
		}
		if len(line) <= 5 || len(line) >= 100 {
			continue
		}
		if !rePriceToken.MatchString(line) {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "total") || strings.Contains(lower, "tax") || strings.Contains(lower, "subtotal") {
			continue
		}
		out.Items = append(out.Items, line)
	}
}
