// Command sipcoin-parse runs field extraction and a points preview over a
// saved OCR text dump. Useful for tuning extraction rules without a
// database or object store.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/internal/extract"
	"github.com/Blackhoodiez/sipcoin/internal/points"
	"github.com/Blackhoodiez/sipcoin/internal/utils"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "sipcoin-parse <ocr-text-file>")
		os.Exit(2)
	}

	raw, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("read input", "error", err)
		os.Exit(1)
	}

	fields := extract.Extract(string(raw))

	fmt.Printf("merchant:  %s\n", orDash(fields.MerchantName))
	fmt.Printf("date:      %s\n", orDash(fields.TransactionDate))
	fmt.Printf("time:      %s\n", orDash(fields.TransactionTime))
	fmt.Printf("total:     %s\n", moneyOrDash(fields.TotalAmount))
	fmt.Printf("tax:       %s\n", moneyOrDash(fields.TaxAmount))
	fmt.Printf("subtotal:  %s\n", moneyOrDash(fields.SubtotalAmount))
	fmt.Printf("items:     %d\n", len(fields.Items))
	for _, it := range fields.Items {
		fmt.Printf("  - %s\n", it)
	}

	if fields.TotalAmount == nil {
		fmt.Println("\npoints:    (no total, not calculable)")
		return
	}

	var txDate *time.Time
	if t, ok := utils.ParseReceiptDate(fields.TransactionDate); ok {
		txDate = &t
	}
	calc, err := points.Calculate(points.Request{
		TotalAmount:     fields.TotalAmount,
		MerchantName:    fields.MerchantName,
		TransactionDate: txDate,
	})
	if err != nil {
		logger.Error("points preview failed", "error", err)
		os.Exit(1)
	}

	fmt.Printf("\npoints:    %d (base %d + bonus %d)\n", calc.TotalPoints, calc.BasePoints, calc.BonusPoints)
	fmt.Printf("  receipt amount:    %d\n", calc.Breakdown.ReceiptAmount)
	fmt.Printf("  first visit bonus: %d\n", calc.Breakdown.FirstVisitBonus)
	fmt.Printf("  weekend bonus:     %d\n", calc.Breakdown.WeekendBonus)
	fmt.Printf("  special promotion: %d\n", calc.Breakdown.SpecialPromotion)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func moneyOrDash(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return utils.FormatMoney(*d)
}
