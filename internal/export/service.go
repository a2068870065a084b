package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/Blackhoodiez/sipcoin/internal/repository"
	"github.com/Blackhoodiez/sipcoin/internal/utils"
)

// Service is a tiny façade over the receipt repository that produces XLSX
// bytes for a user's points statement.
type Service struct {
	receipts repository.ReceiptRepository
	logger   *slog.Logger
}

func NewService(receipts repository.ReceiptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{receipts: receipts, logger: logger}
}

// StatementXLSX returns an XLSX workbook for the given user and date window.
// If only from is provided -> from..today (inclusive).
// If neither is provided   -> all receipts for the user.
func (s *Service) StatementXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var fromDate, toDate *time.Time
	if from != nil {
		f := utils.StartOfDay(from.UTC())
		fromDate = &f
	}
	if to != nil {
		t := utils.StartOfDay(to.UTC())
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		t := utils.StartOfDay(time.Now().UTC())
		toDate = &t
	}

	recs, err := s.receipts.List(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, fmt.Errorf("query receipts: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "SipCoins"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Transaction Date",
		"Merchant",
		"Total",
		"Status",
		"SipCoins Earned",
		"Submitted At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, r := range recs {
		txDate := ""
		if r.TransactionDate != nil {
			txDate = r.TransactionDate.Format("2006-01-02")
		}
		total := ""
		if r.TotalAmount != nil {
			total = utils.FormatMoney(*r.TotalAmount)
		}
		submittedAt := ""
		if r.Metadata.SubmittedAt != nil {
			submittedAt = r.Metadata.SubmittedAt.UTC().Format(time.RFC3339)
		}

		values := []any{
			txDate,
			utils.StrOrEmpty(r.MerchantName),
			total,
			string(r.Status),
			r.SipcoinsEarned,
			submittedAt,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}

	s.logger.Info("statement exported",
		"user_id", userID,
		"receipts", len(recs),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
