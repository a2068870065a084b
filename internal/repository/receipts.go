package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/constants"
	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
)

// ExtractionUpdate carries everything the OCR stage persists in one write.
// The ocr_* columns are written here once and never touched by user edits.
type ExtractionUpdate struct {
	OCRText         string
	TotalAmount     *decimal.Decimal
	MerchantName    *string
	MerchantAddress *string
	TransactionDate *time.Time
	TransactionTime *string
	TaxAmount       *decimal.Decimal
	SubtotalAmount  *decimal.Decimal
	Status          constants.ReceiptStatus
	ProcessedAt     time.Time
	Metadata        entity.ReceiptMetadata
}

// EditUpdate carries a user edit of the reviewable fields.
type EditUpdate struct {
	MerchantName    string
	TransactionDate time.Time
	TotalAmount     decimal.Decimal
	Metadata        entity.ReceiptMetadata
}

type ReceiptRepository interface {
	Create(ctx context.Context, r *entity.Receipt) (*entity.Receipt, error)
	GetByID(ctx context.Context, userID, id uuid.UUID) (*entity.Receipt, error)
	List(ctx context.Context, userID uuid.UUID, fromDate, toDate *time.Time) ([]*entity.Receipt, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	SaveExtraction(ctx context.Context, id uuid.UUID, upd ExtractionUpdate) (*entity.Receipt, error)
	SaveUserEdit(ctx context.Context, id uuid.UUID, upd EditUpdate) (*entity.Receipt, error)
	SaveAward(ctx context.Context, id uuid.UUID, sipcoinsEarned int64, meta entity.ReceiptMetadata) (*entity.Receipt, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error

	// FindDuplicate looks up an already-processed receipt for the same user,
	// merchant, and amount on the same calendar day. Wired into the
	// submission validator's (currently inert) duplicate check.
	FindDuplicate(ctx context.Context, userID uuid.UUID, merchantName string, amount decimal.Decimal, day time.Time) (*entity.Receipt, error)
}

type receiptRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewReceiptRepository(pool *pgxpool.Pool, logger *slog.Logger) ReceiptRepository {
	return &receiptRepository{pool: pool, logger: logger}
}

const receiptColumns = `
	id::text, user_id::text, image_url, image_path, original_filename,
	file_size, file_type, status, ocr_text,
	total_amount::text, merchant_name, merchant_address,
	transaction_date, transaction_time,
	tax_amount::text, subtotal_amount::text,
	ocr_total_amount::text, ocr_merchant_name,
	sipcoins_earned, processing_attempts, error_message, processed_at,
	metadata, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (*entity.Receipt, error) {
	var (
		r                        entity.Receipt
		idStr, userIDStr         string
		totalStr, taxStr, subStr *string
		ocrTotalStr              *string
		metaRaw                  []byte
	)
	err := row.Scan(
		&idStr, &userIDStr, &r.ImageURL, &r.ImagePath, &r.OriginalFilename,
		&r.FileSize, &r.FileType, &r.Status, &r.OCRText,
		&totalStr, &r.MerchantName, &r.MerchantAddress,
		&r.TransactionDate, &r.TransactionTime,
		&taxStr, &subStr,
		&ocrTotalStr, &r.OCRMerchantName,
		&r.SipcoinsEarned, &r.ProcessingAttempts, &r.ErrorMessage, &r.ProcessedAt,
		&metaRaw, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse receipt id: %w", err)
	}
	if r.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if r.TotalAmount, err = decimalPtr(totalStr); err != nil {
		return nil, err
	}
	if r.TaxAmount, err = decimalPtr(taxStr); err != nil {
		return nil, err
	}
	if r.SubtotalAmount, err = decimalPtr(subStr); err != nil {
		return nil, err
	}
	if r.OCRTotalAmount, err = decimalPtr(ocrTotalStr); err != nil {
		return nil, err
	}
	if len(metaRaw) > 0 {
		if err := json.Unmarshal(metaRaw, &r.Metadata); err != nil {
			return nil, fmt.Errorf("decode receipt metadata: %w", err)
		}
	}
	return &r, nil
}

func decimalPtr(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", *s, err)
	}
	return &d, nil
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func metadataArg(m entity.ReceiptMetadata) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode receipt metadata: %w", err)
	}
	return raw, nil
}

func (p *receiptRepository) Create(ctx context.Context, r *entity.Receipt) (*entity.Receipt, error) {
	metaRaw, err := metadataArg(r.Metadata)
	if err != nil {
		return nil, err
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO receipts (
			user_id, image_url, image_path, original_filename,
			file_size, file_type, status, metadata
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+receiptColumns,
		r.UserID.String(), r.ImageURL, r.ImagePath, r.OriginalFilename,
		r.FileSize, r.FileType, string(r.Status), metaRaw,
	)
	rec, err := scanReceipt(row)
	if err != nil {
		p.logger.Error("failed to create receipt", "user_id", r.UserID, "error", err)
		return nil, common.WrapError(err, "create receipt")
	}
	return rec, nil
}

func (p *receiptRepository) GetByID(ctx context.Context, userID, id uuid.UUID) (*entity.Receipt, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE id = $1 AND user_id = $2`,
		id.String(), userID.String(),
	)
	rec, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		p.logger.Error("failed to load receipt", "receipt_id", id, "error", err)
		return nil, common.WrapError(err, "get receipt")
	}
	return rec, nil
}

func (p *receiptRepository) List(ctx context.Context, userID uuid.UUID, fromDate, toDate *time.Time) ([]*entity.Receipt, error) {
	q := `SELECT ` + receiptColumns + ` FROM receipts WHERE user_id = $1`
	args := []any{userID.String()}
	if fromDate != nil {
		args = append(args, *fromDate)
		q += fmt.Sprintf(" AND transaction_date >= $%d", len(args))
	}
	if toDate != nil {
		args = append(args, *toDate)
		q += fmt.Sprintf(" AND transaction_date <= $%d", len(args))
	}
	q += " ORDER BY created_at DESC"

	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		p.logger.Error("failed to list receipts", "user_id", userID, "error", err)
		return nil, common.WrapError(err, "list receipts")
	}
	defer rows.Close()

	var result []*entity.Receipt
	for rows.Next() {
		rec, err := scanReceipt(rows)
		if err != nil {
			return nil, common.WrapError(err, "scan receipt")
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

func (p *receiptRepository) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE receipts
		SET status = $2,
		    processing_attempts = processing_attempts + 1,
		    updated_at = now()
		WHERE id = $1`,
		id.String(), string(constants.StatusProcessing),
	)
	return common.WrapError(err, "mark processing")
}

func (p *receiptRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	_, err := p.pool.Exec(ctx, `
		UPDATE receipts
		SET status = $2, error_message = $3, updated_at = now()
		WHERE id = $1`,
		id.String(), string(constants.StatusFailed), errorMessage,
	)
	return common.WrapError(err, "mark failed")
}

func (p *receiptRepository) SaveExtraction(ctx context.Context, id uuid.UUID, upd ExtractionUpdate) (*entity.Receipt, error) {
	metaRaw, err := metadataArg(upd.Metadata)
	if err != nil {
		return nil, err
	}
	row := p.pool.QueryRow(ctx, `
		UPDATE receipts
		SET ocr_text = $2,
		    total_amount = $3::numeric,
		    merchant_name = $4,
		    merchant_address = $5,
		    transaction_date = $6,
		    transaction_time = $7,
		    tax_amount = $8::numeric,
		    subtotal_amount = $9::numeric,
		    ocr_total_amount = $3::numeric,
		    ocr_merchant_name = $4,
		    status = $10,
		    processed_at = $11,
		    error_message = NULL,
		    metadata = $12,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+receiptColumns,
		id.String(), upd.OCRText,
		decimalArg(upd.TotalAmount), upd.MerchantName, upd.MerchantAddress,
		upd.TransactionDate, upd.TransactionTime,
		decimalArg(upd.TaxAmount), decimalArg(upd.SubtotalAmount),
		string(upd.Status), upd.ProcessedAt, metaRaw,
	)
	rec, err := scanReceipt(row)
	if err != nil {
		p.logger.Error("failed to save extraction", "receipt_id", id, "error", err)
		return nil, common.WrapError(err, "save extraction")
	}
	return rec, nil
}

func (p *receiptRepository) SaveUserEdit(ctx context.Context, id uuid.UUID, upd EditUpdate) (*entity.Receipt, error) {
	metaRaw, err := metadataArg(upd.Metadata)
	if err != nil {
		return nil, err
	}
	amount := upd.TotalAmount.String()
	row := p.pool.QueryRow(ctx, `
		UPDATE receipts
		SET merchant_name = $2,
		    transaction_date = $3,
		    total_amount = $4::numeric,
		    metadata = $5,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+receiptColumns,
		id.String(), upd.MerchantName, upd.TransactionDate, amount, metaRaw,
	)
	rec, err := scanReceipt(row)
	if err != nil {
		p.logger.Error("failed to save user edit", "receipt_id", id, "error", err)
		return nil, common.WrapError(err, "save user edit")
	}
	return rec, nil
}

func (p *receiptRepository) SaveAward(ctx context.Context, id uuid.UUID, sipcoinsEarned int64, meta entity.ReceiptMetadata) (*entity.Receipt, error) {
	metaRaw, err := metadataArg(meta)
	if err != nil {
		return nil, err
	}
	row := p.pool.QueryRow(ctx, `
		UPDATE receipts
		SET sipcoins_earned = $2,
		    status = $3,
		    metadata = $4,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+receiptColumns,
		id.String(), sipcoinsEarned, string(constants.StatusProcessed), metaRaw,
	)
	rec, err := scanReceipt(row)
	if err != nil {
		p.logger.Error("failed to save award", "receipt_id", id, "error", err)
		return nil, common.WrapError(err, "save award")
	}
	return rec, nil
}

func (p *receiptRepository) Delete(ctx context.Context, userID, id uuid.UUID) error {
	tag, err := p.pool.Exec(ctx, `DELETE FROM receipts WHERE id = $1 AND user_id = $2`,
		id.String(), userID.String())
	if err != nil {
		return common.WrapError(err, "delete receipt")
	}
	if tag.RowsAffected() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (p *receiptRepository) FindDuplicate(ctx context.Context, userID uuid.UUID, merchantName string, amount decimal.Decimal, day time.Time) (*entity.Receipt, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	row := p.pool.QueryRow(ctx, `
		SELECT `+receiptColumns+`
		FROM receipts
		WHERE user_id = $1
		  AND merchant_name = $2
		  AND total_amount = $3::numeric
		  AND transaction_date >= $4
		  AND transaction_date < $5
		  AND status = $6
		ORDER BY created_at ASC
		LIMIT 1`,
		userID.String(), merchantName, amount.String(), start, end,
		string(constants.StatusProcessed),
	)
	rec, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.WrapError(err, "find duplicate")
	}
	return rec, nil
}
