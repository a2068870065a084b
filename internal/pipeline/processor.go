// Package pipeline sequences the receipt ingestion flow around the pure
// cores: image bytes -> OCR text -> structured fields -> validated submission
// -> point award -> balance credit. All I/O happens here, at the boundary.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/constants"
	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
	"github.com/Blackhoodiez/sipcoin/internal/extract"
	"github.com/Blackhoodiez/sipcoin/internal/imagestore"
	"github.com/Blackhoodiez/sipcoin/internal/ocr"
	"github.com/Blackhoodiez/sipcoin/internal/points"
	"github.com/Blackhoodiez/sipcoin/internal/repository"
	"github.com/Blackhoodiez/sipcoin/internal/submit"
	"github.com/Blackhoodiez/sipcoin/internal/utils"
)

// Processor coordinates upload, OCR processing, submission, and balance
// credit for receipts.
type Processor struct {
	logger     *slog.Logger
	receipts   repository.ReceiptRepository
	profiles   repository.ProfileRepository
	images     imagestore.Store
	engine     ocr.Engine
	validator  *submit.Validator
	locks      *userLocks
	ocrTimeout time.Duration
	now        func() time.Time
}

type Option func(*Processor)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(
	logger *slog.Logger,
	receipts repository.ReceiptRepository,
	profiles repository.ProfileRepository,
	images imagestore.Store,
	engine ocr.Engine,
	validator *submit.Validator,
	ocrTimeout time.Duration,
	opts ...Option,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if ocrTimeout <= 0 {
		ocrTimeout = 60 * time.Second
	}
	p := &Processor{
		logger:     logger,
		receipts:   receipts,
		profiles:   profiles,
		images:     images,
		engine:     engine,
		validator:  validator,
		locks:      newUserLocks(),
		ocrTimeout: ocrTimeout,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// UploadRequest carries one multipart upload.
type UploadRequest struct {
	Filename    string
	ContentType string
	Data        []byte
}

// UploadReceipt stores the image and creates the receipt row in pending
// state. The uploaded object is removed again if the insert fails.
func (p *Processor) UploadReceipt(ctx context.Context, userID uuid.UUID, req UploadRequest) (*entity.Receipt, error) {
	if len(req.Data) == 0 {
		return nil, common.NewAppError("UPLOAD_EMPTY", "no file provided", common.ErrInvalidInput)
	}
	if len(req.Data) > constants.MaxUploadSize {
		return nil, common.NewAppError("UPLOAD_TOO_LARGE", "file too large, maximum size is 10MB", common.ErrInvalidInput)
	}
	if !constants.IsAllowedContentType(req.ContentType) {
		return nil, common.NewAppError("UPLOAD_BAD_TYPE", "invalid file type, only JPEG, PNG, and WebP are allowed", common.ErrInvalidInput)
	}

	ext := constants.NormalizeExt(filepath.Ext(req.Filename))
	if !constants.IsAllowedExt(ext) {
		ext = "jpg"
	}
	key := fmt.Sprintf("%s/%d.%s", userID, p.now().UnixMilli(), ext)

	url, err := p.images.Upload(ctx, key, req.Data, req.ContentType)
	if err != nil {
		return nil, common.WrapError(err, "upload image")
	}

	rec, err := p.receipts.Create(ctx, &entity.Receipt{
		UserID:           userID,
		ImageURL:         url,
		ImagePath:        key,
		OriginalFilename: req.Filename,
		FileSize:         int64(len(req.Data)),
		FileType:         req.ContentType,
		Status:           constants.StatusPending,
	})
	if err != nil {
		// Clean up the orphaned object; the receipt row is the source of truth.
		if rmErr := p.images.Remove(ctx, key); rmErr != nil {
			p.logger.Error("failed to remove orphaned upload", "key", key, "error", rmErr)
		}
		return nil, err
	}

	p.logger.Info("receipt uploaded", "receipt_id", rec.ID, "user_id", userID, "bytes", len(req.Data))
	return rec, nil
}

// ProcessReceipt runs OCR and field extraction for a receipt and persists the
// results. The receipt ends in processed state when a total was found, failed
// otherwise; it never stays in processing.
func (p *Processor) ProcessReceipt(ctx context.Context, userID, receiptID uuid.UUID) (*entity.Receipt, error) {
	rec, err := p.receipts.GetByID(ctx, userID, receiptID)
	if err != nil {
		return nil, err
	}

	if err := p.receipts.MarkProcessing(ctx, rec.ID); err != nil {
		return nil, err
	}

	image, err := p.images.Download(ctx, rec.ImagePath)
	if err != nil {
		p.fail(ctx, rec.ID, fmt.Sprintf("download image: %v", err))
		return nil, common.WrapError(err, "download receipt image")
	}

	ocrCtx, cancel := context.WithTimeout(ctx, p.ocrTimeout)
	res, err := p.engine.Recognize(ocrCtx, image)
	cancel()
	if err != nil {
		p.fail(ctx, rec.ID, fmt.Sprintf("ocr: %v", err))
		return nil, common.WrapError(err, "ocr recognize")
	}

	fields := extract.Extract(res.Text)

	status := constants.StatusProcessed
	if fields.TotalAmount == nil {
		status = constants.StatusFailed
	}

	var txDate *time.Time
	if fields.TransactionDate != "" {
		if t, ok := utils.ParseReceiptDate(fields.TransactionDate); ok {
			txDate = &t
		} else {
			p.logger.Warn("unparseable transaction date", "receipt_id", rec.ID, "raw", fields.TransactionDate)
		}
	}

	meta := rec.Metadata
	meta.Items = fields.Items
	confidence := res.Confidence
	meta.Confidence = &confidence

	updated, err := p.receipts.SaveExtraction(ctx, rec.ID, repository.ExtractionUpdate{
		OCRText:         res.Text,
		TotalAmount:     fields.TotalAmount,
		MerchantName:    utils.StrPtr(fields.MerchantName),
		MerchantAddress: utils.StrPtr(fields.MerchantAddress),
		TransactionDate: txDate,
		TransactionTime: utils.StrPtr(fields.TransactionTime),
		TaxAmount:       fields.TaxAmount,
		SubtotalAmount:  fields.SubtotalAmount,
		Status:          status,
		ProcessedAt:     p.now(),
		Metadata:        meta,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("receipt processed",
		"receipt_id", rec.ID,
		"status", string(status),
		"confidence", confidence,
		"merchant", fields.MerchantName,
		"total", totalForLog(fields.TotalAmount),
		"items", len(fields.Items),
	)
	return updated, nil
}

// SubmitResult is the outcome of a submit attempt. Exactly one of Points and
// Rejection is set.
type SubmitResult struct {
	Receipt   *entity.Receipt           `json:"receipt"`
	Points    *entity.PointsCalculation `json:"points,omitempty"`
	Rejection *submit.Rejection         `json:"rejection,omitempty"`
}

// SubmitReceipt validates a processed receipt, computes the point award,
// persists it, and credits the user balance.
func (p *Processor) SubmitReceipt(ctx context.Context, userID, receiptID uuid.UUID) (*SubmitResult, error) {
	rec, err := p.receipts.GetByID(ctx, userID, receiptID)
	if err != nil {
		return nil, err
	}

	if rec.Submitted() {
		return &SubmitResult{
			Receipt:   rec,
			Rejection: &submit.Rejection{Reason: submit.ReasonNotReady, Message: "receipt has already been submitted"},
		}, nil
	}

	rej, err := p.validator.ValidateForSubmission(ctx, rec)
	if err != nil {
		return nil, err
	}
	if rej != nil {
		p.logger.Info("submission rejected", "receipt_id", rec.ID, "reason", string(rej.Reason))
		return &SubmitResult{Receipt: rec, Rejection: rej}, nil
	}

	calc, err := points.Calculate(points.Request{
		TotalAmount:     rec.TotalAmount,
		MerchantName:    utils.StrOrEmpty(rec.MerchantName),
		TransactionDate: rec.TransactionDate,
	})
	if err != nil {
		return nil, err
	}
	if err := calc.Validate(); err != nil {
		return nil, common.NewAppError("POINTS_INVARIANT", "points calculation is inconsistent", err)
	}

	now := p.now()
	meta := rec.Metadata
	meta.PointsCalculation = &calc
	meta.SubmittedAt = &now

	updated, err := p.receipts.SaveAward(ctx, rec.ID, calc.TotalPoints, meta)
	if err != nil {
		return nil, err
	}

	// The balance store has no atomic increment; serialize the
	// read-modify-write per user.
	unlock := p.locks.lock(userID)
	defer unlock()

	if _, err := p.profiles.CreditBalance(ctx, userID, calc.TotalPoints); err != nil {
		// The award is already on the receipt but the balance missed it.
		// Flag loudly: a reconciliation pass has to repair this.
		p.logger.Error("BALANCE_CREDIT_INCONSISTENT: award persisted but balance credit failed",
			"receipt_id", rec.ID, "user_id", userID, "points", calc.TotalPoints, "error", err)
		return nil, common.NewAppError("BALANCE_CREDIT_INCONSISTENT", "failed to update user balance", err)
	}

	p.logger.Info("receipt submitted",
		"receipt_id", rec.ID,
		"user_id", userID,
		"points", calc.TotalPoints,
		"base", calc.BasePoints,
		"bonus", calc.BonusPoints,
	)
	return &SubmitResult{Receipt: updated, Points: &calc}, nil
}

// UpdateRequest carries a user edit of the reviewable fields.
type UpdateRequest struct {
	ReceiptID       uuid.UUID
	MerchantName    string
	TransactionDate time.Time
	TotalAmount     decimal.Decimal
	Items           []string
}

// UpdateReceipt applies a user edit prior to submission. Edits are refused
// once the receipt has been submitted.
func (p *Processor) UpdateReceipt(ctx context.Context, userID uuid.UUID, req UpdateRequest) (*entity.Receipt, error) {
	merchant := strings.TrimSpace(req.MerchantName)
	if len(merchant) < 2 {
		return nil, common.NewAppError("EDIT_INVALID", "merchant name must be at least 2 characters", common.ErrInvalidInput)
	}
	if !req.TotalAmount.IsPositive() {
		return nil, common.NewAppError("EDIT_INVALID", "total amount must be greater than 0", common.ErrInvalidInput)
	}

	rec, err := p.receipts.GetByID(ctx, userID, req.ReceiptID)
	if err != nil {
		return nil, err
	}
	if rec.Submitted() {
		return nil, common.NewAppError("RECEIPT_ALREADY_SUBMITTED", "submitted receipts can no longer be edited", common.ErrConflict)
	}

	now := p.now()
	meta := rec.Metadata
	meta.Items = req.Items
	meta.EditedAt = &now

	updated, err := p.receipts.SaveUserEdit(ctx, rec.ID, repository.EditUpdate{
		MerchantName:    merchant,
		TransactionDate: req.TransactionDate,
		TotalAmount:     req.TotalAmount,
		Metadata:        meta,
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("receipt updated", "receipt_id", rec.ID, "user_id", userID)
	return updated, nil
}

// DeleteReceipt removes the receipt row and, best effort, its stored image.
// Submitted receipts are retained as the audit trail for awarded points.
func (p *Processor) DeleteReceipt(ctx context.Context, userID, receiptID uuid.UUID) error {
	rec, err := p.receipts.GetByID(ctx, userID, receiptID)
	if err != nil {
		return err
	}
	if rec.Submitted() {
		return common.NewAppError("RECEIPT_ALREADY_SUBMITTED", "submitted receipts cannot be deleted", common.ErrConflict)
	}

	if err := p.receipts.Delete(ctx, userID, receiptID); err != nil {
		return err
	}
	if err := p.images.Remove(ctx, rec.ImagePath); err != nil {
		p.logger.Error("failed to remove receipt image", "receipt_id", receiptID, "key", rec.ImagePath, "error", err)
	}
	p.logger.Info("receipt deleted", "receipt_id", receiptID, "user_id", userID)
	return nil
}

func (p *Processor) fail(ctx context.Context, id uuid.UUID, msg string) {
	if err := p.receipts.MarkFailed(ctx, id, msg); err != nil {
		p.logger.Error("failed to mark receipt failed", "receipt_id", id, "error", err)
	}
}

func totalForLog(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}
