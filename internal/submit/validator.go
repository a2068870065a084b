// Package submit gates whether a processed receipt may be submitted for
// credit. Rejections are expected, user-recoverable outcomes (retake the
// photo, fix a field, wait), returned as values rather than errors; the
// receipt stays in processed state for retry.
package submit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/constants"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
)

// Reason names a rejection class for structured client handling.
type Reason string

const (
	ReasonNotReady      Reason = "NOT_READY"
	ReasonLowConfidence Reason = "LOW_CONFIDENCE"
	ReasonReceiptTooOld Reason = "RECEIPT_TOO_OLD"
	ReasonAmountDrift   Reason = "AMOUNT_DRIFT_TOO_LARGE"
	ReasonMerchantDrift Reason = "MERCHANT_DRIFT_TOO_LARGE"
	ReasonDuplicate     Reason = "DUPLICATE_RECEIPT"
)

// Rejection is a structured refusal with a human-readable message.
type Rejection struct {
	Reason  Reason `json:"reason"`
	Message string `json:"message"`
}

// DuplicateChecker looks up an already-processed receipt for the same user,
// merchant, amount, and calendar day.
type DuplicateChecker interface {
	FindDuplicate(ctx context.Context, userID uuid.UUID, merchantName string, amount decimal.Decimal, day time.Time) (*entity.Receipt, error)
}

// Config holds the submission thresholds.
type Config struct {
	MinConfidence  float32
	MaxReceiptAge  time.Duration
	MaxAmountDrift float64 // fraction of the OCR amount

	// EnableDuplicateCheck keeps the duplicate lookup inert by default.
	// Temporarily disabled pending a product decision on how to message
	// duplicates to users; flipping this flag re-enables the check as-is.
	EnableDuplicateCheck bool
}

// Validator applies the submission checks in order, short-circuiting on the
// first failure.
type Validator struct {
	cfg    Config
	dups   DuplicateChecker
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Validator)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) {
		if now != nil {
			v.now = now
		}
	}
}

func NewValidator(cfg Config, dups DuplicateChecker, logger *slog.Logger, opts ...Option) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 0.7
	}
	if cfg.MaxReceiptAge <= 0 {
		cfg.MaxReceiptAge = 7 * 24 * time.Hour
	}
	if cfg.MaxAmountDrift <= 0 {
		cfg.MaxAmountDrift = 0.10
	}
	v := &Validator{cfg: cfg, dups: dups, logger: logger, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// ValidateForSubmission runs the gate. A nil Rejection means the receipt may
// proceed to points calculation. The error return is for infrastructure
// faults only, never for a failed check.
func (v *Validator) ValidateForSubmission(ctx context.Context, r *entity.Receipt) (*Rejection, error) {
	// 1. The receipt must have completed OCR with a usable total.
	if r.Status != constants.StatusProcessed {
		return &Rejection{ReasonNotReady, "receipt must be processed before submission"}, nil
	}
	if r.TotalAmount == nil {
		return &Rejection{ReasonNotReady, "receipt total amount is required"}, nil
	}

	// 2. Low-confidence OCR asks the user for a better photo. A missing
	// confidence passes: benefit of the doubt.
	if c := r.Metadata.Confidence; c != nil && *c < v.cfg.MinConfidence {
		return &Rejection{ReasonLowConfidence, "low OCR confidence, please retake the photo for better results"}, nil
	}

	// 3. Age gate: exactly MaxReceiptAge old still passes.
	if r.TransactionDate != nil {
		if v.now().Sub(*r.TransactionDate) > v.cfg.MaxReceiptAge {
			return &Rejection{ReasonReceiptTooOld, "receipt is too old, only receipts from the last 7 days are accepted"}, nil
		}
	}

	// 4. Amount drift between the immutable OCR snapshot and the possibly
	// user-edited value. Drift of exactly the limit passes.
	if r.OCRTotalAmount != nil && r.TotalAmount != nil {
		limit := r.OCRTotalAmount.Mul(decimal.NewFromFloat(v.cfg.MaxAmountDrift))
		if r.TotalAmount.Sub(*r.OCRTotalAmount).Abs().GreaterThan(limit) {
			return &Rejection{ReasonAmountDrift, "submitted amount differs significantly from OCR result"}, nil
		}
	}

	// 5. Merchant drift, exempting short names and legitimate expansions
	// such as "KFC" -> "KFC Restaurant".
	if rej := v.checkMerchantDrift(r); rej != nil {
		return rej, nil
	}

	// 6. Duplicate lookup, inert unless explicitly enabled.
	if rej := v.checkDuplicate(ctx, r); rej != nil {
		return rej, nil
	}

	return nil, nil
}

func (v *Validator) checkMerchantDrift(r *entity.Receipt) *Rejection {
	if r.OCRMerchantName == nil || r.MerchantName == nil {
		return nil
	}
	ocr, cur := *r.OCRMerchantName, *r.MerchantName
	if ocr == "" || cur == "" || strings.EqualFold(ocr, cur) {
		return nil
	}
	if len(ocr) <= 3 || len(cur) <= 3 {
		return nil
	}
	if strings.Contains(strings.ToLower(cur), strings.ToLower(ocr)) {
		return nil
	}
	return &Rejection{ReasonMerchantDrift, "submitted merchant name is too different from OCR result"}
}

func (v *Validator) checkDuplicate(ctx context.Context, r *entity.Receipt) *Rejection {
	if !v.cfg.EnableDuplicateCheck || v.dups == nil {
		return nil
	}
	if r.MerchantName == nil || r.TotalAmount == nil || r.TransactionDate == nil {
		return nil
	}
	dup, err := v.dups.FindDuplicate(ctx, r.UserID, *r.MerchantName, *r.TotalAmount, *r.TransactionDate)
	if err != nil {
		// A failed lookup never blocks a submission.
		v.logger.Error("duplicate check failed", "receipt_id", r.ID, "error", err)
		return nil
	}
	if dup != nil && dup.ID != r.ID {
		return &Rejection{ReasonDuplicate, "a matching receipt was already submitted today"}
	}
	return nil
}
