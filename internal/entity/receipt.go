package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/constants"
)

// Receipt represents a receipt for data transfer between layers. All
// extraction-derived fields are optional; absence means the extractor found
// no confident match and the user may fill the field in by hand.
type Receipt struct {
	ID                 uuid.UUID               `json:"id"`
	UserID             uuid.UUID               `json:"user_id"`
	ImageURL           string                  `json:"image_url"`
	ImagePath          string                  `json:"image_path"`
	OriginalFilename   string                  `json:"original_filename"`
	FileSize           int64                   `json:"file_size"`
	FileType           string                  `json:"file_type"`
	Status             constants.ReceiptStatus `json:"status"`
	OCRText            *string                 `json:"ocr_text,omitempty"`
	TotalAmount        *decimal.Decimal        `json:"total_amount,omitempty"`
	MerchantName       *string                 `json:"merchant_name,omitempty"`
	MerchantAddress    *string                 `json:"merchant_address,omitempty"`
	TransactionDate    *time.Time              `json:"transaction_date,omitempty"`
	TransactionTime    *string                 `json:"transaction_time,omitempty"`
	TaxAmount          *decimal.Decimal        `json:"tax_amount,omitempty"`
	SubtotalAmount     *decimal.Decimal        `json:"subtotal_amount,omitempty"`
	SipcoinsEarned     int64                   `json:"sipcoins_earned"`
	ProcessingAttempts int                     `json:"processing_attempts"`
	ErrorMessage       *string                 `json:"error_message,omitempty"`
	ProcessedAt        *time.Time              `json:"processed_at,omitempty"`
	Metadata           ReceiptMetadata         `json:"metadata"`
	CreatedAt          time.Time               `json:"created_at"`
	UpdatedAt          time.Time               `json:"updated_at"`

	// Immutable snapshots of the OCR-derived values, kept alongside the
	// user-editable total_amount / merchant_name so the submission validator
	// can detect drift between what was read and what is being claimed.
	OCRTotalAmount  *decimal.Decimal `json:"ocr_total_amount,omitempty"`
	OCRMerchantName *string          `json:"ocr_merchant_name,omitempty"`
}

// ReceiptMetadata is the JSON blob persisted next to the structured columns.
type ReceiptMetadata struct {
	Items             []string           `json:"items,omitempty"`
	Confidence        *float32           `json:"confidence,omitempty"`
	PointsCalculation *PointsCalculation `json:"pointsCalculation,omitempty"`
	SubmittedAt       *time.Time         `json:"submitted_at,omitempty"`
	EditedAt          *time.Time         `json:"edited_at,omitempty"`
}

// Submitted reports whether the receipt has already been through a successful
// submit; submitted receipts reject further edits and re-submissions.
func (r *Receipt) Submitted() bool {
	return r.Metadata.SubmittedAt != nil
}
