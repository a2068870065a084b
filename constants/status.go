package constants

// ReceiptStatus is the canonical lifecycle status for rows in receipts.
type ReceiptStatus string

// Stable values (store these exact strings in DB).
const (
	StatusPending    ReceiptStatus = "pending"    // uploaded, fields unset
	StatusProcessing ReceiptStatus = "processing" // OCR in progress
	StatusProcessed  ReceiptStatus = "processed"  // fields extracted, eligible for submit
	StatusFailed     ReceiptStatus = "failed"     // terminal failure; re-process allowed
)

// IsValid reports whether s is one of the stable status values.
func (s ReceiptStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusProcessed, StatusFailed:
		return true
	}
	return false
}
