package submit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/constants"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

func newTestValidator(t *testing.T, dups DuplicateChecker) *Validator {
	t.Helper()
	return NewValidator(Config{}, dups, nil, WithClock(func() time.Time { return testNow }))
}

func amtPtr(t *testing.T, s string) *decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return &d
}

func strPtr(s string) *string { return &s }

func confPtr(c float32) *float32 { return &c }

// processedReceipt builds a receipt that passes every check.
func processedReceipt(t *testing.T) *entity.Receipt {
	t.Helper()
	txDate := testNow.Add(-24 * time.Hour)
	return &entity.Receipt{
		ID:              uuid.New(),
		UserID:          uuid.New(),
		Status:          constants.StatusProcessed,
		TotalAmount:     amtPtr(t, "42.50"),
		OCRTotalAmount:  amtPtr(t, "42.50"),
		MerchantName:    strPtr("Corner Cafe"),
		OCRMerchantName: strPtr("Corner Cafe"),
		TransactionDate: &txDate,
		Metadata:        entity.ReceiptMetadata{Confidence: confPtr(0.9)},
	}
}

func expectPass(t *testing.T, v *Validator, r *entity.Receipt) {
	t.Helper()
	rej, err := v.ValidateForSubmission(context.Background(), r)
	if err != nil {
		t.Fatalf("ValidateForSubmission: %v", err)
	}
	if rej != nil {
		t.Fatalf("unexpected rejection: %s (%s)", rej.Reason, rej.Message)
	}
}

func expectReject(t *testing.T, v *Validator, r *entity.Receipt, want Reason) {
	t.Helper()
	rej, err := v.ValidateForSubmission(context.Background(), r)
	if err != nil {
		t.Fatalf("ValidateForSubmission: %v", err)
	}
	if rej == nil {
		t.Fatalf("expected rejection %s, receipt passed", want)
	}
	if rej.Reason != want {
		t.Fatalf("rejection = %s, want %s", rej.Reason, want)
	}
}

func TestValidReceiptPasses(t *testing.T) {
	expectPass(t, newTestValidator(t, nil), processedReceipt(t))
}

func TestUnprocessedReceiptRejected(t *testing.T) {
	v := newTestValidator(t, nil)

	r := processedReceipt(t)
	r.Status = constants.StatusPending
	expectReject(t, v, r, ReasonNotReady)

	r = processedReceipt(t)
	r.TotalAmount = nil
	expectReject(t, v, r, ReasonNotReady)
}

func TestConfidenceThreshold(t *testing.T) {
	v := newTestValidator(t, nil)

	r := processedReceipt(t)
	r.Metadata.Confidence = confPtr(0.69)
	expectReject(t, v, r, ReasonLowConfidence)

	r = processedReceipt(t)
	r.Metadata.Confidence = confPtr(0.70)
	expectPass(t, v, r)

	// Missing confidence gets the benefit of the doubt.
	r = processedReceipt(t)
	r.Metadata.Confidence = nil
	expectPass(t, v, r)
}

func TestReceiptAgeBoundary(t *testing.T) {
	v := newTestValidator(t, nil)

	r := processedReceipt(t)
	exact := testNow.Add(-7 * 24 * time.Hour)
	r.TransactionDate = &exact
	expectPass(t, v, r)

	r = processedReceipt(t)
	over := testNow.Add(-7*24*time.Hour - time.Second)
	r.TransactionDate = &over
	expectReject(t, v, r, ReasonReceiptTooOld)

	// No date, no age check.
	r = processedReceipt(t)
	r.TransactionDate = nil
	expectPass(t, v, r)
}

func TestAmountDriftBoundary(t *testing.T) {
	v := newTestValidator(t, nil)

	// Exactly 10% drift on a $100 OCR reading still passes.
	r := processedReceipt(t)
	r.OCRTotalAmount = amtPtr(t, "100")
	r.TotalAmount = amtPtr(t, "110")
	expectPass(t, v, r)

	r = processedReceipt(t)
	r.OCRTotalAmount = amtPtr(t, "100")
	r.TotalAmount = amtPtr(t, "110.01")
	expectReject(t, v, r, ReasonAmountDrift)

	// Downward edits are held to the same limit.
	r = processedReceipt(t)
	r.OCRTotalAmount = amtPtr(t, "100")
	r.TotalAmount = amtPtr(t, "89.99")
	expectReject(t, v, r, ReasonAmountDrift)

	// No OCR snapshot means nothing to compare against.
	r = processedReceipt(t)
	r.OCRTotalAmount = nil
	expectPass(t, v, r)
}

func TestMerchantDrift(t *testing.T) {
	v := newTestValidator(t, nil)

	cases := []struct {
		name     string
		ocr, cur string
		rejected bool
	}{
		{"identical", "Corner Cafe", "Corner Cafe", false},
		{"case insensitive", "corner cafe", "CORNER CAFE", false},
		{"expansion kept", "KFC", "KFC Restaurant", false},
		{"short ocr name exempt", "KFC", "Burger Town", false},
		{"containment", "Starbucks", "Starbucks Coffee #1202", false},
		{"unrelated", "Starbucks", "Dunkin Donuts", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := processedReceipt(t)
			r.OCRMerchantName = strPtr(tc.ocr)
			r.MerchantName = strPtr(tc.cur)
			if tc.rejected {
				expectReject(t, v, r, ReasonMerchantDrift)
			} else {
				expectPass(t, v, r)
			}
		})
	}
}

type stubDuplicateChecker struct {
	dup *entity.Receipt
	err error
}

func (s *stubDuplicateChecker) FindDuplicate(context.Context, uuid.UUID, string, decimal.Decimal, time.Time) (*entity.Receipt, error) {
	return s.dup, s.err
}

func TestDuplicateCheckInertByDefault(t *testing.T) {
	dup := processedReceipt(t)
	v := newTestValidator(t, &stubDuplicateChecker{dup: dup})
	expectPass(t, v, processedReceipt(t))
}

func TestDuplicateCheckEnabled(t *testing.T) {
	dup := processedReceipt(t)
	v := NewValidator(Config{EnableDuplicateCheck: true}, &stubDuplicateChecker{dup: dup}, nil,
		WithClock(func() time.Time { return testNow }))
	expectReject(t, v, processedReceipt(t), ReasonDuplicate)

	// The same receipt coming back from the lookup is not its own duplicate.
	self := processedReceipt(t)
	v = NewValidator(Config{EnableDuplicateCheck: true}, &stubDuplicateChecker{dup: self}, nil,
		WithClock(func() time.Time { return testNow }))
	expectPass(t, v, self)
}

func TestDuplicateLookupFailureNeverBlocks(t *testing.T) {
	v := NewValidator(Config{EnableDuplicateCheck: true},
		&stubDuplicateChecker{err: errors.New("connection refused")}, nil,
		WithClock(func() time.Time { return testNow }))
	expectPass(t, v, processedReceipt(t))
}
