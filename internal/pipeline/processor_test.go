package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/constants"
	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/entity"
	"github.com/Blackhoodiez/sipcoin/internal/ocr"
	"github.com/Blackhoodiez/sipcoin/internal/repository"
	"github.com/Blackhoodiez/sipcoin/internal/submit"
)

var fixedNow = time.Date(2023, time.December, 26, 10, 0, 0, 0, time.UTC)

// fakeReceiptRepo is an in-memory ReceiptRepository that mirrors the write
// semantics of the Postgres implementation, including the immutable ocr_*
// snapshot taken at extraction time.
type fakeReceiptRepo struct {
	receipts  map[uuid.UUID]*entity.Receipt
	createErr error
}

func newFakeReceiptRepo() *fakeReceiptRepo {
	return &fakeReceiptRepo{receipts: make(map[uuid.UUID]*entity.Receipt)}
}

func (f *fakeReceiptRepo) Create(_ context.Context, r *entity.Receipt) (*entity.Receipt, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	cp := *r
	cp.ID = uuid.New()
	cp.CreatedAt = fixedNow
	cp.UpdatedAt = fixedNow
	f.receipts[cp.ID] = &cp
	return &cp, nil
}

func (f *fakeReceiptRepo) GetByID(_ context.Context, userID, id uuid.UUID) (*entity.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok || r.UserID != userID {
		return nil, common.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeReceiptRepo) List(_ context.Context, userID uuid.UUID, _, _ *time.Time) ([]*entity.Receipt, error) {
	var out []*entity.Receipt
	for _, r := range f.receipts {
		if r.UserID == userID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeReceiptRepo) MarkProcessing(_ context.Context, id uuid.UUID) error {
	r, ok := f.receipts[id]
	if !ok {
		return common.ErrNotFound
	}
	r.Status = constants.StatusProcessing
	r.ProcessingAttempts++
	return nil
}

func (f *fakeReceiptRepo) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	r, ok := f.receipts[id]
	if !ok {
		return common.ErrNotFound
	}
	r.Status = constants.StatusFailed
	r.ErrorMessage = &msg
	return nil
}

func (f *fakeReceiptRepo) SaveExtraction(_ context.Context, id uuid.UUID, upd repository.ExtractionUpdate) (*entity.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	r.OCRText = &upd.OCRText
	r.TotalAmount = upd.TotalAmount
	r.OCRTotalAmount = upd.TotalAmount
	r.MerchantName = upd.MerchantName
	r.OCRMerchantName = upd.MerchantName
	r.MerchantAddress = upd.MerchantAddress
	r.TransactionDate = upd.TransactionDate
	r.TransactionTime = upd.TransactionTime
	r.TaxAmount = upd.TaxAmount
	r.SubtotalAmount = upd.SubtotalAmount
	r.Status = upd.Status
	r.ProcessedAt = &upd.ProcessedAt
	r.Metadata = upd.Metadata
	cp := *r
	return &cp, nil
}

func (f *fakeReceiptRepo) SaveUserEdit(_ context.Context, id uuid.UUID, upd repository.EditUpdate) (*entity.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	r.MerchantName = &upd.MerchantName
	r.TransactionDate = &upd.TransactionDate
	r.TotalAmount = &upd.TotalAmount
	r.Metadata = upd.Metadata
	cp := *r
	return &cp, nil
}

func (f *fakeReceiptRepo) SaveAward(_ context.Context, id uuid.UUID, earned int64, meta entity.ReceiptMetadata) (*entity.Receipt, error) {
	r, ok := f.receipts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	r.SipcoinsEarned = earned
	r.Metadata = meta
	cp := *r
	return &cp, nil
}

func (f *fakeReceiptRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	r, ok := f.receipts[id]
	if !ok || r.UserID != userID {
		return common.ErrNotFound
	}
	delete(f.receipts, id)
	return nil
}

func (f *fakeReceiptRepo) FindDuplicate(context.Context, uuid.UUID, string, decimal.Decimal, time.Time) (*entity.Receipt, error) {
	return nil, nil
}

type fakeProfileRepo struct {
	profiles  map[uuid.UUID]*entity.Profile
	creditErr error
}

func newFakeProfileRepo() *fakeProfileRepo {
	return &fakeProfileRepo{profiles: make(map[uuid.UUID]*entity.Profile)}
}

func (f *fakeProfileRepo) GetByID(_ context.Context, userID uuid.UUID) (*entity.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProfileRepo) CreditBalance(_ context.Context, userID uuid.UUID, points int64) (*entity.Profile, error) {
	if f.creditErr != nil {
		return nil, f.creditErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		p = &entity.Profile{ID: userID}
		f.profiles[userID] = p
	}
	p.SipcoinsBalance += points
	cp := *p
	return &cp, nil
}

type fakeImageStore struct {
	objects     map[string][]byte
	removed     []string
	downloadErr error
}

func newFakeImageStore() *fakeImageStore {
	return &fakeImageStore{objects: make(map[string][]byte)}
}

func (f *fakeImageStore) Upload(_ context.Context, key string, data []byte, _ string) (string, error) {
	f.objects[key] = data
	return "https://img.test/" + key, nil
}

func (f *fakeImageStore) Download(_ context.Context, key string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object %s", key)
	}
	return data, nil
}

func (f *fakeImageStore) Remove(_ context.Context, key string) error {
	delete(f.objects, key)
	f.removed = append(f.removed, key)
	return nil
}

type fakeEngine struct {
	text string
	conf float32
	err  error
}

func (f *fakeEngine) Recognize(context.Context, []byte) (ocr.Result, error) {
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Confidence: f.conf}, nil
}

type fixture struct {
	proc     *Processor
	receipts *fakeReceiptRepo
	profiles *fakeProfileRepo
	images   *fakeImageStore
	engine   *fakeEngine
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		receipts: newFakeReceiptRepo(),
		profiles: newFakeProfileRepo(),
		images:   newFakeImageStore(),
		engine:   &fakeEngine{text: goodOCRText, conf: 0.9},
		userID:   uuid.New(),
	}
	gate := submit.NewValidator(submit.Config{}, fx.receipts, nil,
		submit.WithClock(func() time.Time { return fixedNow }))
	fx.proc = NewProcessor(nil, fx.receipts, fx.profiles, fx.images, fx.engine, gate,
		30*time.Second, WithClock(func() time.Time { return fixedNow }))
	return fx
}

const goodOCRText = `COFFEE HOUSE
12/25/2023 08:41 AM
Latte $4.50
Total: $8.37`

func (fx *fixture) uploaded(t *testing.T) *entity.Receipt {
	t.Helper()
	rec, err := fx.proc.UploadReceipt(context.Background(), fx.userID, UploadRequest{
		Filename:    "receipt.jpg",
		ContentType: "image/jpeg",
		Data:        []byte("jpegdata"),
	})
	if err != nil {
		t.Fatalf("UploadReceipt: %v", err)
	}
	return rec
}

func (fx *fixture) processed(t *testing.T) *entity.Receipt {
	t.Helper()
	rec := fx.uploaded(t)
	rec, err := fx.proc.ProcessReceipt(context.Background(), fx.userID, rec.ID)
	if err != nil {
		t.Fatalf("ProcessReceipt: %v", err)
	}
	return rec
}

func TestUploadReceipt(t *testing.T) {
	fx := newFixture(t)
	rec := fx.uploaded(t)

	if rec.Status != constants.StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if !strings.HasPrefix(rec.ImagePath, fx.userID.String()+"/") {
		t.Errorf("image path %q not scoped to user", rec.ImagePath)
	}
	if !strings.HasSuffix(rec.ImagePath, ".jpg") {
		t.Errorf("image path %q missing extension", rec.ImagePath)
	}
	if !bytes.Equal(fx.images.objects[rec.ImagePath], []byte("jpegdata")) {
		t.Error("image bytes not stored under the receipt's path")
	}
}

func TestUploadRejectsBadInput(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  UploadRequest
	}{
		{"empty", UploadRequest{Filename: "r.jpg", ContentType: "image/jpeg"}},
		{"oversized", UploadRequest{Filename: "r.jpg", ContentType: "image/jpeg", Data: make([]byte, constants.MaxUploadSize+1)}},
		{"bad type", UploadRequest{Filename: "r.gif", ContentType: "image/gif", Data: []byte("x")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fx.proc.UploadReceipt(ctx, fx.userID, tc.req)
			if !errors.Is(err, common.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
	if len(fx.images.objects) != 0 {
		t.Error("rejected uploads must not reach the image store")
	}
}

func TestUploadCleansUpOrphanedObject(t *testing.T) {
	fx := newFixture(t)
	fx.receipts.createErr = errors.New("insert failed")

	_, err := fx.proc.UploadReceipt(context.Background(), fx.userID, UploadRequest{
		Filename:    "receipt.png",
		ContentType: "image/png",
		Data:        []byte("pngdata"),
	})
	if err == nil {
		t.Fatal("expected error from failed insert")
	}
	if len(fx.images.removed) != 1 {
		t.Fatalf("removed = %v, want the orphaned object deleted", fx.images.removed)
	}
	if len(fx.images.objects) != 0 {
		t.Error("orphaned object still present")
	}
}

func TestProcessReceipt(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)

	if rec.Status != constants.StatusProcessed {
		t.Fatalf("status = %s, want processed", rec.Status)
	}
	if rec.TotalAmount == nil || !rec.TotalAmount.Equal(decimal.RequireFromString("8.37")) {
		t.Errorf("total = %v, want 8.37", rec.TotalAmount)
	}
	if rec.OCRTotalAmount == nil || !rec.OCRTotalAmount.Equal(decimal.RequireFromString("8.37")) {
		t.Errorf("ocr total = %v, want the extraction snapshot", rec.OCRTotalAmount)
	}
	if rec.MerchantName == nil || *rec.MerchantName != "COFFEE HOUSE" {
		t.Errorf("merchant = %v, want COFFEE HOUSE", rec.MerchantName)
	}
	if rec.TransactionDate == nil || !rec.TransactionDate.Equal(time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("transaction date = %v, want 2023-12-25", rec.TransactionDate)
	}
	if rec.Metadata.Confidence == nil || *rec.Metadata.Confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", rec.Metadata.Confidence)
	}
	if rec.ProcessingAttempts != 1 {
		t.Errorf("attempts = %d, want 1", rec.ProcessingAttempts)
	}
}

func TestProcessWithoutTotalFails(t *testing.T) {
	fx := newFixture(t)
	fx.engine.text = "COFFEE HOUSE\nThank you!"

	rec := fx.uploaded(t)
	rec, err := fx.proc.ProcessReceipt(context.Background(), fx.userID, rec.ID)
	if err != nil {
		t.Fatalf("ProcessReceipt: %v", err)
	}
	if rec.Status != constants.StatusFailed {
		t.Fatalf("status = %s, want failed when no total was found", rec.Status)
	}
}

func TestProcessOCRErrorMarksFailed(t *testing.T) {
	fx := newFixture(t)
	fx.engine.err = errors.New("tesseract exploded")

	rec := fx.uploaded(t)
	_, err := fx.proc.ProcessReceipt(context.Background(), fx.userID, rec.ID)
	if err == nil {
		t.Fatal("expected OCR error")
	}

	stored := fx.receipts.receipts[rec.ID]
	if stored.Status != constants.StatusFailed {
		t.Errorf("status = %s, want failed", stored.Status)
	}
	if stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, "ocr") {
		t.Errorf("error message = %v, want the OCR failure recorded", stored.ErrorMessage)
	}
}

func TestSubmitReceiptCreditsBalance(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)

	res, err := fx.proc.SubmitReceipt(context.Background(), fx.userID, rec.ID)
	if err != nil {
		t.Fatalf("SubmitReceipt: %v", err)
	}
	if res.Rejection != nil {
		t.Fatalf("unexpected rejection: %+v", res.Rejection)
	}
	if res.Points == nil || res.Points.TotalPoints <= 0 {
		t.Fatalf("points = %+v, want a positive award", res.Points)
	}
	if res.Receipt.SipcoinsEarned != res.Points.TotalPoints {
		t.Errorf("receipt earned %d, award is %d", res.Receipt.SipcoinsEarned, res.Points.TotalPoints)
	}
	if !res.Receipt.Submitted() {
		t.Error("receipt not marked submitted")
	}

	// First award creates the profile with the award as initial balance.
	prof, err := fx.profiles.GetByID(context.Background(), fx.userID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if prof.SipcoinsBalance != res.Points.TotalPoints {
		t.Errorf("balance = %d, want %d", prof.SipcoinsBalance, res.Points.TotalPoints)
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)
	ctx := context.Background()

	if _, err := fx.proc.SubmitReceipt(ctx, fx.userID, rec.ID); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	res, err := fx.proc.SubmitReceipt(ctx, fx.userID, rec.ID)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}
	if res.Rejection == nil || res.Rejection.Reason != submit.ReasonNotReady {
		t.Fatalf("second submit = %+v, want already-submitted rejection", res)
	}

	// The balance was credited exactly once.
	prof, _ := fx.profiles.GetByID(ctx, fx.userID)
	if prof.SipcoinsBalance != res.Receipt.SipcoinsEarned {
		t.Errorf("balance = %d, want single credit of %d", prof.SipcoinsBalance, res.Receipt.SipcoinsEarned)
	}
}

func TestSubmitUnprocessedRejected(t *testing.T) {
	fx := newFixture(t)
	rec := fx.uploaded(t)

	res, err := fx.proc.SubmitReceipt(context.Background(), fx.userID, rec.ID)
	if err != nil {
		t.Fatalf("SubmitReceipt: %v", err)
	}
	if res.Rejection == nil || res.Rejection.Reason != submit.ReasonNotReady {
		t.Fatalf("result = %+v, want not-ready rejection", res)
	}
}

func TestSubmitBalanceCreditFailure(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)
	fx.profiles.creditErr = errors.New("connection reset")

	_, err := fx.proc.SubmitReceipt(context.Background(), fx.userID, rec.ID)
	if err == nil {
		t.Fatal("expected error when balance credit fails")
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != "BALANCE_CREDIT_INCONSISTENT" {
		t.Fatalf("err = %v, want BALANCE_CREDIT_INCONSISTENT", err)
	}

	// The award stayed on the receipt; reconciliation has to repair the
	// balance, not the receipt.
	stored := fx.receipts.receipts[rec.ID]
	if !stored.Submitted() || stored.SipcoinsEarned == 0 {
		t.Error("award missing from receipt after credit failure")
	}
}

func TestUpdateReceipt(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)

	updated, err := fx.proc.UpdateReceipt(context.Background(), fx.userID, UpdateRequest{
		ReceiptID:       rec.ID,
		MerchantName:    "  Coffee House Downtown  ",
		TransactionDate: time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC),
		TotalAmount:     decimal.RequireFromString("9.00"),
		Items:           []string{"Latte", "Croissant"},
	})
	if err != nil {
		t.Fatalf("UpdateReceipt: %v", err)
	}
	if *updated.MerchantName != "Coffee House Downtown" {
		t.Errorf("merchant = %q, want trimmed", *updated.MerchantName)
	}
	if !updated.TotalAmount.Equal(decimal.RequireFromString("9.00")) {
		t.Errorf("total = %s, want 9.00", updated.TotalAmount)
	}
	if updated.Metadata.EditedAt == nil {
		t.Error("edit timestamp not recorded")
	}
	// The OCR snapshot is untouched by edits.
	if updated.OCRTotalAmount == nil || !updated.OCRTotalAmount.Equal(decimal.RequireFromString("8.37")) {
		t.Errorf("ocr total = %v, want untouched 8.37", updated.OCRTotalAmount)
	}
}

func TestUpdateValidation(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)
	ctx := context.Background()

	_, err := fx.proc.UpdateReceipt(ctx, fx.userID, UpdateRequest{
		ReceiptID:       rec.ID,
		MerchantName:    " a ",
		TransactionDate: fixedNow,
		TotalAmount:     decimal.RequireFromString("9.00"),
	})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("short merchant: err = %v, want ErrInvalidInput", err)
	}

	_, err = fx.proc.UpdateReceipt(ctx, fx.userID, UpdateRequest{
		ReceiptID:       rec.ID,
		MerchantName:    "Coffee House",
		TransactionDate: fixedNow,
		TotalAmount:     decimal.Zero,
	})
	if !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("zero amount: err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateAfterSubmitRefused(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)
	ctx := context.Background()

	if _, err := fx.proc.SubmitReceipt(ctx, fx.userID, rec.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}

	_, err := fx.proc.UpdateReceipt(ctx, fx.userID, UpdateRequest{
		ReceiptID:       rec.ID,
		MerchantName:    "Another Name",
		TransactionDate: fixedNow,
		TotalAmount:     decimal.RequireFromString("9.00"),
	})
	if !errors.Is(err, common.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestDeleteReceipt(t *testing.T) {
	fx := newFixture(t)
	rec := fx.uploaded(t)
	ctx := context.Background()

	if err := fx.proc.DeleteReceipt(ctx, fx.userID, rec.ID); err != nil {
		t.Fatalf("DeleteReceipt: %v", err)
	}
	if _, err := fx.receipts.GetByID(ctx, fx.userID, rec.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("receipt still present after delete: %v", err)
	}
	if len(fx.images.objects) != 0 {
		t.Error("stored image not removed with the receipt")
	}
}

func TestDeleteSubmittedRefused(t *testing.T) {
	fx := newFixture(t)
	rec := fx.processed(t)
	ctx := context.Background()

	if _, err := fx.proc.SubmitReceipt(ctx, fx.userID, rec.ID); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := fx.proc.DeleteReceipt(ctx, fx.userID, rec.ID); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestGetScopedToUser(t *testing.T) {
	fx := newFixture(t)
	rec := fx.uploaded(t)

	_, err := fx.proc.ProcessReceipt(context.Background(), uuid.New(), rec.ID)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for another user's receipt", err)
	}
}
