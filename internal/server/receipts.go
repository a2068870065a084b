package server

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Blackhoodiez/sipcoin/internal/async"
	"github.com/Blackhoodiez/sipcoin/internal/common"
	"github.com/Blackhoodiez/sipcoin/internal/export"
	"github.com/Blackhoodiez/sipcoin/internal/pipeline"
	"github.com/Blackhoodiez/sipcoin/internal/repository"
	"github.com/Blackhoodiez/sipcoin/internal/utils"
)

// ReceiptHandler serves the receipt ingestion API.
type ReceiptHandler struct {
	proc     *pipeline.Processor
	queue    async.Queue
	exporter *export.Service
	receipts repository.ReceiptRepository
	profiles repository.ProfileRepository
	validate *validator.Validate
	logger   *slog.Logger
}

func NewReceiptHandler(
	proc *pipeline.Processor,
	queue async.Queue,
	exporter *export.Service,
	receipts repository.ReceiptRepository,
	profiles repository.ProfileRepository,
	validate *validator.Validate,
	logger *slog.Logger,
) *ReceiptHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReceiptHandler{
		proc:     proc,
		queue:    queue,
		exporter: exporter,
		receipts: receipts,
		profiles: profiles,
		validate: validate,
		logger:   logger,
	}
}

// Upload accepts a multipart receipt image, stores it, and creates the
// pending receipt. With ?process=async the OCR run is queued immediately.
func (h *ReceiptHandler) Upload(c *fiber.Ctx) error {
	userID := userIDFrom(c)

	fh, err := c.FormFile("file")
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "no file provided")
	}

	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
	}
	data, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "unreadable file")
	}

	rec, err := h.proc.UploadReceipt(c.UserContext(), userID, pipeline.UploadRequest{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	if c.Query("process") == "async" && h.queue != nil {
		_ = h.queue.Enqueue(c.UserContext(), async.Job{
			UserID:      userID,
			ReceiptID:   rec.ID,
			SubmittedAt: time.Now(),
			TraceID:     common.RequestIDFromContext(c.UserContext()),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"receipt": rec,
		"message": "file uploaded successfully",
	})
}

// Process runs OCR + field extraction synchronously.
func (h *ReceiptHandler) Process(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "receipt id must be a UUID")
	}

	rec, err := h.proc.ProcessReceipt(c.UserContext(), userID, receiptID)
	if err != nil {
		return h.mapError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"receipt": rec,
	})
}

// Submit validates the receipt, awards points, and credits the balance.
func (h *ReceiptHandler) Submit(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "receipt id must be a UUID")
	}

	res, err := h.proc.SubmitReceipt(c.UserContext(), userID, receiptID)
	if err != nil {
		return h.mapError(c, err)
	}

	if res.Rejection != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  res.Rejection.Message,
			"reason": res.Rejection.Reason,
		})
	}

	return c.JSON(fiber.Map{
		"success":         true,
		"receipt":         res.Receipt,
		"pointsEarned":    res.Points.TotalPoints,
		"pointsBreakdown": res.Points.Breakdown,
		"message":         "receipt submitted successfully",
	})
}

type updateReceiptRequest struct {
	MerchantName    string   `json:"merchant_name" validate:"required,min=2,max=120"`
	TransactionDate string   `json:"transaction_date" validate:"required"`
	TotalAmount     string   `json:"total_amount" validate:"required"`
	Items           []string `json:"items" validate:"omitempty,dive,max=200"`
}

// Update applies a user edit to the reviewable fields before submission.
func (h *ReceiptHandler) Update(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "receipt id must be a UUID")
	}

	var req updateReceiptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "malformed request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	txDate, ok := utils.ParseReceiptDate(req.TransactionDate)
	if !ok {
		return fiber.NewError(fiber.StatusBadRequest, "valid transaction date required")
	}
	amount, err := decimal.NewFromString(req.TotalAmount)
	if err != nil || !amount.IsPositive() {
		return fiber.NewError(fiber.StatusBadRequest, "total amount must be greater than 0")
	}

	rec, err := h.proc.UpdateReceipt(c.UserContext(), userID, pipeline.UpdateRequest{
		ReceiptID:       receiptID,
		MerchantName:    req.MerchantName,
		TransactionDate: txDate,
		TotalAmount:     amount,
		Items:           req.Items,
	})
	if err != nil {
		return h.mapError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"receipt": rec,
	})
}

// Delete removes an unsubmitted receipt and its stored image.
func (h *ReceiptHandler) Delete(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "receipt id must be a UUID")
	}

	if err := h.proc.DeleteReceipt(c.UserContext(), userID, receiptID); err != nil {
		return h.mapError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Get returns one receipt, user-scoped.
func (h *ReceiptHandler) Get(c *fiber.Ctx) error {
	userID := userIDFrom(c)
	receiptID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "receipt id must be a UUID")
	}

	rec, err := h.receipts.GetByID(c.UserContext(), userID, receiptID)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(fiber.Map{"receipt": rec})
}

// List returns the user's receipts with an optional date window.
func (h *ReceiptHandler) List(c *fiber.Ctx) error {
	userID := userIDFrom(c)

	from, err := h.dateQuery(c, "from")
	if err != nil {
		return err
	}
	to, err := h.dateQuery(c, "to")
	if err != nil {
		return err
	}

	recs, err := h.receipts.List(c.UserContext(), userID, from, to)
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(fiber.Map{"receipts": recs, "count": len(recs)})
}

// Export streams the user's points statement as an XLSX workbook.
func (h *ReceiptHandler) Export(c *fiber.Ctx) error {
	userID := userIDFrom(c)

	from, err := h.dateQuery(c, "from")
	if err != nil {
		return err
	}
	to, err := h.dateQuery(c, "to")
	if err != nil {
		return err
	}

	book, err := h.exporter.StatementXLSX(c.UserContext(), userID, from, to)
	if err != nil {
		return h.mapError(c, err)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="sipcoin-statement.xlsx"`)
	return c.Send(book)
}

// Balance returns the user's current SipCoin balance; a user with no profile
// yet simply has zero.
func (h *ReceiptHandler) Balance(c *fiber.Ctx) error {
	userID := userIDFrom(c)

	prof, err := h.profiles.GetByID(c.UserContext(), userID)
	if errors.Is(err, common.ErrNotFound) {
		return c.JSON(fiber.Map{"sipcoins_balance": 0})
	}
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(fiber.Map{"sipcoins_balance": prof.SipcoinsBalance})
}

func (h *ReceiptHandler) dateQuery(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	t, err := utils.ParseYMD(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, name+" invalid (YYYY-MM-DD)")
	}
	return &t, nil
}

func (h *ReceiptHandler) mapError(c *fiber.Ctx, err error) error {
	var appErr *common.AppError
	msg := "internal server error"
	if errors.As(err, &appErr) {
		msg = appErr.Message
	}
	switch {
	case errors.Is(err, common.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "receipt not found")
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, msg)
	case errors.Is(err, common.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, msg)
	default:
		h.logger.Error("request failed",
			"method", c.Method(), "path", c.Path(),
			"request_id", common.RequestIDFromContext(c.UserContext()),
			"error", err,
		)
		return fiber.NewError(fiber.StatusInternalServerError, msg)
	}
}
