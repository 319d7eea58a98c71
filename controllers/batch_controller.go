package controllers

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"verifyengine/batch"
	"verifyengine/models"
	"verifyengine/utils"
	"verifyengine/verifier"
)

// BatchController exposes the §6 submit_bulk/get_batch/get_batch_results
// operations and the bulk-result CSV/JSON export this engine adds over the
// distilled spec.
type BatchController struct {
	Executor *batch.Executor
	Store    batch.Store
}

func NewBatchController(executor *batch.Executor, store batch.Store) *BatchController {
	return &BatchController{Executor: executor, Store: store}
}

type submitBulkRequest struct {
	Emails      []string `json:"emails" validate:"required,min=1,dive,required"`
	CallbackURL string   `json:"callback_url" validate:"omitempty,url"`
	NotifyEmail string   `json:"notify_email" validate:"omitempty,email"`
}

// SubmitBulk enqueues a list of addresses for asynchronous verification.
func (bc *BatchController) SubmitBulk(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
	}

	var req submitBulkRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "validation failed", err)
	}

	batchID, jobID, err := bc.Executor.SubmitBulk(c.Context(), user.ID, req.Emails, req.CallbackURL, req.NotifyEmail)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to submit batch", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(utils.SuccessResponse(fiber.Map{
		"batch_id": batchID,
		"job_id":   jobID,
		"status":   "queued",
	}))
}

// GetBatch reports a batch job's current progress.
func (bc *BatchController) GetBatch(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
	}

	batchID := c.Params("batchID")
	job, err := bc.Executor.GetBatch(c.Context(), batchID, user.ID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "batch not found", nil)
	}

	return c.JSON(utils.SuccessResponse(job))
}

// CancelBatch requests cancellation at the next email boundary (§4.8).
func (bc *BatchController) CancelBatch(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
	}

	batchID := c.Params("batchID")
	if _, err := bc.Executor.GetBatch(c.Context(), batchID, user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "batch not found", nil)
	}

	bc.Executor.Cancel(batchID)
	return c.JSON(utils.SuccessResponse(fiber.Map{"message": "cancellation requested"}))
}

// GetBatchResults streams the per-email verification logs, as JSON by
// default or CSV when ?format=csv is given.
func (bc *BatchController) GetBatchResults(c *fiber.Ctx) error {
	user, ok := c.Locals("user").(*models.User)
	if !ok || user == nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "authorization required", nil)
	}

	batchID := c.Params("batchID")
	if _, err := bc.Executor.GetBatch(c.Context(), batchID, user.ID); err != nil {
		return utils.ErrorResponse(c, fiber.StatusNotFound, "batch not found", nil)
	}

	logs, err := bc.Store.ListLogs(c.Context(), batchID)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "failed to load results", err)
	}

	if c.Query("format") == "csv" {
		return writeResultsCSV(c, batchID, logs)
	}

	return c.JSON(utils.SuccessResponse(logs))
}

// writeResultsCSV renders the §6 wire-behaviour column set:
// Email, Valid, Format Valid, MX Records, Disposable, SMTP Check, Role
// Account, Catch All, Spam Trap, Suggestion. Suggestion is always quoted
// per §6, which encoding/csv won't do on its own for a clean value, so the
// row is assembled with writeCSVRow instead of csv.Writer.
func writeResultsCSV(c *fiber.Ctx, batchID string, logs []models.VerificationLog) error {
	var buf bytes.Buffer
	writeCSVRow(&buf, []string{
		"Email", "Valid", "Format Valid", "MX Records", "Disposable",
		"SMTP Check", "Role Account", "Catch All", "Spam Trap", "Suggestion",
	}, nil)

	for _, l := range logs {
		var result verifier.Result
		_ = json.Unmarshal([]byte(l.ResultJSON), &result)

		mxRecords := make([]string, 0, len(result.Details.MX))
		for _, mx := range result.Details.MX {
			mxRecords = append(mxRecords, mx.Exchange)
		}

		writeCSVRow(&buf, []string{
			l.Email,
			strconv.FormatBool(l.IsValid),
			strconv.FormatBool(result.FormatValid),
			joinMX(mxRecords),
			strconv.FormatBool(result.IsDisposable),
			strconv.FormatBool(result.SMTPOk),
			strconv.FormatBool(result.IsRoleAccount),
			strconv.FormatBool(result.IsCatchAll),
			strconv.FormatBool(result.IsSpamTrap),
			result.Suggestion,
		}, []int{9})
	}

	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+batchID+`.csv"`)
	return c.Send(buf.Bytes())
}

// writeCSVRow appends one RFC 4180 record to buf. A field is quoted when it
// needs escaping or when its index is listed in forceQuote, regardless of
// content.
func writeCSVRow(buf *bytes.Buffer, fields []string, forceQuote []int) {
	forced := make(map[int]bool, len(forceQuote))
	for _, i := range forceQuote {
		forced[i] = true
	}
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		if forced[i] || strings.ContainsAny(f, ",\"\n\r") {
			buf.WriteByte('"')
			buf.WriteString(strings.ReplaceAll(f, `"`, `""`))
			buf.WriteByte('"')
		} else {
			buf.WriteString(f)
		}
	}
	buf.WriteByte('\n')
}

func joinMX(records []string) string {
	out := ""
	for i, r := range records {
		if i > 0 {
			out += ";"
		}
		out += r
	}
	return out
}
