package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dogparkjp/parkgate/internal/middleware"
	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/services"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type AccessHandler struct {
	pinService    *services.PinService
	exportService *services.ExportService
}

func NewAccessHandler(pinService *services.PinService, exportService *services.ExportService) *AccessHandler {
	return &AccessHandler{
		pinService:    pinService,
		exportService: exportService,
	}
}

// IssuePinRequest represents the PIN issuance payload
type IssuePinRequest struct {
	LockID   string  `json:"lock_id"`
	DogID    *string `json:"dog_id,omitempty"`
	DogRunID *string `json:"dog_run_id,omitempty"`
}

// IssueEntry issues an entry PIN for the given lock
func (h *AccessHandler) IssueEntry(c fiber.Ctx) error {
	return h.issuePin(c, models.PinTypeEntry)
}

// IssueExit issues an exit PIN for the given lock
func (h *AccessHandler) IssueExit(c fiber.Ctx) error {
	return h.issuePin(c, models.PinTypeExit)
}

func (h *AccessHandler) issuePin(c fiber.Ctx, pinType string) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	var req IssuePinRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	lockID, err := uuid.Parse(req.LockID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid lock_id",
		})
	}

	issueReq := services.IssueRequest{
		UserID:  userID,
		LockID:  lockID,
		PinType: pinType,
	}
	if req.DogID != nil {
		if id, err := uuid.Parse(*req.DogID); err == nil {
			issueReq.DogID = &id
		}
	}
	if req.DogRunID != nil {
		if id, err := uuid.Parse(*req.DogRunID); err == nil {
			issueReq.DogRunID = &id
		}
	}

	accessLog, err := h.pinService.Issue(c.Context(), issueReq)
	if err != nil {
		return h.issueError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"access_log": accessLog.ToResponse(time.Now()),
	})
}

// issueError maps an issuance failure to an API response
func (h *AccessHandler) issueError(c fiber.Ctx, err error) error {
	var vendorErr *services.VendorError
	switch {
	case errors.As(err, &vendorErr):
		// The vendor's reason is user-facing; surface it verbatim
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error":   "Vendor Error",
			"message": vendorErr.Reason,
			"code":    vendorErr.Code,
		})
	case errors.Is(err, services.ErrLockNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "Lock not found",
		})
	case errors.Is(err, services.ErrLockDisabled):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error":   "Forbidden",
			"message": "このロックは現在利用できません",
		})
	case errors.Is(err, services.ErrPersistence):
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "PIN was issued but could not be saved. Please request a new PIN.",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to issue PIN",
		})
	}
}

// Current returns the record the UI should display right now
func (h *AccessHandler) Current(c fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	lockID, err := optionalLockID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid lock_id",
		})
	}

	current, err := h.pinService.CurrentLog(context.Background(), userID, lockID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to resolve current log",
		})
	}

	if current == nil {
		return c.JSON(fiber.Map{
			"access_log": nil,
		})
	}

	return c.JSON(fiber.Map{
		"access_log": current.ToResponse(time.Now()),
	})
}

// Logs returns the user's recent access logs, newest first
func (h *AccessHandler) Logs(c fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	lockID, err := optionalLockID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid lock_id",
		})
	}

	logs, err := h.pinService.RecentLogs(context.Background(), userID, lockID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to fetch access logs",
		})
	}

	now := time.Now()
	responses := make([]*models.AccessLogResponse, len(logs))
	for i := range logs {
		responses[i] = logs[i].ToResponse(now)
	}

	return c.JSON(fiber.Map{
		"access_logs": responses,
	})
}

// Export downloads the user's access history as an xlsx file
func (h *AccessHandler) Export(c fiber.Ctx) error {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Unauthorized",
		})
	}

	lockID, err := optionalLockID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid lock_id",
		})
	}

	buf, err := h.exportService.ExportAccessLogs(context.Background(), userID, lockID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to export access logs",
		})
	}

	filename := fmt.Sprintf("access-logs-%s.xlsx", time.Now().Format("20060102"))
	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(buf.Bytes())
}

// optionalLockID parses the lock_id query param; nil when absent
func optionalLockID(c fiber.Ctx) (*uuid.UUID, error) {
	raw := c.Query("lock_id")
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
