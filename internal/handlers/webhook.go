package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/dogparkjp/parkgate/internal/services"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/gofiber/fiber/v3"
)

// recordTypeUnlockByPin is the Sciener record type for a successful
// keyboard-password unlock. Every other record type (app unlock, failed
// attempt, lock events) is acknowledged and ignored.
const recordTypeUnlockByPin = 2

type WebhookHandler struct {
	pinService          *services.PinService
	notificationService *services.NotificationService
	locks               store.LockStore
}

func NewWebhookHandler(
	pinService *services.PinService,
	notificationService *services.NotificationService,
	locks store.LockStore,
) *WebhookHandler {
	return &WebhookHandler{
		pinService:          pinService,
		notificationService: notificationService,
		locks:               locks,
	}
}

// LockRecordPayload is Sciener's unlock-record callback body.
// date is Unix milliseconds.
type LockRecordPayload struct {
	LockID      int64  `json:"lockId"`
	KeyboardPwd string `json:"keyboardPwd"`
	RecordType  int    `json:"recordType"`
	Date        int64  `json:"date"`
	Username    string `json:"username,omitempty"`
}

// LockRecord processes an unlock notification from Sciener.
//
// The vendor retries on non-2xx, so every outcome we cannot act on is still
// a 200: unknown lock, unknown PIN, duplicate delivery, out-of-order or
// expired events. Retrying would not change any of them.
func (h *WebhookHandler) LockRecord(c fiber.Ctx) error {
	var payload LockRecordPayload
	if err := c.Bind().JSON(&payload); err != nil {
		log.Printf("[Webhook] Malformed lock record payload: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid payload",
		})
	}

	if payload.RecordType != recordTypeUnlockByPin {
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	if payload.LockID == 0 || payload.KeyboardPwd == "" {
		log.Printf("[Webhook] Incomplete lock record: lockId=%d pwd=%q", payload.LockID, payload.KeyboardPwd)
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	usedAt := time.UnixMilli(payload.Date)
	if payload.Date == 0 {
		usedAt = time.Now()
	}

	accessLog, err := h.pinService.HandleUnlock(c.Context(), payload.LockID, payload.KeyboardPwd, usedAt)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			// PIN (or lock) we never issued; nothing to advance
			log.Printf("[Webhook] No matching record: lockId=%d", payload.LockID)
			return c.JSON(fiber.Map{"status": "no_match"})
		case errors.Is(err, store.ErrInvalidTransition):
			// Duplicate delivery or out-of-order event
			log.Printf("[Webhook] Duplicate or out-of-order record: lockId=%d", payload.LockID)
			return c.JSON(fiber.Map{"status": "duplicate"})
		case errors.Is(err, services.ErrPinExpired), errors.Is(err, services.ErrInvalidPinFormat):
			// The lock accepted a PIN our records say had lapsed; flag it
			// for investigation but do not advance the record
			log.Printf("[Webhook] Anomalous unlock with lapsed PIN: lockId=%d usedAt=%s", payload.LockID, usedAt.Format(time.RFC3339))
			return c.JSON(fiber.Map{"status": "anomalous"})
		default:
			log.Printf("[Webhook] Failed to process lock record: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Internal Server Error",
			})
		}
	}

	// Notify outside the webhook path's success criteria: a notification
	// failure must not make the vendor redeliver the unlock
	if h.notificationService != nil {
		if lock, err := h.locks.GetBySciener(c.Context(), payload.LockID); err == nil {
			go h.notificationService.NotifyAccessEvent(accessLog, lock)
		}
	}

	return c.JSON(fiber.Map{
		"status": "processed",
		"id":     accessLog.ID.String(),
	})
}
