package handlers

import (
	"context"

	"github.com/dogparkjp/parkgate/internal/models"
	"github.com/dogparkjp/parkgate/internal/store"
	"github.com/gofiber/fiber/v3"
)

type LockHandler struct {
	locks store.LockStore
}

func NewLockHandler(locks store.LockStore) *LockHandler {
	return &LockHandler{
		locks: locks,
	}
}

// List returns all enabled smart locks
func (h *LockHandler) List(c fiber.Ctx) error {
	ctx := context.Background()
	locks, err := h.locks.List(ctx)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to fetch locks",
		})
	}

	return c.JSON(fiber.Map{
		"locks": locks,
	})
}

// CreateLockRequest represents the lock registration payload
type CreateLockRequest struct {
	Name          string `json:"name"`
	ParkName      string `json:"park_name"`
	ScienerLockID int64  `json:"sciener_lock_id"`
}

// Create registers a new smart lock
func (h *LockHandler) Create(c fiber.Ctx) error {
	var req CreateLockRequest
	if err := c.Bind().JSON(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Invalid request body",
		})
	}

	if req.Name == "" || req.ScienerLockID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   "Bad Request",
			"message": "Name and sciener_lock_id are required",
		})
	}

	ctx := context.Background()

	// Reject duplicate vendor lock ids early; the unique index would catch
	// it anyway but this gives a clean error
	if existing, err := h.locks.GetBySciener(ctx, req.ScienerLockID); err == nil && existing != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":   "Conflict",
			"message": "Lock already registered",
		})
	}

	lock := &models.SmartLock{
		Name:          req.Name,
		ParkName:      req.ParkName,
		ScienerLockID: req.ScienerLockID,
		Enabled:       true,
	}

	if err := h.locks.Create(ctx, lock); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Internal Server Error",
			"message": "Failed to register lock",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"lock": lock,
	})
}
