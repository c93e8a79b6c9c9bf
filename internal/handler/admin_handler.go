package handler

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
)

// AdminServiceInterface defines the interface for administrative operations:
// reset, stock reinitialisation, and user-mark recovery. None of these are on
// the hot path; all are operator-invoked.
type AdminServiceInterface interface {
	Reset(ctx context.Context, saleID string, stock int) error
	InitStock(ctx context.Context, saleID string) (int64, error)
	RecoverUserMarks(ctx context.Context, saleID string) (int, error)
}

// AdminHandler handles HTTP requests for administrative operations.
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler creates a new AdminHandler with the given service.
func NewAdminHandler(svc AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: svc}
}

// Reset handles POST /api/admin/sales/:sale_id/reset requests. Sets total
// stock, deletes all orders, and clears and re-seeds the coordinator.
// Administrative only: intended for tests and controlled relaunches.
func (h *AdminHandler) Reset(c *fiber.Ctx) error {
	saleID := c.Params("sale_id")

	var req model.ResetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.service.Reset(c.Context(), saleID, req.Stock); err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
		}
		log.Error().Err(err).Str("sale_id", saleID).Msg("failed to reset sale")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(fiber.Map{"ok": true})
}

// InitStock handles POST /api/admin/sales/:sale_id/init-stock requests.
// Recomputes remaining stock from the durable order log and overwrites the
// coordinator. Safe only when no purchases are in flight against the sale.
func (h *AdminHandler) InitStock(c *fiber.Ctx) error {
	saleID := c.Params("sale_id")

	remaining, err := h.service.InitStock(c.Context(), saleID)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
		}
		log.Error().Err(err).Str("sale_id", saleID).Msg("failed to initialize stock")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(fiber.Map{"ok": true, "initialized_stock": remaining})
}

// RecoverUserMarks handles POST /api/admin/sales/:sale_id/recover-marks
// requests. Rebuilds the coordinator's user marks from the durable order
// log's successful orders. Idempotent; used after coordinator failover.
func (h *AdminHandler) RecoverUserMarks(c *fiber.Ctx) error {
	saleID := c.Params("sale_id")

	restored, err := h.service.RecoverUserMarks(c.Context(), saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", saleID).Msg("failed to recover user marks")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(fiber.Map{"ok": true, "restored": restored})
}
