package handler

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/scalable-coupon-system/internal/model"
	"github.com/fairyhunter13/scalable-coupon-system/internal/service"
)

// SaleServiceInterface defines the interface for sale business logic.
type SaleServiceInterface interface {
	CreateSale(ctx context.Context, req *model.CreateSaleRequest) error
	GetSaleStatus(ctx context.Context, saleID string) (*model.SaleStatusResponse, error)
	GetStats(ctx context.Context, saleID string) (*model.StatsResponse, error)
	UpdateWindow(ctx context.Context, req *model.UpdateWindowRequest) (*model.Sale, error)
}

// SaleHandler handles HTTP requests for sale operations.
type SaleHandler struct {
	service   SaleServiceInterface
	validator *validator.Validate
}

// NewSaleHandler creates a new SaleHandler with the given service and validator.
func NewSaleHandler(svc SaleServiceInterface, v *validator.Validate) *SaleHandler {
	return &SaleHandler{service: svc, validator: v}
}

// formatSaleValidationError converts validator errors to required messages.
func formatSaleValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "SaleID":
				if tag == "required" {
					return "invalid request: sale_id is required"
				}
				return "invalid request: sale_id is invalid"
			case "Name":
				if tag == "required" {
					return "invalid request: name is required"
				}
				if tag == "notblank" {
					return "invalid request: name cannot be whitespace only"
				}
				return "invalid request: name is invalid"
			case "StartTime":
				return "invalid request: start_time is required"
			case "EndTime":
				if tag == "gtfield" {
					return "invalid request: end_time must be after start_time"
				}
				return "invalid request: end_time is required"
			case "TotalStock":
				if tag == "required" {
					return "invalid request: total_stock is required"
				}
				return "invalid request: total_stock must be at least 0"
			default:
				if tag == "required" {
					return "invalid request: " + field + " is required"
				}
				return "invalid request: " + field + " is invalid"
			}
		}
	}
	return "invalid request"
}

// CreateSale handles POST /api/sales requests to create a new sale.
func (h *SaleHandler) CreateSale(c *fiber.Ctx) error {
	var req model.CreateSaleRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatSaleValidationError(err)})
	}

	if err := h.service.CreateSale(c.Context(), &req); err != nil {
		if errors.Is(err, service.ErrSaleExists) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "sale already exists"})
		}
		if errors.Is(err, service.ErrInvalidRequest) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
		}
		log.Error().Err(err).Str("sale_id", req.SaleID).Msg("failed to create sale")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.Status(fiber.StatusCreated).Send(nil)
}

// GetSaleStatus handles GET /api/sales/:sale_id requests.
func (h *SaleHandler) GetSaleStatus(c *fiber.Ctx) error {
	saleID := c.Params("sale_id")

	status, err := h.service.GetSaleStatus(c.Context(), saleID)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
		}
		log.Error().Err(err).Str("sale_id", saleID).Msg("failed to get sale status")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(status)
}

// GetStats handles GET /api/sales/:sale_id/stats requests.
func (h *SaleHandler) GetStats(c *fiber.Ctx) error {
	saleID := c.Params("sale_id")

	stats, err := h.service.GetStats(c.Context(), saleID)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
		}
		log.Error().Err(err).Str("sale_id", saleID).Msg("failed to get sale stats")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(stats)
}

// UpdateWindow handles PATCH /api/sales/:sale_id/window requests.
func (h *SaleHandler) UpdateWindow(c *fiber.Ctx) error {
	var req model.UpdateWindowRequest
	req.SaleID = c.Params("sale_id")

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	req.SaleID = c.Params("sale_id") // BodyParser may overwrite with a body field; path wins

	if req.SaleID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: sale_id is required"})
	}

	sale, err := h.service.UpdateWindow(c.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
		}
		log.Error().Err(err).Str("sale_id", req.SaleID).Msg("failed to update sale window")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(fiber.Map{"ok": true, "sale": sale})
}
