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

// PurchaseServiceInterface defines the interface for purchase business logic.
type PurchaseServiceInterface interface {
	Purchase(ctx context.Context, userID, saleID string) (*model.PurchaseResponse, error)
	GetUserPurchase(ctx context.Context, userID, saleID string) (*model.UserPurchaseResponse, error)
}

// PurchaseHandler handles HTTP requests for purchase operations - the thin
// transport wrapper over the admission pipeline.
type PurchaseHandler struct {
	service   PurchaseServiceInterface
	validator *validator.Validate
}

// NewPurchaseHandler creates a new PurchaseHandler with the given service and validator.
func NewPurchaseHandler(svc PurchaseServiceInterface, v *validator.Validate) *PurchaseHandler {
	return &PurchaseHandler{service: svc, validator: v}
}

// formatPurchaseValidationError converts validator errors to required messages.
func formatPurchaseValidationError(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		for _, fe := range ve {
			field := fe.Field()
			tag := fe.Tag()

			switch field {
			case "UserID":
				switch tag {
				case "required":
					return "invalid request: user_id is required"
				case "max":
					return "invalid request: user_id exceeds maximum length of 255"
				case "alphanumdash":
					return "invalid request: user_id must contain only letters, digits, underscores, and dashes"
				default:
					return "invalid request: user_id is invalid"
				}
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

// resultStatus maps a purchase result code to its recommended HTTP status.
func resultStatus(result model.Result) int {
	switch result {
	case model.ResultSuccess:
		return fiber.StatusOK
	case model.ResultAlreadyPurchased:
		return fiber.StatusConflict
	case model.ResultSoldOut:
		return fiber.StatusGone
	case model.ResultSaleNotActive:
		return fiber.StatusForbidden
	case model.ResultSaleNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// Purchase handles POST /api/purchases requests, the sole correctness-critical
// entry point: sale lookup, fast user-mark check, atomic stock decrement,
// oversell guard, user-mark write, and durable insert all happen inside
// the service call below.
func (h *PurchaseHandler) Purchase(c *fiber.Ctx) error {
	var req model.PurchaseRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	if err := h.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": formatPurchaseValidationError(err)})
	}

	resp, err := h.service.Purchase(c.Context(), req.UserID, req.SaleID)
	if err != nil {
		log.Error().
			Err(err).
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", req.UserID).
			Str("sale_id", req.SaleID).
			Msg("purchase pipeline error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"result":  model.ResultError,
			"message": "internal server error",
		})
	}

	if resp.Result == model.ResultSuccess {
		log.Info().
			Str("request_id", c.GetRespHeader("X-Request-ID")).
			Str("user_id", req.UserID).
			Str("sale_id", req.SaleID).
			Int("remaining_stock", derefInt(resp.RemainingStock)).
			Msg("purchase succeeded")
	}

	return c.Status(resultStatus(resp.Result)).JSON(resp)
}

// GetUserPurchase handles GET /api/purchases/:sale_id/:user_id requests.
func (h *PurchaseHandler) GetUserPurchase(c *fiber.Ctx) error {
	saleID := c.Params("sale_id")
	userID := c.Params("user_id")

	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request: user_id is required"})
	}

	resp, err := h.service.GetUserPurchase(c.Context(), userID, saleID)
	if err != nil {
		if errors.Is(err, service.ErrSaleNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
		}
		log.Error().Err(err).Str("sale_id", saleID).Str("user_id", userID).Msg("failed to get user purchase")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
	}

	return c.JSON(resp)
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
