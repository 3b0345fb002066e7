package handler

import (
	"context"
	"errors"
	"time"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/reroute/domain"
	"parcel-sorter/internal/features/reroute/service"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChuteChanger applies chute change requests.
type ChuteChanger interface {
	RequestChuteChange(ctx context.Context, cmd service.ChuteChangeCommand) (service.ChuteChangeResult, error)
}

// RerouteHandler handles chute change requests.
type RerouteHandler struct {
	changer ChuteChanger
}

// NewRerouteHandler creates a new RerouteHandler.
func NewRerouteHandler(changer ChuteChanger) *RerouteHandler {
	return &RerouteHandler{changer: changer}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// ChuteChangeRequest is the body of a chute change.
type ChuteChangeRequest struct {
	ParcelID         uint64     `json:"parcel_id"`
	RequestedChuteID int64      `json:"requested_chute_id"`
	RequestedAt      *time.Time `json:"requested_at,omitempty"`
}

// ChangeChute godoc
// @Summary Request a chute change for an in-flight parcel
// @Description Business rejections are reported with 200 and an outcome; only malformed requests fail.
// @Tags sorting
// @Accept json
// @Produce json
// @Param request body ChuteChangeRequest true "Chute change"
// @Success 200 {object} service.ChuteChangeResult
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/sorting/chute-change [post]
func (h *RerouteHandler) ChangeChute(c *fiber.Ctx) error {
	var req ChuteChangeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "Invalid request body",
			RayID:   c.Locals("requestid").(string),
		})
	}

	if req.ParcelID == 0 || req.RequestedChuteID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "parcel_id and requested_chute_id must be positive",
			RayID:   c.Locals("requestid").(string),
		})
	}

	cmd := service.ChuteChangeCommand{
		ParcelID:         req.ParcelID,
		RequestedChuteID: req.RequestedChuteID,
	}
	if req.RequestedAt != nil {
		cmd.RequestedAt = *req.RequestedAt
	}

	res, err := h.changer.RequestChuteChange(c.UserContext(), cmd)
	if err != nil {
		if errors.Is(err, domain.ErrPlanNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: "no route plan for parcel",
				RayID:   c.Locals("requestid").(string),
			})
		}

		logger.Get().Error("Chute change failed", zap.Uint64("parcel_id", req.ParcelID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   c.Locals("requestid").(string),
		})
	}

	return c.JSON(res)
}
