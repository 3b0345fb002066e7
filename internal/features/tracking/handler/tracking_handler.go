package handler

import (
	"errors"
	"strconv"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/tracking/domain"
	"parcel-sorter/internal/features/tracking/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// TrackingHandler handles HTTP requests for parcel tracking.
type TrackingHandler struct {
	trackingService ports.TrackingService
}

// NewTrackingHandler creates a new TrackingHandler.
func NewTrackingHandler(trackingService ports.TrackingService) *TrackingHandler {
	return &TrackingHandler{
		trackingService: trackingService,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// ActiveResponse lists parcels still on the line.
type ActiveResponse struct {
	Count   int                           `json:"count"`
	Parcels []domain.ParcelTrackingRecord `json:"parcels"`
}

// GetActive godoc
// @Summary List active parcels
// @Description Parcels in Detected, Assigned or Routing, oldest first.
// @Tags parcels
// @Produce json
// @Success 200 {object} ActiveResponse
// @Router /api/parcels/active [get]
func (h *TrackingHandler) GetActive(c *fiber.Ctx) error {
	parcels := h.trackingService.GetActive()
	if parcels == nil {
		parcels = []domain.ParcelTrackingRecord{}
	}
	return c.JSON(ActiveResponse{
		Count:   len(parcels),
		Parcels: parcels,
	})
}

// GetParcel godoc
// @Summary Get a parcel tracking record
// @Description Looks the parcel up in the live ledger, then in the archive.
// @Tags parcels
// @Produce json
// @Param id path int true "Parcel ID"
// @Success 200 {object} domain.ParcelTrackingRecord
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/parcels/{id} [get]
func (h *TrackingHandler) GetParcel(c *fiber.Ctx) error {
	parcelID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "parcel id must be a positive integer",
			RayID:   c.Locals("requestid").(string),
		})
	}

	record, err := h.trackingService.Lookup(c.UserContext(), parcelID)
	if err != nil {
		if errors.Is(err, domain.ErrParcelNotTracked) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: "parcel not tracked",
				RayID:   c.Locals("requestid").(string),
			})
		}

		logger.Get().Error("Failed to look up parcel", zap.Uint64("parcel_id", parcelID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   c.Locals("requestid").(string),
		})
	}

	return c.JSON(record)
}
