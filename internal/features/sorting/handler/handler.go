package handler

import (
	"context"

	"parcel-sorter/internal/features/sorting/domain"

	"github.com/gofiber/fiber/v2"
)

// DebugSorter sorts a parcel to an explicit chute, bypassing upstream routing.
type DebugSorter interface {
	ExecuteDebugSort(ctx context.Context, parcelID uint64, targetChuteID int64) domain.SortingResult
}

// SortingHandler exposes the operator debug surface.
type SortingHandler struct {
	sorter DebugSorter
}

// NewSortingHandler creates a new SortingHandler.
func NewSortingHandler(sorter DebugSorter) *SortingHandler {
	return &SortingHandler{sorter: sorter}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// DebugSortRequest is the body of a debug sort. A zero parcel id gets a generated one.
type DebugSortRequest struct {
	ParcelID      uint64 `json:"parcel_id"`
	TargetChuteID int64  `json:"target_chute_id"`
}

// DebugSortResponse reports a debug sort. Failures are reported here, not as HTTP errors.
type DebugSortResponse struct {
	ParcelID         uint64 `json:"parcel_id"`
	IsSuccess        bool   `json:"is_success"`
	ActualChuteID    int64  `json:"actual_chute_id"`
	Message          string `json:"message"`
	PathSegmentCount int    `json:"path_segment_count"`
}

// DebugSort godoc
// @Summary Sort a parcel to a chute directly
// @Description Generates and executes a path without tracking or upstream routing. For test and operations use.
// @Tags debug
// @Accept json
// @Produce json
// @Param request body DebugSortRequest true "Debug sort"
// @Success 200 {object} DebugSortResponse
// @Failure 400 {object} ErrorResponse
// @Router /api/debug/sort [post]
func (h *SortingHandler) DebugSort(c *fiber.Ctx) error {
	var req DebugSortRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "Invalid request body",
			RayID:   c.Locals("requestid").(string),
		})
	}

	if req.TargetChuteID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "target_chute_id must be positive",
			RayID:   c.Locals("requestid").(string),
		})
	}

	parcel := domain.NewDescriptorFromDebug(req.ParcelID)
	res := h.sorter.ExecuteDebugSort(c.UserContext(), parcel.ParcelID, req.TargetChuteID)

	resp := DebugSortResponse{
		ParcelID:         parcel.ParcelID,
		IsSuccess:        res.IsSuccess,
		ActualChuteID:    res.ActualChuteID,
		PathSegmentCount: res.PathSegmentCount,
		Message:          "sorted",
	}
	if !res.IsSuccess || res.IsExceptionRouted {
		resp.Message = res.FailureReason
	}

	return c.JSON(resp)
}
