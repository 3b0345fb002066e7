package handler

import (
	"errors"

	"parcel-sorter/internal/features/health/domain"
	"parcel-sorter/internal/features/health/ports"

	"github.com/gofiber/fiber/v2"
)

// HealthHandler handles HTTP requests for diverter health.
type HealthHandler struct {
	registry ports.HealthRegistry
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(registry ports.HealthRegistry) *HealthHandler {
	return &HealthHandler{
		registry: registry,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// UpdateNodeRequest is the body of PUT /api/health/nodes/{id}.
type UpdateNodeRequest struct {
	IsHealthy    bool   `json:"is_healthy"`
	ErrorCode    string `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

// NodesResponse lists every diverter with the line-wide mode.
type NodesResponse struct {
	Nodes           []domain.NodeHealthStatus `json:"nodes"`
	DegradationMode domain.DegradationMode    `json:"degradation_mode"`
}

// ListNodes godoc
// @Summary List diverter health
// @Tags health
// @Produce json
// @Success 200 {object} NodesResponse
// @Router /api/health/nodes [get]
func (h *HealthHandler) ListNodes(c *fiber.Ctx) error {
	return c.JSON(NodesResponse{
		Nodes:           h.registry.Snapshot(),
		DegradationMode: h.registry.Degradation(),
	})
}

// UpdateNode godoc
// @Summary Report diverter health
// @Description Records a health check result. Unhealthy diverters are excluded from new paths.
// @Tags health
// @Accept json
// @Produce json
// @Param id path string true "Diverter ID"
// @Param status body UpdateNodeRequest true "Health report"
// @Success 200 {object} domain.NodeHealthStatus
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/health/nodes/{id} [put]
func (h *HealthHandler) UpdateNode(c *fiber.Ctx) error {
	var req UpdateNodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "invalid request body",
			RayID:   c.Locals("requestid").(string),
		})
	}

	status := domain.NodeHealthStatus{
		NodeID:       c.Params("id"),
		IsHealthy:    req.IsHealthy,
		ErrorCode:    req.ErrorCode,
		ErrorMessage: req.ErrorMessage,
	}
	if err := h.registry.Update(status); err != nil {
		if errors.Is(err, domain.ErrUnknownNode) {
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
				Message: err.Error(),
				RayID:   c.Locals("requestid").(string),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   c.Locals("requestid").(string),
		})
	}

	current, _ := h.registry.Get(status.NodeID)
	return c.JSON(current)
}

// GetDegradation godoc
// @Summary Line degradation mode
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /api/health/degradation [get]
func (h *HealthHandler) GetDegradation(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"degradation_mode": h.registry.Degradation(),
	})
}
