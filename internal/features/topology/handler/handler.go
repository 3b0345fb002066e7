package handler

import (
	"context"
	"strconv"

	"parcel-sorter/internal/core/logger"
	"parcel-sorter/internal/features/topology/ports"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Rebuilder reloads the topology and drops every cached path.
type Rebuilder interface {
	RebuildCaches(ctx context.Context) error
}

// TopologyHandler exposes path inspection and cache rebuilds.
type TopologyHandler struct {
	rebuilder Rebuilder
	generator ports.PathGenerator
}

// NewTopologyHandler creates a new TopologyHandler.
func NewTopologyHandler(rebuilder Rebuilder, generator ports.PathGenerator) *TopologyHandler {
	return &TopologyHandler{
		rebuilder: rebuilder,
		generator: generator,
	}
}

// ErrorResponse represents an error response with Ray ID.
type ErrorResponse struct {
	// Message is the error description.
	Message string `json:"message"`
	// RayID is the unique request identifier for tracing.
	RayID string `json:"ray_id,omitempty"`
}

// Rebuild godoc
// @Summary Rebuild topology caches
// @Description Reloads the topology file and purges compiled paths. Parcels already in flight keep their path.
// @Tags topology
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 500 {object} ErrorResponse
// @Router /api/topology/rebuild [post]
func (h *TopologyHandler) Rebuild(c *fiber.Ctx) error {
	if err := h.rebuilder.RebuildCaches(c.UserContext()); err != nil {
		logger.Get().Error("Topology rebuild failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Message: err.Error(),
			RayID:   c.Locals("requestid").(string),
		})
	}

	return c.JSON(fiber.Map{
		"message": "Topology rebuilt",
	})
}

// GetPath godoc
// @Summary Preview the switching path to a chute
// @Tags topology
// @Produce json
// @Param chute path int true "Chute ID"
// @Success 200 {object} domain.SwitchingPath
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/topology/paths/{chute} [get]
func (h *TopologyHandler) GetPath(c *fiber.Ctx) error {
	chuteID, err := strconv.ParseInt(c.Params("chute"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Message: "chute must be an integer",
			RayID:   c.Locals("requestid").(string),
		})
	}

	path := h.generator.GeneratePath(chuteID)
	if path == nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Message: "no healthy path to chute",
			RayID:   c.Locals("requestid").(string),
		})
	}

	return c.JSON(path)
}
