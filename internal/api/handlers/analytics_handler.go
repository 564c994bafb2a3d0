package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conscious-collective/relay-social/internal/service"
)

type AnalyticsHandler struct {
	s service.AnalyticsService
}

func NewAnalyticsHandler(service service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{s: service}
}

func (h *AnalyticsHandler) GetEngagement(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	snapshot, err := h.s.Engagement(c.Context(), userID, int64(postID))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(snapshot)
}
