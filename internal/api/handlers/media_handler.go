package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/conscious-collective/relay-social/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) UploadMedia(c *fiber.Ctx) error {
	userID := GetUserID(c)

	file, err := c.FormFile("file")
	if err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file selected",
		})
	}

	asset, err := h.s.Upload(c.Context(), userID, file)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(asset)
}

func (h *MediaHandler) ListMedia(c *fiber.Ctx) error {
	userID := GetUserID(c)

	assets, err := h.s.List(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(assets)
}
