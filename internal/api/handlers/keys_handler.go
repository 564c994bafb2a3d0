package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/conscious-collective/relay-social/internal/service"
)

type ApiKeyHandler struct {
	s service.ApiKeyService
}

func NewApiKeyHandler(service service.ApiKeyService) *ApiKeyHandler {
	return &ApiKeyHandler{s: service}
}

func (h *ApiKeyHandler) CreateApiKey(c *fiber.Ctx) error {
	userID := GetUserID(c)

	key, err := h.s.Create(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"api_key": key,
	})
}

func (h *ApiKeyHandler) ListKeys(c *fiber.Ctx) error {
	userID := GetUserID(c)

	keys, err := h.s.List(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(keys)
}

func (h *ApiKeyHandler) RemoveAPIKey(c *fiber.Ctx) error {
	userID := GetUserID(c)
	keyID := c.QueryInt("id", 0)

	if err := h.s.RemoveAPIKey(c.Context(), userID, int64(keyID)); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
