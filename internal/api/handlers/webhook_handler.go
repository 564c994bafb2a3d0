package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/conscious-collective/relay-social/internal/service"
	"github.com/conscious-collective/relay-social/internal/transfer"
)

type WebhookHandler struct {
	s service.WebhookService
}

func NewWebhookHandler(service service.WebhookService) *WebhookHandler {
	return &WebhookHandler{s: service}
}

func (h *WebhookHandler) CreateSubscription(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var sc transfer.SubscriptionCreation
	if err := c.BodyParser(&sc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	// The response is the only place the signing secret ever appears.
	created, err := h.s.CreateSubscription(c.Context(), userID, &sc)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *WebhookHandler) ListSubscriptions(c *fiber.Ctx) error {
	userID := GetUserID(c)

	subs, err := h.s.ListSubscriptions(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(subs)
}

func (h *WebhookHandler) ToggleSubscription(c *fiber.Ctx) error {
	userID := GetUserID(c)
	subID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid subscription id",
		})
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	if err := h.s.ToggleSubscription(c.Context(), userID, int64(subID), body.Enabled); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) RemoveSubscription(c *fiber.Ctx) error {
	userID := GetUserID(c)
	subID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid subscription id",
		})
	}

	if err := h.s.RemoveSubscription(c.Context(), userID, int64(subID)); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) ListDeliveries(c *fiber.Ctx) error {
	userID := GetUserID(c)
	subID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid subscription id",
		})
	}

	deliveries, err := h.s.ListDeliveries(c.Context(), userID, int64(subID))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(deliveries)
}
