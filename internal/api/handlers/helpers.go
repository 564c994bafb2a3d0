package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/conscious-collective/relay-social/internal/models"
)

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := strconv.Atoi(c.Locals("user_id").(string))
	return int64(userID)
}

// ErrorResponse maps domain errors onto HTTP statuses. Conflict and
// validation failures stay distinguishable to callers.
func ErrorResponse(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrValidation):
		status = fiber.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, models.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, models.ErrUnsupportedPlatform):
		status = fiber.StatusBadRequest
	case errors.Is(err, models.ErrInvalidCredential):
		status = fiber.StatusUnauthorized
	}

	return c.Status(status).JSON(fiber.Map{
		"error": err.Error(),
	})
}
