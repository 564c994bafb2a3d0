package middleware

import (
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/service"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

type AuthMiddleware struct {
	s   service.ApiKeyService
	cfg *config.Config
}

func NewAuthMiddleware(cfg *config.Config, service service.ApiKeyService) *AuthMiddleware {
	return &AuthMiddleware{s: service, cfg: cfg}
}

func (m *AuthMiddleware) AuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString := c.Cookies(m.cfg.CookieName)
		apiKey := apiKeyFrom(c)

		if tokenString == "" && apiKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing API key or session cookie",
			})
		}

		if apiKey != "" {
			userID, err := m.s.GetUserID(c.Context(), apiKey)
			if err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid API key",
				})
			}
			c.Locals("user_id", fmt.Sprintf("%d", userID))
		} else {
			claims, err := utils.ValidateToken(m.cfg.SecretKey, tokenString)
			if err != nil {
				c.Cookie(&fiber.Cookie{
					Name:   m.cfg.CookieName,
					Value:  "",
					Path:   "/",
					MaxAge: -1,
				})

				log.Printf("Token validation failed: %v", err)
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "Invalid or expired token",
				})
			}

			c.Locals("user_id", claims.UserID)
		}
		return c.Next()
	}
}

func apiKeyFrom(c *fiber.Ctx) string {
	if header := c.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return c.Query("api_key")
}
