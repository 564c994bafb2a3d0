package handlers

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	config "github.com/conscious-collective/relay-social/configs"
	"github.com/conscious-collective/relay-social/internal/service"
	"github.com/conscious-collective/relay-social/pkg/utils"
)

const verifierCookie = "oauth_verifier"

type AccountHandler struct {
	s   service.AccountService
	cfg *config.Config
}

func NewAccountHandler(service service.AccountService, cfg *config.Config) *AccountHandler {
	return &AccountHandler{s: service, cfg: cfg}
}

func (h *AccountHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL, verifier, err := h.s.AuthURL(c.Params("platform"), c.Query("state"))
	if err != nil {
		return ErrorResponse(c, err)
	}

	if verifier != "" {
		c.Cookie(&fiber.Cookie{
			Name:     verifierCookie,
			Value:    verifier,
			Path:     "/",
			HTTPOnly: true,
			MaxAge:   600,
		})
	}

	return c.Redirect(authURL)
}

func (h *AccountHandler) CallbackHandler(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	platform := c.Params("platform")

	claims, err := utils.ValidateToken(h.cfg.SecretKey, state)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to validate user",
		})
	}

	switch platform {
	case "instagram":
		err = h.s.InstagramCallback(c.Context(), code, userID)
	case "twitter":
		verifier := c.Cookies(verifierCookie)
		err = h.s.TwitterCallback(c.Context(), code, verifier, userID)
	case "linkedin":
		err = h.s.LinkedinCallback(c.Context(), code, userID)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown platform",
		})
	}
	if err != nil {
		slog.Info(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "something went wrong",
		})
	}

	redirectURL := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	return c.Redirect(redirectURL, fiber.StatusTemporaryRedirect)
}

func (h *AccountHandler) ListSocialAccounts(c *fiber.Ctx) error {
	userID := GetUserID(c)

	accountList, err := h.s.List(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *AccountHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	userID := GetUserID(c)
	accountID := c.QueryInt("id", 0)

	if err := h.s.Remove(c.Context(), userID, int64(accountID)); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}
