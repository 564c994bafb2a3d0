package handlers

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/conscious-collective/relay-social/internal/service"
	"github.com/conscious-collective/relay-social/internal/transfer"
)

type PostHandler struct {
	s service.PostService
}

func NewPostHandler(service service.PostService) *PostHandler {
	return &PostHandler{s: service}
}

func (h *PostHandler) CreatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var pc transfer.PostCreation
	if err := c.BodyParser(&pc); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, outcome, err := h.s.Create(c.Context(), userID, &pc)
	if err != nil {
		return ErrorResponse(c, err)
	}

	resp := fiber.Map{"post": post}
	if outcome != nil {
		resp["publish_result"] = outcome
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *PostHandler) ListPosts(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	if postID != 0 {
		post, err := h.s.PostInfo(c.Context(), int64(postID), userID)
		if err != nil {
			return ErrorResponse(c, err)
		}
		return c.Status(fiber.StatusOK).JSON(post)
	}

	posts, err := h.s.List(c.Context(), userID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(posts)
}

func (h *PostHandler) UpdatePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	var pu transfer.PostUpdate
	if err := c.BodyParser(&pu); err != nil {
		slog.Error(err.Error())
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to parse request body",
		})
	}

	post, outcome, err := h.s.Update(c.Context(), userID, int64(postID), &pu)
	if err != nil {
		return ErrorResponse(c, err)
	}

	resp := fiber.Map{"post": post}
	if outcome != nil {
		resp["publish_result"] = outcome
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *PostHandler) RemovePost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID := c.QueryInt("id", 0)

	if err := h.s.Remove(c.Context(), userID, int64(postID)); err != nil {
		return ErrorResponse(c, err)
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *PostHandler) PublishPost(c *fiber.Ctx) error {
	userID := GetUserID(c)
	postID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid post id",
		})
	}

	outcome, err := h.s.PublishNow(c.Context(), userID, int64(postID))
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(outcome)
}
