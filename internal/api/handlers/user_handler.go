package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/socialhub/internal/service"
)

type UserHandler struct {
	s service.UserService
}

func NewUserHandler(service service.UserService) *UserHandler {
	return &UserHandler{s: service}
}

func (h *UserHandler) GetUserInfo(c *fiber.Ctx) error {
	userInfo, err := h.s.GetUserInfo(c.UserContext(), GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Unable to load user")
	}

	return c.JSON(userInfo)
}

func (h *UserHandler) PostingHistory(c *fiber.Ctx) error {
	history, err := h.s.PostingHistory(c.UserContext(), GetUserID(c), c.QueryInt("limit", 0))
	if err != nil {
		return errorResponse(c, err, "Unable to load posting history")
	}

	return c.JSON(history)
}

func (h *UserHandler) RemoveUser(c *fiber.Ctx) error {
	if err := h.s.RemoveUser(c.UserContext(), GetUserID(c)); err != nil {
		return errorResponse(c, err, "Unable to remove user")
	}

	return c.SendStatus(fiber.StatusOK)
}
