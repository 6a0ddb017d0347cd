package handlers

import (
	"io"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/socialhub/internal/logger"
	"github.com/maheshrc27/socialhub/internal/service"
)

type MediaHandler struct {
	s service.MediaService
}

func NewMediaHandler(service service.MediaService) *MediaHandler {
	return &MediaHandler{s: service}
}

// Upload stores the multipart "file" field and returns the asset with its public URL.
func (h *MediaHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No file selected",
		})
	}
	if fileHeader.Size > service.MaxMediaSize {
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "File too large",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.FromContext(c.UserContext()).Error("open upload failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to read file",
		})
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, service.MaxMediaSize+1))
	if err != nil {
		logger.FromContext(c.UserContext()).Error("read upload failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unable to read file",
		})
	}

	asset, err := h.s.Upload(c.UserContext(), GetUserID(c), fileHeader.Filename, data)
	if err != nil {
		return errorResponse(c, err, "Unable to upload media")
	}

	return c.Status(fiber.StatusCreated).JSON(asset)
}

func (h *MediaHandler) List(c *fiber.Ctx) error {
	assets, err := h.s.List(c.UserContext(), GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Unable to list media")
	}

	return c.JSON(assets)
}
