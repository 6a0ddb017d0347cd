package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/socialhub/internal/logger"
	"github.com/maheshrc27/socialhub/internal/models"
	"github.com/maheshrc27/socialhub/internal/queue"
	"github.com/maheshrc27/socialhub/internal/service"
	"github.com/maheshrc27/socialhub/internal/transfer"
)

// scheduleSlack is how far ahead scheduled_at must be before the request goes to the queue.
const scheduleSlack = 5 * time.Second

type ContentHandler struct {
	s        service.ContentService
	enqueuer queue.Enqueuer
}

func NewContentHandler(service service.ContentService, enqueuer queue.Enqueuer) *ContentHandler {
	return &ContentHandler{s: service, enqueuer: enqueuer}
}

func (h *ContentHandler) Mentions(c *fiber.Ctx) error {
	result, err := h.s.FetchMentions(c.UserContext(), GetUserID(c), c.Query("q"))
	if err != nil {
		return errorResponse(c, err, "Unable to fetch mentions")
	}

	return c.JSON(result)
}

// Publish posts to the requested platforms now, or queues the request when
// scheduled_at is in the future.
func (h *ContentHandler) Publish(c *fiber.Ctx) error {
	userID := GetUserID(c)

	var req models.PublishRequest
	if err := c.BodyParser(&req); err != nil {
		logger.FromContext(c.UserContext()).Info("invalid publish body", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := getValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Invalid request",
			"fields": formatValidationError(err),
		})
	}

	if req.ScheduledAt != nil && req.ScheduledAt.After(time.Now().Add(scheduleSlack)) {
		taskID, err := queue.EnqueuePublish(c.UserContext(), h.enqueuer, queue.ScheduledPublishPayload{
			UserID:  userID,
			Request: req,
		}, *req.ScheduledAt)
		if err != nil {
			return errorResponse(c, err, "Error scheduling post")
		}

		return c.Status(fiber.StatusAccepted).JSON(transfer.ScheduledPublishResponse{
			Message: "Post scheduled successfully",
			TaskID:  taskID,
		})
	}

	req.ScheduledAt = nil
	results, err := h.s.Publish(c.UserContext(), userID, req)
	if err != nil {
		return errorResponse(c, err, "Unable to publish post")
	}

	return c.JSON(fiber.Map{"results": results})
}

func (h *ContentHandler) Analytics(c *fiber.Ctx) error {
	result, err := h.s.CollectAnalytics(c.UserContext(), GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Unable to collect analytics")
	}

	return c.JSON(result)
}

func (h *ContentHandler) RemovePost(c *fiber.Ctx) error {
	var req transfer.DeletePostRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := getValidator().Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Invalid request",
			"fields": formatValidationError(err),
		})
	}

	if err := h.s.DeletePost(c.UserContext(), GetUserID(c), req.Platform, req.PostID); err != nil {
		return errorResponse(c, err, "Unable to remove post")
	}

	return c.SendStatus(fiber.StatusOK)
}

func (h *ContentHandler) PostAnalytics(c *fiber.Ctx) error {
	stats, err := h.s.PostAnalytics(c.UserContext(), GetUserID(c), c.Params("platform"), c.Params("id"))
	if err != nil {
		return errorResponse(c, err, "Unable to load post analytics")
	}

	return c.JSON(stats)
}
