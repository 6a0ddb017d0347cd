package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/socialhub/internal/logger"
)

const HeaderRequestID = "X-Request-ID"

// RequestID tags every request with an id, echoed in the response header and
// carried on the user context for logger.FromContext.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = logger.GenerateRequestID()
		}

		c.Set(HeaderRequestID, id)
		c.Locals("request_id", id)
		c.SetUserContext(logger.WithRequestID(c.UserContext(), id))
		return c.Next()
	}
}
