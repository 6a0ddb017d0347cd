package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

const (
	PublishLimit       = 30
	PublishLimitWindow = time.Hour
)

// PublishLimiter caps publish requests per user. It must run after AuthMiddleware.
func PublishLimiter(max int, window time.Duration) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("user_id").(int64); ok {
				return "publish:" + strconv.FormatInt(userID, 10)
			}
			return "publish:ip:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many posts, try again later",
			})
		},
	})
}
