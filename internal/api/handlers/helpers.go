package handlers

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/maheshrc27/socialhub/internal/logger"
	"github.com/maheshrc27/socialhub/internal/platform"
	"github.com/maheshrc27/socialhub/internal/service"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

func GetUserID(c *fiber.Ctx) int64 {
	userID, _ := c.Locals("user_id").(int64)
	return userID
}

// formatValidationError flattens validator errors into field -> message.
func formatValidationError(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return map[string]string{"error": "Invalid request format"}
	}

	errs := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			errs[field] = "is required"
		case "max":
			errs[field] = fmt.Sprintf("must be at most %s", e.Param())
		case "oneof":
			errs[field] = fmt.Sprintf("must be one of: %s", e.Param())
		case "url":
			errs[field] = "must be a valid URL"
		default:
			errs[field] = "is invalid"
		}
	}
	return errs
}

func errorStatus(err error) int {
	var (
		unknown  *platform.UnknownPlatformError
		csrf     *platform.CsrfMismatchError
		exchange *platform.AuthExchangeError
		refresh  *platform.TokenRefreshError
	)

	switch {
	case errors.As(err, &unknown), errors.As(err, &csrf):
		return fiber.StatusBadRequest
	case errors.Is(err, service.ErrAccountNotLinked),
		errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, platform.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, service.ErrUnsupportedMedia):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrMediaTooLarge):
		return fiber.StatusRequestEntityTooLarge
	case errors.As(err, &exchange):
		return fiber.StatusBadGateway
	case errors.As(err, &refresh), errors.Is(err, platform.ErrUnauthorized):
		// the account must be relinked; the session itself is fine
		return fiber.StatusFailedDependency
	default:
		return fiber.StatusInternalServerError
	}
}

// errorResponse logs err with the request id and writes {"error": message}.
func errorResponse(c *fiber.Ctx, err error, message string) error {
	status := errorStatus(err)
	log := logger.FromContext(c.UserContext())
	if status >= fiber.StatusInternalServerError {
		log.Error(message, "error", err)
	} else {
		log.Info(message, "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": message})
}
