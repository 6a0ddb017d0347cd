package handlers

import (
	"fmt"
	"net/url"

	"github.com/gofiber/fiber/v2"

	config "github.com/maheshrc27/socialhub/configs"
	"github.com/maheshrc27/socialhub/internal/logger"
	"github.com/maheshrc27/socialhub/internal/service"
)

type PlatformHandler struct {
	ps  service.PlatformService
	ls  service.LinkService
	cfg config.Config
}

func NewPlatformHandler(ps service.PlatformService, ls service.LinkService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{
		ps:  ps,
		ls:  ls,
		cfg: cfg,
	}
}

// AddSocialAccount redirects the browser to the provider's consent page.
func (h *PlatformHandler) AddSocialAccount(c *fiber.Ctx) error {
	authURL, err := h.ls.StartLink(c.UserContext(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return errorResponse(c, err, "Unable to start account linking")
	}
	return c.Redirect(authURL)
}

// CallbackHandler finishes linking and sends the browser back to the dashboard.
// Failures are reported to the frontend through the error query parameter.
func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platformName := c.Params("platform")
	redirect := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)

	if providerErr := c.Query("error"); providerErr != "" {
		logger.FromContext(c.UserContext()).Info("provider denied authorization",
			"platform", platformName, "error", providerErr, "description", c.Query("error_description"))
		return c.Redirect(redirect+"?error="+url.QueryEscape(platformName+"_auth_failed"), fiber.StatusTemporaryRedirect)
	}

	_, err := h.ls.CompleteLink(c.UserContext(), GetUserID(c), platformName, c.Query("code"), c.Query("state"))
	if err != nil {
		logger.FromContext(c.UserContext()).Info("account linking failed", "platform", platformName, "error", err)
		return c.Redirect(redirect+"?error="+url.QueryEscape(platformName+"_auth_failed"), fiber.StatusTemporaryRedirect)
	}

	return c.Redirect(redirect+"?connected="+url.QueryEscape(platformName), fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) ListSocialAccounts(c *fiber.Ctx) error {
	accountList, err := h.ps.List(c.UserContext(), GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Failed to fetch social accounts")
	}

	return c.Status(fiber.StatusOK).JSON(accountList)
}

func (h *PlatformHandler) DeleteSocialAccount(c *fiber.Ctx) error {
	accountID := c.QueryInt("id", 0)
	if accountID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Missing account id",
		})
	}

	if err := h.ps.Unlink(c.UserContext(), GetUserID(c), int64(accountID)); err != nil {
		return errorResponse(c, err, "Unable to delete social account")
	}

	return c.SendStatus(fiber.StatusOK)
}

// AccountSnapshots returns stored analytics history for one account, newest first.
func (h *PlatformHandler) AccountSnapshots(c *fiber.Ctx) error {
	accountID, err := c.ParamsInt("id")
	if err != nil || accountID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid account id",
		})
	}

	snaps, err := h.ps.Snapshots(c.UserContext(), GetUserID(c), int64(accountID), c.QueryInt("limit", 0))
	if err != nil {
		return errorResponse(c, err, "Unable to load analytics history")
	}

	return c.JSON(snaps)
}

func (h *PlatformHandler) LatestSnapshots(c *fiber.Ctx) error {
	snaps, err := h.ps.LatestSnapshots(c.UserContext(), GetUserID(c))
	if err != nil {
		return errorResponse(c, err, "Unable to load analytics")
	}

	return c.JSON(snaps)
}
