package handlers

import (
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/console"
	"github.com/tajious/bmconsole/internal/login"
	"github.com/tajious/bmconsole/internal/middleware"
	"github.com/tajious/bmconsole/internal/models"
	"github.com/tajious/bmconsole/internal/validation"
)

type LoginHandler struct {
	logger *slog.Logger
}

func NewLoginHandler(logger *slog.Logger) *LoginHandler {
	return &LoginHandler{logger: logger}
}

// LoginResponse is the flow snapshot plus where the browser should go next,
// if anywhere.
type LoginResponse struct {
	login.Snapshot
	Redirect string `json:"redirect,omitempty"`
}

func (h *LoginHandler) State(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}
	return h.respond(c, entry)
}

func (h *LoginHandler) ResolveIdentity(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	var req models.IdentityRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	entry.Flow.ResolveIdentity(c.UserContext(), req.Identity)
	return h.respond(c, entry)
}

// RequestCode resends the code. The body is optional and may name a
// different identity to send to.
func (h *LoginHandler) RequestCode(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	var req models.ResendRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if err := validation.ValidateStruct(req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	if snap := entry.Flow.Snapshot(); snap.Step == login.StepCode && snap.ResendIn > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(snap.ResendIn))
		return c.Status(fiber.StatusTooManyRequests).JSON(LoginResponse{Snapshot: snap})
	}

	entry.Flow.RequestCode(c.UserContext(), req.Identity)
	return h.respond(c, entry)
}

func (h *LoginHandler) VerifyCode(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	var req models.VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	entry.Flow.VerifyCode(c.UserContext(), req.Code)
	return h.respond(c, entry)
}

func (h *LoginHandler) LoginWithPassword(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	var req models.PasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := validation.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	entry.Flow.LoginWithPassword(c.UserContext(), req.Identity, req.Password)
	return h.respond(c, entry)
}

// Reset is the "not me" action.
func (h *LoginHandler) Reset(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	entry.Flow.Reset()
	return h.respond(c, entry)
}

func (h *LoginHandler) respond(c *fiber.Ctx, entry *console.Entry) error {
	return c.JSON(LoginResponse{
		Snapshot: entry.Flow.Snapshot(),
		Redirect: entry.TakeRedirect(),
	})
}

func entryOf(c *fiber.Ctx) (*console.Entry, error) {
	entry, ok := middleware.EntryFrom(c)
	if !ok {
		return nil, fiber.NewError(fiber.StatusInternalServerError, "console session missing")
	}
	return entry, nil
}
