package handlers

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/session"
)

// Revoker invalidates a refresh token with the accounts service.
type Revoker interface {
	Logout(ctx context.Context, access, refresh string) error
}

type SessionHandler struct {
	revoker Revoker
	logger  *slog.Logger
}

func NewSessionHandler(revoker Revoker, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		revoker: revoker,
		logger:  logger,
	}
}

type SessionResponse struct {
	session.Status
	Home string `json:"home,omitempty"`
}

func (h *SessionHandler) Status(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	st := entry.Session.Status()
	return c.JSON(SessionResponse{Status: st, Home: st.Role.HomePath()})
}

// Logout revokes the refresh token upstream when possible and always clears
// the local session. Ending the session also restarts the sign-in flow.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	tokens := entry.Session.Tokens(ctx)
	if tokens.Refresh != "" {
		if err := h.revoker.Logout(ctx, tokens.Access, tokens.Refresh); err != nil {
			h.logger.Warn("revoke refresh token", "session", entry.ID, "error", err)
		}
	}

	if err := entry.Session.Logout(ctx); err != nil {
		h.logger.Error("end session", "session", entry.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to end session",
		})
	}

	return c.JSON(fiber.Map{
		"redirect": entry.TakeRedirect(),
	})
}
