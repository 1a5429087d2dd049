package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/console"
)

const entryKey = "console_entry"

type SessionConfig struct {
	CookieName string
	Secure     bool
}

// Session attaches the console entry for the request's session cookie,
// issuing a new cookie when the current one is missing or malformed.
func Session(registry *console.Registry, cfg SessionConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		current := c.Cookies(cfg.CookieName)

		entry, err := registry.Open(c.UserContext(), current)
		if err != nil {
			switch {
			case errors.Is(err, console.ErrClosed):
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Console is shutting down",
				})
			case errors.Is(err, console.ErrFull):
				c.Set(fiber.HeaderRetryAfter, "60")
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
					"error": "Too many console sessions",
				})
			}
			return err
		}

		if entry.ID != current {
			c.Cookie(&fiber.Cookie{
				Name:     cfg.CookieName,
				Value:    entry.ID,
				Path:     "/",
				HTTPOnly: true,
				Secure:   cfg.Secure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(entryKey, entry)
		return c.Next()
	}
}

// EntryFrom returns the entry attached by Session.
func EntryFrom(c *fiber.Ctx) (*console.Entry, bool) {
	entry, ok := c.Locals(entryKey).(*console.Entry)
	return entry, ok
}
