package middleware

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/models"
	"github.com/tajious/bmconsole/internal/session"
)

type Decision int

const (
	Render Decision = iota
	ShowLoading
	RedirectLogin
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case ShowLoading:
		return "loading"
	case RedirectLogin:
		return "redirect-login"
	case RedirectHome:
		return "redirect-home"
	}
	return "unknown"
}

// Decide is the guard table. While the session is still loading nothing is
// redirected. A signed-in user outside their area is sent home; a role with
// no home area goes back to login.
func Decide(st session.Status, required ...models.Role) Decision {
	switch {
	case st.Loading:
		return ShowLoading
	case !st.Authenticated:
		return RedirectLogin
	case len(required) == 0 || slices.Contains(required, st.Role):
		return Render
	case st.Role.HomePath() == "":
		return RedirectLogin
	}
	return RedirectHome
}

// Refresher keeps a session's access token usable before a view renders.
type Refresher interface {
	Ensure(ctx context.Context, st *session.State) bool
}

type AuthMiddleware struct {
	refresher Refresher
	loadWait  time.Duration
	logger    *slog.Logger
}

func NewAuthMiddleware(refresher Refresher, loadWait time.Duration, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		refresher: refresher,
		loadWait:  loadWait,
		logger:    logger,
	}
}

const statusKey = "session_status"

const loadingPage = `<!doctype html><html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head><body><p>Loading&hellip;</p></body></html>`

// Protect wraps view with the guard. It must run after Session.
func (m *AuthMiddleware) Protect(view fiber.Handler, required ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entry, ok := EntryFrom(c)
		if !ok {
			return c.Redirect(models.LoginPath, fiber.StatusFound)
		}

		ctx := c.UserContext()
		if m.loadWait > 0 {
			waitCtx, cancel := context.WithTimeout(ctx, m.loadWait)
			entry.Session.Wait(waitCtx)
			cancel()
		}
		if m.refresher != nil && !entry.Session.Status().Loading {
			m.refresher.Ensure(ctx, entry.Session)
			// Navigation from a refresh-triggered logout is answered by the
			// decision below.
			entry.TakeRedirect()
		}

		st := entry.Session.Status()
		decision := Decide(st, required...)
		m.logger.Debug("guard decision", "path", c.Path(), "decision", decision.String(), "role", st.Role)

		switch decision {
		case ShowLoading:
			c.Set(fiber.HeaderRetryAfter, "1")
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.Status(fiber.StatusAccepted).SendString(loadingPage)
		case RedirectLogin:
			return c.Redirect(models.LoginPath, fiber.StatusFound)
		case RedirectHome:
			return c.Redirect(st.Role.HomePath(), fiber.StatusFound)
		}

		c.Locals(statusKey, st)
		return view(c)
	}
}

// StatusFrom returns the session status the guard rendered with.
func StatusFrom(c *fiber.Ctx) (session.Status, bool) {
	st, ok := c.Locals(statusKey).(session.Status)
	return st, ok
}
