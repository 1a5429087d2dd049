package handlers

import (
	"html/template"

	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/middleware"
	"github.com/tajious/bmconsole/internal/models"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body data-step="{{.Step}}" data-role="{{.Role}}">
<h1>{{.Title}}</h1>
{{if .Message}}<p class="banner">{{.Message}}</p>{{end}}
</body>
</html>
`))

type page struct {
	Title   string
	Step    string
	Role    models.Role
	Message string
}

// AreaHandler serves the login entry point and the two landing areas. The
// landing areas are only reachable through the guard.
type AreaHandler struct{}

func NewAreaHandler() *AreaHandler {
	return &AreaHandler{}
}

func (h *AreaHandler) Login(c *fiber.Ctx) error {
	entry, err := entryOf(c)
	if err != nil {
		return err
	}

	st := entry.Session.Status()
	if !st.Loading && st.Authenticated && st.Role.Valid() {
		return c.Redirect(st.Role.HomePath(), fiber.StatusFound)
	}

	snap := entry.Flow.Snapshot()
	return render(c, page{
		Title:   "Sign in",
		Step:    string(snap.Step),
		Message: snap.Message,
	})
}

func (h *AreaHandler) StaffDashboard(c *fiber.Ctx) error {
	return render(c, page{Title: "Building management", Role: roleOf(c)})
}

func (h *AreaHandler) RenterDashboard(c *fiber.Ctx) error {
	return render(c, page{Title: "My home", Role: roleOf(c)})
}

func roleOf(c *fiber.Ctx) models.Role {
	st, _ := middleware.StatusFrom(c)
	return st.Role
}

func render(c *fiber.Ctx, p page) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return pageTemplate.Execute(c.Response().BodyWriter(), p)
}
