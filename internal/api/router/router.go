package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tajious/bmconsole/internal/api/handlers"
	"github.com/tajious/bmconsole/internal/middleware"
	"github.com/tajious/bmconsole/internal/models"
)

type Router struct {
	app            *fiber.App
	loginHandler   *handlers.LoginHandler
	sessionHandler *handlers.SessionHandler
	areaHandler    *handlers.AreaHandler
	session        fiber.Handler
	authMiddleware *middleware.AuthMiddleware
	rateLimiter    *middleware.RateLimiter
}

func NewRouter(
	app *fiber.App,
	loginHandler *handlers.LoginHandler,
	sessionHandler *handlers.SessionHandler,
	areaHandler *handlers.AreaHandler,
	session fiber.Handler,
	authMiddleware *middleware.AuthMiddleware,
	rateLimiter *middleware.RateLimiter,
) *Router {
	return &Router{
		app:            app,
		loginHandler:   loginHandler,
		sessionHandler: sessionHandler,
		areaHandler:    areaHandler,
		session:        session,
		authMiddleware: authMiddleware,
		rateLimiter:    rateLimiter,
	}
}

func (r *Router) SetupRoutes() {
	r.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Everything below carries a console session.
	console := r.app.Group("", r.session)

	api := console.Group("/api")
	api.Get("/session", r.sessionHandler.Status)
	api.Post("/logout", r.sessionHandler.Logout)

	loginAPI := api.Group("/login")
	loginAPI.Get("/state", r.loginHandler.State)
	loginAPI.Post("/reset", r.loginHandler.Reset)

	limited := loginAPI.Group("", r.rateLimiter.RateLimit("login"))
	limited.Post("/identity", r.loginHandler.ResolveIdentity)
	limited.Post("/code", r.loginHandler.RequestCode)
	limited.Post("/code/verify", r.loginHandler.VerifyCode)
	limited.Post("/password", r.loginHandler.LoginWithPassword)

	// Pages
	console.Get(models.LoginPath, r.areaHandler.Login)
	console.Get(models.StaffHomePath, r.authMiddleware.Protect(r.areaHandler.StaffDashboard, models.RoleStaff))
	console.Get(models.RenterHomePath, r.authMiddleware.Protect(r.areaHandler.RenterDashboard, models.RoleRenter))
}
