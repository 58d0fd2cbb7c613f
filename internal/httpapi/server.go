// Package httpapi exposes the task manager over HTTP with echo.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"task-manager/internal/auth"
	"task-manager/internal/model"
	"task-manager/internal/service"
)

// Deps are the services the HTTP layer routes to.
type Deps struct {
	Gateway   *auth.Gateway
	Auth      *service.AuthService
	Users     *service.UserService
	Resources *service.Resources
	Log       *slog.Logger
}

// New builds the echo instance with every route registered under /api.
func New(deps Deps) *echo.Echo {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(log)
	e.Use(middleware.Recover())
	e.Use(requestLogger(log))

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})

	required := requireIdentity(deps.Gateway, log)
	optional := optionalIdentity(deps.Gateway, log)

	api := e.Group("/api")

	authH := &authHandler{auth: deps.Auth}
	api.POST("/auth/register", authH.register)
	api.POST("/auth/login", authH.login)
	api.GET("/auth/profile", authH.profile, required)

	usersH := &userHandler{users: deps.Users}
	users := api.Group("/users", required)
	users.GET("", usersH.list)
	users.GET("/:id", usersH.get)
	users.PUT("/:id", usersH.update)
	users.DELETE("/:id", usersH.delete)

	mountResource(api.Group("/categories"), &resourceHandler[model.Category]{res: deps.Resources.Categories}, required, optional)
	mountResource(api.Group("/tasks"), &resourceHandler[model.Task]{res: deps.Resources.Tasks}, required, optional)
	mountResource(api.Group("/reminders"), &resourceHandler[model.Reminder]{
		res:     deps.Resources.Reminders,
		deleted: echo.Map{"message": "Reminder deleted successfully"},
	}, required, optional)

	return e
}

// Reads accept anonymous callers; writes need an identity.
func mountResource[T any](g *echo.Group, h *resourceHandler[T], required, optional echo.MiddlewareFunc) {
	g.GET("", h.list, optional)
	g.GET("/:id", h.get, optional)
	g.POST("", h.create, required)
	g.PUT("/:id", h.update, required)
	g.DELETE("/:id", h.delete, required)
}
