// Package httpserver exposes the account API over echo.
package httpserver

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/userauth/internal/middleware"
)

type Deps struct {
	Users *UsersHTTP
	Auth  *middleware.Auth
	Ready func(ctx context.Context) error
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/", func(c echo.Context) error { return c.JSON(http.StatusOK, echo.Map{"status": "ok"}) })
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if d.Ready != nil {
			if err := d.Ready(c.Request().Context()); err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "not ready").SetInternal(err)
			}
		}
		return c.NoContent(http.StatusOK)
	})

	users := e.Group("/users")

	users.POST("/register", d.Users.Register)
	users.POST("/login", d.Users.Login)
	users.POST("/refresh", d.Users.Refresh)
	users.GET("/activate/:token", d.Users.Activate)

	users.POST("/logout", d.Users.Logout, d.Auth.RequireToken)

	auth := d.Auth.RequireAuth

	users.GET("/me", d.Users.Me, auth)
	users.GET("", d.Users.List, auth)
	users.DELETE("", d.Users.DeleteMany, auth)
	users.PATCH("", d.Users.UpdateStatus, auth)
	users.DELETE("/unverified", d.Users.DeleteUnverified, auth)
}
